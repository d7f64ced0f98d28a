package discovery

import "time"

// CacheEntry remembers where a controller was last found.
type CacheEntry struct {
	Port         string    `json:"port"`
	BaudRate     int       `json:"baudRate"`
	LastUsed     time.Time `json:"lastUsed"`
	DeviceSerial string    `json:"deviceSerial,omitempty"`
}

// ConnectionCache lets auto-connect try a known port before scanning.
type ConnectionCache interface {
	Lookup() (CacheEntry, bool)
	Store(CacheEntry)
}

// noCache never remembers anything.
type noCache struct{}

func (noCache) Lookup() (CacheEntry, bool) { return CacheEntry{}, false }
func (noCache) Store(CacheEntry)           {}
