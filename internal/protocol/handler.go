package protocol

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
)

var errClosed = errors.New("port closed")

// Exchange describes one completed command round trip.
type Exchange struct {
	At       time.Time
	Code     string
	Value    uint16
	Result   int16
	Duration time.Duration
	Err      error
}

// Observer is notified after every SendCommand, successful or not.
type Observer interface {
	ObserveExchange(Exchange)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Exchange)

func (f ObserverFunc) ObserveExchange(e Exchange) { f(e) }

// Handler owns a Transport and performs command/response round trips on it.
// Commands are strictly sequential; a Handler must not be shared between
// independent callers.
type Handler struct {
	mu        sync.Mutex
	t         *Transport
	log       *zap.Logger
	observers []Observer
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. The handler logs traffic at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l.Named("protocol")
		}
	}
}

// WithObserver registers o for every round trip.
func WithObserver(o Observer) Option {
	return func(h *Handler) {
		if o != nil {
			h.observers = append(h.observers, o)
		}
	}
}

// NewHandler takes ownership of p and configures it with timeout.
func NewHandler(p Port, timeout time.Duration, opts ...Option) (*Handler, error) {
	t, err := NewTransport(p, timeout)
	if err != nil {
		return nil, err
	}
	h := &Handler{t: t, log: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// SendCommand writes one framed command and decodes the reply. No retries
// are made here; callers decide whether a failure is worth another attempt.
func (h *Handler) SendCommand(code string, value uint16) (int16, error) {
	start := time.Now()
	result, err := h.roundTrip(code, value)

	ex := Exchange{
		At:       start,
		Code:     code,
		Value:    value,
		Result:   result,
		Duration: time.Since(start),
		Err:      err,
	}
	for _, o := range h.observers {
		o.ObserveExchange(ex)
	}
	return result, err
}

func (h *Handler) roundTrip(code string, value uint16) (int16, error) {
	frame, err := EncodeCommand(code, value)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.t.Ready() {
		return 0, errs.IO("send_command", errClosed)
	}
	if err := h.t.Write(frame); err != nil {
		return 0, err
	}
	h.log.Debug("tx", zap.ByteString("frame", frame))

	resp, err := h.t.ReadFrame()
	if err != nil {
		return 0, err
	}
	if len(resp) == 0 {
		return 0, errs.Protocol("send_command", "no response to command %s", code)
	}
	h.log.Debug("rx", zap.ByteString("frame", resp))

	return DecodeResponseValue(resp)
}

// ValidateCommand encodes code/value and inspects the resulting frame
// without sending it.
func (h *Handler) ValidateCommand(code string, value uint16) Report {
	frame, err := EncodeCommand(code, value)
	if err != nil {
		return Report{Errors: []string{err.Error()}}
	}
	return ValidateCommand(frame)
}

// Close releases the underlying port.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.t.Close()
}
