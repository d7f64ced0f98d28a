package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ryancinsight/Apollo2-sub001/internal/config"
	"github.com/ryancinsight/Apollo2-sub001/internal/device"
	"github.com/ryancinsight/Apollo2-sub001/internal/errs"
	"github.com/ryancinsight/Apollo2-sub001/internal/metrics"
	"github.com/ryancinsight/Apollo2-sub001/internal/protocol"
)

// Controller is the device surface the server drives. *device.Device
// implements it.
type Controller interface {
	device.StateProvider
	Status() device.Status
	Info() *device.Info
	Connection() protocol.ConnectionInfo
	FireStage(stage int) error
	FireWithCurrent(currentMA uint16) error
	TurnOff() error
	SetMode(m device.Mode) error
}

// Server polls the device status and broadcasts it to WebSocket clients,
// and accepts control messages from them.
type Server struct {
	cfg     *config.Config
	dev     Controller
	log     *zap.Logger
	metrics *metrics.Metrics
	reg     *prometheus.Registry
	limiter *rate.Limiter

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to WebSocket clients.
type Frame struct {
	Status *device.Status `json:"status,omitempty"`
	Reply  *Reply         `json:"reply,omitempty"`
	Stamp  int64          `json:"stamp"` // Unix ms
}

// ControlMessage is a command from a client.
type ControlMessage struct {
	Action    string `json:"action"` // fire, current, arm, off, standby
	Stage     int    `json:"stage,omitempty"`
	CurrentMA uint16 `json:"current,omitempty"`
}

// Reply answers one ControlMessage.
type Reply struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Kind   string `json:"kind,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l.Named("server")
		}
	}
}

// WithMetrics exposes reg on the metrics path and counts refused controls
// in m.
func WithMetrics(m *metrics.Metrics, reg *prometheus.Registry) Option {
	return func(s *Server) {
		s.metrics = m
		s.reg = reg
	}
}

// New creates a Server for dev.
func New(cfg *config.Config, dev Controller, opts ...Option) *Server {
	limit := rate.Inf
	if ms := cfg.Server.ControlIntervalMS; ms > 0 {
		limit = rate.Every(time.Duration(ms) * time.Millisecond)
	}
	s := &Server{
		cfg:     cfg,
		dev:     dev,
		log:     zap.NewNop(),
		limiter: rate.NewLimiter(limit, 1),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/control", s.handleControl)
	if s.reg != nil {
		path := s.cfg.Server.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, metrics.Handler(s.reg))
	}
	return mux
}

// Run serves HTTP and broadcasts status until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.pollLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.log.Info("listening", zap.String("addr", s.cfg.Server.ListenAddr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.log.Info("client connected", zap.Int("clients", n))

	st := s.dev.Status()
	if data, err := json.Marshal(Frame{Status: &st, Stamp: time.Now().UnixMilli()}); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine: control messages
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			s.log.Info("client disconnected", zap.Int("clients", n))
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg ControlMessage
			var reply Reply
			if err := json.Unmarshal(data, &msg); err != nil {
				reply = Reply{OK: false, Kind: errs.KindOf(errs.ErrInvalidInput), Error: "malformed control message"}
			} else {
				reply = s.control(msg)
			}
			if out, err := json.Marshal(Frame{Reply: &reply, Stamp: time.Now().UnixMilli()}); err == nil {
				select {
				case client.send <- out:
				default:
				}
			}
			if reply.OK {
				s.broadcastStatus()
			}
		}
	}()
}

// control runs one command against the device, at most one per control
// interval across all clients.
func (s *Server) control(msg ControlMessage) Reply {
	reply := Reply{Action: msg.Action}
	if !s.limiter.Allow() {
		s.reject("rate_limited")
		reply.Kind = "rate limited"
		reply.Error = "too many control requests, slow down"
		return reply
	}

	var err error
	switch msg.Action {
	case "fire":
		err = s.dev.FireStage(msg.Stage)
	case "current":
		err = s.dev.FireWithCurrent(msg.CurrentMA)
	case "arm":
		err = device.EnsureArmed(s.dev)
	case "off":
		err = s.dev.TurnOff()
	case "standby":
		err = s.dev.SetMode(device.ModeStandby)
	default:
		s.reject("unknown_action")
		err = errs.Invalid("control", "unknown action %q", msg.Action)
	}
	if err != nil {
		s.log.Warn("control failed", zap.String("action", msg.Action), zap.Error(err))
		reply.Kind = errs.KindOf(err)
		reply.Error = err.Error()
		return reply
	}
	s.log.Info("control", zap.String("action", msg.Action), zap.Int("stage", msg.Stage), zap.Uint16("current", msg.CurrentMA))
	reply.OK = true
	return reply
}

func (s *Server) reject(reason string) {
	if s.metrics != nil {
		s.metrics.ControlRejected.WithLabelValues(reason).Inc()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	writeJSON(w, 200, s.dev.Status())
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	writeJSON(w, 200, struct {
		Device      *device.Info            `json:"device"`
		Connection  protocol.ConnectionInfo `json:"connection"`
		Transitions []device.Mode           `json:"validTransitions"`
		Mode        device.Mode             `json:"mode"`
	}{
		Device:      s.dev.Info(),
		Connection:  s.dev.Connection(),
		Transitions: device.ValidTransitions(s.dev.CurrentMode()),
		Mode:        s.dev.CurrentMode(),
	})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	var msg ControlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "bad request", 400)
		return
	}
	reply := s.control(msg)
	code := 200
	switch {
	case reply.OK:
		s.broadcastStatus()
	case reply.Kind == "rate limited":
		code = http.StatusTooManyRequests
	case reply.Kind == errs.KindOf(errs.ErrInvalidInput):
		code = 400
	default:
		code = http.StatusBadGateway
	}
	writeJSON(w, code, reply)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			s.log.Warn("config save failed", zap.Error(err))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

// pollLoop reads the device status on every tick and broadcasts it. Nothing
// is read while no client is connected.
func (s *Server) pollLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.Server.StatusIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcastStatus()
		}
	}
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) broadcastStatus() {
	if s.clientCount() == 0 {
		return
	}
	st := s.dev.Status()
	s.broadcast(Frame{Status: &st, Stamp: time.Now().UnixMilli()})
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
