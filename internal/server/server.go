package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/JensRahnfeld/streamlit-overlay/internal/config"
	"github.com/JensRahnfeld/streamlit-overlay/internal/types"
)

var ErrClosed = errors.New("server closed")

// Server pushes component arguments to browsers over websockets and keeps
// the values they report back. It implements visualizer.Bridge.
type Server struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	cfg      config.AppConfig
	frontend http.Handler
	statusFn func() map[string]any

	componentsMu sync.Mutex
	components   map[string]*component

	messages chan []byte
	closed   atomic.Bool

	renders    atomic.Uint64
	broadcasts atomic.Uint64
	dropped    atomic.Uint64
	valuesIn   atomic.Uint64
}

type component struct {
	args    types.ComponentArgs
	payload []byte
	state   types.ComponentState
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10
)

// New builds a server. frontend serves the component page; statusFn adds
// caller-side fields to /status and may be nil.
func New(cfg config.AppConfig, frontend http.Handler, statusFn func() map[string]any) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:    make(map[*websocket.Conn]*sync.Mutex),
		cfg:        cfg,
		frontend:   frontend,
		statusFn:   statusFn,
		components: make(map[string]*component),
		messages:   make(chan []byte, 16),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.frontend != nil {
		mux.Handle("/", s.frontend)
	}
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/config", s.handleConfig)
	mux.HandleFunc("/status", s.handleStatus)
	return mux
}

// Run serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.closed.Store(true)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	go s.broadcast(ctx)

	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Render stores args under their key, pushes them to every connected
// browser and returns the last value the frontend reported for the key,
// or args.Default when it never reported one. An empty key is replaced by
// a random one, so such components never carry a value across renders.
func (s *Server) Render(ctx context.Context, args types.ComponentArgs) (int, error) {
	if err := ctx.Err(); err != nil {
		return args.Default, err
	}
	if s.closed.Load() {
		return args.Default, ErrClosed
	}
	if args.Key == "" {
		args.Key = uuid.NewString()
	}
	payload, err := cbor.Marshal(types.RenderMessage{Type: "render", Args: args})
	if err != nil {
		return args.Default, err
	}
	s.renders.Add(1)

	s.componentsMu.Lock()
	c, ok := s.components[args.Key]
	if !ok {
		c = &component{state: types.ComponentState{Key: args.Key}}
		s.components[args.Key] = c
	}
	c.args = args
	c.payload = payload
	c.state.NumFrames = args.NumFrames
	c.state.Width = args.Width
	c.state.Height = args.Height
	c.state.Renders++
	value := args.Default
	if c.state.HasValue {
		value = c.state.Value
	}
	s.componentsMu.Unlock()

	select {
	case s.messages <- payload:
	default:
		s.dropped.Add(1)
	}
	return value, nil
}

// Value reports the value recorded for key.
func (s *Server) Value(key string) (int, bool) {
	s.componentsMu.Lock()
	defer s.componentsMu.Unlock()
	c, ok := s.components[key]
	if !ok || !c.state.HasValue {
		return 0, false
	}
	return c.state.Value, true
}

func (s *Server) Components() []types.ComponentState {
	s.componentsMu.Lock()
	defer s.componentsMu.Unlock()
	out := make([]types.ComponentState, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c.state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (s *Server) payloads() [][]byte {
	s.componentsMu.Lock()
	defer s.componentsMu.Unlock()
	keys := make([]string, 0, len(s.components))
	for key := range s.components {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([][]byte, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.components[key].payload)
	}
	return out
}

// clientMessage is a JSON message sent by the browser.
type clientMessage struct {
	Type  string  `json:"type"`
	Key   string  `json:"key"`
	Value int     `json:"value"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

func (s *Server) handleClientMessage(msg clientMessage) bool {
	s.componentsMu.Lock()
	defer s.componentsMu.Unlock()
	c, ok := s.components[msg.Key]
	if !ok {
		return false
	}
	switch msg.Type {
	case "value":
		c.state.Value = msg.Value
		c.state.HasValue = true
	case "click":
		c.state.Click = []float64{msg.X, msg.Y}
	default:
		return false
	}
	s.valuesIn.Add(1)
	return true
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	s.mu.Lock()
	writeMu := &sync.Mutex{}
	s.clients[conn] = writeMu
	s.mu.Unlock()

	_ = s.writeJSON(conn, writeMu, s.configPayload())
	s.sendAll(conn, writeMu)

	go func() {
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(pingEvery)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					if err := s.writeMessage(conn, writeMu, websocket.PingMessage, nil); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()
		defer close(done)
		defer s.removeClient(conn)
		for {
			messageType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue
			}
			var msg clientMessage
			if err := json.Unmarshal(payload, &msg); err != nil {
				continue
			}
			if msg.Type == "snapshot_request" {
				s.sendAll(conn, writeMu)
				continue
			}
			s.handleClientMessage(msg)
		}
	}()
}

func (s *Server) sendAll(conn *websocket.Conn, writeMu *sync.Mutex) {
	for _, payload := range s.payloads() {
		if err := s.writeMessage(conn, writeMu, websocket.BinaryMessage, payload); err != nil {
			return
		}
	}
}

func (s *Server) configPayload() map[string]any {
	return map[string]any{
		"type":         "config",
		"alpha":        s.cfg.Alpha,
		"fps":          s.cfg.FPS,
		"autoplay":     s.cfg.Autoplay,
		"toggle_label": s.cfg.ToggleLabel,
		"colormap":     s.cfg.Colormap,
		"format":       s.cfg.Format,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := s.configPayload()
	payload["port"] = s.cfg.Port
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	payload := map[string]any{}
	if s.statusFn != nil {
		payload = s.statusFn()
	}
	metrics, ok := payload["metrics"].(map[string]any)
	if !ok {
		metrics = map[string]any{}
		payload["metrics"] = metrics
	}
	metrics["ws_clients"] = s.clientCount()
	metrics["renders_total"] = s.renders.Load()
	metrics["broadcasts_total"] = s.broadcasts.Load()
	metrics["broadcasts_dropped_total"] = s.dropped.Load()
	metrics["client_messages_total"] = s.valuesIn.Load()
	payload["components"] = s.Components()
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) broadcast(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-s.messages:
			var stale []*websocket.Conn
			s.mu.Lock()
			for conn, writeMu := range s.clients {
				if err := s.writeMessage(conn, writeMu, websocket.BinaryMessage, payload); err != nil {
					stale = append(stale, conn)
				}
			}
			s.mu.Unlock()
			s.broadcasts.Add(1)
			for _, conn := range stale {
				s.removeClient(conn)
			}
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) writeJSON(conn *websocket.Conn, writeMu *sync.Mutex, payload any) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(payload)
}

func (s *Server) writeMessage(conn *websocket.Conn, writeMu *sync.Mutex, messageType int, payload []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(messageType, payload)
}
