// Package bridge exposes the ledger to a GUI shell over local HTTP.
//
// Commands are invoked with POST /invoke/{command} and a JSON argument
// object; every response is {"ok":true,"data":...} or
// {"ok":false,"error":"..."}. Store and sync events are broadcast to
// WebSocket clients connected to /ws so the shell can refresh its views.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"

	"github.com/vertexads/ledger/internal/ledger/db"
	ledgersync "github.com/vertexads/ledger/internal/ledger/sync"
	"github.com/vertexads/ledger/internal/logging"
)

// MessageType is the type of an event message.
type MessageType string

const (
	// MessageTypeHello is sent once to each client on connect.
	MessageTypeHello MessageType = "hello"

	// MessageTypeDataChanged indicates local rows were written or removed.
	MessageTypeDataChanged MessageType = "data_changed"

	// MessageTypeSyncComplete indicates a sync flow finished.
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeSyncFailed indicates a sync flow returned an error.
	MessageTypeSyncFailed MessageType = "sync_failed"
)

// Message is an event sent to WebSocket clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Config holds server configuration.
type Config struct {
	// Addr to listen on (default: 127.0.0.1:7420). Port 0 picks a free port.
	Addr string

	// OriginPatterns accepted for WebSocket upgrades from a browser context.
	OriginPatterns []string

	Logger logrus.FieldLogger
}

// DefaultConfig returns a loopback-only configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:           "127.0.0.1:7420",
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*", "tauri.localhost"},
		Logger:         logrus.StandardLogger(),
	}
}

// Server serves the invoke surface and the event feed.
type Server struct {
	addr     string
	origins  []string
	listener net.Listener
	server   *http.Server

	db       *db.DB
	engine   ledgersync.Syncer
	events   *Handler
	commands map[string]command

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger logrus.FieldLogger
}

// NewServer creates a bridge for database and engine.
func NewServer(config *Config, database *db.DB, engine ledgersync.Syncer) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.OriginPatterns == nil {
		config.OriginPatterns = DefaultConfig().OriginPatterns
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		addr:      config.Addr,
		origins:   config.OriginPatterns,
		db:        database,
		engine:    engine,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger.WithField("component", "bridge"),
	}
	s.events = NewHandler(s, s.logger)
	s.commands = s.commandTable()
	return s
}

// Events returns the handler that formats and broadcasts events. Other
// components (the daemon) report through it.
func (s *Server) Events() *Handler {
	return s.events
}

// Handler returns the HTTP handler with every route registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke/{command}", logging.Wrap("invoke", s.logger, s.handleInvoke))
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Start listens and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		// Restore can hold a request for its full remote timeout.
		WriteTimeout: ledgersync.DefaultRestoreTimeout + 15*time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.WithField("addr", ln.Addr().String()).Info("Bridge listening")
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("Bridge server error")
		}
	}()

	return nil
}

// Stop closes client connections and shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("Stopping bridge")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("bridge shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Info("Bridge stopped")
	return nil
}

// Broadcast queues msg for every connected client. Messages are dropped
// when the queue is full.
func (s *Server) Broadcast(msg Message) {
	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
	default:
		s.logger.WithField("type", string(msg.Type)).Warn("Broadcast queue full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.WithError(err).Warn("Failed to marshal message")
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.WithError(err).Debug("Failed to send to client")
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.origins,
	})
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	hello, _ := json.Marshal(Message{Type: MessageTypeHello, Timestamp: time.Now()})
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, hello)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.WithField("clients", clientCount).Debug("Client connected")

	go s.readLoop(conn)
}

// readLoop drains client frames until the connection closes.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; !exists {
		s.clientsMu.Unlock()
		return
	}
	delete(s.clients, conn)
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	s.logger.WithField("clients", clientCount).Debug("Client disconnected")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counts, err := s.db.Counts(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"clients": s.ClientCount(),
		"counts":  counts,
	})
}

// GetAddr returns the listening address.
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
