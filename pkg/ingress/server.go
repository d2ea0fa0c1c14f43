// Package ingress adapts the host message-passing channel to the session
// pipeline: a websocket endpoint that receives raw event envelopes from the
// execution process and feeds them downstream. The channel itself is an
// external collaborator; this server stays interface-thin.
package ingress

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/openbrowser-ai/opensession/internal/tracing"
	"github.com/openbrowser-ai/opensession/pkg/pipeline"
)

// Server accepts websocket connections delivering raw event envelopes.
type Server struct {
	addr         string
	sharedSecret string
	pipeline     *pipeline.Pipeline
	logger       zerolog.Logger
	upgrader     websocket.Upgrader
	server       *http.Server
	conns        map[string]*websocket.Conn
	mu           sync.Mutex
}

// Config holds server configuration
type Config struct {
	Addr         string
	SharedSecret string
	Pipeline     *pipeline.Pipeline
	Logger       zerolog.Logger
}

// NewServer creates a new ingress server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Addr == "" {
		return nil, errors.New("listen address is required")
	}
	if cfg.SharedSecret == "" {
		return nil, errors.New("shared secret is required")
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}

	return &Server{
		addr:         cfg.Addr,
		sharedSecret: cfg.SharedSecret,
		pipeline:     cfg.Pipeline,
		logger:       cfg.Logger,
		conns:        make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // auth is the shared secret, not the origin
			},
		},
	}, nil
}

// Start begins serving. It blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("addr", s.addr).Msg("Ingress server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ingress server failed: %w", err)
	}
	return nil
}

// Shutdown closes the listener and all live connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for id, conn := range s.conns {
		conn.Close()
		delete(s.conns, id)
	}
	s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		http.Error(w, "session query parameter is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	clientID := uuid.New().String()
	s.mu.Lock()
	s.conns[clientID] = conn
	s.mu.Unlock()

	logger := s.logger.With().
		Str("client_id", clientID).
		Str("session_id", sessionID).
		Logger()
	logger.Info().Msg("Event channel connected")

	go s.readLoop(clientID, sessionID, conn, logger)
}

func (s *Server) readLoop(clientID, sessionID string, conn *websocket.Conn, logger zerolog.Logger) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, clientID)
		s.mu.Unlock()
		conn.Close()
		logger.Info().Msg("Event channel disconnected")
	}()

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn().Err(err).Msg("Event channel read failed")
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		ctx := tracing.WithTraceID(context.Background(), tracing.NewTraceID())
		s.pipeline.Process(ctx, sessionID, raw)
	}
}

func (s *Server) authorized(r *http.Request) bool {
	secret := r.Header.Get("X-OpenSession-Secret")
	if secret == "" {
		secret = r.URL.Query().Get("secret")
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.sharedSecret)) == 1
}
