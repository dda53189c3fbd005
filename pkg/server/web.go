package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"diffsync/pkg/protocol"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler returns the HTTP surface: /ws speaks the sync protocol over
// WebSocket text frames, /status serves a JSON Status snapshot. Exposed so
// tests can mount it on httptest servers.
func (s *SyncServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/ws", s.handleWebSocket)
	router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	return MiddlewareChain(router,
		func(h http.Handler) http.Handler { return LoggingMiddleware(s.logger, h) },
		func(h http.Handler) http.Handler { return RecoveryMiddleware(s.logger, h) },
	)
}

func (s *SyncServer) serveHTTP() {
	defer s.wg.Done()

	if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warn("HTTP server failed", zap.Error(err))
	}
}

func (s *SyncServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	s.serveWebSocket(conn)
}

// serveWebSocket runs the same dispatch loop as the TCP transport, one
// message per text frame. It blocks until the peer goes away or the server
// shuts down.
func (s *SyncServer) serveWebSocket(conn *websocket.Conn) {
	remote := conn.RemoteAddr().String()
	s.logger.Info("WebSocket connected", zap.String("remote_addr", remote))

	done := make(chan struct{})
	go func() {
		select {
		case <-s.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	var boundID string
	defer func() {
		close(done)
		conn.Close()
		if boundID != "" {
			s.DisconnectClient(boundID)
		}
		s.logger.Info("WebSocket closed", zap.String("remote_addr", remote))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("WebSocket read failed",
					zap.String("remote_addr", remote),
					zap.Error(err))
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			s.logger.Warn("Malformed message",
				zap.String("remote_addr", remote),
				zap.Error(err))
			reply := protocol.NewError(fmt.Sprintf("invalid message format: %v", err))
			if werr := s.writeWebSocket(conn, reply); werr != nil {
				return
			}
			continue
		}

		reply, quit := s.dispatch(msg, &boundID)
		if reply != nil {
			if err := s.writeWebSocket(conn, *reply); err != nil {
				s.logger.Warn("Failed to write reply",
					zap.String("remote_addr", remote),
					zap.Error(err))
				return
			}
		}
		if quit {
			return
		}
	}
}

func (s *SyncServer) writeWebSocket(conn *websocket.Conn, msg protocol.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (s *SyncServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Stats(r.Context())
	if err != nil {
		s.logger.Error("Failed to collect status", zap.Error(err))
		http.Error(w, "failed to collect status", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Warn("Failed to write status response", zap.Error(err))
	}
}
