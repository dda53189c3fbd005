package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"diffsync/pkg/protocol"
)

// Start binds the configured listeners and launches the accept and
// housekeeping loops. It returns once the server is accepting; use Stop to
// shut down.
func (s *SyncServer) Start() error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Address, err)
	}
	s.listener = listener
	s.logger.Info("Sync server listening", zap.String("address", listener.Addr().String()))

	if s.config.HTTPAddress != "" {
		httpListener, err := net.Listen("tcp", s.config.HTTPAddress)
		if err != nil {
			listener.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.config.HTTPAddress, err)
		}
		s.httpListener = httpListener
		s.httpServer = &http.Server{Handler: s.Handler()}
		s.logger.Info("HTTP endpoint listening", zap.String("address", httpListener.Addr().String()))

		s.wg.Add(1)
		go s.serveHTTP()
	}

	s.wg.Add(3)
	go s.acceptLoop()
	go s.cleanupLoop()
	go s.statusLoop()
	return nil
}

// Stop shuts the server down: no new connections, open connections closed,
// background loops drained. Safe to call more than once.
func (s *SyncServer) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Shutting down sync server")
		s.cancel()
		if s.listener != nil {
			s.listener.Close()
		}
		if s.httpServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				s.logger.Warn("HTTP shutdown failed", zap.Error(err))
			}
		}
		s.wg.Wait()
		s.logger.Info("Sync server stopped")
	})
}

// Address returns the bound TCP address, usable after Start even when the
// configured address had port 0.
func (s *SyncServer) Address() string {
	if s.listener == nil {
		return s.config.Address
	}
	return s.listener.Addr().String()
}

// HTTPAddress returns the bound HTTP address, or "" when HTTP is disabled.
func (s *SyncServer) HTTPAddress() string {
	if s.httpListener == nil {
		return s.config.HTTPAddress
	}
	return s.httpListener.Addr().String()
}

func (s *SyncServer) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("Failed to accept connection", zap.Error(err))
			continue
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// closeOnShutdown unblocks a connection's pending read when the server stops.
// done tells it the connection finished on its own.
func (s *SyncServer) closeOnShutdown(conn net.Conn, done <-chan struct{}) {
	select {
	case <-s.ctx.Done():
		conn.Close()
	case <-done:
	}
}

// handleConn serves one TCP client for the lifetime of its connection. The
// connection stays anonymous until a Connect binds it to a client ID; from
// then on a dropped connection also drops the session.
func (s *SyncServer) handleConn(conn net.Conn) {
	defer s.wg.Done()

	remote := conn.RemoteAddr().String()
	s.logger.Info("Connection accepted", zap.String("remote_addr", remote))

	done := make(chan struct{})
	go s.closeOnShutdown(conn, done)

	var boundID string
	defer func() {
		close(done)
		conn.Close()
		if boundID != "" {
			s.DisconnectClient(boundID)
		}
		s.logger.Info("Connection closed", zap.String("remote_addr", remote))
	}()

	reader := protocol.NewReader(conn)
	writer := protocol.NewWriter(conn)

	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformed) {
				s.logger.Warn("Malformed message",
					zap.String("remote_addr", remote),
					zap.Error(err))
				reply := protocol.NewError(fmt.Sprintf("invalid message format: %v", err))
				if werr := writer.WriteMessage(reply); werr != nil {
					return
				}
				continue
			}
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				s.logger.Debug("Connection read failed",
					zap.String("remote_addr", remote),
					zap.Error(err))
			}
			return
		}

		reply, quit := s.dispatch(msg, &boundID)
		if reply != nil {
			if err := writer.WriteMessage(*reply); err != nil {
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

// dispatch handles one decoded message and returns the reply to send, if
// any, plus whether the connection should close. boundID tracks which client
// session the connection owns; transports share this logic.
func (s *SyncServer) dispatch(msg protocol.Message, boundID *string) (*protocol.Message, bool) {
	switch msg.Kind {
	case protocol.KindConnect:
		clientID := msg.Connect.ClientID
		doc, err := s.ConnectClient(s.ctx, clientID)
		if err != nil {
			s.logger.Warn("Connect rejected",
				zap.String("client_id", clientID),
				zap.Error(err))
			reply := protocol.NewError(err.Error())
			return &reply, false
		}
		*boundID = clientID
		reply := protocol.NewConnectOk(s.Version(), doc)
		return &reply, false

	case protocol.KindClientSync:
		edits, err := s.SyncWithClient(s.ctx, msg.ClientSync.ClientID, msg.ClientSync.Edits)
		if err != nil {
			s.logger.Warn("Sync failed",
				zap.String("client_id", msg.ClientSync.ClientID),
				zap.Error(err))
			reply := protocol.NewError(err.Error())
			return &reply, false
		}
		reply := protocol.NewServerSync(edits, s.Version())
		return &reply, false

	case protocol.KindDisconnect:
		s.DisconnectClient(msg.Disconnect.ClientID)
		*boundID = ""
		return nil, true

	case protocol.KindPing:
		reply := protocol.NewPong()
		return &reply, false

	default:
		s.logger.Warn("Unexpected message", zap.String("kind", string(msg.Kind)))
		reply := protocol.NewError(fmt.Sprintf("unexpected message type %s", msg.Kind))
		return &reply, false
	}
}
