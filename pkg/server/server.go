// Package server implements the authoritative side of differential
// synchronization: a SyncServer that reconciles edits from N clients against
// a single persistent document, plus the TCP and WebSocket transports that
// carry the wire protocol.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"diffsync/internal/logging"
	"diffsync/pkg/docstore"
	"diffsync/pkg/document"
	"diffsync/pkg/textdiff"
)

// Config carries the server's knobs. Tests shrink the intervals; the
// binaries override them from flags.
type Config struct {
	// Address is the TCP listen address for the line protocol.
	Address string `json:"address"`
	// HTTPAddress is the optional listen address for the WebSocket and
	// status endpoints. Empty leaves the HTTP listener disabled.
	HTTPAddress string `json:"http_address,omitempty"`
	// DocumentName names the authoritative document this server serves.
	DocumentName string `json:"document_name"`
	// StaleTimeout evicts clients that have gone silent for this long.
	StaleTimeout time.Duration `json:"stale_timeout"`
	// CleanupInterval is how often the stale sweep runs.
	CleanupInterval time.Duration `json:"cleanup_interval"`
	// StatusInterval is how often the activity report is logged.
	StatusInterval time.Duration `json:"status_interval"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Address:         "127.0.0.1:8080",
		DocumentName:    docstore.DefaultDocumentName,
		StaleTimeout:    2 * time.Minute,
		CleanupInterval: 30 * time.Second,
		StatusInterval:  10 * time.Second,
	}
}

// SyncServer is the single authority for one document. Every client sync is
// an "apply then diff" transaction against the freshest committed state: the
// client's edits are patched into the store first, then the reply is diffed
// against that client's session engine so the client never receives its own
// edits echoed back.
type SyncServer struct {
	config Config
	store  docstore.Store
	logger *zap.Logger

	// mu serializes all document mutations and session bookkeeping, which
	// linearizes concurrent client merges by arrival order.
	mu      sync.Mutex
	clients map[string]*ClientSession
	version uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	listener     net.Listener
	httpListener net.Listener
	httpServer   *http.Server
	stopOnce     sync.Once
}

// NewSyncServer builds a server over the given store, creating the
// configured document with default content when the store does not hold it
// yet. A nil logger falls back to the package logger.
func NewSyncServer(ctx context.Context, config Config, store docstore.Store, logger *zap.Logger) (*SyncServer, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}

	doc, err := docstore.EnsureDocument(ctx, store, config.DocumentName)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %q: %w", config.DocumentName, err)
	}
	logger.Info("Serving document",
		zap.String("document_name", config.DocumentName),
		zap.Uint64("document_version", doc.Version),
		zap.Int("document_length", doc.Len()))

	runCtx, cancel := context.WithCancel(context.Background())
	return &SyncServer{
		config:  config,
		store:   store,
		logger:  logger,
		clients: make(map[string]*ClientSession),
		ctx:     runCtx,
		cancel:  cancel,
	}, nil
}

// loadDocument fetches the authoritative document, recreating the default if
// someone deleted it out from under us. Every reconciliation path loads
// through here so concurrent clients always merge against committed state.
func (s *SyncServer) loadDocument(ctx context.Context) (document.Document, error) {
	return docstore.EnsureDocument(ctx, s.store, s.config.DocumentName)
}

// ConnectClient opens a session for clientID and returns the current
// authoritative document. A duplicate ID is rejected without touching the
// existing session.
func (s *SyncServer) ConnectClient(ctx context.Context, clientID string) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; ok {
		return document.Document{}, fmt.Errorf("client %s already connected", clientID)
	}

	doc, err := s.loadDocument(ctx)
	if err != nil {
		return document.Document{}, fmt.Errorf("failed to load document: %w", err)
	}

	s.clients[clientID] = newClientSession(clientID, doc.Content)
	s.version++

	s.logger.Info("Client connected",
		zap.String("client_id", clientID),
		zap.Uint64("server_version", s.version),
		zap.Int("client_count", len(s.clients)))
	return doc, nil
}

// SyncWithClient runs one reconciliation round for clientID and returns the
// edits the client is missing. The order is fixed: load the authoritative
// document, commit the client's edits to the store, advance the session's
// shadow past those same edits, then diff the session against the committed
// content. That diff contains only changes contributed by other clients.
//
// An empty clientEdits list skips the commit and shadow steps and acts as a
// pull: the reply still carries whatever other clients have committed.
func (s *SyncServer) SyncWithClient(ctx context.Context, clientID string, clientEdits textdiff.EditList) (textdiff.EditList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.clients[clientID]
	if !ok {
		return textdiff.EditList{}, fmt.Errorf("client %s not connected", clientID)
	}

	doc, err := s.loadDocument(ctx)
	if err != nil {
		return textdiff.EditList{}, fmt.Errorf("failed to load document: %w", err)
	}

	if !clientEdits.IsEmpty() {
		newContent, err := textdiff.Patch(doc.Content, clientEdits)
		if err != nil {
			return textdiff.EditList{}, fmt.Errorf("failed to apply client edits: %w", err)
		}

		doc, err = s.store.Update(ctx, s.config.DocumentName, newContent)
		if err != nil {
			return textdiff.EditList{}, fmt.Errorf("failed to save document: %w", err)
		}
		s.version++

		s.logger.Debug("Client edits committed",
			zap.String("client_id", clientID),
			zap.Int("edit_count", clientEdits.Len()),
			zap.Uint64("document_version", doc.Version))
	}

	session.touch()

	// Apply the same edits to the session engine so this client's own
	// changes are never sent back to it.
	if !clientEdits.IsEmpty() {
		if err := session.engine.ApplyEdits(clientEdits); err != nil {
			return textdiff.EditList{}, fmt.Errorf("failed to apply client edits to shadow: %w", err)
		}
	}

	serverEdits := textdiff.Diff(session.engine.Text(), doc.Content)
	if !serverEdits.IsEmpty() {
		session.engine.Advance(doc.Content)
		s.logger.Debug("Sending edits to client",
			zap.String("client_id", clientID),
			zap.Int("edit_count", serverEdits.Len()))
	}
	return serverEdits, nil
}

// DisconnectClient drops the session for clientID. Unknown IDs are a no-op.
func (s *SyncServer) DisconnectClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[clientID]; !ok {
		return
	}
	delete(s.clients, clientID)
	s.logger.Info("Client disconnected",
		zap.String("client_id", clientID),
		zap.Int("client_count", len(s.clients)))
}

// CleanupStaleClients evicts every session that has been silent longer than
// timeout and returns the evicted IDs. This is the only liveness-based
// eviction path.
func (s *SyncServer) CleanupStaleClients(timeout time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var stale []string
	for id, session := range s.clients {
		if now.Sub(session.lastSeen) > timeout {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(s.clients, id)
		s.logger.Info("Evicted stale client",
			zap.String("client_id", id),
			zap.Duration("timeout", timeout))
	}
	return stale
}

// ConnectedClients returns the connected client IDs in sorted order.
func (s *SyncServer) ConnectedClients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ClientCount returns the number of connected clients.
func (s *SyncServer) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Version returns the server activity counter. It bumps on connects and on
// non-empty syncs and is carried in ConnectOk and ServerSync for
// observability; nothing gates on it.
func (s *SyncServer) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// DocumentName returns the name of the document this server serves.
func (s *SyncServer) DocumentName() string {
	return s.config.DocumentName
}

// Status is a point-in-time server snapshot, served on /status and logged by
// the periodic report.
type Status struct {
	DocumentName    string         `json:"document_name"`
	DocumentVersion uint64         `json:"document_version"`
	DocumentLength  int            `json:"document_length"`
	ServerVersion   uint64         `json:"server_version"`
	ClientCount     int            `json:"client_count"`
	Clients         []ClientStatus `json:"clients"`
	Store           docstore.Stats `json:"store"`
}

// ClientStatus reports one session's liveness.
type ClientStatus struct {
	ClientID    string    `json:"client_id"`
	LastSeen    time.Time `json:"last_seen"`
	IdleSeconds float64   `json:"idle_seconds"`
}

// Stats collects a Status snapshot.
func (s *SyncServer) Stats(ctx context.Context) (Status, error) {
	s.mu.Lock()
	now := time.Now()
	clients := make([]ClientStatus, 0, len(s.clients))
	for id, session := range s.clients {
		clients = append(clients, ClientStatus{
			ClientID:    id,
			LastSeen:    session.lastSeen,
			IdleSeconds: now.Sub(session.lastSeen).Seconds(),
		})
	}
	version := s.version
	s.mu.Unlock()

	sort.Slice(clients, func(i, j int) bool {
		return clients[i].ClientID < clients[j].ClientID
	})

	doc, err := s.loadDocument(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to load document: %w", err)
	}
	storeStats, err := s.store.Stats(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("failed to collect store stats: %w", err)
	}

	return Status{
		DocumentName:    s.config.DocumentName,
		DocumentVersion: doc.Version,
		DocumentLength:  doc.Len(),
		ServerVersion:   version,
		ClientCount:     len(clients),
		Clients:         clients,
		Store:           storeStats,
	}, nil
}

// cleanupLoop periodically evicts stale sessions.
func (s *SyncServer) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.CleanupStaleClients(s.config.StaleTimeout)
		}
	}
}

// statusLoop periodically logs an activity snapshot. Quiet while nobody is
// connected.
func (s *SyncServer) statusLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.ClientCount() == 0 {
				continue
			}
			status, err := s.Stats(s.ctx)
			if err != nil {
				s.logger.Warn("Failed to collect status", zap.Error(err))
				continue
			}
			s.logger.Info("Status report",
				zap.Int("client_count", status.ClientCount),
				zap.Uint64("document_version", status.DocumentVersion),
				zap.Int("document_length", status.DocumentLength),
				zap.Uint64("server_version", status.ServerVersion))
		}
	}
}
