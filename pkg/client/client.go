// Package client implements the editor side of differential synchronization:
// a SyncClient that keeps a local document in sync with a server over the
// line protocol, pushing local edits and absorbing remote ones on a fixed
// tick.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"diffsync/internal/logging"
	"diffsync/pkg/docsync"
	"diffsync/pkg/document"
	"diffsync/pkg/protocol"
)

// Config carries the client's knobs.
type Config struct {
	// Address is the server's TCP address.
	Address string `json:"address"`
	// ClientID identifies this client's session on the server.
	ClientID string `json:"client_id"`
	// SyncInterval is the tick between ClientSync messages. Ticks are sent
	// even with no local edits; they double as pull requests.
	SyncInterval time.Duration `json:"sync_interval"`
	// HeartbeatInterval is the tick between Ping messages.
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	// ReadTimeout bounds a single blocking read. Hitting it is not an
	// error; the read loop just checks for shutdown and keeps listening.
	ReadTimeout time.Duration `json:"read_timeout"`

	// OnUpdate, when set, runs after remote edits change the local text.
	// It must not call back into the client.
	OnUpdate func(before, after string, serverVersion uint64) `json:"-"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Address:           "127.0.0.1:8080",
		SyncInterval:      500 * time.Millisecond,
		HeartbeatInterval: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
	}
}

// SyncClient mirrors one document from a server. Local edits go through Edit
// and reach the server on the next tick; remote edits arrive on the read
// loop and land in the same engine.
type SyncClient struct {
	config Config
	logger *zap.Logger

	conn   net.Conn
	reader *protocol.Reader

	// writeMu serializes the tick loop and Close on the shared writer.
	writeMu sync.Mutex
	writer  *protocol.Writer

	// engineMu guards the engine and serverVersion against the read loop,
	// the tick loop, and the caller.
	engineMu      sync.Mutex
	engine        *docsync.SyncEngine
	serverVersion uint64

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Dial connects to the server, performs the Connect handshake, and starts
// the sync and read loops. The returned client is live until Close or until
// the connection dies; Done signals which.
func Dial(ctx context.Context, config Config, logger *zap.Logger) (*SyncClient, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("client ID must not be empty")
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Address, err)
	}

	reader := protocol.NewReader(conn)
	writer := protocol.NewWriter(conn)

	if err := writer.WriteMessage(protocol.NewConnect(config.ClientID)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send connect: %w", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(config.ReadTimeout)); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to set read deadline: %w", err)
	}
	reply, err := reader.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read connect reply: %w", err)
	}

	var doc document.Document
	var serverVersion uint64
	switch reply.Kind {
	case protocol.KindConnectOk:
		doc = reply.ConnectOk.Document
		serverVersion = reply.ConnectOk.ServerVersion
	case protocol.KindError:
		conn.Close()
		return nil, fmt.Errorf("connect rejected: %s", reply.Error.Message)
	default:
		conn.Close()
		return nil, fmt.Errorf("unexpected connect reply %s", reply.Kind)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &SyncClient{
		config:        config,
		logger:        logger,
		conn:          conn,
		reader:        reader,
		writer:        writer,
		engine:        docsync.NewWithNodeID(doc.Content, config.ClientID),
		serverVersion: serverVersion,
		ctx:           runCtx,
		cancel:        cancel,
	}

	c.logger.Info("Connected to sync server",
		zap.String("address", config.Address),
		zap.String("client_id", config.ClientID),
		zap.Uint64("document_version", doc.Version),
		zap.Int("document_length", doc.Len()))

	c.wg.Add(2)
	go c.readLoop()
	go c.tickLoop()
	return c, nil
}

// Edit replaces the local document content. The change reaches the server on
// the next sync tick.
func (c *SyncClient) Edit(newContent string) {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	c.engine.Edit(newContent)
}

// Text returns the current local content.
func (c *SyncClient) Text() string {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	return c.engine.Text()
}

// Document returns a copy of the local document.
func (c *SyncClient) Document() document.Document {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	return c.engine.Document()
}

// Stats returns a snapshot of the local engine.
func (c *SyncClient) Stats() docsync.SyncStats {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	return c.engine.Stats()
}

// ServerVersion returns the last version counter the server reported.
func (c *SyncClient) ServerVersion() uint64 {
	c.engineMu.Lock()
	defer c.engineMu.Unlock()
	return c.serverVersion
}

// ClientID returns the session ID this client connected under.
func (c *SyncClient) ClientID() string {
	return c.config.ClientID
}

// Done closes when the client stops, whether through Close or a dead
// connection.
func (c *SyncClient) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close tears the session down: best-effort Disconnect, then the connection.
// Safe to call more than once.
func (c *SyncClient) Close() {
	c.closeOnce.Do(func() {
		c.logger.Info("Disconnecting from sync server", zap.String("client_id", c.config.ClientID))

		c.writeMu.Lock()
		if err := c.writer.WriteMessage(protocol.NewDisconnect(c.config.ClientID)); err != nil {
			c.logger.Debug("Failed to send disconnect", zap.Error(err))
		}
		c.writeMu.Unlock()

		c.cancel()
		c.conn.Close()
		c.wg.Wait()
	})
}

// send writes one message, serialized against other writers. A failed write
// means the connection is gone, so it also stops the client.
func (c *SyncClient) send(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.writer.WriteMessage(msg); err != nil {
		if c.ctx.Err() == nil {
			c.logger.Warn("Failed to send message",
				zap.String("kind", string(msg.Kind)),
				zap.Error(err))
			c.cancel()
		}
		return err
	}
	return nil
}

// tickLoop drives the periodic sync and heartbeat sends.
func (c *SyncClient) tickLoop() {
	defer c.wg.Done()

	syncTicker := time.NewTicker(c.config.SyncInterval)
	defer syncTicker.Stop()
	heartbeatTicker := time.NewTicker(c.config.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-syncTicker.C:
			c.syncTick()
		case <-heartbeatTicker.C:
			if err := c.send(protocol.NewPing()); err != nil {
				return
			}
		}
	}
}

// syncTick pushes pending local edits. The shadow advances before the send,
// so edits caught in a failed send are not retried.
func (c *SyncClient) syncTick() {
	c.engineMu.Lock()
	edits := c.engine.DiffAndUpdateShadow()
	version := c.engine.Document().Version
	c.engineMu.Unlock()

	if !edits.IsEmpty() {
		c.logger.Debug("Sending local edits",
			zap.Int("edit_count", edits.Len()),
			zap.Uint64("client_version", version))
	}
	c.send(protocol.NewClientSync(c.config.ClientID, edits, version))
}

// readLoop receives server messages until shutdown. A read timeout is not an
// error; it only bounds how long a single read blocks.
func (c *SyncClient) readLoop() {
	defer c.wg.Done()

	for {
		if c.ctx.Err() != nil {
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout)); err != nil {
			c.cancel()
			return
		}

		msg, err := c.reader.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, protocol.ErrMalformed) {
				c.logger.Warn("Malformed server message", zap.Error(err))
				continue
			}
			if c.ctx.Err() == nil {
				if errors.Is(err, io.EOF) {
					c.logger.Info("Server closed the connection")
				} else {
					c.logger.Warn("Connection read failed", zap.Error(err))
				}
				c.cancel()
			}
			return
		}

		c.handleServerMessage(msg)
	}
}

func (c *SyncClient) handleServerMessage(msg protocol.Message) {
	switch msg.Kind {
	case protocol.KindServerSync:
		c.applyServerSync(msg.ServerSync)
	case protocol.KindPong:
		c.logger.Debug("Heartbeat acknowledged")
	case protocol.KindError:
		c.logger.Warn("Server reported an error", zap.String("message", msg.Error.Message))
	default:
		c.logger.Warn("Unexpected server message", zap.String("kind", string(msg.Kind)))
	}
}

// applyServerSync lands remote edits in the local engine and notifies the
// OnUpdate hook when they changed the visible text.
func (c *SyncClient) applyServerSync(payload *protocol.ServerSyncPayload) {
	c.engineMu.Lock()
	c.serverVersion = payload.ServerVersion
	if payload.Edits.IsEmpty() {
		c.engineMu.Unlock()
		return
	}

	before := c.engine.Text()
	if err := c.engine.ApplyEdits(payload.Edits); err != nil {
		c.engineMu.Unlock()
		c.logger.Warn("Failed to apply server edits", zap.Error(err))
		return
	}
	after := c.engine.Text()
	c.engineMu.Unlock()

	c.logger.Debug("Applied server edits",
		zap.Int("edit_count", payload.Edits.Len()),
		zap.Uint64("server_version", payload.ServerVersion))
	if c.config.OnUpdate != nil && before != after {
		c.config.OnUpdate(before, after, payload.ServerVersion)
	}
}
