package client

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"diffsync/pkg/docstore"
	"diffsync/pkg/server"
)

func startServer(t *testing.T) (*server.SyncServer, *docstore.MemoryStore) {
	t.Helper()

	config := server.DefaultConfig()
	config.Address = "127.0.0.1:0"
	config.CleanupInterval = time.Minute
	config.StatusInterval = time.Hour

	store := docstore.NewMemoryStore()
	s, err := server.NewSyncServer(context.Background(), config, store, zap.NewNop())
	require.NoError(t, err, "Server construction should succeed")
	require.NoError(t, s.Start(), "Start should succeed")
	t.Cleanup(s.Stop)
	return s, store
}

func fastConfig(address, clientID string) Config {
	config := DefaultConfig()
	config.Address = address
	config.ClientID = clientID
	config.SyncInterval = 20 * time.Millisecond
	config.HeartbeatInterval = 50 * time.Millisecond
	config.ReadTimeout = time.Second
	return config
}

func dialClient(t *testing.T, config Config) *SyncClient {
	t.Helper()

	c, err := Dial(context.Background(), config, zap.NewNop())
	require.NoError(t, err, "Dial should succeed for %s", config.ClientID)
	t.Cleanup(c.Close)
	return c
}

// TestDialAndClose tests the connect handshake and a clean teardown
func TestDialAndClose(t *testing.T) {
	s, _ := startServer(t)

	c := dialClient(t, fastConfig(s.Address(), "alice"))
	assert.Equal(t, docstore.DefaultDocumentContent, c.Text(), "Dial should deliver the stored content")
	assert.Equal(t, "alice", c.ClientID(), "The client should keep its ID")
	assert.GreaterOrEqual(t, c.ServerVersion(), uint64(1), "The handshake should carry the server version")
	require.Equal(t, 1, s.ClientCount(), "The session should be registered")

	c.Close()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Done should fire after Close")
	}
	assert.Eventually(t, func() bool { return s.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond, "Close should release the session")
}

// TestDialValidation tests the handshake failure paths
func TestDialValidation(t *testing.T) {
	s, _ := startServer(t)

	_, err := Dial(context.Background(), fastConfig(s.Address(), ""), zap.NewNop())
	require.Error(t, err, "An empty client ID should be refused locally")

	dialClient(t, fastConfig(s.Address(), "taken"))
	_, err = Dial(context.Background(), fastConfig(s.Address(), "taken"), zap.NewNop())
	require.Error(t, err, "A duplicate client ID should be refused by the server")
	assert.Contains(t, err.Error(), "connect rejected", "The error should carry the server's message")

	_, err = Dial(context.Background(), fastConfig("127.0.0.1:1", "nobody"), zap.NewNop())
	assert.Error(t, err, "Dialing a dead address should fail")
}

// TestEditReachesServer tests that a local edit is committed on a tick
func TestEditReachesServer(t *testing.T) {
	s, store := startServer(t)
	c := dialClient(t, fastConfig(s.Address(), "writer"))

	c.Edit(c.Text() + " Promptly delivered.")

	require.Eventually(t, func() bool {
		doc, err := store.Load(context.Background(), docstore.DefaultDocumentName)
		if err != nil {
			return false
		}
		return doc.Content == c.Text()
	}, 3*time.Second, 10*time.Millisecond, "The edit should be committed within a few ticks")
}

// TestTwoClientsConverge tests that edits flow between clients and both end
// on the same text
func TestTwoClientsConverge(t *testing.T) {
	s, store := startServer(t)

	updates := make(chan string, 16)
	aliceConfig := fastConfig(s.Address(), "alice")
	bobConfig := fastConfig(s.Address(), "bob")
	bobConfig.OnUpdate = func(before, after string, serverVersion uint64) {
		select {
		case updates <- after:
		default:
		}
	}

	alice := dialClient(t, aliceConfig)
	bob := dialClient(t, bobConfig)

	alice.Edit(alice.Text() + " Hello from alice.")

	// Bob's empty ticks pull the change and fire the update hook
	select {
	case text := <-updates:
		assert.Contains(t, text, "Hello from alice.", "Bob's update hook should carry Alice's edit")
	case <-time.After(3 * time.Second):
		t.Fatal("Bob should receive Alice's edit")
	}

	bob.Edit(bob.Text() + " And hello back.")

	require.Eventually(t, func() bool {
		doc, err := store.Load(context.Background(), docstore.DefaultDocumentName)
		if err != nil {
			return false
		}
		return alice.Text() == doc.Content && bob.Text() == doc.Content
	}, 3*time.Second, 10*time.Millisecond, "Both clients should converge on the stored content")

	finalText := alice.Text()
	assert.Contains(t, finalText, "Hello from alice.", "The converged text should keep Alice's edit")
	assert.Contains(t, finalText, "And hello back.", "The converged text should keep Bob's edit")
}

// TestSilentClientStaysCurrent tests that a client that never edits still
// tracks the document through its empty ticks
func TestSilentClientStaysCurrent(t *testing.T) {
	s, store := startServer(t)

	editor := dialClient(t, fastConfig(s.Address(), "editor"))
	reader := dialClient(t, fastConfig(s.Address(), "reader"))

	editor.Edit("Rewritten from scratch.")

	require.Eventually(t, func() bool {
		doc, err := store.Load(context.Background(), docstore.DefaultDocumentName)
		if err != nil {
			return false
		}
		return reader.Text() == doc.Content && reader.Text() == "Rewritten from scratch."
	}, 3*time.Second, 10*time.Millisecond, "The silent client should track the document")

	stats := reader.Stats()
	assert.Equal(t, len("Rewritten from scratch."), stats.DocumentLength, "Stats should reflect the tracked content")
}

// TestServerShutdownSignalsDone tests that a dying server stops the client
func TestServerShutdownSignalsDone(t *testing.T) {
	s, _ := startServer(t)
	c := dialClient(t, fastConfig(s.Address(), "orphan"))

	s.Stop()

	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("Done should fire once the server goes away")
	}
}
