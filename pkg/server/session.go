package server

import (
	"time"

	"diffsync/pkg/docsync"
)

// ClientSession is the server-side record of one connected client: the
// client's chosen identity, an engine holding the server's belief of that
// client's shadow, and the time the client was last heard from.
//
// The session engine's document is not user facing. It tracks the content the
// client last confirmed, so diffing it against the authoritative document
// yields exactly the changes contributed by other clients. Document and
// shadow are kept equal between syncs.
type ClientSession struct {
	clientID string
	engine   *docsync.SyncEngine
	lastSeen time.Time
}

// newClientSession builds a session whose engine starts at the current
// authoritative content. Fields are guarded by the owning server's mutex.
func newClientSession(clientID, content string) *ClientSession {
	return &ClientSession{
		clientID: clientID,
		engine:   docsync.NewServer(content, clientID),
		lastSeen: time.Now(),
	}
}

// touch records activity from the client.
func (c *ClientSession) touch() {
	c.lastSeen = time.Now()
}

// ClientID returns the identity the client connected under.
func (c *ClientSession) ClientID() string {
	return c.clientID
}

// LastSeen returns the time of the last message from this client.
func (c *ClientSession) LastSeen() time.Time {
	return c.lastSeen
}
