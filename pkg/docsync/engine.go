// Package docsync implements the differential synchronization state machine.
// Each participant owns one SyncEngine holding the live document and a shadow
// copy of what the peer last saw; diffs are computed against the shadow and
// incoming edits are patched into shadow and document in lockstep.
package docsync

import (
	"fmt"

	"github.com/google/uuid"

	"diffsync/pkg/document"
	"diffsync/pkg/textdiff"
)

// SyncEngine is the per-participant diff-sync state machine. It is not
// goroutine safe; callers that share an engine across goroutines guard it
// with a single mutex.
type SyncEngine struct {
	// document is the content users see and edit.
	document document.Document
	// shadow tracks what the peer last confirmed.
	shadow document.Document
	// backupShadow is the last known good shadow, kept for recovery on
	// duplicate or lost packets.
	backupShadow *document.Document
	// pending holds edit lists retained for future guaranteed delivery.
	pending []textdiff.EditList
	nodeID  string
}

// SyncResult reports one direction of a SyncWith exchange.
type SyncResult struct {
	Edits          textdiff.EditList `json:"edits"`
	ShadowChecksum string            `json:"shadow_checksum"`
	Success        bool              `json:"success"`
	Message        string            `json:"message,omitempty"`
}

// SyncStats is a point-in-time snapshot of engine state.
type SyncStats struct {
	DocumentVersion uint64 `json:"document_version"`
	DocumentLength  int    `json:"document_length"`
	ShadowChecksum  string `json:"shadow_checksum"`
	HasBackup       bool   `json:"has_backup"`
	PendingEdits    int    `json:"pending_edits"`
}

// New creates an engine whose document and shadow both start at content. The
// node ID is generated.
func New(content string) *SyncEngine {
	return NewWithNodeID(content, "node_"+uuid.NewString()[:8])
}

// NewWithNodeID creates an engine with an explicit node ID.
func NewWithNodeID(content, nodeID string) *SyncEngine {
	return &SyncEngine{
		document: document.New(content),
		shadow:   document.New(content),
		nodeID:   nodeID,
	}
}

// NewServer creates an engine that also keeps a backup shadow from the start,
// as the server does for each client session.
func NewServer(content, nodeID string) *SyncEngine {
	engine := NewWithNodeID(content, nodeID)
	backup := document.New(content)
	engine.backupShadow = &backup
	return engine
}

// Edit replaces the document content, simulating direct user input. The
// shadow is left untouched so the next diff picks the change up.
func (e *SyncEngine) Edit(newContent string) {
	e.document.Update(newContent)
}

// Advance moves the document and the shadow together to content. The server
// uses this after handing edits to a client: both sides now agree on content,
// so the next diff starts from it.
func (e *SyncEngine) Advance(content string) {
	e.document.Update(content)
	e.shadow = e.document
}

// Text returns the current document content.
func (e *SyncEngine) Text() string {
	return e.document.Content
}

// Document returns the current document.
func (e *SyncEngine) Document() document.Document {
	return e.document
}

// Shadow returns the current shadow document.
func (e *SyncEngine) Shadow() document.Document {
	return e.shadow
}

// NodeID returns the engine's stable identity.
func (e *SyncEngine) NodeID() string {
	return e.nodeID
}

// ShadowChecksum returns the fingerprint of the shadow content.
func (e *SyncEngine) ShadowChecksum() string {
	return textdiff.Checksum(e.shadow.Content)
}

// DiffAndUpdateShadow computes the edits that carry the shadow to the current
// document, then advances the shadow to match the document. The returned list
// is what gets sent to the peer; afterwards shadow and document are equal.
func (e *SyncEngine) DiffAndUpdateShadow() textdiff.EditList {
	edits := textdiff.Diff(e.shadow.Content, e.document.Content)
	e.shadow = e.document
	return edits
}

// ApplyEdits patches incoming edits into the shadow first and then the
// document. An empty list is a no-op. If patching the shadow fails the
// document is left untouched; if patching the document fails the shadow has
// already advanced and the error is returned for the caller to handle.
func (e *SyncEngine) ApplyEdits(list textdiff.EditList) error {
	if list.IsEmpty() {
		return nil
	}

	newShadow, err := textdiff.Patch(e.shadow.Content, list)
	if err != nil {
		return fmt.Errorf("failed to patch shadow: %w", err)
	}
	e.shadow.Update(newShadow)

	newContent, err := textdiff.Patch(e.document.Content, list)
	if err != nil {
		return fmt.Errorf("failed to patch document: %w", err)
	}
	e.document.Update(newContent)
	return nil
}

// SyncWith runs a full in-process sync cycle against another engine: this
// engine's outgoing edits are applied to other, then other's outgoing edits
// are applied back. Returns the result of each direction, outgoing first.
func (e *SyncEngine) SyncWith(other *SyncEngine) (SyncResult, SyncResult) {
	outgoing := e.DiffAndUpdateShadow()
	outResult := SyncResult{Edits: outgoing, Success: true}
	if err := other.ApplyEdits(outgoing); err != nil {
		outResult.Success = false
		outResult.Message = err.Error()
	}
	outResult.ShadowChecksum = other.ShadowChecksum()

	incoming := other.DiffAndUpdateShadow()
	inResult := SyncResult{Edits: incoming, Success: true}
	if err := e.ApplyEdits(incoming); err != nil {
		inResult.Success = false
		inResult.Message = err.Error()
	}
	inResult.ShadowChecksum = e.ShadowChecksum()

	return outResult, inResult
}

// BackupShadow snapshots the current shadow.
func (e *SyncEngine) BackupShadow() {
	backup := e.shadow
	e.backupShadow = &backup
}

// RestoreShadow rolls the shadow back to the last backup. Returns false when
// no backup exists.
func (e *SyncEngine) RestoreShadow() bool {
	if e.backupShadow == nil {
		return false
	}
	e.shadow = *e.backupShadow
	return true
}

// Stats returns a snapshot of the engine state.
func (e *SyncEngine) Stats() SyncStats {
	return SyncStats{
		DocumentVersion: e.document.Version,
		DocumentLength:  e.document.Len(),
		ShadowChecksum:  e.ShadowChecksum(),
		HasBackup:       e.backupShadow != nil,
		PendingEdits:    len(e.pending),
	}
}

func (e *SyncEngine) String() string {
	content := e.document.Content
	if len(content) > 50 {
		content = content[:47] + "..."
	}
	checksum := e.ShadowChecksum()
	if len(checksum) > 8 {
		checksum = checksum[:8]
	}
	return fmt.Sprintf("SyncEngine[%s]: doc=%q (v%d), shadow_checksum=%s",
		e.nodeID, content, e.document.Version, checksum)
}
