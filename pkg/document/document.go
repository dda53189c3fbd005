// Package document defines the versioned text document shared by the sync
// engine, the server and the persistence layer.
package document

import (
	"fmt"

	"diffsync/pkg/textdiff"
)

// Document is a flat text document with a monotonic version counter. The
// version starts at 0 and increments on every Update, regardless of where the
// mutation originated.
type Document struct {
	Content string `json:"content"`
	Version uint64 `json:"version"`
}

// New creates a document at version 0.
func New(content string) Document {
	return Document{Content: content}
}

// NewWithVersion creates a document at an explicit version.
func NewWithVersion(content string, version uint64) Document {
	return Document{Content: content, Version: version}
}

// Update replaces the content and bumps the version.
func (d *Document) Update(content string) {
	d.Content = content
	d.Version++
}

// Len returns the content length in bytes.
func (d Document) Len() int {
	return len(d.Content)
}

// IsEmpty reports whether the document has no content.
func (d Document) IsEmpty() bool {
	return d.Content == ""
}

// Checksum returns the content fingerprint used by the sync protocol.
func (d Document) Checksum() string {
	return textdiff.Checksum(d.Content)
}

func (d Document) String() string {
	return fmt.Sprintf("%s (v%d)", d.Content, d.Version)
}
