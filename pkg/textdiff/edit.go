// Package textdiff implements the diff and fuzzy patch primitives for
// differential synchronization: computing an edit list between two texts and
// applying an edit list to a text with out-of-range positions clamped rather
// than rejected.
package textdiff

import (
	"encoding/json"
	"fmt"
)

// EditKind identifies an edit variant. The value doubles as the variant key
// on the wire.
type EditKind string

const (
	// EditInsert splices text at a byte position.
	EditInsert EditKind = "Insert"
	// EditDelete removes a byte range.
	EditDelete EditKind = "Delete"
	// EditReplace swaps a byte range for new text.
	EditReplace EditKind = "Replace"
)

// Edit is a single edit operation. Positions and lengths are UTF-8 byte
// offsets into the pre-edit string. Which fields are meaningful depends on
// Kind: Insert uses Pos and Text, Delete uses Pos and Len, Replace uses Pos,
// Len (the replaced span) and Text (the replacement).
type Edit struct {
	Kind EditKind
	Pos  int
	Len  int
	Text string
}

// NewInsert creates an insert edit at pos.
func NewInsert(pos int, text string) Edit {
	return Edit{Kind: EditInsert, Pos: pos, Text: text}
}

// NewDelete creates a delete edit covering length bytes at pos.
func NewDelete(pos, length int) Edit {
	return Edit{Kind: EditDelete, Pos: pos, Len: length}
}

// NewReplace creates a replace edit swapping oldLen bytes at pos for newText.
func NewReplace(pos, oldLen int, newText string) Edit {
	return Edit{Kind: EditReplace, Pos: pos, Len: oldLen, Text: newText}
}

type insertPayload struct {
	Pos  int    `json:"pos"`
	Text string `json:"text"`
}

type deletePayload struct {
	Pos int `json:"pos"`
	Len int `json:"len"`
}

type replacePayload struct {
	Pos     int    `json:"pos"`
	OldLen  int    `json:"old_len"`
	NewText string `json:"new_text"`
}

// MarshalJSON encodes the edit in variant-as-key form, e.g.
// {"Insert": {"pos": 5, "text": "abc"}}.
func (e Edit) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EditInsert:
		return json.Marshal(map[EditKind]insertPayload{EditInsert: {Pos: e.Pos, Text: e.Text}})
	case EditDelete:
		return json.Marshal(map[EditKind]deletePayload{EditDelete: {Pos: e.Pos, Len: e.Len}})
	case EditReplace:
		return json.Marshal(map[EditKind]replacePayload{EditReplace: {Pos: e.Pos, OldLen: e.Len, NewText: e.Text}})
	default:
		return nil, fmt.Errorf("unknown edit kind %q", e.Kind)
	}
}

// UnmarshalJSON decodes the variant-as-key form produced by MarshalJSON.
func (e *Edit) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode edit: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("edit must have exactly one variant, got %d", len(raw))
	}
	for kind, body := range raw {
		switch EditKind(kind) {
		case EditInsert:
			var p insertPayload
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to decode insert edit: %w", err)
			}
			*e = NewInsert(p.Pos, p.Text)
		case EditDelete:
			var p deletePayload
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to decode delete edit: %w", err)
			}
			*e = NewDelete(p.Pos, p.Len)
		case EditReplace:
			var p replacePayload
			if err := json.Unmarshal(body, &p); err != nil {
				return fmt.Errorf("failed to decode replace edit: %w", err)
			}
			*e = NewReplace(p.Pos, p.OldLen, p.NewText)
		default:
			return fmt.Errorf("unknown edit kind %q", kind)
		}
	}
	return nil
}

func (e Edit) String() string {
	switch e.Kind {
	case EditInsert:
		return fmt.Sprintf("Insert(pos=%d, text=%q)", e.Pos, e.Text)
	case EditDelete:
		return fmt.Sprintf("Delete(pos=%d, len=%d)", e.Pos, e.Len)
	case EditReplace:
		return fmt.Sprintf("Replace(pos=%d, old_len=%d, new_text=%q)", e.Pos, e.Len, e.Text)
	default:
		return fmt.Sprintf("Unknown(%q)", string(e.Kind))
	}
}
