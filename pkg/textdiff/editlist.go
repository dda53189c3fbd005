package textdiff

import (
	"fmt"
	"strconv"
	"strings"
)

// EditList is an ordered sequence of edits produced by a single Diff call,
// together with a checksum of the source text the edits were derived from.
// The checksum is advisory: it is carried for observability and never gates
// patch application.
type EditList struct {
	Edits    []Edit `json:"edits"`
	Checksum string `json:"checksum"`
}

// NewEditList builds an edit list over the given source text.
func NewEditList(edits []Edit, source string) EditList {
	if edits == nil {
		edits = []Edit{}
	}
	return EditList{Edits: edits, Checksum: Checksum(source)}
}

// EmptyEditList builds an edit list with no edits over the given source text.
func EmptyEditList(source string) EditList {
	return NewEditList(nil, source)
}

// IsEmpty reports whether the list carries no edits.
func (l EditList) IsEmpty() bool {
	return len(l.Edits) == 0
}

// Len returns the number of edits in the list.
func (l EditList) Len() int {
	return len(l.Edits)
}

func (l EditList) String() string {
	if l.IsEmpty() {
		return "no edits"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d edits:", len(l.Edits))
	for i, edit := range l.Edits {
		fmt.Fprintf(&b, "\n  %d: %s", i+1, edit)
	}
	return b.String()
}

// Checksum computes the content fingerprint used throughout the protocol:
// the UTF-8 byte length of the text XORed with the wrapping sum of its
// codepoint values, formatted as lowercase hex.
func Checksum(text string) string {
	var sum uint32
	for _, r := range text {
		sum += uint32(r)
	}
	return strconv.FormatUint(uint64(len(text))^uint64(sum), 16)
}
