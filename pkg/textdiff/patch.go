package textdiff

import (
	"errors"
	"unicode/utf8"
)

var (
	// ErrChecksumMismatch is returned by PatchStrict when the edit list was
	// derived from a different source text.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrInvalidPosition is returned by PatchStrict when an edit falls
	// outside the target text.
	ErrInvalidPosition = errors.New("invalid position")
	// ErrInvalidEdit is returned when an edit carries an unknown kind.
	ErrInvalidEdit = errors.New("invalid edit")
)

// Patch applies an edit list to text and returns the result. Application is
// fuzzy: positions and lengths are clamped to the current text bounds and
// snapped to rune boundaries, so edits computed against a slightly different
// text still apply instead of failing. Edits are applied in reverse order so
// earlier positions stay valid while later ones mutate the tail.
//
// The only error a fuzzy patch can produce is ErrInvalidEdit for an edit of
// unknown kind; drift never fails.
func Patch(text string, list EditList) (string, error) {
	if list.IsEmpty() {
		return text, nil
	}

	result := text
	for i := len(list.Edits) - 1; i >= 0; i-- {
		edit := list.Edits[i]
		switch edit.Kind {
		case EditInsert:
			pos := clampPos(result, edit.Pos)
			result = result[:pos] + edit.Text + result[pos:]
		case EditDelete:
			start := clampPos(result, edit.Pos)
			end := clampPos(result, edit.Pos+edit.Len)
			if start < end {
				result = result[:start] + result[end:]
			}
		case EditReplace:
			start := clampPos(result, edit.Pos)
			end := clampPos(result, edit.Pos+edit.Len)
			if end < start {
				end = start
			}
			result = result[:start] + edit.Text + result[end:]
		default:
			return "", ErrInvalidEdit
		}
	}
	return result, nil
}

// PatchStrict applies an edit list like Patch but rejects instead of fuzzing:
// the list checksum must match the current text and every edit must fall
// inside it. The sync engine and server use the lenient Patch; this exists
// for callers that prefer failing over drifting.
func PatchStrict(text string, list EditList) (string, error) {
	if list.Checksum != Checksum(text) {
		return "", ErrChecksumMismatch
	}
	for _, edit := range list.Edits {
		switch edit.Kind {
		case EditInsert:
			if edit.Pos < 0 || edit.Pos > len(text) {
				return "", ErrInvalidPosition
			}
		case EditDelete, EditReplace:
			if edit.Pos < 0 || edit.Len < 0 || edit.Pos+edit.Len > len(text) {
				return "", ErrInvalidPosition
			}
		default:
			return "", ErrInvalidEdit
		}
	}
	return Patch(text, list)
}

// clampPos bounds pos to [0, len(s)] and walks it back to the nearest rune
// boundary so a drifted patch never splits a multibyte rune.
func clampPos(s string, pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(s) {
		return len(s)
	}
	for pos > 0 && pos < len(s) && !utf8.RuneStart(s[pos]) {
		pos--
	}
	return pos
}
