package textdiff

import "unicode/utf8"

// Diff computes the edits that transform from into to. The result carries the
// checksum of from.
//
// The algorithm strips the longest common rune prefix and suffix (the suffix
// scan never crosses into the prefix region of either string) and emits at
// most one edit covering the remaining middle: an Insert when the from-side
// middle is empty, a Delete when the to-side middle is empty, and a Replace
// otherwise. It trades diff minimality for determinism and simplicity; all
// emitted byte offsets fall on rune boundaries of from.
func Diff(from, to string) EditList {
	if from == to {
		return EmptyEditList(from)
	}
	if from == "" {
		return NewEditList([]Edit{NewInsert(0, to)}, from)
	}
	if to == "" {
		return NewEditList([]Edit{NewDelete(0, len(from))}, from)
	}

	fromRunes := []rune(from)
	toRunes := []rune(to)

	commonStart := 0
	for commonStart < len(fromRunes) && commonStart < len(toRunes) &&
		fromRunes[commonStart] == toRunes[commonStart] {
		commonStart++
	}

	commonEnd := 0
	for commonEnd < len(fromRunes)-commonStart && commonEnd < len(toRunes)-commonStart &&
		fromRunes[len(fromRunes)-1-commonEnd] == toRunes[len(toRunes)-1-commonEnd] {
		commonEnd++
	}

	prefixBytes := runeBytes(fromRunes[:commonStart])
	suffixBytes := 0
	if commonEnd > 0 {
		suffixBytes = runeBytes(fromRunes[len(fromRunes)-commonEnd:])
	}

	fromMiddle := from[prefixBytes : len(from)-suffixBytes]
	toMiddle := to[prefixBytes : len(to)-suffixBytes]

	var edits []Edit
	if fromMiddle != "" || toMiddle != "" {
		switch {
		case fromMiddle == "":
			edits = append(edits, NewInsert(prefixBytes, toMiddle))
		case toMiddle == "":
			edits = append(edits, NewDelete(prefixBytes, len(fromMiddle)))
		default:
			edits = append(edits, NewReplace(prefixBytes, len(fromMiddle), toMiddle))
		}
	}

	return NewEditList(edits, from)
}

func runeBytes(runes []rune) int {
	n := 0
	for _, r := range runes {
		n += utf8.RuneLen(r)
	}
	return n
}
