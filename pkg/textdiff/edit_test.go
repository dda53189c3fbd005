package textdiff

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEditWireForm tests the variant-as-key JSON encoding of each edit kind
func TestEditWireForm(t *testing.T) {
	cases := []struct {
		edit Edit
		wire string
	}{
		{NewInsert(5, "abc"), `{"Insert":{"pos":5,"text":"abc"}}`},
		{NewDelete(2, 3), `{"Delete":{"pos":2,"len":3}}`},
		{NewReplace(1, 4, "xyz"), `{"Replace":{"pos":1,"old_len":4,"new_text":"xyz"}}`},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc.edit)
		require.NoError(t, err, "Marshal should not return an error")
		assert.JSONEq(t, tc.wire, string(data), "Wire form should match for %s", tc.edit.Kind)

		var decoded Edit
		err = json.Unmarshal(data, &decoded)
		require.NoError(t, err, "Unmarshal should not return an error")
		assert.Equal(t, tc.edit, decoded, "Decoded edit should match the original")
	}
}

// TestEditUnknownVariant tests that decoding rejects an unknown variant key
func TestEditUnknownVariant(t *testing.T) {
	var edit Edit
	err := json.Unmarshal([]byte(`{"Explode":{"pos":1}}`), &edit)
	assert.Error(t, err, "Unknown variant should fail to decode")
}

// TestEditListWireForm tests that an edit list keeps its edits array and
// checksum on the wire
func TestEditListWireForm(t *testing.T) {
	list := Diff("ab", "ab12")

	data, err := json.Marshal(list)
	require.NoError(t, err, "Marshal should not return an error")

	var decoded EditList
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err, "Unmarshal should not return an error")
	assert.Equal(t, list, decoded, "Decoded list should match the original")

	// An empty list still serializes its edits as an array, not null
	empty := EmptyEditList("ab")
	data, err = json.Marshal(empty)
	require.NoError(t, err, "Marshal should not return an error")
	assert.Contains(t, string(data), `"edits":[]`, "Empty edits should encode as an empty array")
}
