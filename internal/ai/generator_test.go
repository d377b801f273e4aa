package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseItems(t *testing.T) {
	items, err := ParseItems(`[
		{"context": "materials", "payload": {"name": "M3 screw", "quantity": 8}},
		{"context": "document", "payload": {"title": "Assembly guide"}}
	]`)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "materials", items[0].Context)
	assert.Equal(t, "M3 screw", items[0].Payload["name"])
}

func TestParseItemsStripsCodeFence(t *testing.T) {
	items, err := ParseItems("```json\n[{\"context\": \"wiring\", \"payload\": {\"nodes\": []}}]\n```")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "wiring", items[0].Context)
}

func TestParseItemsRejectsGarbage(t *testing.T) {
	_, err := ParseItems("not json at all")
	assert.Error(t, err)
}

func TestParseItemsDropsIncompleteEntries(t *testing.T) {
	_, err := ParseItems(`[{"context": "", "payload": {}}, {"context": "3d"}]`)
	assert.Error(t, err)
}
