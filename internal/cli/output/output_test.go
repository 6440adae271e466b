package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePayload() map[string]any {
	return map[string]any{
		"topics": []any{
			map[string]any{"id": float64(7), "slug": "hello-world", "author": "alice", "reply_count": float64(2), "view_count": float64(10), "last_post_at": "2024-03-01T12:00:00Z"},
			map[string]any{"id": float64(8), "slug": "second", "author": "bob", "reply_count": float64(0), "view_count": float64(1), "last_post_at": "2024-03-01T11:00:00Z"},
		},
		"total": float64(2),
	}
}

func TestPrintQuietListsIDs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, samplePayload(), "table", true))
	assert.Equal(t, "7\n8\n", buf.String())
}

func TestPrintTableHasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, samplePayload(), "table", false))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[1], "hello-world")
	assert.Contains(t, lines[2], "bob")
}

func TestPrintPlainSingleUser(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, map[string]any{"username": "alice", "role": "admin"}, "plain", false))
	assert.Equal(t, "alice admin\n", buf.String())
}

func TestPrintFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Print(&buf, map[string]any{"status": "ok"}, "table", false))
	assert.JSONEq(t, `{"status":"ok"}`, buf.String())
}

func TestPrintRejectsUnknownFormat(t *testing.T) {
	assert.Error(t, Print(&bytes.Buffer{}, map[string]any{}, "yaml", false))
}

func TestOneLineTruncates(t *testing.T) {
	assert.Equal(t, "a b", oneLine("a\n  b", 10))
	assert.Equal(t, "abcd...", oneLine("abcdefghij", 7))
}
