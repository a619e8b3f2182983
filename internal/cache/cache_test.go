package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCacheRoundTrip(t *testing.T) {
	fc, err := NewFileCache(filepath.Join(t.TempDir(), "completions"))
	require.NoError(t, err)
	now := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	fc.now = func() time.Time { return now }

	_, ok := fc.Read("missing", time.Hour)
	assert.False(t, ok)

	require.NoError(t, fc.Write("k", &Entry{Body: json.RawMessage(`{"content":"hi"}`)}))
	e, ok := fc.Read("k", time.Hour)
	require.True(t, ok)
	assert.JSONEq(t, `{"content":"hi"}`, string(e.Body))
	assert.Equal(t, now, e.FetchedAt.UTC())

	now = now.Add(2 * time.Hour)
	e, ok = fc.Read("k", time.Hour)
	assert.False(t, ok)
	require.NotNil(t, e)

	_, ok = fc.Read("k", 0)
	assert.True(t, ok)
}

func TestFileCacheIgnoresCorruptEntries(t *testing.T) {
	dir := t.TempDir()
	fc, err := NewFileCache(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o600))

	_, ok := fc.Read("bad", 0)
	assert.False(t, ok)
}

func TestNewFileCacheNeedsDir(t *testing.T) {
	_, err := NewFileCache("")
	assert.Error(t, err)
}

func TestKeyFor(t *testing.T) {
	a := KeyFor("gpt-4o-mini", `{"messages":[]}`)
	assert.Equal(t, a, KeyFor("gpt-4o-mini", `{"messages":[]}`))
	assert.NotEqual(t, a, KeyFor("gpt-4o", `{"messages":[]}`))
	assert.NotEqual(t, KeyFor("ab", "c"), KeyFor("a", "bc"))
	assert.Len(t, a, 64)
}
