// Package cache stores JSON payloads on disk with TTL-based expiration.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound is returned when an entry is missing or expired
var ErrNotFound = errors.New("cache entry not found or expired")

// Entry is one cached payload with the time it was stored
type Entry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Body      json.RawMessage `json:"body"`
}

// Reader retrieves an entry by key. ok is false when the entry is missing or
// older than maxAge; maxAge <= 0 disables the age check.
type Reader interface {
	Read(key string, maxAge time.Duration) (e *Entry, ok bool)
}

type Writer interface {
	Write(key string, entry *Entry) error
}

type ReadWriter interface {
	Reader
	Writer
}

// FileCache keeps one JSON file per key under dir
type FileCache struct {
	dir string
	now func() time.Time
}

// NewFileCache creates dir when needed
func NewFileCache(dir string) (*FileCache, error) {
	if dir == "" {
		return nil, errors.New("cache: empty directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &FileCache{dir: dir, now: time.Now}, nil
}

func (fc *FileCache) Read(key string, maxAge time.Duration) (*Entry, bool) {
	data, err := os.ReadFile(fc.path(key))
	if err != nil {
		return nil, false
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	if maxAge > 0 && fc.now().Sub(entry.FetchedAt) > maxAge {
		return &entry, false
	}
	return &entry, true
}

// Write stamps the entry and replaces any previous value atomically
func (fc *FileCache) Write(key string, entry *Entry) error {
	entry.FetchedAt = fc.now()
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	path := fc.path(key)
	tmpPath := path + fmt.Sprintf(".tmp.%d", rand.Int())
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (fc *FileCache) path(key string) string {
	return filepath.Join(fc.dir, key+".json")
}

// KeyFor builds a stable, filename-safe key from its parts
func KeyFor(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}
