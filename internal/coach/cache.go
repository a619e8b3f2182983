package coach

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachiq/internal/cache"
	"github.com/briangreenhill/coachiq/internal/llm"
)

// cachedBackend answers repeated structured (JSON) completions from a cache.
// Free-text chat and streams always reach the backend.
type cachedBackend struct {
	Backend
	store cache.ReadWriter
	ttl   time.Duration
	log   zerolog.Logger
}

// WithCompletionCache caches structured completions, such as generated
// workouts and analyses, for ttl
func WithCompletionCache(rw cache.ReadWriter, ttl time.Duration) Option {
	return func(s *settings) {
		s.cache = rw
		s.cacheTTL = ttl
	}
}

func newCachedBackend(b Backend, rw cache.ReadWriter, ttl time.Duration, log zerolog.Logger) Backend {
	if b == nil || rw == nil {
		return b
	}
	return &cachedBackend{Backend: b, store: rw, ttl: ttl, log: log}
}

func (c *cachedBackend) key(req llm.Request) (string, bool) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", false
	}
	model := ""
	if m, ok := c.Backend.(interface{ Model() string }); ok {
		model = m.Model()
	}
	return cache.KeyFor(model, string(body)), true
}

func (c *cachedBackend) Complete(ctx context.Context, req llm.Request) (llm.Completion, error) {
	if !req.JSON {
		return c.Backend.Complete(ctx, req)
	}
	key, ok := c.key(req)
	if !ok {
		return c.Backend.Complete(ctx, req)
	}

	if e, hit := c.store.Read(key, c.ttl); hit {
		var out llm.Completion
		if err := json.Unmarshal(e.Body, &out); err == nil {
			c.log.Debug().Str("key", key).Msg("completion cache hit")
			return out, nil
		}
	}

	out, err := c.Backend.Complete(ctx, req)
	if err != nil {
		return out, err
	}
	body, err := json.Marshal(out)
	if err == nil {
		err = c.store.Write(key, &cache.Entry{Body: body})
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("completion cache write failed")
	}
	return out, nil
}
