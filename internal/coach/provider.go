package coach

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachiq/internal/cache"
	"github.com/briangreenhill/coachiq/internal/config"
	"github.com/briangreenhill/coachiq/internal/llm"
	"github.com/briangreenhill/coachiq/internal/metrics"
	"github.com/briangreenhill/coachiq/internal/prompt"
)

// Provider is what the rest of the service talks to. Runtime failures never
// surface as errors: every operation returns a well-formed value, marked
// Degraded when it did not come from the backend.
type Provider interface {
	Name() string
	// Available reports whether the backend is configured. It never does I/O.
	Available() bool
	Chat(ctx context.Context, req ChatRequest) ChatResponse
	// ChatStream yields cumulative chunks in order; the last one is Complete.
	// Stopping early releases the backend connection.
	ChatStream(ctx context.Context, req ChatRequest) iter.Seq[StreamChunk]
	GenerateWorkout(ctx context.Context, params WorkoutParams, athleteContext string) GeneratedWorkout
	AnalyzeData(ctx context.Context, req AnalysisRequest) AnalysisResult
	ExplainInsight(ctx context.Context, req InsightRequest) ChatResponse
}

// Backend is the wire-level chat completion API. *llm.Client implements it.
type Backend interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
	Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error]
}

var _ Backend = (*llm.Client)(nil)

type BackendKind string

const (
	BackendOpenAI BackendKind = config.BackendOpenAI
	BackendMock   BackendKind = config.BackendMock
)

// ErrUnknownBackend is a configuration error: the selected backend does not exist
var ErrUnknownBackend = errors.New("unknown coaching backend")

// ParseBackend resolves a backend name, case-insensitively
func ParseBackend(s string) (BackendKind, error) {
	switch k := BackendKind(strings.ToLower(strings.TrimSpace(s))); k {
	case BackendOpenAI, BackendMock:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

type settings struct {
	log       zerolog.Logger
	metrics   *metrics.Manager
	templates *prompt.Set
	backend   Backend
	http      *http.Client
	cache     cache.ReadWriter
	cacheTTL  time.Duration
}

type Option func(*settings)

func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.log = l }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(s *settings) { s.metrics = m }
}

func WithTemplates(set *prompt.Set) Option {
	return func(s *settings) {
		if set != nil {
			s.templates = set
		}
	}
}

// WithBackend replaces the HTTP client New would build for the openai backend
func WithBackend(b Backend) Option {
	return func(s *settings) { s.backend = b }
}

// WithHTTPClient sets the HTTP client used to reach the openai backend
func WithHTTPClient(h *http.Client) Option {
	return func(s *settings) { s.http = h }
}

func newSettings(opts []Option) settings {
	s := settings{log: zerolog.Nop(), templates: prompt.Default()}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// New builds the provider selected by cfg.Backend. An unknown backend is the
// only error; a missing API key yields an unavailable provider that degrades.
func New(cfg config.Coach, opts ...Option) (Provider, error) {
	kind, err := ParseBackend(cfg.Backend)
	if err != nil {
		return nil, err
	}
	if kind == BackendMock {
		return NewMockProvider(opts...), nil
	}

	s := newSettings(opts)
	if cfg.APIKey == "" {
		return newLLMProvider(s, nil), nil
	}
	backend := s.backend
	if backend == nil {
		h := s.http
		if h == nil {
			h = &http.Client{Timeout: cfg.Timeout}
		}
		client, err := llm.New(cfg.APIKey,
			llm.WithHTTPClient(h),
			llm.WithBaseURL(cfg.BaseURL),
			llm.WithModel(cfg.Model),
			llm.WithTemperature(cfg.Temperature),
			llm.WithMaxTokens(cfg.MaxTokens),
			llm.WithLogger(s.log),
		)
		if err != nil {
			return nil, fmt.Errorf("llm client: %w", err)
		}
		backend = client
	}
	return newLLMProvider(s, newCachedBackend(backend, s.cache, s.cacheTTL, s.log)), nil
}
