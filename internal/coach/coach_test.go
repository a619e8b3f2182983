package coach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/briangreenhill/coachiq/internal/cache"
	"github.com/briangreenhill/coachiq/internal/config"
	"github.com/briangreenhill/coachiq/internal/llm"
	"github.com/briangreenhill/coachiq/internal/metrics"
	"github.com/briangreenhill/coachiq/internal/training"
)

type stubBackend struct {
	mu      sync.Mutex
	calls   int
	reqs    []llm.Request
	stopped bool

	completion llm.Completion
	err        error
	parts      []string
	streamErr  error
}

func (s *stubBackend) record(req llm.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.reqs = append(s.reqs, req)
}

func (s *stubBackend) Complete(_ context.Context, req llm.Request) (llm.Completion, error) {
	s.record(req)
	return s.completion, s.err
}

func (s *stubBackend) Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	s.record(req)
	return func(yield func(string, error) bool) {
		for _, p := range s.parts {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(p, nil) {
				s.mu.Lock()
				s.stopped = true
				s.mu.Unlock()
				return
			}
		}
		if s.streamErr != nil {
			yield("", s.streamErr)
		}
	}
}

func collect(seq iter.Seq[StreamChunk]) []StreamChunk {
	var out []StreamChunk
	for c := range seq {
		out = append(out, c)
	}
	return out
}

// assertStreamShape checks ordering invariants every stream must hold
func assertStreamShape(t *testing.T, chunks []StreamChunk) {
	t.Helper()
	require.NotEmpty(t, chunks)
	for i, c := range chunks {
		if i > 0 {
			assert.GreaterOrEqual(t, len(c.Content), len(chunks[i-1].Content), "chunk %d shrank", i)
		}
		assert.Equal(t, i == len(chunks)-1, c.Complete, "chunk %d complete flag", i)
	}
	assert.NotEmpty(t, chunks[len(chunks)-1].Suggestions)
}

var userMsg = []Message{{Role: RoleUser, Content: "How was my week?"}}

func TestUnavailableProviderDegradesWithoutCalls(t *testing.T) {
	stub := &stubBackend{}
	p, err := New(config.Coach{Backend: "openai"}, WithBackend(stub))
	require.NoError(t, err)
	ctx := context.Background()

	assert.False(t, p.Available())

	resp := p.Chat(ctx, ChatRequest{Messages: userMsg})
	assert.True(t, resp.Degraded)
	assert.Equal(t, UnavailableMessage, resp.Content)
	assert.Equal(t, DefaultSuggestions, resp.Suggestions)

	chunks := collect(p.ChatStream(ctx, ChatRequest{Messages: userMsg}))
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Complete)
	assert.True(t, chunks[0].Degraded)

	w := p.GenerateWorkout(ctx, WorkoutParams{Sport: "running", Duration: 50}, "")
	assert.True(t, w.Degraded)
	assert.Equal(t, 50*60, training.SessionLoad(w.Steps(), training.Running).DurationSeconds)

	a := p.AnalyzeData(ctx, AnalysisRequest{Type: "weekly"})
	assert.True(t, a.Degraded)
	assert.Equal(t, FallbackConfidence, a.Confidence)

	assert.True(t, p.ExplainInsight(ctx, InsightRequest{Question: "why?"}).Degraded)

	assert.Equal(t, 0, stub.calls)
}

func TestChatPrependsPersonaWithContext(t *testing.T) {
	stub := &stubBackend{completion: llm.Completion{
		Content:      "Easy run tomorrow.\n\nSuggestions:\n- Should I race?\n- How long should my long run be?",
		Model:        "m-1",
		FinishReason: "stop",
		Usage:        llm.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}}
	p := NewLLMProvider(stub)

	resp := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}, {Role: RoleUser, Content: "plan?"}},
		Context:  "ATHLETE PROFILE\nName: Ana",
		ThreadID: "t-1",
	})

	assert.False(t, resp.Degraded)
	assert.Equal(t, []string{"Should I race?", "How long should my long run be?"}, resp.Suggestions)
	require.NotNil(t, resp.Usage)
	assert.Equal(t, 120, resp.Usage.TotalTokens)
	assert.Equal(t, "m-1", resp.Metadata["model"])

	require.Equal(t, 1, stub.calls)
	msgs := stub.reqs[0].Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "CoachIQ")
	assert.Contains(t, msgs[0].Content, "Name: Ana")
	assert.Equal(t, "plan?", msgs[3].Content)
}

func TestChatWithoutContextUsesPersonaDefault(t *testing.T) {
	stub := &stubBackend{completion: llm.Completion{Content: "ok"}}
	NewLLMProvider(stub).Chat(context.Background(), ChatRequest{Messages: userMsg})

	system := stub.reqs[0].Messages[0].Content
	assert.Contains(t, system, "No athlete data is available yet.")
	assert.NotContains(t, system, "{{")
}

func TestChatBackendErrorDegradesOnce(t *testing.T) {
	m := metrics.NewTestManager()
	stub := &stubBackend{err: errors.New("connection refused")}
	p := NewLLMProvider(stub, WithMetrics(m))

	resp := p.Chat(context.Background(), ChatRequest{Messages: userMsg})
	assert.True(t, resp.Degraded)
	assert.Equal(t, ErrorMessage, resp.Content)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterProviderCalls.WithLabelValues("openai", "chat", metrics.OutcomeError)))

	resp = p.ExplainInsight(context.Background(), InsightRequest{Question: "why?"})
	assert.True(t, resp.Degraded)
	assert.Equal(t, 2, stub.calls)
}

func TestChatStreamCumulativeChunks(t *testing.T) {
	m := metrics.NewTestManager()
	stub := &stubBackend{parts: []string{"Keep it ", "easy.\n\nSuggestions:\n", "- Rest day?"}}
	p := NewLLMProvider(stub, WithMetrics(m))

	chunks := collect(p.ChatStream(context.Background(), ChatRequest{Messages: userMsg}))
	assertStreamShape(t, chunks)

	require.Len(t, chunks, 4)
	assert.Equal(t, "Keep it ", chunks[0].Content)
	assert.Equal(t, "Keep it easy.\n\nSuggestions:\n", chunks[1].Content)
	for i := 1; i < len(chunks); i++ {
		assert.True(t, strings.HasPrefix(chunks[i].Content, chunks[i-1].Content))
	}

	last := chunks[3]
	assert.Equal(t, "Keep it easy.\n\nSuggestions:\n- Rest day?", last.Content)
	assert.Equal(t, []string{"Rest day?"}, last.Suggestions)
	assert.False(t, last.Degraded)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterProviderCalls.WithLabelValues(p.Name(), "chat_stream", metrics.OutcomeOK)))
	// delivered chunks are counted by the HTTP layer
	assert.Zero(t, testutil.ToFloat64(m.CounterStreamChunks))
}

func TestChatStreamErrors(t *testing.T) {
	t.Run("before any text", func(t *testing.T) {
		stub := &stubBackend{streamErr: errors.New("502")}
		chunks := collect(NewLLMProvider(stub).ChatStream(context.Background(), ChatRequest{Messages: userMsg}))
		assertStreamShape(t, chunks)
		require.Len(t, chunks, 1)
		assert.Equal(t, ErrorMessage, chunks[0].Content)
		assert.True(t, chunks[0].Degraded)
	})

	t.Run("mid stream", func(t *testing.T) {
		stub := &stubBackend{parts: []string{"Half an ", "answer"}, streamErr: llm.ErrTruncatedStream}
		chunks := collect(NewLLMProvider(stub).ChatStream(context.Background(), ChatRequest{Messages: userMsg}))
		assertStreamShape(t, chunks)
		require.Len(t, chunks, 3)
		last := chunks[2]
		assert.True(t, last.Degraded)
		assert.True(t, strings.HasPrefix(last.Content, "Half an answer"))
		assert.True(t, strings.HasSuffix(last.Content, ErrorMessage))
	})
}

func TestChatStreamEarlyBreakStopsBackend(t *testing.T) {
	stub := &stubBackend{parts: []string{"a", "b", "c", "d"}}
	p := NewLLMProvider(stub)

	var got []StreamChunk
	for c := range p.ChatStream(context.Background(), ChatRequest{Messages: userMsg}) {
		got = append(got, c)
		if len(got) == 2 {
			break
		}
	}
	assert.Len(t, got, 2)
	assert.True(t, stub.stopped)
}

func TestChatStreamCancelledContextEndsSilently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stub := &stubBackend{parts: []string{"a", "b"}}

	chunks := collect(NewLLMProvider(stub).ChatStream(ctx, ChatRequest{Messages: userMsg}))
	assert.Empty(t, chunks)
}

func TestChatStreamEarlyBreakReleasesHTTPConnection(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, s := range []string{"one ", "two "} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", s)
		}
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	tr := &http.Transport{}
	defer tr.CloseIdleConnections()
	p, err := New(config.Coach{Backend: "openai", APIKey: "sk-test", BaseURL: srv.URL, MaxTokens: 100},
		WithHTTPClient(&http.Client{Transport: tr}))
	require.NoError(t, err)

	for c := range p.ChatStream(context.Background(), ChatRequest{Messages: userMsg}) {
		assert.Equal(t, "one ", c.Content)
		break
	}
}

const workoutReply = "```json\n" + `{
  "name": "Tempo builder",
  "description": "Steady tempo",
  "totalDuration": 45,
  "estimatedCalories": 520,
  "difficulty": 9,
  "equipment": ["watch"],
  "warmup": [{"id": "w1", "kind": "warmup", "name": "Jog", "durationSeconds": 600, "target": {"type": "heart_rate", "zone": 2}}],
  "mainSet": [{"id": "r", "kind": "repeat", "name": "Reps", "repeat": {"count": 3, "steps": [
    {"id": "on", "kind": "active", "name": "Tempo", "durationSeconds": 480, "target": {"type": "pace", "zone": 4}},
    {"id": "off", "kind": "recovery", "name": "Float", "durationSeconds": 120, "target": {"type": "pace", "zone": 2}}
  ]}}],
  "cooldown": [{"id": "c1", "kind": "cooldown", "name": "Walk", "durationSeconds": 300, "target": {"type": "heart_rate", "zone": 1}}],
  "tips": ["Relax your shoulders"]
}` + "\n```"

func TestGenerateWorkout(t *testing.T) {
	params := WorkoutParams{Sport: "running", Type: "tempo", Duration: 45, Intensity: "hard", Goals: []string{"10k PB"}}

	stub := &stubBackend{completion: llm.Completion{Content: workoutReply}}
	w := NewLLMProvider(stub).GenerateWorkout(context.Background(), params, "ATHLETE PROFILE")

	assert.False(t, w.Degraded)
	assert.Equal(t, "Tempo builder", w.Name)
	assert.Equal(t, 5, w.Difficulty)
	require.Len(t, w.MainSet, 1)
	require.NotNil(t, w.MainSet[0].Repeat)
	assert.Equal(t, 45*60, training.SessionLoad(w.Steps(), training.Running).DurationSeconds)

	req := stub.reqs[0]
	assert.True(t, req.JSON)
	require.Len(t, req.Messages, 1)
	assert.Contains(t, req.Messages[0].Content, "Total duration: 45 minutes")
	assert.Contains(t, req.Messages[0].Content, "Goals: 10k PB")
	assert.Contains(t, req.Messages[0].Content, "ATHLETE PROFILE")

	for _, reply := range []string{"Sorry, I can't do that.", `{"name": "Empty", "warmup": []}`, `{"name": 3}`} {
		stub := &stubBackend{completion: llm.Completion{Content: reply}}
		w := NewLLMProvider(stub).GenerateWorkout(context.Background(), params, "")
		assert.True(t, w.Degraded, reply)
		assert.Equal(t, 45, w.TotalDuration)
	}
}

func TestFallbackWorkoutDurationsAddUp(t *testing.T) {
	for d := 0; d <= 240; d++ {
		w := FallbackWorkout(WorkoutParams{Sport: "cycling", Duration: d, Intensity: "easy"})
		got := training.SessionLoad(w.Steps(), training.Cycling).DurationSeconds
		if got != d*60 {
			t.Errorf("FallbackWorkout(%d) steps = %ds, want %ds", d, got, d*60)
		}
		if w.TotalDuration != d {
			t.Errorf("FallbackWorkout(%d) TotalDuration = %d", d, w.TotalDuration)
		}
	}

	w := FallbackWorkout(WorkoutParams{Sport: "running", Type: "intervals", Duration: 60, Intensity: "hard"})
	assert.Equal(t, 12*60, w.Warmup[0].DurationSeconds)
	assert.Equal(t, 42*60, w.MainSet[0].DurationSeconds)
	assert.Equal(t, 6*60, w.Cooldown[0].DurationSeconds)
	assert.Equal(t, 4, w.MainSet[0].Target.Zone)
	assert.Equal(t, "60-minute hard running intervals", w.Name)
	assert.False(t, w.Degraded)
}

func TestAnalyzeData(t *testing.T) {
	data := json.RawMessage(`{"weeklyTss": [300, 320, 410]}`)

	tests := []struct {
		name     string
		stub     *stubBackend
		want     float64
		degraded bool
	}{
		{"reported confidence", &stubBackend{completion: llm.Completion{Content: `{"summary":"Load is rising","insights":["up 28%"],"recommendations":["deload"],"confidence":0.9}`}}, 0.9, false},
		{"missing confidence", &stubBackend{completion: llm.Completion{Content: `{"summary":"Load is rising"}`}}, RealConfidence, false},
		{"confidence out of range", &stubBackend{completion: llm.Completion{Content: `{"summary":"x","confidence":7}`}}, RealConfidence, false},
		{"no summary", &stubBackend{completion: llm.Completion{Content: `{"insights":[]}`}}, FallbackConfidence, true},
		{"backend error", &stubBackend{err: errors.New("timeout")}, FallbackConfidence, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewLLMProvider(tt.stub).AnalyzeData(context.Background(), AnalysisRequest{Data: data, Type: "load"})
			assert.Equal(t, tt.want, res.Confidence)
			assert.Equal(t, tt.degraded, res.Degraded)
			assert.NotNil(t, res.Insights)
			assert.NotNil(t, res.Recommendations)
			assert.Contains(t, tt.stub.reqs[0].Messages[0].Content, `"weeklyTss"`)
			assert.True(t, tt.stub.reqs[0].JSON)
		})
	}
}

func TestExplainInsightMessages(t *testing.T) {
	stub := &stubBackend{completion: llm.Completion{Content: "Your HRV dipped because of poor sleep."}}
	resp := NewLLMProvider(stub).ExplainInsight(context.Background(), InsightRequest{
		Data:     json.RawMessage(`{"hrv": 38}`),
		Question: "Why is my HRV low?",
		Context:  "DAILY CHECK-INS",
	})

	assert.False(t, resp.Degraded)
	assert.Equal(t, DefaultSuggestions, resp.Suggestions)
	msgs := stub.reqs[0].Messages
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "DAILY CHECK-INS")
	assert.Contains(t, msgs[1].Content, "Why is my HRV low?")
	assert.Contains(t, msgs[1].Content, `{"hrv": 38}`)
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in   string
		want BackendKind
		err  bool
	}{
		{"openai", BackendOpenAI, false},
		{" OpenAI ", BackendOpenAI, false},
		{"mock", BackendMock, false},
		{"", "", true},
		{"anthropic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if tt.err {
			if !errors.Is(err, ErrUnknownBackend) {
				t.Errorf("ParseBackend(%q) error = %v, want ErrUnknownBackend", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseBackend(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	_, err := New(config.Coach{Backend: "gpt"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	p, err := New(config.Coach{Backend: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockProvider{}, p)
	assert.True(t, p.Available())

	p, err = New(config.Coach{Backend: "openai", APIKey: "sk-1", MaxTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
	assert.True(t, p.Available())
}

func TestMockProvider(t *testing.T) {
	m := metrics.NewTestManager()
	p := NewMockProvider(WithMetrics(m))
	ctx := context.Background()
	req := ChatRequest{Messages: userMsg, Context: "ATHLETE PROFILE"}

	a := p.Chat(ctx, req)
	b := p.Chat(ctx, req)
	assert.Equal(t, a, b)
	assert.False(t, a.Degraded)
	assert.Equal(t, DefaultSuggestions, a.Suggestions)

	chunks := collect(p.ChatStream(ctx, req))
	assertStreamShape(t, chunks)
	assert.Greater(t, len(chunks), 2)
	assert.Equal(t, a.Content, chunks[len(chunks)-1].Content)

	res := p.AnalyzeData(ctx, AnalysisRequest{Type: "recovery"})
	assert.Equal(t, MockConfidence, res.Confidence)
	assert.LessOrEqual(t, res.Confidence, RealConfidence)
	assert.Greater(t, res.Confidence, FallbackConfidence)

	w := p.GenerateWorkout(ctx, WorkoutParams{Duration: 30}, "")
	assert.False(t, w.Degraded)
	assert.Equal(t, 30, w.TotalDuration)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CounterProviderCalls.WithLabelValues("mock", "chat", metrics.OutcomeOK)))
}

func TestExtractSuggestions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"none", "Just rest.", DefaultSuggestions},
		{"dash bullets", "Rest.\n\nSuggestions:\n- One\n- Two", []string{"One", "Two"}},
		{"bold header and numbers", "Rest.\n**Suggestions:**\n1. One\n2) Two\n3. Three\n4. Four", []string{"One", "Two", "Three"}},
		{"stops at prose", "Suggestions:\n* One\nThat's all.\n- Not this", []string{"One"}},
		{"last block wins", "Suggestions:\n- Old\n\nMore text\nSuggestions:\n- New", []string{"New"}},
		{"empty block", "Suggestions:\n", DefaultSuggestions},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractSuggestions(tt.text))
		})
	}
}

func TestCompletionCacheServesRepeatedWorkouts(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	require.NoError(t, err)
	stub := &stubBackend{completion: llm.Completion{Content: workoutReply}}
	p, err := New(config.Coach{Backend: "openai", APIKey: "sk-test"},
		WithBackend(stub), WithCompletionCache(fc, time.Hour))
	require.NoError(t, err)
	ctx := context.Background()
	params := WorkoutParams{Sport: "running", Type: "tempo", Duration: 45, Intensity: "threshold"}

	first := p.GenerateWorkout(ctx, params, "ATHLETE PROFILE")
	second := p.GenerateWorkout(ctx, params, "ATHLETE PROFILE")
	assert.False(t, second.Degraded)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, stub.calls)

	p.GenerateWorkout(ctx, params, "ATHLETE PROFILE (updated)")
	assert.Equal(t, 2, stub.calls)

	// chat replies are never cached
	p.Chat(ctx, ChatRequest{Messages: userMsg})
	p.Chat(ctx, ChatRequest{Messages: userMsg})
	assert.Equal(t, 4, stub.calls)
}
