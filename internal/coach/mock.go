package coach

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachiq/internal/metrics"
)

// MockConfidence is the confidence the mock reports for its analyses
const MockConfidence = 0.6

// MockProvider answers deterministically without any network access. It is
// always available.
type MockProvider struct {
	log     zerolog.Logger
	metrics *metrics.Manager
}

func NewMockProvider(opts ...Option) *MockProvider {
	s := newSettings(opts)
	return &MockProvider{
		log:     s.log.With().Str("provider", string(BackendMock)).Logger(),
		metrics: s.metrics,
	}
}

func (m *MockProvider) Name() string { return string(BackendMock) }

func (m *MockProvider) Available() bool { return true }

func (m *MockProvider) observe(op string) {
	if m.metrics == nil {
		return
	}
	m.metrics.CounterProviderCalls.WithLabelValues(m.Name(), op, metrics.OutcomeOK).Inc()
}

func lastUserMessage(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return strings.TrimSpace(msgs[i].Content)
		}
	}
	return ""
}

func (m *MockProvider) reply(msgs []Message, athleteContext string) string {
	var b strings.Builder
	if q := lastUserMessage(msgs); q != "" {
		fmt.Fprintf(&b, "You asked: %q.\n\n", q)
	}
	if athleteContext != "" {
		b.WriteString("Looking at your recent training data, keep building steadily and protect your recovery days.")
	} else {
		b.WriteString("I don't have any of your training data yet, so here is general advice: build volume gradually and keep most sessions easy.")
	}
	b.WriteString("\n\nSuggestions:\n")
	for _, s := range DefaultSuggestions {
		b.WriteString("- " + s + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *MockProvider) chatResponse(content string) ChatResponse {
	return ChatResponse{
		Content:     content,
		Suggestions: ExtractSuggestions(content),
		Usage:       &Usage{},
		Metadata:    map[string]string{"provider": m.Name()},
	}
}

func (m *MockProvider) Chat(_ context.Context, req ChatRequest) ChatResponse {
	m.observe("chat")
	m.log.Debug().Str("op", "chat").Str("thread_id", req.ThreadID).Msg("mock reply")
	return m.chatResponse(m.reply(req.Messages, req.Context))
}

// ChatStream delivers the mock reply word by word
func (m *MockProvider) ChatStream(ctx context.Context, req ChatRequest) iter.Seq[StreamChunk] {
	return func(yield func(StreamChunk) bool) {
		m.observe("chat_stream")
		content := m.reply(req.Messages, req.Context)

		var b strings.Builder
		for _, word := range strings.SplitAfter(content, " ") {
			if ctx.Err() != nil {
				return
			}
			b.WriteString(word)
			if !yield(StreamChunk{Content: b.String()}) {
				return
			}
		}
		yield(StreamChunk{Content: content, Complete: true, Suggestions: ExtractSuggestions(content)})
	}
}

func (m *MockProvider) GenerateWorkout(_ context.Context, params WorkoutParams, _ string) GeneratedWorkout {
	m.observe("generate_workout")
	return FallbackWorkout(params)
}

func (m *MockProvider) AnalyzeData(_ context.Context, req AnalysisRequest) AnalysisResult {
	m.observe("analyze_data")
	typ := req.Type
	if typ == "" {
		typ = "general"
	}
	return AnalysisResult{
		Summary:         fmt.Sprintf("Sample %s analysis generated without an AI backend.", typ),
		Insights:        []string{"Training load looks consistent with your recent history."},
		Recommendations: []string{"Keep one full rest day per week.", "Repeat this analysis after your next key session."},
		Confidence:      MockConfidence,
		RiskFactors:     []string{},
	}
}

func (m *MockProvider) ExplainInsight(_ context.Context, req InsightRequest) ChatResponse {
	m.observe("explain_insight")
	q := req.Question
	if q == "" {
		q = "What does this mean for my training?"
	}
	return m.chatResponse(m.reply([]Message{{Role: RoleUser, Content: q}}, req.Context))
}
