package coach

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachiq/internal/llm"
	"github.com/briangreenhill/coachiq/internal/metrics"
	"github.com/briangreenhill/coachiq/internal/prompt"
)

// RealConfidence is used when the backend does not report a usable confidence
const RealConfidence = 0.8

// LLMProvider wraps a chat completion backend. A nil backend means the
// provider is not configured and every operation degrades without I/O.
type LLMProvider struct {
	backend   Backend
	templates *prompt.Set
	log       zerolog.Logger
	metrics   *metrics.Manager
}

// NewLLMProvider wraps backend; pass nil for an unconfigured provider
func NewLLMProvider(backend Backend, opts ...Option) *LLMProvider {
	return newLLMProvider(newSettings(opts), backend)
}

func newLLMProvider(s settings, backend Backend) *LLMProvider {
	return &LLMProvider{
		backend:   backend,
		templates: s.templates,
		log:       s.log.With().Str("provider", string(BackendOpenAI)).Logger(),
		metrics:   s.metrics,
	}
}

func (p *LLMProvider) Name() string { return string(BackendOpenAI) }

func (p *LLMProvider) Available() bool { return p.backend != nil }

func (p *LLMProvider) observe(op, outcome string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.CounterProviderCalls.WithLabelValues(p.Name(), op, outcome).Inc()
	if outcome != metrics.OutcomeUnavailable {
		p.metrics.HistProviderDuration.WithLabelValues(p.Name(), op).Observe(time.Since(start).Seconds())
	}
}

func (p *LLMProvider) unavailable(op, threadID string) {
	p.log.Warn().Str("op", op).Str("thread_id", threadID).Msg("coaching backend not configured, degrading")
	p.observe(op, metrics.OutcomeUnavailable, time.Time{})
}

func (p *LLMProvider) failed(op, threadID string, err error, start time.Time) {
	p.log.Warn().Err(err).Str("op", op).Str("thread_id", threadID).Msg("coaching backend call failed, degrading")
	p.observe(op, metrics.OutcomeError, start)
}

// conversation prepends the persona, carrying the athlete context, to msgs
func (p *LLMProvider) conversation(msgs []Message, athleteContext string) []llm.Message {
	out := make([]llm.Message, 0, len(msgs)+1)
	out = append(out, llm.Message{
		Role:    string(RoleSystem),
		Content: p.templates.Persona.Render(map[string]string{"context": athleteContext}),
	})
	for _, m := range msgs {
		out = append(out, llm.Message{Role: string(m.Role), Content: m.Content})
	}
	return out
}

func (p *LLMProvider) chatResponse(c llm.Completion) ChatResponse {
	meta := map[string]string{"provider": p.Name()}
	if c.Model != "" {
		meta["model"] = c.Model
	}
	if c.FinishReason != "" {
		meta["finishReason"] = c.FinishReason
	}
	return ChatResponse{
		Content:     c.Content,
		Suggestions: ExtractSuggestions(c.Content),
		Usage: &Usage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.TotalTokens,
		},
		Metadata: meta,
	}
}

func (p *LLMProvider) Chat(ctx context.Context, req ChatRequest) ChatResponse {
	const op = "chat"
	if p.backend == nil {
		p.unavailable(op, req.ThreadID)
		return degradedChat(p.Name(), UnavailableMessage, metrics.OutcomeUnavailable)
	}

	start := time.Now()
	c, err := p.backend.Complete(ctx, llm.Request{Messages: p.conversation(req.Messages, req.Context)})
	if err != nil {
		p.failed(op, req.ThreadID, err, start)
		return degradedChat(p.Name(), ErrorMessage, metrics.OutcomeError)
	}
	p.observe(op, metrics.OutcomeOK, start)
	return p.chatResponse(c)
}

// ChatStream streams a reply. A failure after text has arrived appends the
// apology to what was already delivered, so content never shrinks. When ctx
// is cancelled the stream simply ends without a final chunk.
func (p *LLMProvider) ChatStream(ctx context.Context, req ChatRequest) iter.Seq[StreamChunk] {
	const op = "chat_stream"
	return func(yield func(StreamChunk) bool) {
		if p.backend == nil {
			p.unavailable(op, req.ThreadID)
			yield(StreamChunk{Content: UnavailableMessage, Complete: true, Suggestions: defaultSuggestions(), Degraded: true})
			return
		}

		start := time.Now()
		var b strings.Builder
		for part, err := range p.backend.Stream(ctx, llm.Request{Messages: p.conversation(req.Messages, req.Context)}) {
			if err != nil {
				if ctx.Err() != nil {
					p.log.Debug().Str("op", op).Str("thread_id", req.ThreadID).Msg("stream cancelled")
					p.observe(op, metrics.OutcomeError, start)
					return
				}
				p.failed(op, req.ThreadID, err, start)
				content := ErrorMessage
				if b.Len() > 0 {
					content = b.String() + "\n\n" + ErrorMessage
				}
				yield(StreamChunk{Content: content, Complete: true, Suggestions: defaultSuggestions(), Degraded: true})
				return
			}
			b.WriteString(part)
			if !yield(StreamChunk{Content: b.String()}) {
				return
			}
		}

		p.observe(op, metrics.OutcomeOK, start)
		content := b.String()
		yield(StreamChunk{Content: content, Complete: true, Suggestions: ExtractSuggestions(content)})
	}
}

func (p *LLMProvider) GenerateWorkout(ctx context.Context, params WorkoutParams, athleteContext string) GeneratedWorkout {
	const op = "generate_workout"
	if p.backend == nil {
		p.unavailable(op, "")
		return degradedWorkout(params)
	}

	text := p.templates.Workout.Render(map[string]string{
		"sport":      params.Sport,
		"type":       params.Type,
		"duration":   positive(params.Duration),
		"intensity":  params.Intensity,
		"goals":      strings.Join(params.Goals, ", "),
		"equipment":  strings.Join(params.Equipment, ", "),
		"location":   params.Location,
		"conditions": params.Conditions,
		"context":    athleteContext,
	})

	start := time.Now()
	c, err := p.backend.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: string(RoleUser), Content: text}},
		JSON:     true,
	})
	if err != nil {
		p.failed(op, "", err, start)
		return degradedWorkout(params)
	}

	var w GeneratedWorkout
	if err := decodeJSONReply(c.Content, &w); err != nil {
		p.failed(op, "", err, start)
		return degradedWorkout(params)
	}
	if len(w.Steps()) == 0 {
		p.failed(op, "", errNoSteps, start)
		return degradedWorkout(params)
	}
	if w.TotalDuration <= 0 {
		w.TotalDuration = params.Duration
	}
	w.Difficulty = min(max(w.Difficulty, 1), 5)
	w.Degraded = false
	p.observe(op, metrics.OutcomeOK, start)
	return w
}

func (p *LLMProvider) AnalyzeData(ctx context.Context, req AnalysisRequest) AnalysisResult {
	const op = "analyze_data"
	if p.backend == nil {
		p.unavailable(op, "")
		return fallbackAnalysis(req.Type)
	}

	text := p.templates.Analysis.Render(map[string]string{
		"analysis_type": req.Type,
		"data":          string(req.Data),
		"context":       req.Context,
	})

	start := time.Now()
	c, err := p.backend.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: string(RoleUser), Content: text}},
		JSON:     true,
	})
	if err != nil {
		p.failed(op, "", err, start)
		return fallbackAnalysis(req.Type)
	}

	var res AnalysisResult
	if err := decodeJSONReply(c.Content, &res); err != nil || res.Summary == "" {
		if err == nil {
			err = errNoSummary
		}
		p.failed(op, "", err, start)
		return fallbackAnalysis(req.Type)
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		res.Confidence = RealConfidence
	}
	if res.Insights == nil {
		res.Insights = []string{}
	}
	if res.Recommendations == nil {
		res.Recommendations = []string{}
	}
	res.Degraded = false
	p.observe(op, metrics.OutcomeOK, start)
	return res
}

func (p *LLMProvider) ExplainInsight(ctx context.Context, req InsightRequest) ChatResponse {
	const op = "explain_insight"
	if p.backend == nil {
		p.unavailable(op, req.ThreadID)
		return degradedChat(p.Name(), UnavailableMessage, metrics.OutcomeUnavailable)
	}

	question := p.templates.Insight.Render(map[string]string{
		"question": req.Question,
		"data":     string(req.Data),
	})
	msgs := p.conversation([]Message{{Role: RoleUser, Content: question}}, req.Context)

	start := time.Now()
	c, err := p.backend.Complete(ctx, llm.Request{Messages: msgs})
	if err != nil {
		p.failed(op, req.ThreadID, err, start)
		return degradedChat(p.Name(), ErrorMessage, metrics.OutcomeError)
	}
	p.observe(op, metrics.OutcomeOK, start)
	return p.chatResponse(c)
}
