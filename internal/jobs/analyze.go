package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/coachiq/internal/athlete"
	"github.com/briangreenhill/coachiq/internal/coach"
	"github.com/briangreenhill/coachiq/internal/coachctx"
	"github.com/briangreenhill/coachiq/internal/metrics"
	"github.com/briangreenhill/coachiq/internal/store"
	"github.com/briangreenhill/coachiq/internal/training"
)

// Store is the part of *store.Store the analysis job needs
type Store interface {
	Load(ctx context.Context, athleteID uuid.UUID, since time.Time) (athlete.Snapshot, error)
	SaveAnalysis(ctx context.Context, athleteID uuid.UUID, analysisType string, res coach.AnalysisResult) (uuid.UUID, error)
}

// AnalyzeHandler runs coach:analyze_athlete tasks: load the snapshot, fit
// its context into the token budget, analyse it and store the result.
type AnalyzeHandler struct {
	Store     Store
	Assembler *coachctx.Assembler
	Provider  coach.Provider
	MaxTokens int
	Log       zerolog.Logger
	Metrics   *metrics.Manager
	Now       func() time.Time
}

// analysisData is what the provider is asked to analyse
type analysisData struct {
	Summary   string                      `json:"summary"`
	Metrics   *athlete.PerformanceMetrics `json:"metrics,omitempty"`
	LoadRatio *training.LoadRatio         `json:"loadRatio,omitempty"`
	Daily     []training.DailyLoad        `json:"dailyLoads,omitempty"`
}

func (h *AnalyzeHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *AnalyzeHandler) count(status string) {
	if h.Metrics != nil {
		h.Metrics.CounterJobs.WithLabelValues(TaskAnalyzeAthlete, status).Inc()
	}
}

// ProcessTask implements asynq.Handler. Payloads that can never succeed are
// dropped with asynq.SkipRetry; storage errors are returned for a retry.
func (h *AnalyzeHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p AnalyzeAthletePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.count("dropped")
		h.Log.Error().Err(err).Msg("[analyze] bad payload")
		return fmt.Errorf("bad payload: %v: %w", err, asynq.SkipRetry)
	}
	id, err := uuid.Parse(p.AthleteID)
	if err != nil {
		h.count("dropped")
		h.Log.Error().Err(err).Str("athlete_id", p.AthleteID).Msg("[analyze] bad athlete id")
		return fmt.Errorf("bad athlete id %q: %w", p.AthleteID, asynq.SkipRetry)
	}
	if p.AnalysisType == "" {
		p.AnalysisType = "weekly"
	}

	window := h.Assembler.Window()
	if p.Days > 0 {
		window.Days = p.Days
	}
	log := h.Log.With().Str("athlete_id", p.AthleteID).Str("analysis_type", p.AnalysisType).Logger()
	log.Info().Msg("[analyze] start")
	start := h.now()

	snap, err := h.Store.Load(ctx, id, coachctx.WindowStart(start, window.Days))
	if errors.Is(err, store.ErrNotFound) {
		h.count("dropped")
		log.Warn().Msg("[analyze] athlete not found (dropping job)")
		return fmt.Errorf("athlete %s: %w", id, asynq.SkipRetry)
	}
	if err != nil {
		h.count("retry")
		log.Warn().Err(err).Msg("[analyze] load failed (will retry)")
		return fmt.Errorf("load snapshot: %w", err)
	}

	optimized, err := h.Assembler.OptimizeWindow(snap, window, h.MaxTokens)
	if err != nil {
		h.count("dropped")
		return fmt.Errorf("window: %v: %w", err, asynq.SkipRetry)
	}
	if h.Metrics != nil {
		h.Metrics.HistContextTokens.Observe(float64(optimized.Tokens))
	}

	data, err := json.Marshal(h.analysisData(snap, window))
	if err != nil {
		h.count("dropped")
		return fmt.Errorf("encode data: %v: %w", err, asynq.SkipRetry)
	}

	res := h.Provider.AnalyzeData(ctx, coach.AnalysisRequest{
		Data:    data,
		Type:    p.AnalysisType,
		Context: optimized.Text,
	})

	analysisID, err := h.Store.SaveAnalysis(ctx, id, p.AnalysisType, res)
	if err != nil {
		h.count("retry")
		log.Warn().Err(err).Msg("[analyze] save failed (will retry)")
		return fmt.Errorf("save analysis: %w", err)
	}

	h.count("done")
	log.Info().
		Str("analysis_id", analysisID.String()).
		Bool("degraded", res.Degraded).
		Int("context_tokens", optimized.Tokens).
		Dur("duration", h.now().Sub(start)).
		Msg("[analyze] done")
	return nil
}

func (h *AnalyzeHandler) analysisData(snap athlete.Snapshot, w coachctx.Window) analysisData {
	summary, _ := h.Assembler.BuildSummary(snap, w)
	d := analysisData{
		Summary: summary,
		Metrics: snap.Metrics,
		Daily:   training.DailyLoads(snap.Workouts),
	}
	if snap.Metrics != nil {
		if lr, ok := training.AssessLoad(snap.Metrics.ATL, snap.Metrics.CTL); ok {
			d.LoadRatio = &lr
		}
	}
	return d
}
