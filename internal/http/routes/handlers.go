package routes

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/coachiq/internal/coach"
	"github.com/briangreenhill/coachiq/internal/coachctx"
	"github.com/briangreenhill/coachiq/internal/jobs"
	"github.com/briangreenhill/coachiq/internal/training"
)

type contextResponse struct {
	Context string          `json:"context"`
	Summary string          `json:"summary,omitempty"`
	Tokens  int             `json:"tokens"`
	Window  coachctx.Window `json:"window"`
	Trace   []int           `json:"trace,omitempty"`
}

// GET /v1/athletes/{athleteID}/context?days=&summary=1&maxTokens=
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	win, err := s.window(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	q := r.URL.Query()
	maxTokens := 0
	if raw := q.Get("maxTokens"); raw != "" {
		if maxTokens, err = strconv.Atoi(raw); err != nil || maxTokens <= 0 {
			s.writeError(w, r, http.StatusBadRequest, "maxTokens must be a positive integer")
			return
		}
	}

	snap, ok := s.loadSnapshot(w, r, win.Days)
	if !ok {
		return
	}

	var resp contextResponse
	if maxTokens > 0 {
		opt, err := s.Assembler.OptimizeWindow(snap, win, maxTokens)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		resp = contextResponse{Context: opt.Text, Tokens: opt.Tokens, Window: opt.Window, Trace: opt.Trace}
	} else {
		text, err := s.Assembler.BuildContext(snap, win)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		resp = contextResponse{Context: text, Tokens: coachctx.EstimateTokens(text), Window: win}
	}
	if q.Get("summary") == "1" {
		resp.Summary, _ = s.Assembler.BuildSummary(snap, resp.Window)
	}
	if s.Metrics != nil {
		s.Metrics.HistContextTokens.Observe(float64(resp.Tokens))
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

type chatBody struct {
	Messages []coach.Message `json:"messages"`
	ThreadID string          `json:"threadId,omitempty"`
}

func (s *Server) chatRequest(w http.ResponseWriter, r *http.Request) (coach.ChatRequest, bool) {
	var body chatBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return coach.ChatRequest{}, false
	}
	if len(body.Messages) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "messages must not be empty")
		return coach.ChatRequest{}, false
	}
	for i, m := range body.Messages {
		if !m.Role.Valid() {
			s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("messages[%d]: unknown role %q", i, m.Role))
			return coach.ChatRequest{}, false
		}
	}
	athleteContext, ok := s.athleteContext(w, r)
	if !ok {
		return coach.ChatRequest{}, false
	}
	return coach.ChatRequest{
		Messages: body.Messages,
		Context:  athleteContext,
		ThreadID: threadID(r, body.ThreadID),
	}, true
}

// POST /v1/athletes/{athleteID}/chat
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.chatRequest(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.Provider.Chat(r.Context(), req))
}

// POST /v1/athletes/{athleteID}/chat/stream
//
// Each chunk is one SSE event carrying the accumulated reply as JSON.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.chatRequest(w, r)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	log := hlog.FromRequest(r)
	for chunk := range s.Provider.ChatStream(r.Context(), req) {
		b, err := json.Marshal(chunk)
		if err != nil {
			log.Error().Err(err).Msg("encode stream chunk")
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			log.Debug().Err(err).Msg("client went away")
			return
		}
		if err := rc.Flush(); err != nil {
			log.Debug().Err(err).Msg("flush stream chunk")
		}
		if s.Metrics != nil {
			s.Metrics.CounterStreamChunks.Inc()
		}
	}
}

type workoutResponse struct {
	coach.GeneratedWorkout
	Load            training.Load `json:"load"`
	IntensityFactor float64       `json:"intensityFactor"`
	ZoneSeconds     [6]float64    `json:"zoneSeconds"`
	ZonePercent     [6]float64    `json:"zonePercent"`
}

// POST /v1/athletes/{athleteID}/workouts
func (s *Server) handleGenerateWorkout(w http.ResponseWriter, r *http.Request) {
	var params coach.WorkoutParams
	if err := decodeBody(w, r, &params); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if params.Duration <= 0 {
		s.writeError(w, r, http.StatusBadRequest, "duration must be a positive number of minutes")
		return
	}
	if strings.TrimSpace(params.Sport) == "" {
		s.writeError(w, r, http.StatusBadRequest, "sport is required")
		return
	}
	athleteContext, ok := s.athleteContext(w, r)
	if !ok {
		return
	}

	wo := s.Provider.GenerateWorkout(r.Context(), params, athleteContext)
	steps := wo.Steps()
	load := training.SessionLoad(steps, training.TableFor(params.Sport))
	zones := training.ZoneSeconds(steps)
	s.writeJSON(w, r, http.StatusOK, workoutResponse{
		GeneratedWorkout: wo,
		Load:             load,
		IntensityFactor:  training.IntensityFactor(load),
		ZoneSeconds:      zones,
		ZonePercent:      training.ZoneDistribution(zones),
	})
}

type analysisBody struct {
	Data         json.RawMessage `json:"data"`
	AnalysisType string          `json:"analysisType"`
	Days         int             `json:"days,omitempty"`
}

type enqueuedResponse struct {
	TaskID string `json:"taskId"`
	Queue  string `json:"queue"`
}

// POST /v1/athletes/{athleteID}/analysis[?async=1]
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var body analysisBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.AnalysisType == "" {
		body.AnalysisType = "weekly"
	}
	if body.Days < 0 {
		s.writeError(w, r, http.StatusBadRequest, "days must not be negative")
		return
	}

	if r.URL.Query().Get("async") == "1" {
		if s.Queue == nil {
			s.writeError(w, r, http.StatusServiceUnavailable, "background analysis is not configured")
			return
		}
		// validate the athlete before queueing work for it
		if _, ok := s.loadSnapshot(w, r, 1); !ok {
			return
		}
		info, err := jobs.EnqueueAnalysis(s.Queue, jobs.AnalyzeAthletePayload{
			AthleteID:    chi.URLParam(r, "athleteID"),
			AnalysisType: body.AnalysisType,
			Days:         body.Days,
		})
		if err != nil {
			hlog.FromRequest(r).Error().Err(err).Msg("enqueue analysis")
			s.writeError(w, r, http.StatusServiceUnavailable, "could not queue analysis")
			return
		}
		s.writeJSON(w, r, http.StatusAccepted, enqueuedResponse{TaskID: info.ID, Queue: info.Queue})
		return
	}

	if len(body.Data) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "data is required")
		return
	}
	athleteContext, ok := s.athleteContext(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.Provider.AnalyzeData(r.Context(), coach.AnalysisRequest{
		Data:    body.Data,
		Type:    body.AnalysisType,
		Context: athleteContext,
	}))
}

// POST /v1/athletes/{athleteID}/insights
func (s *Server) handleInsight(w http.ResponseWriter, r *http.Request) {
	var req coach.InsightRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.writeError(w, r, http.StatusBadRequest, "question is required")
		return
	}
	athleteContext, ok := s.athleteContext(w, r)
	if !ok {
		return
	}
	req.Context = athleteContext
	req.ThreadID = threadID(r, req.ThreadID)
	s.writeJSON(w, r, http.StatusOK, s.Provider.ExplainInsight(r.Context(), req))
}

type readinessResponse struct {
	Score         int     `json:"score"`
	SorenessScore float64 `json:"sorenessScore"`
}

// POST /v1/metrics/readiness
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	var in training.ReadinessInput
	if err := decodeBody(w, r, &in); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg := validateReadiness(in); msg != "" {
		s.writeError(w, r, http.StatusBadRequest, msg)
		return
	}
	s.writeJSON(w, r, http.StatusOK, readinessResponse{
		Score:         training.Readiness(in),
		SorenessScore: training.SorenessScore(in.Soreness),
	})
}

func validateReadiness(in training.ReadinessInput) string {
	switch {
	case in.SleepQuality < 1 || in.SleepQuality > 5:
		return "sleepQuality must be between 1 and 5"
	case in.Mood < 1 || in.Mood > 5:
		return "mood must be between 1 and 5"
	case in.Stress < 1 || in.Stress > 10:
		return "stress must be between 1 and 10"
	case in.HRVBaseline < 0:
		return "hrvBaseline must not be negative"
	}
	for i, v := range in.Soreness {
		if v < 1 || v > 10 {
			return fmt.Sprintf("soreness[%d] must be between 1 and 10", i)
		}
	}
	return ""
}

type workoutLoadBody struct {
	Sport string          `json:"sport"`
	Steps []training.Step `json:"steps"`
}

type workoutLoadResponse struct {
	Load            training.Load `json:"load"`
	Hours           float64       `json:"hours"`
	IntensityFactor float64       `json:"intensityFactor"`
	ZoneSeconds     [6]float64    `json:"zoneSeconds"`
	ZonePercent     [6]float64    `json:"zonePercent"`
}

// POST /v1/metrics/workout-load
func (s *Server) handleWorkoutLoad(w http.ResponseWriter, r *http.Request) {
	var body workoutLoadBody
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Steps) == 0 {
		s.writeError(w, r, http.StatusBadRequest, "steps must not be empty")
		return
	}
	load := training.SessionLoad(body.Steps, training.TableFor(body.Sport))
	zones := training.ZoneSeconds(body.Steps)
	s.writeJSON(w, r, http.StatusOK, workoutLoadResponse{
		Load:            load,
		Hours:           load.Hours(),
		IntensityFactor: training.IntensityFactor(load),
		ZoneSeconds:     zones,
		ZonePercent:     training.ZoneDistribution(zones),
	})
}

// GET /v1/metrics/acwr?acute=&chronic=
func (s *Server) handleACWR(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	acute, err1 := strconv.ParseFloat(q.Get("acute"), 64)
	chronic, err2 := strconv.ParseFloat(q.Get("chronic"), 64)
	if err1 != nil || err2 != nil || math.IsNaN(acute) || math.IsInf(acute, 0) || acute < 0 {
		s.writeError(w, r, http.StatusBadRequest, "acute and chronic must be finite numbers")
		return
	}
	lr, ok := training.AssessLoad(acute, chronic)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "chronic load must be positive")
		return
	}
	s.writeJSON(w, r, http.StatusOK, lr)
}
