// Package coach is the coaching provider: a single interface over a real
// LLM backend and an offline mock, with degraded fallbacks instead of
// runtime errors.
package coach

import (
	"encoding/json"
	"time"

	"github.com/briangreenhill/coachiq/internal/training"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

type Message struct {
	Role      Role              `json:"role"`
	Content   string            `json:"content"`
	Timestamp *time.Time        `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ChatRequest is one conversation turn. Context is the assembled athlete
// context and may be empty.
type ChatRequest struct {
	Messages []Message `json:"messages"`
	Context  string    `json:"context,omitempty"`
	ThreadID string    `json:"threadId,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type ChatResponse struct {
	Content     string            `json:"content"`
	Suggestions []string          `json:"suggestions"`
	Usage       *Usage            `json:"usage,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Degraded    bool              `json:"degraded"`
}

// StreamChunk carries the full text accumulated so far, never a delta
type StreamChunk struct {
	Content     string   `json:"content"`
	Complete    bool     `json:"complete"`
	Suggestions []string `json:"suggestions,omitempty"`
	Degraded    bool     `json:"degraded,omitempty"`
}

type WorkoutParams struct {
	Sport      string   `json:"sport"`
	Type       string   `json:"type"`
	Duration   int      `json:"duration"` // minutes
	Intensity  string   `json:"intensity"`
	Goals      []string `json:"goals,omitempty"`
	Equipment  []string `json:"equipment,omitempty"`
	Location   string   `json:"location,omitempty"`
	Conditions string   `json:"conditions,omitempty"`
}

type GeneratedWorkout struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	TotalDuration     int             `json:"totalDuration"` // minutes
	EstimatedCalories int             `json:"estimatedCalories"`
	Difficulty        int             `json:"difficulty"`
	Equipment         []string        `json:"equipment"`
	Warmup            []training.Step `json:"warmup"`
	MainSet           []training.Step `json:"mainSet"`
	Cooldown          []training.Step `json:"cooldown"`
	Tips              []string        `json:"tips"`
	Degraded          bool            `json:"degraded"`
}

// Steps returns warmup, main set and cooldown in order
func (w GeneratedWorkout) Steps() []training.Step {
	out := make([]training.Step, 0, len(w.Warmup)+len(w.MainSet)+len(w.Cooldown))
	out = append(out, w.Warmup...)
	out = append(out, w.MainSet...)
	return append(out, w.Cooldown...)
}

// AnalysisRequest asks for an analysis of arbitrary athlete data
type AnalysisRequest struct {
	Data    json.RawMessage `json:"data"`
	Type    string          `json:"analysisType"`
	Context string          `json:"context,omitempty"`
}

type AnalysisResult struct {
	Summary         string   `json:"summary"`
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	Confidence      float64  `json:"confidence"`
	RiskFactors     []string `json:"riskFactors,omitempty"`
	Degraded        bool     `json:"degraded"`
}

// InsightRequest asks for a plain-language explanation of a data point
type InsightRequest struct {
	Data     json.RawMessage `json:"data"`
	Question string          `json:"question"`
	Context  string          `json:"context,omitempty"`
	ThreadID string          `json:"threadId,omitempty"`
}
