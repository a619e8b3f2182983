package coach

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/briangreenhill/coachiq/internal/training"
)

// Degraded replies. They are worded so a user can tell they did not come
// from the coach.
const (
	UnavailableMessage = "AI coaching is not configured right now, so I can't give you a personalised answer. Your training data is still recorded; ask again once coaching is enabled."
	ErrorMessage       = "Sorry, I couldn't reach the coaching service just now. Please try again in a moment."

	maxSuggestions = 3
)

// DefaultSuggestions are offered when a reply carries none of its own
var DefaultSuggestions = []string{
	"How should I adjust this week's training?",
	"Am I recovering well enough?",
	"What should my next key session be?",
}

func defaultSuggestions() []string {
	return append([]string(nil), DefaultSuggestions...)
}

func degradedChat(provider, content, reason string) ChatResponse {
	return ChatResponse{
		Content:     content,
		Suggestions: defaultSuggestions(),
		Metadata:    map[string]string{"provider": provider, "degraded": reason},
		Degraded:    true,
	}
}

// ExtractSuggestions returns the bullet lines of the last "Suggestions:"
// block in text, at most three. Without such a block the default set is
// returned.
func ExtractSuggestions(text string) []string {
	lines := strings.Split(text, "\n")
	start := -1
	for i := len(lines) - 1; i >= 0; i-- {
		l := strings.ToLower(strings.Trim(strings.TrimSpace(lines[i]), "*#_ "))
		if strings.HasPrefix(l, "suggestions:") || l == "suggestions" {
			start = i
			break
		}
	}
	if start < 0 {
		return defaultSuggestions()
	}

	var out []string
	for _, l := range lines[start+1:] {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		item, ok := bulletText(l)
		if !ok {
			break
		}
		if item != "" {
			out = append(out, item)
		}
		if len(out) == maxSuggestions {
			break
		}
	}
	if len(out) == 0 {
		return defaultSuggestions()
	}
	return out
}

func bulletText(line string) (string, bool) {
	for _, p := range []string{"- ", "* ", "• "} {
		if rest, ok := strings.CutPrefix(line, p); ok {
			return strings.TrimSpace(rest), true
		}
	}
	// numbered: "1. text" or "1) text"
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:]), true
	}
	return "", false
}

// intensityZone maps a free-text intensity label to a training zone
func intensityZone(intensity string) int {
	s := strings.ToLower(intensity)
	switch {
	case strings.Contains(s, "recovery"), strings.Contains(s, "easy"), strings.Contains(s, "low"):
		return 2
	case strings.Contains(s, "max"), strings.Contains(s, "vo2"), strings.Contains(s, "sprint"):
		return 5
	case strings.Contains(s, "hard"), strings.Contains(s, "high"), strings.Contains(s, "threshold"):
		return 4
	default:
		return 3
	}
}

// FallbackWorkout synthesises a workout without a backend: 20% warm-up, 70%
// main set and the remainder as cool-down, so the parts always add up to
// the requested duration.
func FallbackWorkout(p WorkoutParams) GeneratedWorkout {
	total := max(p.Duration, 0)
	warm := int(math.Round(float64(total) * 0.2))
	body := int(math.Round(float64(total) * 0.7))
	cool := total - warm - body
	zone := intensityZone(p.Intensity)

	intensity := p.Intensity
	if intensity == "" {
		intensity = "moderate"
	}
	activity := strings.TrimSpace(p.Sport + " " + p.Type)
	if activity == "" {
		activity = "workout"
	}

	w := GeneratedWorkout{
		Name:              fmt.Sprintf("%d-minute %s %s", total, intensity, activity),
		Description:       "A simple structured session: ease in, hold the main effort steady, then bring the heart rate back down.",
		TotalDuration:     total,
		EstimatedCalories: warm*8 + body*(4+2*zone) + cool*6,
		Difficulty:        min(max(zone, 1), 5),
		Equipment:         append([]string{}, p.Equipment...),
		Warmup:            []training.Step{},
		MainSet:           []training.Step{},
		Cooldown:          []training.Step{},
		Tips: []string{
			"Keep the warm-up truly easy; you should be able to hold a conversation.",
			"Stop the session if you feel pain rather than fatigue.",
			"Refuel and rehydrate within an hour of finishing.",
		},
	}
	if warm > 0 {
		w.Warmup = append(w.Warmup, fallbackStep("warmup-1", training.KindWarmup, "Easy warm-up", warm, 2))
	}
	if body > 0 {
		w.MainSet = append(w.MainSet, fallbackStep("main-1", training.KindActive, "Main set", body, zone))
	}
	if cool > 0 {
		w.Cooldown = append(w.Cooldown, fallbackStep("cooldown-1", training.KindCooldown, "Cool-down", cool, 1))
	}
	return w
}

func fallbackStep(id string, kind training.StepKind, name string, minutes, zone int) training.Step {
	return training.Step{
		ID:              id,
		Kind:            kind,
		Name:            name,
		DurationSeconds: minutes * 60,
		Target:          training.Target{Type: "heart_rate", Zone: zone},
	}
}

func degradedWorkout(p WorkoutParams) GeneratedWorkout {
	w := FallbackWorkout(p)
	w.Degraded = true
	return w
}

// FallbackConfidence is the confidence of the generic analysis
const FallbackConfidence = 0.5

func fallbackAnalysis(analysisType string) AnalysisResult {
	if analysisType == "" {
		analysisType = "general"
	}
	return AnalysisResult{
		Summary: fmt.Sprintf("Automated %s analysis is unavailable right now, so this is a general review based on standard training principles.", analysisType),
		Insights: []string{
			"Consistency across weeks matters more than any single session.",
			"Recovery markers such as sleep and HRV show how well training is being absorbed.",
		},
		Recommendations: []string{
			"Keep most sessions easy and limit hard days to two or three per week.",
			"Increase weekly load gradually, by no more than about 10%.",
			"Take an extra rest day when sleep or motivation drops for several days.",
		},
		Confidence:  FallbackConfidence,
		RiskFactors: []string{},
		Degraded:    true,
	}
}

var (
	errNoJSON    = errors.New("no JSON object in reply")
	errNoSteps   = errors.New("workout reply has no steps")
	errNoSummary = errors.New("analysis reply has no summary")
)

func positive(v int) string {
	if v <= 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// decodeJSONReply decodes the first JSON object in a model reply, tolerating
// markdown fences and text around it.
func decodeJSONReply(content string, v any) error {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start < 0 || end < start {
		return errNoJSON
	}
	if err := json.Unmarshal([]byte(content[start:end+1]), v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
