package coachctx

import (
	"unicode/utf8"

	"github.com/briangreenhill/coachiq/internal/athlete"
)

// EstimateTokens approximates the token count of text as ceil(chars/4).
// It is a coarse, deterministic proxy and not a real tokenizer.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// Optimized is the result of fitting a context into a token budget
type Optimized struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
	Window Window `json:"window"`
	// Trace holds the token estimate of the initial build and of every
	// degradation step after it.
	Trace []int `json:"trace"`
}

// WithinBudget reports whether the final context fits the budget it was built for
func (o Optimized) WithinBudget(maxTokens int) bool {
	return o.Tokens <= maxTokens
}

// OptimizeForTokenLimit degrades the assembler's starting window until the
// context fits maxTokens: first the lookback shrinks one day at a time down
// to a single day, then workouts are dropped, then check-ins. Profile, plan
// and metrics are never dropped, so the result may still exceed the budget.
func (a *Assembler) OptimizeForTokenLimit(s athlete.Snapshot, maxTokens int) Optimized {
	return a.optimize(s, a.window, maxTokens)
}

// OptimizeWindow is OptimizeForTokenLimit starting from w instead of the
// assembler's own window
func (a *Assembler) OptimizeWindow(s athlete.Snapshot, w Window, maxTokens int) (Optimized, error) {
	if err := w.Validate(); err != nil {
		return Optimized{}, err
	}
	return a.optimize(s, w, maxTokens), nil
}

func (a *Assembler) optimize(s athlete.Snapshot, w Window, maxTokens int) Optimized {
	text := a.render(s, w)
	tokens := EstimateTokens(text)
	trace := []int{tokens}

	for tokens > maxTokens {
		switch {
		case w.Days > 1:
			w.Days--
		case w.IncludeWorkouts:
			w.IncludeWorkouts = false
		case w.IncludeCheckIns:
			w.IncludeCheckIns = false
		default:
			return Optimized{Text: text, Tokens: tokens, Window: w, Trace: trace}
		}
		text = a.render(s, w)
		tokens = EstimateTokens(text)
		trace = append(trace, tokens)
	}
	return Optimized{Text: text, Tokens: tokens, Window: w, Trace: trace}
}
