// Package coachctx assembles an athlete's telemetry snapshot into the text
// context handed to the coaching model, and keeps it within a token budget.
package coachctx

import (
	"errors"
	"fmt"
)

// DefaultDays is the lookback of the default window
const DefaultDays = 14

// ErrInvalidWindow is returned for a window that cannot be used
var ErrInvalidWindow = errors.New("invalid context window")

// Window bounds how much history and which sections go into a context
type Window struct {
	Days            int  `json:"days"`
	IncludeProfile  bool `json:"includeProfile"`
	IncludeWorkouts bool `json:"includeWorkouts"`
	IncludeCheckIns bool `json:"includeCheckIns"`
	IncludeMetrics  bool `json:"includeMetrics"`
	IncludePlan     bool `json:"includePlan"`
}

// DefaultWindow includes every section over the last DefaultDays days
func DefaultWindow() Window {
	return Window{
		Days:            DefaultDays,
		IncludeProfile:  true,
		IncludeWorkouts: true,
		IncludeCheckIns: true,
		IncludeMetrics:  true,
		IncludePlan:     true,
	}
}

// Validate rejects windows with a non-positive lookback
func (w Window) Validate() error {
	if w.Days <= 0 {
		return fmt.Errorf("%w: days must be positive, got %d", ErrInvalidWindow, w.Days)
	}
	return nil
}
