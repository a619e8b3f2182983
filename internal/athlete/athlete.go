// Package athlete holds the telemetry records the coaching pipeline consumes.
// Every record is a read-only snapshot owned by the caller.
package athlete

import "time"

// Profile describes who the athlete is
type Profile struct {
	ID              string   `json:"id,omitempty"`
	Name            string   `json:"name"`
	Age             int      `json:"age,omitempty"`
	Sport           string   `json:"sport,omitempty"`
	Experience      string   `json:"experience,omitempty"`
	Goals           []string `json:"goals,omitempty"`
	TrainingHistory string   `json:"trainingHistory,omitempty"`
}

// WorkoutRecord is one historical or planned session
type WorkoutRecord struct {
	Date      time.Time `json:"date"`
	Sport     string    `json:"sport"`
	Type      string    `json:"type"`
	Duration  int       `json:"duration"` // minutes
	Intensity string    `json:"intensity,omitempty"`
	TSS       *float64  `json:"tss,omitempty"`
	RPE       *int      `json:"rpe,omitempty"` // 1-10
	Completed bool      `json:"completed"`
}

// CheckIn is the athlete's daily wellness report. At most one per day.
type CheckIn struct {
	Date         time.Time `json:"date"`
	HRV          *float64  `json:"hrv,omitempty"`
	SleepHours   float64   `json:"sleepHours"`
	SleepQuality int       `json:"sleepQuality"` // 1-10
	Stress       int       `json:"stress"`       // 1-10
	Motivation   int       `json:"motivation"`   // 1-10
	Mood         int       `json:"mood"`         // 1-10
	Readiness    *int      `json:"readiness,omitempty"`
	Notes        string    `json:"notes,omitempty"`
}

// Race is the next target event of a plan
type Race struct {
	Name     string    `json:"name"`
	Date     time.Time `json:"date"`
	Distance string    `json:"distance,omitempty"`
}

// TrainingPlan is the athlete's current plan
type TrainingPlan struct {
	Name            string   `json:"name"`
	Phase           string   `json:"phase,omitempty"`
	WeeklyStructure string   `json:"weeklyStructure,omitempty"`
	KeySessions     []string `json:"keySessions,omitempty"`
	NextRace        *Race    `json:"nextRace,omitempty"`
}

// PerformanceMetrics carries the longer-horizon load indicators
type PerformanceMetrics struct {
	CTL           float64  `json:"ctl"`
	ATL           float64  `json:"atl"`
	TSB           float64  `json:"tsb"`
	PersonalBests []string `json:"personalBests,omitempty"`
}

// Snapshot aggregates everything known about an athlete for one request.
// Any part may be missing; absence means unknown.
type Snapshot struct {
	Profile  *Profile            `json:"profile,omitempty"`
	Workouts []WorkoutRecord     `json:"workouts,omitempty"`
	CheckIns []CheckIn           `json:"checkIns,omitempty"`
	Plan     *TrainingPlan       `json:"plan,omitempty"`
	Metrics  *PerformanceMetrics `json:"metrics,omitempty"`
}

// IsEmpty reports whether the snapshot carries no data at all
func (s Snapshot) IsEmpty() bool {
	return s.Profile == nil && len(s.Workouts) == 0 && len(s.CheckIns) == 0 &&
		s.Plan == nil && s.Metrics == nil
}

// ClampScale pins v into [lo, hi]. Producers of 1-10 and 1-5 scales call it
// before handing records to the pipeline.
func ClampScale(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize clamps every bounded scale of the check-in in place
func (c *CheckIn) Normalize() {
	c.SleepQuality = ClampScale(c.SleepQuality, 1, 10)
	c.Stress = ClampScale(c.Stress, 1, 10)
	c.Motivation = ClampScale(c.Motivation, 1, 10)
	c.Mood = ClampScale(c.Mood, 1, 10)
	if c.Readiness != nil {
		r := ClampScale(*c.Readiness, 1, 10)
		c.Readiness = &r
	}
}

// Normalize clamps the perceived exertion of the workout in place
func (w *WorkoutRecord) Normalize() {
	if w.RPE != nil {
		r := ClampScale(*w.RPE, 1, 10)
		w.RPE = &r
	}
}
