package coachctx

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/briangreenhill/coachiq/internal/athlete"
	"github.com/briangreenhill/coachiq/internal/prompt"
	"github.com/briangreenhill/coachiq/internal/training"
)

const (
	sectionSeparator = "\n\n"
	summaryDelimiter = " | "
)

// Assembler renders snapshots into coaching context. It holds only
// read-only configuration and is safe for concurrent use.
type Assembler struct {
	templates *prompt.Set
	window    Window
	now       func() time.Time
}

// Option configures an Assembler
type Option func(*Assembler)

// WithWindow sets the window OptimizeForTokenLimit starts from
func WithWindow(w Window) Option {
	return func(a *Assembler) { a.window = w }
}

// WithTemplates replaces the built-in section templates
func WithTemplates(set *prompt.Set) Option {
	return func(a *Assembler) {
		if set != nil {
			a.templates = set
		}
	}
}

// WithClock overrides how "today" is determined
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// New builds an Assembler. The starting window is validated here, so an
// invalid day count is a configuration error rather than a build error.
func New(opts ...Option) (*Assembler, error) {
	a := &Assembler{
		templates: prompt.Default(),
		window:    DefaultWindow(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	if err := a.window.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Window returns the starting window of the assembler
func (a *Assembler) Window() Window {
	return a.window
}

// BuildContext renders the enabled, non-empty sections in the fixed order
// profile, workouts, check-ins, plan, metrics. An empty snapshot yields "".
func (a *Assembler) BuildContext(s athlete.Snapshot, w Window) (string, error) {
	if err := w.Validate(); err != nil {
		return "", err
	}
	return a.render(s, w), nil
}

func (a *Assembler) render(s athlete.Snapshot, w Window) string {
	var sections []string
	if w.IncludeProfile && s.Profile != nil {
		sections = append(sections, a.profileSection(s.Profile))
	}
	if w.IncludeWorkouts {
		if recent := a.recentWorkouts(s.Workouts, w.Days); len(recent) > 0 {
			sections = append(sections, a.workoutsSection(recent, w.Days))
		}
	}
	if w.IncludeCheckIns {
		if recent := a.recentCheckIns(s.CheckIns, w.Days); len(recent) > 0 {
			sections = append(sections, a.checkInsSection(recent, w.Days))
		}
	}
	if w.IncludePlan && s.Plan != nil {
		sections = append(sections, a.planSection(s.Plan))
	}
	if w.IncludeMetrics && s.Metrics != nil {
		sections = append(sections, a.metricsSection(s.Metrics))
	}
	return strings.Join(sections, sectionSeparator)
}

// BuildSummary renders a one-line digest of the snapshot. Clauses without
// data are left out.
func (a *Assembler) BuildSummary(s athlete.Snapshot, w Window) (string, error) {
	if err := w.Validate(); err != nil {
		return "", err
	}

	var clauses []string
	if w.IncludeProfile && s.Profile != nil {
		clauses = append(clauses, profileClause(s.Profile))
	}
	if w.IncludeWorkouts {
		if recent := a.recentWorkouts(s.Workouts, w.Days); len(recent) > 0 {
			clauses = append(clauses, workoutsClause(recent, w.Days))
		}
	}
	if w.IncludeCheckIns {
		if recent := a.recentCheckIns(s.CheckIns, w.Days); len(recent) > 0 {
			clauses = append(clauses, checkInsClause(recent))
		}
	}
	return strings.Join(clauses, summaryDelimiter), nil
}

func (a *Assembler) cutoff(days int) time.Time {
	return WindowStart(a.now(), days)
}

// WindowStart is the first calendar day of a window of days ending at now.
// Records dated on that day belong to the window whatever the clock reads.
func WindowStart(now time.Time, days int) time.Time {
	return calendarDate(now).AddDate(0, 0, -days)
}

// recentWorkouts keeps workouts dated on or after today minus days, newest first
func (a *Assembler) recentWorkouts(all []athlete.WorkoutRecord, days int) []athlete.WorkoutRecord {
	cutoff := a.cutoff(days)
	var out []athlete.WorkoutRecord
	for _, wr := range all {
		if !calendarDate(wr.Date).Before(cutoff) {
			out = append(out, wr)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// recentCheckIns keeps check-ins dated on or after today minus days, newest first
func (a *Assembler) recentCheckIns(all []athlete.CheckIn, days int) []athlete.CheckIn {
	cutoff := a.cutoff(days)
	var out []athlete.CheckIn
	for _, c := range all {
		if !calendarDate(c.Date).Before(cutoff) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (a *Assembler) profileSection(p *athlete.Profile) string {
	return a.templates.Profile.Render(map[string]string{
		"name":       p.Name,
		"age":        positiveInt(p.Age),
		"sport":      p.Sport,
		"experience": p.Experience,
		"goals":      strings.Join(p.Goals, ", "),
		"history":    p.TrainingHistory,
	})
}

func (a *Assembler) workoutsSection(workouts []athlete.WorkoutRecord, days int) string {
	var (
		lines     []string
		completed int
		minutes   int
		tss       float64
	)
	for _, wr := range workouts {
		if wr.Completed {
			completed++
		}
		minutes += max(wr.Duration, 0)
		if wr.TSS != nil {
			tss += *wr.TSS
		}
		lines = append(lines, a.templates.WorkoutLine.Render(map[string]string{
			"date":      wr.Date.Format(time.DateOnly),
			"sport":     wr.Sport,
			"type":      wr.Type,
			"duration":  fmt.Sprintf("%d", wr.Duration),
			"intensity": wr.Intensity,
			"tss":       optionalFloat(wr.TSS, "%.0f"),
			"rpe":       optionalScale(wr.RPE),
			"status":    completionStatus(wr.Completed),
		}))
	}

	return a.templates.Workouts.Render(map[string]string{
		"days":       fmt.Sprintf("%d", days),
		"count":      fmt.Sprintf("%d", len(workouts)),
		"completed":  fmt.Sprintf("%d", completed),
		"total_time": SecToHHMM(int64(minutes) * 60),
		"total_tss":  fmt.Sprintf("%.0f", tss),
		"lines":      strings.Join(lines, "\n"),
	})
}

func (a *Assembler) checkInsSection(checkIns []athlete.CheckIn, days int) string {
	lines := make([]string, 0, len(checkIns))
	for _, c := range checkIns {
		lines = append(lines, a.templates.CheckInLine.Render(map[string]string{
			"date":          c.Date.Format(time.DateOnly),
			"hrv":           optionalFloat(c.HRV, "%.0f ms"),
			"sleep_hours":   positiveFloat(c.SleepHours, "%.1f"),
			"sleep_quality": positiveInt(c.SleepQuality),
			"stress":        positiveInt(c.Stress),
			"motivation":    positiveInt(c.Motivation),
			"mood":          positiveInt(c.Mood),
			"readiness":     optionalScale(c.Readiness),
			"notes":         c.Notes,
		}))
	}
	return a.templates.CheckIns.Render(map[string]string{
		"days":  fmt.Sprintf("%d", days),
		"lines": strings.Join(lines, "\n"),
	})
}

func (a *Assembler) planSection(p *athlete.TrainingPlan) string {
	race := ""
	if p.NextRace != nil {
		race = p.NextRace.Name
		if p.NextRace.Distance != "" {
			race += " (" + p.NextRace.Distance + ")"
		}
		if !p.NextRace.Date.IsZero() {
			race += " on " + p.NextRace.Date.Format(time.DateOnly)
		}
	}
	return a.templates.Plan.Render(map[string]string{
		"name":             p.Name,
		"phase":            p.Phase,
		"weekly_structure": p.WeeklyStructure,
		"key_sessions":     strings.Join(p.KeySessions, ", "),
		"next_race":        race,
	})
}

func (a *Assembler) metricsSection(m *athlete.PerformanceMetrics) string {
	acwr := ""
	if lr, ok := training.AssessLoad(m.ATL, m.CTL); ok {
		acwr = fmt.Sprintf("%.2f (%s)", lr.Ratio, lr.Risk)
	}
	return a.templates.Metrics.Render(map[string]string{
		"ctl":            fmt.Sprintf("%.1f", m.CTL),
		"atl":            fmt.Sprintf("%.1f", m.ATL),
		"tsb":            fmt.Sprintf("%.1f", m.TSB),
		"form":           training.FormDescription(m.TSB),
		"acwr":           acwr,
		"personal_bests": strings.Join(m.PersonalBests, "; "),
	})
}

func profileClause(p *athlete.Profile) string {
	name := p.Name
	if name == "" {
		name = prompt.NotSpecified
	}
	if p.Sport == "" {
		return "Athlete: " + name
	}
	return fmt.Sprintf("Athlete: %s (%s)", name, p.Sport)
}

func workoutsClause(workouts []athlete.WorkoutRecord, days int) string {
	minutes := 0
	tss, withTSS := 0.0, 0
	for _, wr := range workouts {
		minutes += max(wr.Duration, 0)
		if wr.TSS != nil {
			tss += *wr.TSS
			withTSS++
		}
	}
	clause := fmt.Sprintf("Workouts: %d in %d days, %.1f h", len(workouts), days, float64(minutes)/60)
	if withTSS > 0 {
		clause += fmt.Sprintf(", avg TSS %.0f", tss/float64(withTSS))
	}
	return clause
}

func checkInsClause(checkIns []athlete.CheckIn) string {
	readiness, readinessN := 0.0, 0
	hrv, hrvN := 0.0, 0
	for _, c := range checkIns {
		if c.Readiness != nil {
			readiness += float64(*c.Readiness)
			readinessN++
		}
		if c.HRV != nil {
			hrv += *c.HRV
			hrvN++
		}
	}
	parts := []string{fmt.Sprintf("Check-ins: %d", len(checkIns))}
	if readinessN > 0 {
		parts = append(parts, fmt.Sprintf("avg readiness %.1f/10", readiness/float64(readinessN)))
	}
	if hrvN > 0 {
		parts = append(parts, fmt.Sprintf("avg HRV %.0f ms", hrv/float64(hrvN)))
	}
	return strings.Join(parts, ", ")
}

// calendarDate drops the clock and zone, keeping the date as written
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
