// Package store loads athlete snapshots from Postgres and records analyses.
package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/briangreenhill/coachiq/internal/athlete"
	"github.com/briangreenhill/coachiq/internal/coach"
	"github.com/briangreenhill/coachiq/internal/training"
)

//go:embed schema.sql
var schema string

// trendDays is how much history feeds the CTL/ATL fallback
const trendDays = 126

var ErrNotFound = errors.New("athlete not found")

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db  DBTX
	now func() time.Time
}

func New(db DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

// Migrate creates the tables when they do not exist yet
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type profileRow struct {
	ID              uuid.UUID `db:"id"`
	Name            string    `db:"name"`
	Age             *int      `db:"age"`
	Sport           *string   `db:"sport"`
	Experience      *string   `db:"experience"`
	Goals           []string  `db:"goals"`
	TrainingHistory *string   `db:"training_history"`
}

type workoutRow struct {
	Date        time.Time `db:"date"`
	Sport       string    `db:"sport"`
	Type        string    `db:"type"`
	DurationMin int       `db:"duration_min"`
	Intensity   *string   `db:"intensity"`
	TSS         *float64  `db:"tss"`
	RPE         *int      `db:"rpe"`
	Completed   bool      `db:"completed"`
}

type checkInRow struct {
	Date         time.Time `db:"date"`
	HRV          *float64  `db:"hrv"`
	SleepHours   float64   `db:"sleep_hours"`
	SleepQuality int       `db:"sleep_quality"`
	Stress       int       `db:"stress"`
	Motivation   int       `db:"motivation"`
	Mood         int       `db:"mood"`
	Readiness    *int      `db:"readiness"`
	Notes        *string   `db:"notes"`
}

type planRow struct {
	Name            string     `db:"name"`
	Phase           *string    `db:"phase"`
	WeeklyStructure *string    `db:"weekly_structure"`
	KeySessions     []string   `db:"key_sessions"`
	RaceName        *string    `db:"race_name"`
	RaceDate        *time.Time `db:"race_date"`
	RaceDistance    *string    `db:"race_distance"`
}

type metricsRow struct {
	CTL           float64  `db:"ctl"`
	ATL           float64  `db:"atl"`
	TSB           float64  `db:"tsb"`
	PersonalBests []string `db:"personal_bests"`
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Load reads everything known about an athlete. Workouts and check-ins are
// limited to those dated on or after the calendar day of since. When no
// metrics have been stored, CTL/ATL/TSB are derived from the workout history.
func (s *Store) Load(ctx context.Context, athleteID uuid.UUID, since time.Time) (athlete.Snapshot, error) {
	var snap athlete.Snapshot
	// date columns compare as midnight
	y, m, d := since.Date()
	since = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	rows, err := s.db.Query(ctx,
		`SELECT id, name, age, sport, experience, goals, training_history
		 FROM athletes WHERE id = $1`, athleteID)
	if err != nil {
		return snap, fmt.Errorf("query athlete: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[profileRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("scan athlete: %w", err)
	}
	snap.Profile = &athlete.Profile{
		ID:              p.ID.String(),
		Name:            p.Name,
		Age:             deref(p.Age),
		Sport:           deref(p.Sport),
		Experience:      deref(p.Experience),
		Goals:           p.Goals,
		TrainingHistory: deref(p.TrainingHistory),
	}

	if snap.Workouts, err = s.workouts(ctx, athleteID, since); err != nil {
		return snap, err
	}
	if snap.CheckIns, err = s.checkIns(ctx, athleteID, since); err != nil {
		return snap, err
	}
	if snap.Plan, err = s.activePlan(ctx, athleteID); err != nil {
		return snap, err
	}
	if snap.Metrics, err = s.metrics(ctx, athleteID); err != nil {
		return snap, err
	}
	return snap, nil
}

func (s *Store) workouts(ctx context.Context, athleteID uuid.UUID, since time.Time) ([]athlete.WorkoutRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT date, sport, type, duration_min, intensity, tss, rpe, completed
		 FROM workouts WHERE athlete_id = $1 AND date >= $2
		 ORDER BY date DESC`, athleteID, since)
	if err != nil {
		return nil, fmt.Errorf("query workouts: %w", err)
	}
	wrs, err := pgx.CollectRows(rows, pgx.RowToStructByName[workoutRow])
	if err != nil {
		return nil, fmt.Errorf("scan workouts: %w", err)
	}
	out := make([]athlete.WorkoutRecord, 0, len(wrs))
	for _, r := range wrs {
		wr := athlete.WorkoutRecord{
			Date:      r.Date,
			Sport:     r.Sport,
			Type:      r.Type,
			Duration:  r.DurationMin,
			Intensity: deref(r.Intensity),
			TSS:       r.TSS,
			RPE:       r.RPE,
			Completed: r.Completed,
		}
		wr.Normalize()
		out = append(out, wr)
	}
	return out, nil
}

func (s *Store) checkIns(ctx context.Context, athleteID uuid.UUID, since time.Time) ([]athlete.CheckIn, error) {
	rows, err := s.db.Query(ctx,
		`SELECT date, hrv, sleep_hours, sleep_quality, stress, motivation, mood, readiness, notes
		 FROM check_ins WHERE athlete_id = $1 AND date >= $2
		 ORDER BY date DESC`, athleteID, since)
	if err != nil {
		return nil, fmt.Errorf("query check-ins: %w", err)
	}
	crs, err := pgx.CollectRows(rows, pgx.RowToStructByName[checkInRow])
	if err != nil {
		return nil, fmt.Errorf("scan check-ins: %w", err)
	}
	out := make([]athlete.CheckIn, 0, len(crs))
	for _, r := range crs {
		c := athlete.CheckIn{
			Date:         r.Date,
			HRV:          r.HRV,
			SleepHours:   r.SleepHours,
			SleepQuality: r.SleepQuality,
			Stress:       r.Stress,
			Motivation:   r.Motivation,
			Mood:         r.Mood,
			Readiness:    r.Readiness,
			Notes:        deref(r.Notes),
		}
		c.Normalize()
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) activePlan(ctx context.Context, athleteID uuid.UUID) (*athlete.TrainingPlan, error) {
	rows, err := s.db.Query(ctx,
		`SELECT name, phase, weekly_structure, key_sessions, race_name, race_date, race_distance
		 FROM training_plans WHERE athlete_id = $1 AND active
		 ORDER BY created_at DESC LIMIT 1`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[planRow])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan plan: %w", err)
	}
	return planFromRow(r), nil
}

func planFromRow(r planRow) *athlete.TrainingPlan {
	plan := &athlete.TrainingPlan{
		Name:            r.Name,
		Phase:           deref(r.Phase),
		WeeklyStructure: deref(r.WeeklyStructure),
		KeySessions:     r.KeySessions,
	}
	if r.RaceName != nil && *r.RaceName != "" {
		plan.NextRace = &athlete.Race{
			Name:     *r.RaceName,
			Date:     deref(r.RaceDate),
			Distance: deref(r.RaceDistance),
		}
	}
	return plan
}

func (s *Store) metrics(ctx context.Context, athleteID uuid.UUID) (*athlete.PerformanceMetrics, error) {
	rows, err := s.db.Query(ctx,
		`SELECT ctl, atl, tsb, personal_bests
		 FROM performance_metrics WHERE athlete_id = $1
		 ORDER BY computed_at DESC LIMIT 1`, athleteID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[metricsRow])
	if err == nil {
		return &athlete.PerformanceMetrics{CTL: r.CTL, ATL: r.ATL, TSB: r.TSB, PersonalBests: r.PersonalBests}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("scan metrics: %w", err)
	}

	now := s.now()
	history, err := s.workouts(ctx, athleteID, now.AddDate(0, 0, -trendDays))
	if err != nil {
		return nil, err
	}
	return trendMetrics(history, now), nil
}

// trendMetrics derives metrics from workouts; nil when nothing carries load
func trendMetrics(workouts []athlete.WorkoutRecord, through time.Time) *athlete.PerformanceMetrics {
	daily := training.DailyLoads(workouts)
	if len(daily) == 0 {
		return nil
	}
	m := training.FitnessTrend(daily, through)
	return &m
}

// SaveAnalysis stores an analysis result and returns its id
func (s *Store) SaveAnalysis(ctx context.Context, athleteID uuid.UUID, analysisType string, res coach.AnalysisResult) (uuid.UUID, error) {
	body, err := json.Marshal(res)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode analysis: %w", err)
	}
	id := uuid.New()
	if _, err := s.db.Exec(ctx,
		`INSERT INTO analyses (id, athlete_id, analysis_type, result, degraded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		id, athleteID, analysisType, body, res.Degraded, s.now()); err != nil {
		return uuid.Nil, fmt.Errorf("insert analysis: %w", err)
	}
	return id, nil
}
