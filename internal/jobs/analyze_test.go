package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/coachiq/internal/athlete"
	"github.com/briangreenhill/coachiq/internal/coach"
	"github.com/briangreenhill/coachiq/internal/coachctx"
	"github.com/briangreenhill/coachiq/internal/metrics"
	"github.com/briangreenhill/coachiq/internal/store"
)

var now = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

type fakeStore struct {
	snap    athlete.Snapshot
	loadErr error
	saveErr error

	since time.Time
	saved []coach.AnalysisResult
	types []string
}

func (f *fakeStore) Load(_ context.Context, _ uuid.UUID, since time.Time) (athlete.Snapshot, error) {
	f.since = since
	return f.snap, f.loadErr
}

func (f *fakeStore) SaveAnalysis(_ context.Context, _ uuid.UUID, analysisType string, res coach.AnalysisResult) (uuid.UUID, error) {
	if f.saveErr != nil {
		return uuid.Nil, f.saveErr
	}
	f.saved = append(f.saved, res)
	f.types = append(f.types, analysisType)
	return uuid.New(), nil
}

// recordingProvider remembers the analysis request it was given
type recordingProvider struct {
	*coach.MockProvider
	req coach.AnalysisRequest
}

func (r *recordingProvider) AnalyzeData(ctx context.Context, req coach.AnalysisRequest) coach.AnalysisResult {
	r.req = req
	return r.MockProvider.AnalyzeData(ctx, req)
}

func newHandler(t *testing.T, st Store) (*AnalyzeHandler, *recordingProvider) {
	t.Helper()
	a, err := coachctx.New(coachctx.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	p := &recordingProvider{MockProvider: coach.NewMockProvider()}
	return &AnalyzeHandler{
		Store:     st,
		Assembler: a,
		Provider:  p,
		MaxTokens: 2000,
		Metrics:   metrics.NewTestManager(),
		Now:       func() time.Time { return now },
	}, p
}

func task(t *testing.T, p AnalyzeAthletePayload) *asynq.Task {
	t.Helper()
	tk, err := NewAnalyzeAthleteTask(p)
	require.NoError(t, err)
	return tk
}

func TestAnalyzeStoresResult(t *testing.T) {
	tss := 80.0
	st := &fakeStore{snap: athlete.Snapshot{
		Profile:  &athlete.Profile{Name: "Ana", Sport: "running"},
		Workouts: []athlete.WorkoutRecord{{Date: now, Sport: "running", Type: "tempo", Duration: 60, TSS: &tss, Completed: true}},
		Metrics:  &athlete.PerformanceMetrics{CTL: 50, ATL: 70, TSB: -20},
	}}
	h, p := newHandler(t, st)

	err := h.ProcessTask(context.Background(), task(t, AnalyzeAthletePayload{AthleteID: uuid.NewString(), Days: 7}))
	require.NoError(t, err)

	require.Len(t, st.saved, 1)
	assert.Equal(t, coach.MockConfidence, st.saved[0].Confidence)
	assert.Equal(t, []string{"weekly"}, st.types)
	assert.Equal(t, time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC), st.since)

	assert.Contains(t, p.req.Context, "ATHLETE PROFILE")
	assert.Contains(t, p.req.Context, "RECENT WORKOUTS (last 7 days)")

	var data map[string]any
	require.NoError(t, json.Unmarshal(p.req.Data, &data))
	assert.Contains(t, data["summary"], "Athlete: Ana (running)")
	assert.Equal(t, "caution", data["loadRatio"].(map[string]any)["risk"])

	assert.Equal(t, float64(1), testutil.ToFloat64(h.Metrics.CounterJobs.WithLabelValues(TaskAnalyzeAthlete, "done")))
}

func TestAnalyzeDropsUnrecoverableTasks(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		loadErr error
	}{
		{"not json", []byte("{"), nil},
		{"bad id", []byte(`{"athlete_id":"nope"}`), nil},
		{"unknown athlete", []byte(`{"athlete_id":"` + uuid.NewString() + `"}`), store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{loadErr: tt.loadErr}
			h, _ := newHandler(t, st)

			err := h.ProcessTask(context.Background(), asynq.NewTask(TaskAnalyzeAthlete, tt.payload))
			assert.True(t, errors.Is(err, asynq.SkipRetry), "err = %v", err)
			assert.Empty(t, st.saved)
		})
	}
}

func TestAnalyzeRetriesStorageErrors(t *testing.T) {
	for _, st := range []*fakeStore{
		{loadErr: errors.New("connection reset")},
		{saveErr: errors.New("connection reset")},
	} {
		h, _ := newHandler(t, st)
		err := h.ProcessTask(context.Background(), task(t, AnalyzeAthletePayload{AthleteID: uuid.NewString()}))
		require.Error(t, err)
		assert.False(t, errors.Is(err, asynq.SkipRetry))
	}
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(t *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, t)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueCoach}, nil
}

func TestEnqueueAnalysis(t *testing.T) {
	q := &fakeEnqueuer{}
	id := uuid.NewString()

	info, err := EnqueueAnalysis(q, AnalyzeAthletePayload{AthleteID: id, AnalysisType: "recovery"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", info.ID)

	require.Len(t, q.tasks, 1)
	assert.Equal(t, TaskAnalyzeAthlete, q.tasks[0].Type())
	var p AnalyzeAthletePayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &p))
	assert.Equal(t, id, p.AthleteID)
	assert.Equal(t, "recovery", p.AnalysisType)

	_, err = EnqueueAnalysis(&fakeEnqueuer{err: errors.New("redis down")}, AnalyzeAthletePayload{AthleteID: id})
	assert.Error(t, err)
}
