package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TaskAnalyzeAthlete = "coach:analyze_athlete"

	// QueueCoach is the queue coaching tasks run on
	QueueCoach = "coach"
)

type AnalyzeAthletePayload struct {
	AthleteID    string `json:"athlete_id"`
	AnalysisType string `json:"analysis_type,omitempty"`
	Days         int    `json:"days,omitempty"`
}

// Enqueuer is satisfied by *asynq.Client
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

func NewAnalyzeAthleteTask(p AnalyzeAthletePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return asynq.NewTask(TaskAnalyzeAthlete, payload), nil
}

// EnqueueAnalysis queues an athlete analysis with the default retry policy
func EnqueueAnalysis(q Enqueuer, p AnalyzeAthletePayload) (*asynq.TaskInfo, error) {
	task, err := NewAnalyzeAthleteTask(p)
	if err != nil {
		return nil, err
	}
	info, err := q.Enqueue(task,
		asynq.Queue(QueueCoach),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", TaskAnalyzeAthlete, err)
	}
	return info, nil
}
