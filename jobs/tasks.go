package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep refreshes every stored session that is close to expiry.
	TaskSessionSweep = "session:sweep"
)

// SessionSweepPayload describes who asked for a sweep.
type SessionSweepPayload struct {
	Source string `json:"source"`
}

// NewSessionSweepTask constructs a sweep task. An empty source reads as "cron".
func NewSessionSweepTask(source string) (*asynq.Task, error) {
	if source == "" {
		source = "cron"
	}
	data, err := json.Marshal(SessionSweepPayload{Source: source})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionSweep, data), nil
}
