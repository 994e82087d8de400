package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeWelcomeEmail greets a newly created account by mail.
	TaskTypeWelcomeEmail = "mail:welcome"
	// TaskTypeActivityPrune removes activity log rows past retention.
	TaskTypeActivityPrune = "activity:prune"
)

// DefaultActivityRetentionDays applies when a prune payload leaves it unset.
const DefaultActivityRetentionDays = 90

// WelcomeEmailPayload describes the account a welcome mail is sent for.
type WelcomeEmailPayload struct {
	UserID   int64  `json:"user_id"`
	To       string `json:"to"`
	FullName string `json:"full_name"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// NewWelcomeEmailTask constructs an Asynq task.
func NewWelcomeEmailTask(payload WelcomeEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeWelcomeEmail, data, asynq.MaxRetry(5)), nil
}

// ActivityPrunePayload configures the retention window.
type ActivityPrunePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewActivityPruneTask constructs an Asynq task.
func NewActivityPruneTask(retentionDays int) (*asynq.Task, error) {
	data, err := json.Marshal(ActivityPrunePayload{RetentionDays: retentionDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeActivityPrune, data), nil
}
