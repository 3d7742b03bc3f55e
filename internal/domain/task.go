package domain

import "time"

// Task names understood by the worker.
const (
	TaskSendLicenseeEmail    = "send_licensee_email"
	TaskUpdateRelatedObjects = "update_related_objects"
	TaskNotifyAdmins         = "notify_admins"
)

// Task statuses. A task moves enqueued -> running -> succeeded|failed, and
// back to enqueued when a failed attempt is scheduled for retry.
const (
	TaskEnqueued  = "enqueued"
	TaskRunning   = "running"
	TaskSucceeded = "succeeded"
	TaskFailed    = "failed"
)

// Task argument keys.
const (
	ArgLicenseeID     = "licensee_id"
	ArgNotificationID = "notification_id"
)

// Task is a deferred unit of work persisted in the tasks table.
// RunAt is the due time while enqueued and the lease deadline while running
// (unix milliseconds, so it sorts inside the status-run_at index).
type Task struct {
	TaskID    string            `json:"id" dynamodbav:"task_id"`
	Name      string            `json:"name" dynamodbav:"name"`
	Args      map[string]string `json:"args" dynamodbav:"args"`
	Status    string            `json:"status" dynamodbav:"status"`
	Attempts  int               `json:"attempts" dynamodbav:"attempts"`
	RunAt     int64             `json:"run_at" dynamodbav:"run_at"`
	Result    string            `json:"result,omitempty" dynamodbav:"result,omitempty"`
	Error     string            `json:"error,omitempty" dynamodbav:"error,omitempty"`
	ExpiresAt int64             `json:"-" dynamodbav:"expires_at,omitempty"`
	CreatedAt time.Time         `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time         `json:"updated" dynamodbav:"updated_at"`
}
