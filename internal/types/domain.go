package types

import "time"

// NotificationKind identifies a category of scheduled notification a user
// can subscribe to. Each kind has a sender registered at worker startup.
type NotificationKind string

const (
	KindTaskReminder NotificationKind = "task_reminder"
	KindWeeklyDigest NotificationKind = "weekly_digest"
)

// KnownKinds lists every notification kind the service ships senders for.
// Subscriptions carrying a kind outside this list are skipped at dispatch
// time, not rejected at load time.
var KnownKinds = []NotificationKind{
	KindTaskReminder,
	KindWeeklyDigest,
}

// Subscription is a user's opt-in to one notification kind on a cron-style
// schedule. Rows are owned by the settings service; this service only reads
// them during scheduled runs.
type Subscription struct {
	ID       string           `json:"id" db:"id"`
	UserRef  string           `json:"user_ref" db:"user_ref"`
	Kind     NotificationKind `json:"kind" db:"kind"`
	Schedule string           `json:"schedule" db:"schedule"`
	Enabled  bool             `json:"enabled" db:"enabled"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Recipient is the contact record for a user reference. Reminder messages
// carry only the user_ref; the email worker resolves the address at send time
// so contact changes take effect without draining the queue.
type Recipient struct {
	UserRef     string `json:"user_ref" db:"user_ref"`
	Email       string `json:"email" db:"email"`
	DisplayName string `json:"display_name" db:"display_name"`
}

// JobStatus represents the lifecycle state of a scheduled job run.
type JobStatus string

const (
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
)

// JobRecord is one row of run history for a scheduled job, written at start
// and updated at finish for operator visibility.
type JobRecord struct {
	ID         string     `json:"id" db:"id"`
	JobType    string     `json:"job_type" db:"job_type"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Status     JobStatus  `json:"status" db:"status"`
	ItemsCount int        `json:"items_count" db:"items_count"`
	Error      string     `json:"error,omitempty" db:"error"`
}
