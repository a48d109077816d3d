package eventbus

import "time"

const (
	// TypeSyncCompleted carries SyncCompleted. Event-based workflows listen
	// for it.
	TypeSyncCompleted = "sync.completed"
	// TypeJobDue carries JobDue for notebook and data-sync jobs whose
	// schedule fired.
	TypeJobDue = "job.due"
	// TypeRunFinished carries the automation.Run journal entry.
	TypeRunFinished = "automation.run"

	TypeTaskStarted  = "task.started"
	TypeTaskFinished = "task.finished"
	TypeTaskSkipped  = "task.skipped"
	TypeTaskDropped  = "task.dropped"
)

type SyncCompleted struct {
	SourceType  string    `json:"sourceType"`
	SourceID    string    `json:"sourceId"`
	CompletedAt time.Time `json:"completedAt"`
	RecordIDs   []string  `json:"recordIds,omitempty"`
}

type JobDue struct {
	Family       string    `json:"family"`
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ScheduledFor time.Time `json:"scheduledFor"`
}
