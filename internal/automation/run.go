package automation

import (
	"errors"
	"time"
)

var (
	// ErrRecordNotFound is returned by record stores for unknown records.
	ErrRecordNotFound = errors.New("record not found")
	// ErrNotFound is returned by stores for unknown automations or states.
	ErrNotFound = errors.New("not found")
)

// Run is the journal entry of one resolution.
type Run struct {
	ID         string     `json:"id"`
	Ref        string     `json:"ref"`
	Signal     string     `json:"signal"`
	Status     string     `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Error      string     `json:"error,omitempty"`
	Changed    []string   `json:"changed,omitempty"`
	Records    int        `json:"records"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt time.Time  `json:"finishedAt"`
	NextRunAt  *time.Time `json:"nextRunAt,omitempty"`
}
