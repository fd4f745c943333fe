// Package tasks tracks asynchronous media jobs: a TTL-bounded record store and a
// runner that executes jobs detached from the HTTP request that created them.
package tasks

import (
	"errors"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var (
	// ErrTaskNotFound is returned for unknown or evicted task ids.
	ErrTaskNotFound = errors.New("task not found")

	// ErrTerminalState is returned when a finished task is asked to transition again.
	ErrTerminalState = errors.New("task already in terminal state")

	// ErrTaskExists is returned by Create for a duplicate id.
	ErrTaskExists = errors.New("task already exists")
)

// Record is a snapshot of one task. Files and Duration are set only once the
// task is completed; Error only once it failed or was cancelled.
type Record struct {
	ID        string        `json:"task_id"`
	Status    Status        `json:"status"`
	Files     []string      `json:"files,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Deadline  time.Time     `json:"deadline,omitempty"`
}

func (r Record) clone() Record {
	if r.Files != nil {
		r.Files = append([]string(nil), r.Files...)
	}
	return r
}
