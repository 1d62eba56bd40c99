package store

import (
	"time"

	"github.com/kanataki-zwei/pipecraft/internal/dialect"
)

// WriteMode selects how a sync writes into its destination table.
type WriteMode string

// TruncateInsert is the only supported write mode: each run destructively
// replaces all destination rows.
const TruncateInsert WriteMode = "truncate_insert"

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed
}

// Connection is a stored descriptor of a reachable external database.
type Connection struct {
	ID            int64
	Name          string
	Dialect       dialect.Type
	Host          string
	Port          int
	Database      string
	Username      string
	Password      string
	IsSource      bool
	IsDestination bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Sync is a declarative mapping from one source table to one destination table.
type Sync struct {
	ID                 int64
	Name               string
	Description        string
	SourceConnectionID int64
	SourceTable        string
	DestConnectionID   int64
	DestSchema         string
	DestTable          string
	WriteMode          WriteMode
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Run is one execution attempt of a Sync.
type Run struct {
	ID           int64
	SyncID       int64
	Status       RunStatus
	StartedAt    time.Time
	EndedAt      *time.Time
	RowCount     *int64
	ErrorMessage string
}

// RunUpdate carries the fields applied when a run reaches a new state.
// Nil pointers leave the stored value untouched.
type RunUpdate struct {
	Status       RunStatus
	RowCount     *int64
	ErrorMessage *string
	EndedAt      *time.Time
}
