package stores

import (
	"context"
	"time"
)

// RunRecord is the persisted header of one deployment run.
type RunRecord struct {
	// ID is the run's unique identifier.
	ID string `json:"id"`

	// Registry is the name of the registry the run executed.
	Registry string `json:"registry"`

	// Status is the run-level status string.
	Status string `json:"status"`

	// StartedAt is when the run started.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error is the run's abort cause, when it had one.
	Error *string `json:"error,omitempty"`

	// Warnings lists optional components that failed, comma separated.
	Warnings *string `json:"warnings,omitempty"`

	// CreatedAt is when the record was inserted.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the record last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// ComponentRecord is the persisted state of one component within a run.
type ComponentRecord struct {
	// RunID is the owning run.
	RunID string `json:"run_id"`

	// Name is the component name.
	Name string `json:"name"`

	// State is the component lifecycle state string.
	State string `json:"state"`

	// Attempts is the number of health probes issued.
	Attempts int `json:"attempts"`

	// Detail retains the last diagnostic string.
	Detail string `json:"detail,omitempty"`

	// DeployOrder is the component's position in the deployed set, or -1
	// when it never left pending.
	DeployOrder int `json:"deploy_order"`

	// UpdatedAt is when the state last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// EventRecord is one timestamped line in a run's event log.
type EventRecord struct {
	// ID is the auto-generated event ID.
	ID int64 `json:"id"`

	// RunID is the owning run.
	RunID string `json:"run_id"`

	// Component is the component the event concerns, when any.
	Component *string `json:"component,omitempty"`

	// Message is the event text.
	Message string `json:"message"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Store is the persistence boundary for run history.
type Store interface {
	// Init opens the underlying database.
	Init(ctx context.Context) error

	// Migrate applies pending schema migrations.
	Migrate(ctx context.Context) error

	// Close releases the database.
	Close() error

	// CreateRun inserts a run header.
	CreateRun(ctx context.Context, run *RunRecord) error

	// UpdateRunStatus settles a run's status, abort cause and warnings.
	UpdateRunStatus(ctx context.Context, id, status string, errMsg, warnings *string) error

	// GetRun retrieves a run header by ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// LatestRun retrieves the most recently started run.
	LatestRun(ctx context.Context) (*RunRecord, error)

	// ListRuns lists run headers, newest first.
	ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error)

	// UpsertComponent inserts or updates a component's state within a run.
	UpsertComponent(ctx context.Context, record *ComponentRecord) error

	// ListComponentsByRun lists a run's components in deploy order.
	ListComponentsByRun(ctx context.Context, runID string) ([]*ComponentRecord, error)

	// AppendEvent appends to a run's event log.
	AppendEvent(ctx context.Context, event *EventRecord) error

	// ListEventsByRun lists a run's events oldest first.
	ListEventsByRun(ctx context.Context, runID string) ([]*EventRecord, error)

	// AcquireActiveRun claims the single active-run slot for this state
	// path. It fails while another run holds the slot.
	AcquireActiveRun(ctx context.Context, runID string) error

	// ReleaseActiveRun releases the active-run slot held by runID.
	ReleaseActiveRun(ctx context.Context, runID string) error

	// HealthCheck verifies the database connection is healthy.
	HealthCheck(ctx context.Context) error
}
