package stores

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wavectl/wavectl/pkg/engine"
)

// Recorder feeds engine transitions into a Store. It implements
// engine.RunRecorder; the scheduler treats recorder errors as warnings,
// so a broken store degrades history without touching run semantics.
type Recorder struct {
	store    Store
	registry string
}

// NewRecorder creates a recorder writing to store under the given
// registry name.
func NewRecorder(store Store, registry string) *Recorder {
	return &Recorder{store: store, registry: registry}
}

// RunStarted implements engine.RunRecorder.
func (r *Recorder) RunStarted(ctx context.Context, run *engine.DeploymentRun) error {
	record := &RunRecord{
		ID:        run.ID,
		Registry:  r.registry,
		Status:    string(run.OverallStatus),
		StartedAt: run.StartedAt,
	}
	if err := r.store.CreateRun(ctx, record); err != nil {
		return err
	}
	return r.store.AppendEvent(ctx, &EventRecord{
		RunID:     run.ID,
		Message:   "run started",
		Timestamp: run.StartedAt,
	})
}

// ComponentTransition implements engine.RunRecorder.
func (r *Recorder) ComponentTransition(ctx context.Context, runID, component string, status engine.ComponentStatus, order int) error {
	record := &ComponentRecord{
		RunID:       runID,
		Name:        component,
		State:       string(status.State),
		Attempts:    status.Attempts,
		Detail:      status.Detail,
		DeployOrder: order,
	}
	if err := r.store.UpsertComponent(ctx, record); err != nil {
		return err
	}

	message := fmt.Sprintf("component entered %s", status.State)
	if status.Detail != "" {
		message = fmt.Sprintf("%s: %s", message, status.Detail)
	}
	return r.store.AppendEvent(ctx, &EventRecord{
		RunID:     runID,
		Component: &component,
		Message:   message,
		Timestamp: status.UpdatedAt,
	})
}

// RunCompleted implements engine.RunRecorder.
func (r *Recorder) RunCompleted(ctx context.Context, run *engine.DeploymentRun) error {
	var warnings *string
	if len(run.Warnings) > 0 {
		joined := strings.Join(run.Warnings, ",")
		warnings = &joined
	}

	var errMsg *string
	if run.Rollback != nil {
		if err := run.Rollback.IncompleteError(); err != nil {
			msg := err.Error()
			errMsg = &msg
		}
	}

	if err := r.store.UpdateRunStatus(ctx, run.ID, string(run.OverallStatus), errMsg, warnings); err != nil {
		return err
	}
	completedAt := time.Now()
	if run.CompletedAt != nil {
		completedAt = *run.CompletedAt
	}
	return r.store.AppendEvent(ctx, &EventRecord{
		RunID:     run.ID,
		Message:   fmt.Sprintf("run finished with status %s", run.OverallStatus),
		Timestamp: completedAt,
	})
}
