package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/wavectl/wavectl/pkg/engine"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "wavectl.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_RunRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &RunRecord{
		ID:        "run-1",
		Registry:  "platform",
		Status:    "running",
		StartedAt: time.Now().Add(-time.Minute),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	warnings := "logging"
	if err := store.UpdateRunStatus(ctx, "run-1", "succeeded", nil, &warnings); err != nil {
		t.Fatalf("failed to update run: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != "succeeded" {
		t.Errorf("expected succeeded, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
	if got.Warnings == nil || *got.Warnings != "logging" {
		t.Errorf("expected warnings to survive, got %v", got.Warnings)
	}
}

func TestSQLiteStore_GetRunNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetRun(context.Background(), "ghost"); err == nil {
		t.Error("expected error for missing run")
	}
	if err := store.UpdateRunStatus(context.Background(), "ghost", "failed", nil, nil); err == nil {
		t.Error("expected error updating missing run")
	}
}

func TestSQLiteStore_LatestRun(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"run-old", "run-new"} {
		run := &RunRecord{
			ID:        id,
			Registry:  "platform",
			Status:    "succeeded",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	latest, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("failed to get latest run: %v", err)
	}
	if latest.ID != "run-new" {
		t.Errorf("expected run-new, got %s", latest.ID)
	}
}

func TestSQLiteStore_ComponentUpsertKeepsDeployOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &RunRecord{ID: "run-1", Registry: "platform", Status: "running", StartedAt: time.Now()}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	// Transition into deploying carries the order; the terminal
	// transition does not repeat it and must not lose it.
	first := &ComponentRecord{RunID: "run-1", Name: "core", State: "deploying", DeployOrder: 0}
	if err := store.UpsertComponent(ctx, first); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}
	second := &ComponentRecord{RunID: "run-1", Name: "core", State: "healthy", Attempts: 3, DeployOrder: -1}
	if err := store.UpsertComponent(ctx, second); err != nil {
		t.Fatalf("failed to upsert: %v", err)
	}

	records, err := store.ListComponentsByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list components: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].State != "healthy" || records[0].Attempts != 3 {
		t.Errorf("unexpected record %+v", records[0])
	}
	if records[0].DeployOrder != 0 {
		t.Errorf("expected deploy order preserved, got %d", records[0].DeployOrder)
	}
}

func TestSQLiteStore_ComponentsOrderedByDeployOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &RunRecord{ID: "run-1", Registry: "platform", Status: "running", StartedAt: time.Now()}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	records := []*ComponentRecord{
		{RunID: "run-1", Name: "app", State: "pending", DeployOrder: -1},
		{RunID: "run-1", Name: "shared", State: "healthy", DeployOrder: 1},
		{RunID: "run-1", Name: "core", State: "healthy", DeployOrder: 0},
	}
	for _, record := range records {
		if err := store.UpsertComponent(ctx, record); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
	}

	listed, err := store.ListComponentsByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list components: %v", err)
	}
	want := []string{"core", "shared", "app"}
	for i, name := range want {
		if listed[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, listed[i].Name)
		}
	}
}

func TestSQLiteStore_ActiveRunGuard(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.AcquireActiveRun(ctx, "run-1"); err != nil {
		t.Fatalf("first acquire must succeed, got %v", err)
	}

	err := store.AcquireActiveRun(ctx, "run-2")
	if err == nil {
		t.Fatal("expected second acquire to be rejected")
	}
	if !engine.HasCode(err, engine.ErrCodeRunActive) {
		t.Errorf("expected %s, got %v", engine.ErrCodeRunActive, err)
	}

	// Releasing with the wrong holder changes nothing.
	if err := store.ReleaseActiveRun(ctx, "run-2"); err != nil {
		t.Fatalf("release must not fail: %v", err)
	}
	if err := store.AcquireActiveRun(ctx, "run-3"); err == nil {
		t.Fatal("slot must still be held by run-1")
	}

	if err := store.ReleaseActiveRun(ctx, "run-1"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if err := store.AcquireActiveRun(ctx, "run-3"); err != nil {
		t.Errorf("expected acquire after release to succeed, got %v", err)
	}
}

func TestRecorder_RecordsRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	recorder := NewRecorder(store, "platform")

	run := &engine.DeploymentRun{
		ID:            "run-1",
		StartedAt:     time.Now(),
		OverallStatus: engine.RunStatusRunning,
		Tracker:       engine.NewStatusTracker([]string{"core"}),
	}
	if err := recorder.RunStarted(ctx, run); err != nil {
		t.Fatalf("RunStarted failed: %v", err)
	}

	status := engine.ComponentStatus{
		State:     engine.StateHealthy,
		Attempts:  2,
		UpdatedAt: time.Now(),
	}
	if err := recorder.ComponentTransition(ctx, "run-1", "core", status, 0); err != nil {
		t.Fatalf("ComponentTransition failed: %v", err)
	}

	run.OverallStatus = engine.RunStatusSucceeded
	now := time.Now()
	run.CompletedAt = &now
	run.Warnings = []string{"logging"}
	if err := recorder.RunCompleted(ctx, run); err != nil {
		t.Fatalf("RunCompleted failed: %v", err)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != string(engine.RunStatusSucceeded) {
		t.Errorf("expected succeeded, got %s", got.Status)
	}

	components, err := store.ListComponentsByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list components: %v", err)
	}
	if len(components) != 1 || components[0].State != string(engine.StateHealthy) {
		t.Errorf("unexpected components %+v", components)
	}

	events, err := store.ListEventsByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("expected start, transition and finish events, got %d", len(events))
	}
}
