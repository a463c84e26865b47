package progress

import (
	"testing"
	"time"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
)

func TestBuildSnapshot_Sequential(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	exec := domain.SimulationExecution{
		ID:           "exec-1",
		SimulationID: "sim-1",
		PatternType:  domain.PatternSequential,
		Status:       domain.StatusRunning,
		StartedAt:    &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	children := []domain.GroupExecution{
		{ID: "ge-1", ExecutionID: "exec-1", GroupID: "step-1", Status: domain.StatusCompleted, CurrentRepeat: 3, TotalRepeats: 3, CreatedAt: now, UpdatedAt: now},
		{ID: "ge-2", ExecutionID: "exec-1", GroupID: "step-2", Status: domain.StatusRunning, CurrentRepeat: 2, TotalRepeats: 5, CreatedAt: now, UpdatedAt: now},
		{ID: "ge-3", ExecutionID: "exec-1", GroupID: "step-3", Status: domain.StatusPending, CurrentRepeat: 0, TotalRepeats: 2, CreatedAt: now, UpdatedAt: now},
	}

	snap := BuildSnapshot(exec, children)

	if snap.Sequential == nil {
		t.Fatalf("expected sequential progress")
	}
	if snap.Parallel != nil {
		t.Fatalf("unexpected parallel progress")
	}
	if snap.Sequential.CurrentStep != "step-2" {
		t.Fatalf("CurrentStep=%q, want step-2", snap.Sequential.CurrentStep)
	}
	if snap.Sequential.CompletedSteps != 1 {
		t.Fatalf("CompletedSteps=%d, want 1", snap.Sequential.CompletedSteps)
	}
	if snap.Sequential.TotalSteps != 3 {
		t.Fatalf("TotalSteps=%d, want 3", snap.Sequential.TotalSteps)
	}

	// (1.0 + 0.4 + 0.0) / 3
	want := (1.0 + 0.4) / 3.0
	if diff := snap.OverallProgress - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("OverallProgress=%v, want %v", snap.OverallProgress, want)
	}
	if len(snap.Details) != 3 {
		t.Fatalf("Details=%d, want 3", len(snap.Details))
	}
	if snap.Details[1].Progress != 0.4 {
		t.Fatalf("Details[1].Progress=%v, want 0.4", snap.Details[1].Progress)
	}
}

func TestBuildSnapshot_Parallel(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	exec := domain.SimulationExecution{
		ID:           "exec-2",
		SimulationID: "sim-2",
		PatternType:  domain.PatternParallel,
		Status:       domain.StatusRunning,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	children := []domain.GroupExecution{
		{ID: "ge-1", ExecutionID: "exec-2", GroupID: "alpha", Status: domain.StatusCompleted, CurrentRepeat: 1, TotalRepeats: 1, CreatedAt: now, UpdatedAt: now},
		{ID: "ge-2", ExecutionID: "exec-2", GroupID: "beta", Status: domain.StatusRunning, CurrentRepeat: 1, TotalRepeats: 4, CreatedAt: now, UpdatedAt: now},
	}

	snap := BuildSnapshot(exec, children)

	if snap.Parallel == nil {
		t.Fatalf("expected parallel progress")
	}
	if snap.Parallel.CompletedGroups != 1 || snap.Parallel.RunningGroups != 1 || snap.Parallel.TotalGroups != 2 {
		t.Fatalf("parallel counts=%+v, want 1/1/2", snap.Parallel)
	}
}

func TestBuildSnapshot_CompletedExecutionIsFull(t *testing.T) {
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	exec := domain.SimulationExecution{
		ID:           "exec-3",
		SimulationID: "sim-3",
		PatternType:  domain.PatternParallel,
		Status:       domain.StatusCompleted,
		CompletedAt:  &now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	children := []domain.GroupExecution{
		{ID: "ge-1", ExecutionID: "exec-3", GroupID: "alpha", Status: domain.StatusCompleted, CurrentRepeat: 2, TotalRepeats: 2, CreatedAt: now, UpdatedAt: now},
	}

	snap := BuildSnapshot(exec, children)
	if snap.OverallProgress != 1.0 {
		t.Fatalf("OverallProgress=%v, want 1.0", snap.OverallProgress)
	}
	if !snap.Terminal() {
		t.Fatalf("expected terminal snapshot")
	}
}

func TestKey(t *testing.T) {
	if got := Key(" exec-1 "); got != "execution:progress:exec-1" {
		t.Fatalf("Key()=%q", got)
	}
}
