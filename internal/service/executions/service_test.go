package executions

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/progress"
	"github.com/agentsim-labs/agentsim-go/internal/repo"
	"github.com/agentsim-labs/agentsim-go/internal/runnerexec"
)

type fakeSimulationRepo struct {
	sims map[string]domain.Simulation
}

func (f *fakeSimulationRepo) CreateSimulation(ctx context.Context, sim domain.Simulation) error {
	f.sims[sim.ID] = sim
	return nil
}

func (f *fakeSimulationRepo) GetSimulation(ctx context.Context, id string) (domain.Simulation, error) {
	sim, ok := f.sims[id]
	if !ok {
		return domain.Simulation{}, repo.ErrNotFound
	}
	return sim, nil
}

func (f *fakeSimulationRepo) ListSimulations(ctx context.Context, filter repo.SimulationFilter) ([]domain.Simulation, error) {
	out := make([]domain.Simulation, 0, len(f.sims))
	for _, sim := range f.sims {
		out = append(out, sim)
	}
	return out, nil
}

type fakeExecutionRepo struct {
	mu             sync.Mutex
	execs          map[string]domain.SimulationExecution
	failNextUpdate bool
}

func (f *fakeExecutionRepo) CreateExecution(ctx context.Context, exec domain.SimulationExecution, groups []domain.GroupExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execs[exec.ID] = exec
	return nil
}

func (f *fakeExecutionRepo) GetExecution(ctx context.Context, id string) (domain.SimulationExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exec, ok := f.execs[id]
	if !ok {
		return domain.SimulationExecution{}, repo.ErrNotFound
	}
	return exec, nil
}

func (f *fakeExecutionRepo) ListExecutions(ctx context.Context, filter repo.ExecutionFilter) ([]domain.SimulationExecution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.SimulationExecution, 0)
	for _, exec := range f.execs {
		if exec.SimulationID == filter.SimulationID {
			out = append(out, exec)
		}
	}
	return out, nil
}

func (f *fakeExecutionRepo) UpdateExecution(ctx context.Context, exec domain.SimulationExecution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextUpdate {
		f.failNextUpdate = false
		return errors.New("connection reset")
	}
	if _, ok := f.execs[exec.ID]; !ok {
		return repo.ErrNotFound
	}
	f.execs[exec.ID] = exec
	return nil
}

func (f *fakeExecutionRepo) HasActiveExecution(ctx context.Context, simulationID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, exec := range f.execs {
		if exec.SimulationID == simulationID && !exec.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeExecutionRepo) DeleteExecution(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.execs[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.execs, id)
	return nil
}

type fakeGroupRepo struct {
	groups map[string]domain.GroupExecution
}

func (f *fakeGroupRepo) GetGroupExecution(ctx context.Context, id string) (domain.GroupExecution, error) {
	record, ok := f.groups[id]
	if !ok {
		return domain.GroupExecution{}, repo.ErrNotFound
	}
	return record, nil
}

func (f *fakeGroupRepo) ListByExecution(ctx context.Context, executionID string) ([]domain.GroupExecution, error) {
	out := make([]domain.GroupExecution, 0)
	for _, record := range f.groups {
		if record.ExecutionID == executionID {
			out = append(out, record)
		}
	}
	// deterministic order by unit key
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].GroupID < out[i].GroupID {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (f *fakeGroupRepo) UpdateGroupExecution(ctx context.Context, record domain.GroupExecution) error {
	if _, ok := f.groups[record.ID]; !ok {
		return repo.ErrNotFound
	}
	f.groups[record.ID] = record
	return nil
}

func (f *fakeGroupRepo) put(records []domain.GroupExecution) {
	for _, record := range records {
		f.groups[record.ID] = record
	}
}

type fakeTemplateRepo struct {
	templates map[string]domain.Template
}

func (f *fakeTemplateRepo) CreateTemplate(ctx context.Context, template domain.Template) error {
	f.templates[template.ID] = template
	return nil
}

func (f *fakeTemplateRepo) GetTemplate(ctx context.Context, id string) (domain.Template, error) {
	template, ok := f.templates[id]
	if !ok {
		return domain.Template{}, repo.ErrNotFound
	}
	return template, nil
}

func (f *fakeTemplateRepo) ListTemplates(ctx context.Context, limit int) ([]domain.Template, error) {
	out := make([]domain.Template, 0, len(f.templates))
	for _, template := range f.templates {
		out = append(out, template)
	}
	return out, nil
}

type fakeResolver struct {
	definitions map[string]domain.TemplateDefinition
}

func (f *fakeResolver) GetDefinition(ctx context.Context, template domain.Template) (domain.TemplateDefinition, error) {
	def, ok := f.definitions[template.ID]
	if !ok {
		return domain.TemplateDefinition{}, errors.New("definition missing")
	}
	return def, nil
}

type fakeCache struct {
	snapshots map[string]progress.Snapshot
	getCalls  int
	setCalls  int
	failGet   bool
	failSet   bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{snapshots: make(map[string]progress.Snapshot)}
}

func (f *fakeCache) Get(ctx context.Context, executionID string) (progress.Snapshot, bool, error) {
	f.getCalls++
	if f.failGet {
		return progress.Snapshot{}, false, errors.New("cache unavailable")
	}
	snap, ok := f.snapshots[executionID]
	return snap, ok, nil
}

func (f *fakeCache) Set(ctx context.Context, snapshot progress.Snapshot) error {
	f.setCalls++
	if f.failSet {
		return errors.New("cache unavailable")
	}
	f.snapshots[snapshot.ExecutionID] = snapshot
	return nil
}

func (f *fakeCache) Delete(ctx context.Context, executionID string) error {
	delete(f.snapshots, executionID)
	return nil
}

type harness struct {
	coordinator *Coordinator
	sims        *fakeSimulationRepo
	execs       *fakeExecutionRepo
	groups      *fakeGroupRepo
	cache       *fakeCache
	clock       *fakeClock
}

type fakeClock struct {
	at time.Time
}

func (c *fakeClock) now() time.Time { return c.at }

func (c *fakeClock) advance(d time.Duration) { c.at = c.at.Add(d) }

func newHarness(t *testing.T) *harness {
	t.Helper()
	sims := &fakeSimulationRepo{sims: make(map[string]domain.Simulation)}
	execs := &fakeExecutionRepo{execs: make(map[string]domain.SimulationExecution)}
	groups := &fakeGroupRepo{groups: make(map[string]domain.GroupExecution)}
	templates := &fakeTemplateRepo{templates: map[string]domain.Template{
		"tpl-1": {ID: "tpl-1", Name: "patrol", ObjectKey: "defs/patrol.yaml"},
	}}
	resolver := &fakeResolver{definitions: map[string]domain.TemplateDefinition{
		"tpl-1": {Name: "patrol", Type: "movement"},
	}}
	cache := newFakeCache()
	clock := &fakeClock{at: time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)}

	coordinator, err := New(Config{
		Logger:            slog.New(slog.DiscardHandler),
		Simulations:       sims,
		Executions:        execs,
		Groups:            groups,
		Templates:         templates,
		Resolver:          resolver,
		Cache:             cache,
		RunnerTokenSecret: "test-secret",
		Now:               clock.now,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{coordinator: coordinator, sims: sims, execs: execs, groups: groups, cache: cache, clock: clock}
}

func (h *harness) addSequentialSimulation(t *testing.T) domain.Simulation {
	t.Helper()
	now := h.clock.at
	sim := domain.Simulation{
		ID:          "sim-1",
		Name:        "warehouse-patrol",
		PatternType: domain.PatternSequential,
		Plan: domain.ExecutionPlan{
			PatternType: domain.PatternSequential,
			Steps: []domain.PlanStep{
				{StepOrder: 1, TemplateID: "tpl-1", AutonomousAgentCount: 2, ExecutionTime: 10, RepeatCount: 3},
				{StepOrder: 2, TemplateID: "tpl-1", AutonomousAgentCount: 1, ExecutionTime: 5, RepeatCount: 5},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	h.sims.sims[sim.ID] = sim
	return sim
}

// seedGroups persists the StartResult children so the fake group repo serves
// them back on ListByExecution.
func (h *harness) start(t *testing.T) StartResult {
	t.Helper()
	result, err := h.coordinator.Start(context.Background(), "sim-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.groups.put(result.Groups)
	return result
}

func TestStart_CreatesPendingExecution(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)

	result := h.start(t)

	if result.Execution.Status != domain.StatusPending {
		t.Fatalf("Status=%s, want PENDING", result.Execution.Status)
	}
	if len(result.Groups) != 2 {
		t.Fatalf("Groups=%d, want 2", len(result.Groups))
	}
	if result.Groups[0].GroupID != "step-1" || result.Groups[1].GroupID != "step-2" {
		t.Fatalf("unit keys=%q/%q, want step-1/step-2", result.Groups[0].GroupID, result.Groups[1].GroupID)
	}
	for _, child := range result.Groups {
		if child.Status != domain.StatusPending {
			t.Fatalf("child %s status=%s, want PENDING", child.GroupID, child.Status)
		}
	}
	if len(result.RunnerTokens) != 2 {
		t.Fatalf("RunnerTokens=%d, want 2", len(result.RunnerTokens))
	}
	if !strings.HasPrefix(result.RunnerTokens["step-1"], "agentsim_runner_v1.") {
		t.Fatalf("token=%q, want runner token prefix", result.RunnerTokens["step-1"])
	}
	if def, ok := result.Definitions["step-1"]; !ok || def.Name != "patrol" {
		t.Fatalf("Definitions[step-1]=%+v, want patrol", def)
	}
	if _, ok := h.cache.snapshots[result.Execution.ID]; !ok {
		t.Fatalf("expected snapshot in cache after start")
	}
}

func TestStart_UnknownSimulation(t *testing.T) {
	h := newHarness(t)

	_, err := h.coordinator.Start(context.Background(), "missing")
	var notFound *domain.SimulationNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err=%v, want SimulationNotFoundError", err)
	}
}

func TestStart_RejectsConcurrentExecution(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	h.start(t)

	_, err := h.coordinator.Start(context.Background(), "sim-1")
	var conflict *domain.StatusConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err=%v, want StatusConflictError", err)
	}
	if got := conflict.Error(); got != "current status RUNNING does not permit start" {
		t.Fatalf("message=%q", got)
	}
}

func TestReportGroupProgress_AdvanceAndDuplicate(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	result := h.start(t)
	ctx := context.Background()

	snap, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-2", GroupReport{CurrentRepeat: 2})
	if err != nil {
		t.Fatalf("ReportGroupProgress: %v", err)
	}
	if snap.Status != string(domain.StatusRunning) {
		t.Fatalf("snapshot status=%s, want RUNNING", snap.Status)
	}
	var detail progress.Detail
	for _, d := range snap.Details {
		if d.Key == "step-2" {
			detail = d
		}
	}
	if detail.CurrentRepeat != 2 || detail.Progress != 0.4 {
		t.Fatalf("detail=%+v, want repeat 2 progress 0.4", detail)
	}

	// same repeat again is a duplicate
	_, err = h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-2", GroupReport{CurrentRepeat: 2})
	if !errors.Is(err, ErrRepeatOutOfRange) {
		t.Fatalf("err=%v, want ErrRepeatOutOfRange", err)
	}
}

func TestReportGroupProgress_CompletionCascades(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	result := h.start(t)
	ctx := context.Background()

	if _, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-1", GroupReport{CurrentRepeat: 3}); err != nil {
		t.Fatalf("complete step-1: %v", err)
	}
	snap, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-2", GroupReport{CurrentRepeat: 5})
	if err != nil {
		t.Fatalf("complete step-2: %v", err)
	}
	if snap.Status != string(domain.StatusCompleted) {
		t.Fatalf("snapshot status=%s, want COMPLETED", snap.Status)
	}
	if snap.OverallProgress != 1.0 {
		t.Fatalf("OverallProgress=%v, want 1.0", snap.OverallProgress)
	}

	exec := h.execs.execs[result.Execution.ID]
	if exec.Status != domain.StatusCompleted || exec.CompletedAt == nil {
		t.Fatalf("exec=%+v, want COMPLETED with timestamp", exec)
	}
}

func TestReportGroupProgress_FirstFailureWins(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	result := h.start(t)
	ctx := context.Background()

	if _, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-1", GroupReport{Failed: true, Error: "nav stack crashed"}); err != nil {
		t.Fatalf("fail step-1: %v", err)
	}
	exec := h.execs.execs[result.Execution.ID]
	if exec.Status != domain.StatusFailed {
		t.Fatalf("Status=%s, want FAILED", exec.Status)
	}
	if exec.FailureReason != "step-1: nav stack crashed" {
		t.Fatalf("FailureReason=%q", exec.FailureReason)
	}

	// a later sibling failure is recorded but does not override the reason
	if _, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-2", GroupReport{Failed: true, Error: "timeout"}); err != nil {
		t.Fatalf("fail step-2: %v", err)
	}
	exec = h.execs.execs[result.Execution.ID]
	if exec.FailureReason != "step-1: nav stack crashed" {
		t.Fatalf("FailureReason=%q, want first failure preserved", exec.FailureReason)
	}

	// progress on a failed execution is rejected
	_, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-2", GroupReport{CurrentRepeat: 1})
	var conflict *domain.StatusConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err=%v, want StatusConflictError", err)
	}
	if conflict.Current != domain.StatusFailed {
		t.Fatalf("Current=%s, want FAILED", conflict.Current)
	}
}

func TestStop_Idempotent(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	result := h.start(t)
	ctx := context.Background()

	if _, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-1", GroupReport{CurrentRepeat: 1}); err != nil {
		t.Fatalf("advance: %v", err)
	}

	exec, err := h.coordinator.Stop(ctx, result.Execution.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if exec.Status != domain.StatusStopped || exec.StoppedAt == nil {
		t.Fatalf("exec=%+v, want STOPPED with timestamp", exec)
	}
	firstStoppedAt := *exec.StoppedAt

	children, err := h.groups.ListByExecution(ctx, result.Execution.ID)
	if err != nil {
		t.Fatalf("ListByExecution: %v", err)
	}
	for _, child := range children {
		if !child.Status.Terminal() {
			t.Fatalf("child %s status=%s, want terminal", child.GroupID, child.Status)
		}
	}

	h.clock.advance(time.Minute)
	again, err := h.coordinator.Stop(ctx, result.Execution.ID)
	if err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if again.Status != domain.StatusStopped {
		t.Fatalf("Status=%s, want STOPPED", again.Status)
	}
	if !again.StoppedAt.Equal(firstStoppedAt) {
		t.Fatalf("StoppedAt changed on repeated stop: %v vs %v", again.StoppedAt, firstStoppedAt)
	}
}

func TestStop_NeverOverridesFailure(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	result := h.start(t)
	ctx := context.Background()

	if _, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-1", GroupReport{Failed: true, Error: "boom"}); err != nil {
		t.Fatalf("fail: %v", err)
	}
	exec, err := h.coordinator.Stop(ctx, result.Execution.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if exec.Status != domain.StatusFailed {
		t.Fatalf("Status=%s, want FAILED preserved", exec.Status)
	}
}

func TestGetProgress_CacheFallbackAndRepopulate(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	result := h.start(t)
	ctx := context.Background()

	if _, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-2", GroupReport{CurrentRepeat: 2}); err != nil {
		t.Fatalf("advance: %v", err)
	}

	// cache miss forces a rebuild from the durable store
	delete(h.cache.snapshots, result.Execution.ID)
	snap, err := h.coordinator.GetProgress(ctx, result.Execution.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if snap.Status != string(domain.StatusRunning) {
		t.Fatalf("snapshot status=%s, want RUNNING", snap.Status)
	}
	found := false
	for _, d := range snap.Details {
		if d.Key == "step-2" && d.CurrentRepeat == 2 && d.TotalRepeats == 5 {
			found = true
		}
	}
	if !found {
		t.Fatalf("details=%+v, want step-2 at 2/5", snap.Details)
	}
	if _, ok := h.cache.snapshots[result.Execution.ID]; !ok {
		t.Fatalf("expected cache repopulated after fallback")
	}
}

func TestGetProgress_CacheErrorsAreSwallowed(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	result := h.start(t)
	ctx := context.Background()

	h.cache.failGet = true
	h.cache.failSet = true
	snap, err := h.coordinator.GetProgress(ctx, result.Execution.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if snap.ExecutionID != result.Execution.ID {
		t.Fatalf("ExecutionID=%q", snap.ExecutionID)
	}
}

func TestGetProgress_UnknownExecution(t *testing.T) {
	h := newHarness(t)

	_, err := h.coordinator.GetProgress(context.Background(), "missing")
	var notFound *domain.ExecutionNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("err=%v, want ExecutionNotFoundError", err)
	}
}

func TestDelete_RequiresTerminalExecution(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	result := h.start(t)
	ctx := context.Background()

	err := h.coordinator.Delete(ctx, result.Execution.ID)
	var conflict *domain.StatusConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err=%v, want StatusConflictError", err)
	}

	if _, err := h.coordinator.Stop(ctx, result.Execution.ID); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := h.coordinator.Delete(ctx, result.Execution.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := h.execs.execs[result.Execution.ID]; ok {
		t.Fatalf("execution still present after delete")
	}
	if _, ok := h.cache.snapshots[result.Execution.ID]; ok {
		t.Fatalf("snapshot still cached after delete")
	}
}

type fakeLauncher struct {
	specs   []runnerexec.LaunchSpec
	failAll bool
}

func (f *fakeLauncher) Kind() string { return "fake" }

func (f *fakeLauncher) Launch(ctx context.Context, spec runnerexec.LaunchSpec) error {
	if f.failAll {
		return errors.New("launch failed")
	}
	f.specs = append(f.specs, spec)
	return nil
}

func TestStart_LaunchesRunners(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)

	launcher := &fakeLauncher{}
	h.coordinator.launcher = launcher
	h.coordinator.runnerImage = "registry.local/agentsim-runner:1.4"
	h.coordinator.callbackURL = "http://simulationd:8084"

	result := h.start(t)

	if len(launcher.specs) != 2 {
		t.Fatalf("launched=%d, want 2", len(launcher.specs))
	}
	first := launcher.specs[0]
	if first.ExecutionID != result.Execution.ID {
		t.Fatalf("ExecutionID=%q, want %q", first.ExecutionID, result.Execution.ID)
	}
	if first.GroupKey != "step-1" || first.AgentCount != 2 || first.ExecutionTime != 10 || first.RepeatCount != 3 {
		t.Fatalf("unexpected spec for step-1: %+v", first)
	}
	if first.ImageRef != "registry.local/agentsim-runner:1.4" {
		t.Fatalf("ImageRef=%q", first.ImageRef)
	}
	if first.ControlPlaneURL != "http://simulationd:8084" {
		t.Fatalf("ControlPlaneURL=%q", first.ControlPlaneURL)
	}
	if first.RunnerToken != result.RunnerTokens["step-1"] {
		t.Fatalf("RunnerToken mismatch")
	}
}

// pausingExecutionRepo widens the window between the active-execution check
// and the insert so an unserialized Start would let two callers through.
type pausingExecutionRepo struct {
	*fakeExecutionRepo
	pause time.Duration
}

func (r *pausingExecutionRepo) HasActiveExecution(ctx context.Context, simulationID string) (bool, error) {
	active, err := r.fakeExecutionRepo.HasActiveExecution(ctx, simulationID)
	time.Sleep(r.pause)
	return active, err
}

func TestStart_SerializesConcurrentStarts(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	h.coordinator.executions = &pausingExecutionRepo{fakeExecutionRepo: h.execs, pause: 20 * time.Millisecond}

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.coordinator.Start(context.Background(), "sim-1")
		}(i)
	}
	wg.Wait()

	started, conflicts := 0, 0
	for _, err := range errs {
		if err == nil {
			started++
			continue
		}
		var conflict *domain.StatusConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("err=%v, want StatusConflictError", err)
		}
		conflicts++
	}
	if started != 1 || conflicts != 1 {
		t.Fatalf("started=%d conflicts=%d, want exactly one of each", started, conflicts)
	}
	if len(h.execs.execs) != 1 {
		t.Fatalf("executions=%d, want 1", len(h.execs.execs))
	}
}

func TestGetExecution_RepairsParentAfterPartialWrite(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	result := h.start(t)
	ctx := context.Background()

	if _, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-1", GroupReport{CurrentRepeat: 3}); err != nil {
		t.Fatalf("complete step-1: %v", err)
	}

	// the final report persists the child but loses the parent update
	h.execs.failNextUpdate = true
	if _, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-2", GroupReport{CurrentRepeat: 5}); err == nil {
		t.Fatalf("expected report to surface the lost parent write")
	}
	if got := h.execs.execs[result.Execution.ID].Status; got != domain.StatusRunning {
		t.Fatalf("durable status=%s, want RUNNING before repair", got)
	}

	exec, _, err := h.coordinator.GetExecution(ctx, result.Execution.ID)
	if err != nil {
		t.Fatalf("GetExecution: %v", err)
	}
	if exec.Status != domain.StatusCompleted || exec.CompletedAt == nil {
		t.Fatalf("exec=%+v, want COMPLETED with timestamp", exec)
	}
	if got := h.execs.execs[result.Execution.ID].Status; got != domain.StatusCompleted {
		t.Fatalf("durable status=%s, want COMPLETED after repair", got)
	}
}

func TestGetProgress_RepairsFailedParentAfterPartialWrite(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)
	result := h.start(t)
	ctx := context.Background()

	h.execs.failNextUpdate = true
	if _, err := h.coordinator.ReportGroupProgress(ctx, result.Execution.ID, "step-1", GroupReport{Failed: true, Error: "nav stack crashed"}); err == nil {
		t.Fatalf("expected report to surface the lost parent write")
	}

	delete(h.cache.snapshots, result.Execution.ID)
	snap, err := h.coordinator.GetProgress(ctx, result.Execution.ID)
	if err != nil {
		t.Fatalf("GetProgress: %v", err)
	}
	if snap.Status != string(domain.StatusFailed) {
		t.Fatalf("snapshot status=%s, want FAILED", snap.Status)
	}

	exec := h.execs.execs[result.Execution.ID]
	if exec.Status != domain.StatusFailed || exec.FailedAt == nil {
		t.Fatalf("exec=%+v, want FAILED with timestamp", exec)
	}
	if exec.FailureReason != "step-1: nav stack crashed" {
		t.Fatalf("FailureReason=%q", exec.FailureReason)
	}
}

func TestStart_LaunchFailureLeavesExecutionPending(t *testing.T) {
	h := newHarness(t)
	h.addSequentialSimulation(t)

	h.coordinator.launcher = &fakeLauncher{failAll: true}
	h.coordinator.runnerImage = "registry.local/agentsim-runner:1.4"

	result := h.start(t)

	if result.Execution.Status != domain.StatusPending {
		t.Fatalf("Status=%s, want PENDING", result.Execution.Status)
	}
}
