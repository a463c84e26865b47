package executions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/execution/state"
	"github.com/agentsim-labs/agentsim-go/internal/platform/auth"
	"github.com/agentsim-labs/agentsim-go/internal/progress"
	"github.com/agentsim-labs/agentsim-go/internal/repo"
	"github.com/agentsim-labs/agentsim-go/internal/runnerexec"
)

// TemplateResolver loads the definition document behind a template reference.
type TemplateResolver interface {
	GetDefinition(ctx context.Context, template domain.Template) (domain.TemplateDefinition, error)
}

// Coordinator owns the execution lifecycle. All mutations for one execution
// are serialized by a keyed mutex; the durable store is written first and the
// progress cache second, so a cache outage degrades reads but never
// correctness.
type Coordinator struct {
	logger      *slog.Logger
	simulations repo.SimulationRepository
	executions  repo.ExecutionRepository
	groups      repo.GroupExecutionRepository
	templates   repo.TemplateRepository
	resolver    TemplateResolver
	cache       progress.Store
	tracker     *Tracker
	locks       *executionLocks

	launcher    runnerexec.Launcher
	runnerImage string
	callbackURL string

	runnerTokenSecret string
	runnerTokenTTL    time.Duration
	now               func() time.Time
}

type Config struct {
	Logger      *slog.Logger
	Simulations repo.SimulationRepository
	Executions  repo.ExecutionRepository
	Groups      repo.GroupExecutionRepository
	Templates   repo.TemplateRepository
	Resolver    TemplateResolver
	Cache       progress.Store

	// Launcher, when set, starts a runner workload per group execution.
	Launcher    runnerexec.Launcher
	RunnerImage string
	CallbackURL string

	// RunnerTokenSecret enables per-execution runner tokens when non-empty.
	RunnerTokenSecret string
	RunnerTokenTTL    time.Duration

	Now func() time.Time
}

func New(cfg Config) (*Coordinator, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Simulations == nil || cfg.Executions == nil || cfg.Groups == nil {
		return nil, errors.New("simulation, execution and group repositories are required")
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	ttl := cfg.RunnerTokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Coordinator{
		logger:            cfg.Logger,
		simulations:       cfg.Simulations,
		executions:        cfg.Executions,
		groups:            cfg.Groups,
		templates:         cfg.Templates,
		resolver:          cfg.Resolver,
		cache:             cfg.Cache,
		tracker:           NewTracker(now),
		locks:             newExecutionLocks(),
		launcher:          cfg.Launcher,
		runnerImage:       strings.TrimSpace(cfg.RunnerImage),
		callbackURL:       strings.TrimSpace(cfg.CallbackURL),
		runnerTokenSecret: strings.TrimSpace(cfg.RunnerTokenSecret),
		runnerTokenTTL:    ttl,
		now:               now,
	}, nil
}

// StartResult carries everything a caller needs to launch runners: the
// durable records, resolved template definitions keyed by unit, and runner
// tokens keyed by unit when token auth is enabled.
type StartResult struct {
	Execution    domain.SimulationExecution
	Groups       []domain.GroupExecution
	Definitions  map[string]domain.TemplateDefinition
	RunnerTokens map[string]string
}

// GroupReport is one progress callback from a runner.
type GroupReport struct {
	CurrentRepeat int
	Failed        bool
	Error         string
}

// Start creates a new execution for the simulation and dispatches it. A
// simulation with a live execution rejects the start. Starts for the same
// simulation are serialized so the active-execution check and the insert
// act as one step.
func (c *Coordinator) Start(ctx context.Context, simulationID string) (StartResult, error) {
	simulationID = strings.TrimSpace(simulationID)
	release := c.locks.Lock("simulation:" + simulationID)
	defer release()

	sim, err := c.simulations.GetSimulation(ctx, simulationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return StartResult{}, &domain.SimulationNotFoundError{SimulationID: simulationID}
		}
		return StartResult{}, err
	}
	if err := sim.Validate(); err != nil {
		return StartResult{}, err
	}

	active, err := c.executions.HasActiveExecution(ctx, sim.ID)
	if err != nil {
		return StartResult{}, err
	}
	if active {
		return StartResult{}, &domain.StatusConflictError{Current: domain.StatusRunning, Action: "start"}
	}

	units := sim.Plan.Units()
	definitions, err := c.resolveDefinitions(ctx, units)
	if err != nil {
		return StartResult{}, err
	}

	at := c.now().UTC()
	exec := domain.SimulationExecution{
		ID:           uuid.NewString(),
		SimulationID: sim.ID,
		PatternType:  sim.PatternType,
		Status:       domain.StatusInitiating,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	children := make([]domain.GroupExecution, 0, len(units))
	for _, unit := range units {
		children = append(children, domain.GroupExecution{
			ID:                   uuid.NewString(),
			ExecutionID:          exec.ID,
			GroupID:              unit.Key,
			Status:               domain.StatusInitiating,
			AutonomousAgentCount: unit.AutonomousAgentCount,
			TotalRepeats:         unit.TotalRepeats,
			CreatedAt:            at,
			UpdatedAt:            at,
		})
	}

	if err := c.tracker.Dispatch(&exec, children); err != nil {
		return StartResult{}, err
	}
	if err := c.executions.CreateExecution(ctx, exec, children); err != nil {
		return StartResult{}, err
	}

	tokens, err := c.mintRunnerTokens(exec.ID, children)
	if err != nil {
		return StartResult{}, err
	}

	c.launchRunners(ctx, exec, children, units, tokens)

	c.writeSnapshot(ctx, exec, children)
	return StartResult{
		Execution:    exec,
		Groups:       children,
		Definitions:  definitions,
		RunnerTokens: tokens,
	}, nil
}

// launchRunners starts one runner workload per child. Launch failures leave
// the child PENDING and are logged; the execution stays startable by an
// external runner.
func (c *Coordinator) launchRunners(ctx context.Context, exec domain.SimulationExecution, children []domain.GroupExecution, units []domain.PlanUnit, tokens map[string]string) {
	if c.launcher == nil {
		return
	}
	executionTimes := make(map[string]int, len(units))
	for _, unit := range units {
		executionTimes[unit.Key] = unit.ExecutionTime
	}
	for _, child := range children {
		err := c.launcher.Launch(ctx, runnerexec.LaunchSpec{
			ExecutionID:     exec.ID,
			SimulationID:    exec.SimulationID,
			GroupKey:        child.GroupID,
			ImageRef:        c.runnerImage,
			ControlPlaneURL: c.callbackURL,
			RunnerToken:     tokens[child.GroupID],
			AgentCount:      child.AutonomousAgentCount,
			ExecutionTime:   executionTimes[child.GroupID],
			RepeatCount:     child.TotalRepeats,
		})
		if err != nil {
			c.logger.Warn("runner launch failed",
				"execution_id", exec.ID,
				"group_key", child.GroupID,
				"launcher", c.launcher.Kind(),
				"error", err.Error())
		}
	}
}

// Stop terminalizes a live execution. Stopping a terminal execution is an
// idempotent no-op that returns the current record.
func (c *Coordinator) Stop(ctx context.Context, executionID string) (domain.SimulationExecution, error) {
	executionID = strings.TrimSpace(executionID)
	release := c.locks.Lock(executionID)
	defer release()

	exec, children, err := c.load(ctx, executionID)
	if err != nil {
		return domain.SimulationExecution{}, err
	}

	if !c.tracker.StopExecution(&exec, children) {
		return exec, nil
	}

	if err := c.executions.UpdateExecution(ctx, exec); err != nil {
		return domain.SimulationExecution{}, err
	}
	for _, child := range children {
		if err := c.groups.UpdateGroupExecution(ctx, child); err != nil {
			return domain.SimulationExecution{}, err
		}
	}
	c.writeSnapshot(ctx, exec, children)
	return exec, nil
}

// ReportGroupProgress applies one runner callback and returns the updated
// snapshot.
func (c *Coordinator) ReportGroupProgress(ctx context.Context, executionID, groupKey string, report GroupReport) (progress.Snapshot, error) {
	executionID = strings.TrimSpace(executionID)
	groupKey = strings.TrimSpace(groupKey)
	release := c.locks.Lock(executionID)
	defer release()

	exec, children, err := c.load(ctx, executionID)
	if err != nil {
		return progress.Snapshot{}, err
	}

	idx := -1
	for i := range children {
		if children[i].GroupID == groupKey {
			idx = i
			break
		}
	}
	if idx < 0 {
		return progress.Snapshot{}, &domain.GroupNotFoundError{GroupID: groupKey}
	}

	if report.Failed {
		err = c.tracker.FailGroup(&exec, children, idx, report.Error)
	} else {
		err = c.tracker.AdvanceRepeat(&exec, children, idx, report.CurrentRepeat)
	}
	if err != nil {
		return progress.Snapshot{}, err
	}

	if err := c.groups.UpdateGroupExecution(ctx, children[idx]); err != nil {
		return progress.Snapshot{}, err
	}
	if err := c.executions.UpdateExecution(ctx, exec); err != nil {
		return progress.Snapshot{}, err
	}

	snap := progress.BuildSnapshot(exec, children)
	c.cacheSet(ctx, snap)
	return snap, nil
}

// GetProgress serves the cached snapshot when present and otherwise rebuilds
// it from the durable store, repopulating the cache on the way out.
func (c *Coordinator) GetProgress(ctx context.Context, executionID string) (progress.Snapshot, error) {
	executionID = strings.TrimSpace(executionID)
	if c.cache != nil {
		snap, ok, err := c.cache.Get(ctx, executionID)
		if err != nil {
			c.logger.Warn("progress cache read failed", "execution_id", executionID, "error", err.Error())
		} else if ok {
			return snap, nil
		}
	}

	exec, children, err := c.load(ctx, executionID)
	if err != nil {
		return progress.Snapshot{}, err
	}
	snap := progress.BuildSnapshot(exec, children)
	c.cacheSet(ctx, snap)
	return snap, nil
}

// GetExecution returns the durable execution record with its children.
func (c *Coordinator) GetExecution(ctx context.Context, executionID string) (domain.SimulationExecution, []domain.GroupExecution, error) {
	return c.load(ctx, strings.TrimSpace(executionID))
}

func (c *Coordinator) ListExecutions(ctx context.Context, filter repo.ExecutionFilter) ([]domain.SimulationExecution, error) {
	return c.executions.ListExecutions(ctx, filter)
}

// Delete removes a terminal execution and its cache entry. Live executions
// must be stopped first.
func (c *Coordinator) Delete(ctx context.Context, executionID string) error {
	executionID = strings.TrimSpace(executionID)
	release := c.locks.Lock(executionID)
	defer release()

	exec, _, err := c.load(ctx, executionID)
	if err != nil {
		return err
	}
	if !exec.Status.Terminal() {
		return &domain.StatusConflictError{Current: exec.Status, Action: "delete"}
	}
	if err := c.executions.DeleteExecution(ctx, executionID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return &domain.ExecutionNotFoundError{ExecutionID: executionID}
		}
		return err
	}
	if c.cache != nil {
		if err := c.cache.Delete(ctx, executionID); err != nil {
			c.logger.Warn("progress cache delete failed", "execution_id", executionID, "error", err.Error())
		}
	}
	return nil
}

func (c *Coordinator) load(ctx context.Context, executionID string) (domain.SimulationExecution, []domain.GroupExecution, error) {
	exec, err := c.executions.GetExecution(ctx, executionID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.SimulationExecution{}, nil, &domain.ExecutionNotFoundError{ExecutionID: executionID}
		}
		return domain.SimulationExecution{}, nil, err
	}
	children, err := c.groups.ListByExecution(ctx, executionID)
	if err != nil {
		return domain.SimulationExecution{}, nil, err
	}
	c.healExecutionStatus(ctx, &exec, children)
	return exec, children, nil
}

// healExecutionStatus repairs a parent left behind by a partial write: the
// child row persisted but the parent update was lost. Child and parent rows
// are written without a transaction, so the durable pair can disagree after
// a crash between the two updates.
func (c *Coordinator) healExecutionStatus(ctx context.Context, exec *domain.SimulationExecution, children []domain.GroupExecution) {
	if exec.Status.Terminal() {
		return
	}
	derived, ok := state.DeriveExecutionStatus(children)
	if !ok || derived == exec.Status {
		return
	}
	at := c.now().UTC()
	if exec.Status == domain.StatusRunning {
		if err := exec.Transition(derived, at); err != nil {
			exec.ForceTerminal(derived, at)
		}
	} else {
		exec.ForceTerminal(derived, at)
	}
	if derived == domain.StatusFailed && exec.FailureReason == "" {
		if first, found := state.FirstFailure(children); found {
			exec.FailureReason = domain.TruncateErrorText(fmt.Sprintf("%s: %s", first.GroupID, first.Error))
		}
	}
	if err := c.executions.UpdateExecution(ctx, *exec); err != nil {
		c.logger.Warn("execution status repair failed", "execution_id", exec.ID, "error", err.Error())
	}
}

func (c *Coordinator) resolveDefinitions(ctx context.Context, units []domain.PlanUnit) (map[string]domain.TemplateDefinition, error) {
	if c.templates == nil || c.resolver == nil {
		return nil, nil
	}
	definitions := make(map[string]domain.TemplateDefinition, len(units))
	byID := make(map[string]domain.TemplateDefinition)
	for _, unit := range units {
		def, ok := byID[unit.TemplateID]
		if !ok {
			template, err := c.templates.GetTemplate(ctx, unit.TemplateID)
			if err != nil {
				return nil, fmt.Errorf("template %s: %w", unit.TemplateID, err)
			}
			def, err = c.resolver.GetDefinition(ctx, template)
			if err != nil {
				return nil, err
			}
			byID[unit.TemplateID] = def
		}
		definitions[unit.Key] = def
	}
	return definitions, nil
}

func (c *Coordinator) mintRunnerTokens(executionID string, children []domain.GroupExecution) (map[string]string, error) {
	if c.runnerTokenSecret == "" {
		return nil, nil
	}
	at := c.now().UTC()
	tokens := make(map[string]string, len(children))
	for _, child := range children {
		token, err := auth.GenerateRunnerToken(c.runnerTokenSecret, auth.RunnerTokenClaims{
			ExecutionID:   executionID,
			GroupID:       child.GroupID,
			ExpiresAtUnix: at.Add(c.runnerTokenTTL).Unix(),
		}, at)
		if err != nil {
			return nil, fmt.Errorf("mint runner token for %s: %w", child.GroupID, err)
		}
		tokens[child.GroupID] = token
	}
	return tokens, nil
}

func (c *Coordinator) writeSnapshot(ctx context.Context, exec domain.SimulationExecution, children []domain.GroupExecution) {
	c.cacheSet(ctx, progress.BuildSnapshot(exec, children))
}

func (c *Coordinator) cacheSet(ctx context.Context, snap progress.Snapshot) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, snap); err != nil {
		c.logger.Warn("progress cache write failed", "execution_id", snap.ExecutionID, "error", err.Error())
	}
}
