package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/platform/auditlog"
	"github.com/agentsim-labs/agentsim-go/internal/platform/auth"
	"github.com/agentsim-labs/agentsim-go/internal/repo"
	"github.com/agentsim-labs/agentsim-go/internal/reports"
	"github.com/agentsim-labs/agentsim-go/internal/service/dashboard"
	"github.com/agentsim-labs/agentsim-go/internal/service/executions"
	"github.com/agentsim-labs/agentsim-go/internal/storage/templates"
)

type simulationAPI struct {
	logger      *slog.Logger
	db          *sql.DB
	simulations repo.SimulationRepository
	templates   repo.TemplateRepository
	resolver    *templates.Resolver
	coordinator *executions.Coordinator
	dashboard   *dashboard.Service
	reporter    *reports.ObjectExporter
}

func newSimulationAPI(
	logger *slog.Logger,
	db *sql.DB,
	simulationRepo repo.SimulationRepository,
	templateRepo repo.TemplateRepository,
	resolver *templates.Resolver,
	coordinator *executions.Coordinator,
	dashboardSvc *dashboard.Service,
	reporter *reports.ObjectExporter,
) *simulationAPI {
	return &simulationAPI{
		logger:      logger,
		db:          db,
		simulations: simulationRepo,
		templates:   templateRepo,
		resolver:    resolver,
		coordinator: coordinator,
		dashboard:   dashboardSvc,
		reporter:    reporter,
	}
}

func (api *simulationAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /simulations", api.handleCreateSimulation)
	mux.HandleFunc("GET /simulations", api.handleListSimulations)
	mux.HandleFunc("GET /simulations/{simulation_id}", api.handleGetSimulation)
	mux.HandleFunc("GET /simulations/{simulation_id}/dashboard", api.handleDashboardSummary)

	mux.HandleFunc("POST /simulations/{simulation_id}/executions", api.handleStartExecution)
	mux.HandleFunc("GET /simulations/{simulation_id}/executions", api.handleListExecutions)

	mux.HandleFunc("GET /executions/{execution_id}", api.handleGetExecution)
	mux.HandleFunc("POST /executions/{execution_id}/stop", api.handleStopExecution)
	mux.HandleFunc("DELETE /executions/{execution_id}", api.handleDeleteExecution)
	mux.HandleFunc("GET /executions/{execution_id}/progress", api.handleGetProgress)
	mux.HandleFunc("POST /executions/{execution_id}/report", api.handleExportReport)
	mux.HandleFunc("POST /executions/{execution_id}/groups/{group_key}/progress", api.handleReportGroupProgress)

	mux.HandleFunc("POST /templates", api.handleCreateTemplate)
	mux.HandleFunc("GET /templates", api.handleListTemplates)
	mux.HandleFunc("GET /templates/{template_id}", api.handleGetTemplate)
}

type planStepPayload struct {
	StepOrder            int    `json:"step_order"`
	TemplateID           string `json:"template_id"`
	AutonomousAgentCount int    `json:"autonomous_agent_count"`
	ExecutionTime        int    `json:"execution_time"`
	DelayAfterCompletion int    `json:"delay_after_completion,omitempty"`
	RepeatCount          int    `json:"repeat_count"`
}

type planGroupPayload struct {
	GroupID              string `json:"group_id"`
	GroupName            string `json:"group_name"`
	TemplateID           string `json:"template_id"`
	AutonomousAgentCount int    `json:"autonomous_agent_count"`
	ExecutionTime        int    `json:"execution_time"`
	AssignedArea         string `json:"assigned_area,omitempty"`
	RepeatCount          int    `json:"repeat_count"`
}

type simulationPayload struct {
	SimulationID string             `json:"simulation_id"`
	Name         string             `json:"name"`
	Description  string             `json:"description,omitempty"`
	Namespace    string             `json:"namespace,omitempty"`
	PatternType  string             `json:"pattern_type"`
	Steps        []planStepPayload  `json:"steps,omitempty"`
	Groups       []planGroupPayload `json:"groups,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type createSimulationRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Namespace   string             `json:"namespace,omitempty"`
	PatternType string             `json:"pattern_type"`
	Steps       []planStepPayload  `json:"steps,omitempty"`
	Groups      []planGroupPayload `json:"groups,omitempty"`
}

type executionPayload struct {
	ExecutionID   string     `json:"execution_id"`
	SimulationID  string     `json:"simulation_id"`
	PatternType   string     `json:"pattern_type"`
	Status        string     `json:"status"`
	StatusLabel   string     `json:"status_label"`
	FailureReason string     `json:"failure_reason,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FailedAt      *time.Time `json:"failed_at,omitempty"`
	StoppedAt     *time.Time `json:"stopped_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type groupExecutionPayload struct {
	GroupExecutionID     string  `json:"group_execution_id"`
	GroupKey             string  `json:"group_key"`
	Status               string  `json:"status"`
	StatusLabel          string  `json:"status_label"`
	Error                string  `json:"error,omitempty"`
	AutonomousAgentCount int     `json:"autonomous_agent_count"`
	CurrentRepeat        int     `json:"current_repeat"`
	TotalRepeats         int     `json:"total_repeats"`
	Progress             float64 `json:"progress"`
}

type startExecutionResponse struct {
	Execution    executionPayload                     `json:"execution"`
	Groups       []groupExecutionPayload              `json:"groups"`
	Definitions  map[string]templateDefinitionPayload `json:"definitions,omitempty"`
	RunnerTokens map[string]string                    `json:"runner_tokens,omitempty"`
}

type reportProgressRequest struct {
	CurrentRepeat int    `json:"current_repeat,omitempty"`
	Failed        bool   `json:"failed,omitempty"`
	Error         string `json:"error,omitempty"`
}

type templateDefinitionPayload struct {
	Name       string         `json:"name"`
	Type       string         `json:"type,omitempty"`
	Topics     []string       `json:"topics,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type templatePayload struct {
	TemplateID  string    `json:"template_id"`
	Name        string    `json:"name"`
	Type        string    `json:"type,omitempty"`
	Description string    `json:"description,omitempty"`
	ObjectKey   string    `json:"object_key"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type createTemplateRequest struct {
	Name        string                    `json:"name"`
	Type        string                    `json:"type,omitempty"`
	Description string                    `json:"description,omitempty"`
	Definition  templateDefinitionPayload `json:"definition"`
}

type dashboardSummaryPayload struct {
	SimulationID       string            `json:"simulation_id"`
	Name               string            `json:"name"`
	PatternType        string            `json:"pattern_type"`
	UnitCount          int               `json:"unit_count"`
	TotalAgents        int               `json:"total_agents"`
	TotalExecutionTime int               `json:"total_execution_time"`
	LatestExecution    *executionPayload `json:"latest_execution,omitempty"`
}

func (api *simulationAPI) handleCreateSimulation(w http.ResponseWriter, r *http.Request) {
	var req createSimulationRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		api.writeError(w, r, http.StatusBadRequest, "name_required")
		return
	}
	pattern := domain.NormalizePatternType(req.PatternType)
	if pattern == "" {
		api.writeError(w, r, http.StatusBadRequest, "pattern_type_invalid")
		return
	}

	now := time.Now().UTC()
	sim := domain.Simulation{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Namespace:   strings.TrimSpace(req.Namespace),
		PatternType: pattern,
		Plan:        planFromPayload(pattern, req.Steps, req.Groups),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := sim.Validate(); err != nil {
		api.writeErrorWithDetails(w, r, http.StatusBadRequest, "invalid_simulation", err.Error())
		return
	}

	if err := api.simulations.CreateSimulation(r.Context(), sim); err != nil {
		if isUniqueViolation(err) {
			api.writeError(w, r, http.StatusConflict, "simulation_exists")
			return
		}
		api.logger.Error("create simulation failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	w.Header().Set("Location", "/simulations/"+sim.ID)
	api.writeJSON(w, http.StatusCreated, simulationToPayload(sim))
}

func (api *simulationAPI) handleListSimulations(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(parseIntQuery(r, "limit", 100), 1, 500)
	filter := repo.SimulationFilter{
		Name:        strings.TrimSpace(r.URL.Query().Get("name")),
		PatternType: domain.NormalizePatternType(r.URL.Query().Get("pattern_type")),
		Limit:       limit,
	}
	sims, err := api.simulations.ListSimulations(r.Context(), filter)
	if err != nil {
		api.logger.Error("list simulations failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]simulationPayload, 0, len(sims))
	for _, sim := range sims {
		out = append(out, simulationToPayload(sim))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"simulations": out})
}

func (api *simulationAPI) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	simulationID := strings.TrimSpace(r.PathValue("simulation_id"))
	if simulationID == "" {
		api.writeError(w, r, http.StatusBadRequest, "simulation_id_required")
		return
	}
	sim, err := api.simulations.GetSimulation(r.Context(), simulationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("get simulation failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	api.writeJSON(w, http.StatusOK, simulationToPayload(sim))
}

func (api *simulationAPI) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	simulationID := strings.TrimSpace(r.PathValue("simulation_id"))
	if simulationID == "" {
		api.writeError(w, r, http.StatusBadRequest, "simulation_id_required")
		return
	}
	summary, err := api.dashboard.Summarize(r.Context(), simulationID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}

	out := dashboardSummaryPayload{
		SimulationID:       summary.SimulationID,
		Name:               summary.Name,
		PatternType:        string(summary.PatternType),
		UnitCount:          summary.UnitCount,
		TotalAgents:        summary.TotalAgents,
		TotalExecutionTime: summary.TotalExecutionTime,
	}
	if summary.LatestExecution != nil {
		out.LatestExecution = &executionPayload{
			ExecutionID:   summary.LatestExecution.ExecutionID,
			SimulationID:  summary.SimulationID,
			Status:        string(summary.LatestExecution.Status),
			StatusLabel:   summary.LatestExecution.StatusLabel,
			FailureReason: summary.LatestExecution.FailureReason,
			StartedAt:     summary.LatestExecution.StartedAt,
			CreatedAt:     summary.LatestExecution.CreatedAt,
		}
	}
	api.writeJSON(w, http.StatusOK, out)
}

func (api *simulationAPI) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	simulationID := strings.TrimSpace(r.PathValue("simulation_id"))
	if simulationID == "" {
		api.writeError(w, r, http.StatusBadRequest, "simulation_id_required")
		return
	}

	result, err := api.coordinator.Start(r.Context(), simulationID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}

	api.auditExecutionEvent(r, "execution.started", result.Execution, map[string]any{
		"simulation_id": simulationID,
		"groups":        len(result.Groups),
	})

	out := startExecutionResponse{
		Execution:    executionToPayload(result.Execution),
		Groups:       make([]groupExecutionPayload, 0, len(result.Groups)),
		RunnerTokens: result.RunnerTokens,
	}
	for _, child := range result.Groups {
		out.Groups = append(out.Groups, groupExecutionToPayload(child))
	}
	if len(result.Definitions) > 0 {
		out.Definitions = make(map[string]templateDefinitionPayload, len(result.Definitions))
		for key, def := range result.Definitions {
			out.Definitions[key] = definitionToPayload(def)
		}
	}

	w.Header().Set("Location", "/executions/"+result.Execution.ID)
	api.writeJSON(w, http.StatusCreated, out)
}

func (api *simulationAPI) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	simulationID := strings.TrimSpace(r.PathValue("simulation_id"))
	if simulationID == "" {
		api.writeError(w, r, http.StatusBadRequest, "simulation_id_required")
		return
	}
	limit := clampInt(parseIntQuery(r, "limit", 100), 1, 500)
	filter := repo.ExecutionFilter{
		SimulationID: simulationID,
		Status:       domain.NormalizeStatus(r.URL.Query().Get("status")),
		Limit:        limit,
	}
	execs, err := api.coordinator.ListExecutions(r.Context(), filter)
	if err != nil {
		api.logger.Error("list executions failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]executionPayload, 0, len(execs))
	for _, exec := range execs {
		out = append(out, executionToPayload(exec))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"executions": out})
}

func (api *simulationAPI) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	executionID := strings.TrimSpace(r.PathValue("execution_id"))
	if executionID == "" {
		api.writeError(w, r, http.StatusBadRequest, "execution_id_required")
		return
	}
	exec, children, err := api.coordinator.GetExecution(r.Context(), executionID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	groups := make([]groupExecutionPayload, 0, len(children))
	for _, child := range children {
		groups = append(groups, groupExecutionToPayload(child))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"execution": executionToPayload(exec),
		"groups":    groups,
	})
}

func (api *simulationAPI) handleStopExecution(w http.ResponseWriter, r *http.Request) {
	executionID := strings.TrimSpace(r.PathValue("execution_id"))
	if executionID == "" {
		api.writeError(w, r, http.StatusBadRequest, "execution_id_required")
		return
	}
	exec, err := api.coordinator.Stop(r.Context(), executionID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}

	api.auditExecutionEvent(r, "execution.stopped", exec, map[string]any{
		"simulation_id": exec.SimulationID,
		"status":        string(exec.Status),
	})
	api.writeJSON(w, http.StatusOK, executionToPayload(exec))
}

func (api *simulationAPI) handleDeleteExecution(w http.ResponseWriter, r *http.Request) {
	executionID := strings.TrimSpace(r.PathValue("execution_id"))
	if executionID == "" {
		api.writeError(w, r, http.StatusBadRequest, "execution_id_required")
		return
	}
	if err := api.coordinator.Delete(r.Context(), executionID); err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (api *simulationAPI) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	executionID := strings.TrimSpace(r.PathValue("execution_id"))
	if executionID == "" {
		api.writeError(w, r, http.StatusBadRequest, "execution_id_required")
		return
	}
	snap, err := api.coordinator.GetProgress(r.Context(), executionID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, snap)
}

func (api *simulationAPI) handleExportReport(w http.ResponseWriter, r *http.Request) {
	executionID := strings.TrimSpace(r.PathValue("execution_id"))
	if executionID == "" {
		api.writeError(w, r, http.StatusBadRequest, "execution_id_required")
		return
	}
	if api.reporter == nil {
		api.writeError(w, r, http.StatusNotImplemented, "reports_not_configured")
		return
	}

	exec, children, err := api.coordinator.GetExecution(r.Context(), executionID)
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}

	report := reports.Build(exec, children, time.Now().UTC())
	key, err := api.reporter.Export(r.Context(), report)
	if err != nil {
		api.logger.Error("report export failed", "request_id", r.Header.Get("X-Request-Id"), "execution_id", executionID, "error", err.Error())
		api.writeError(w, r, http.StatusBadGateway, "object_store_error")
		return
	}

	api.auditExecutionEvent(r, "execution.report_exported", exec, map[string]any{
		"object_key": key,
	})
	api.writeJSON(w, http.StatusCreated, map[string]any{"object_key": key})
}

func (api *simulationAPI) handleReportGroupProgress(w http.ResponseWriter, r *http.Request) {
	executionID := strings.TrimSpace(r.PathValue("execution_id"))
	groupKey := strings.TrimSpace(r.PathValue("group_key"))
	if executionID == "" || groupKey == "" {
		api.writeError(w, r, http.StatusBadRequest, "execution_id_and_group_key_required")
		return
	}

	// Runner tokens are execution scoped: a token minted for one execution
	// must not report on another.
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		if tokenExecution, tokenGroup, isRunner := auth.ParseRunnerTokenSubject(identity.Subject); isRunner {
			if tokenExecution != executionID || (tokenGroup != "" && tokenGroup != groupKey) {
				api.writeError(w, r, http.StatusForbidden, "forbidden")
				return
			}
		}
	}

	var req reportProgressRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	snap, err := api.coordinator.ReportGroupProgress(r.Context(), executionID, groupKey, executions.GroupReport{
		CurrentRepeat: req.CurrentRepeat,
		Failed:        req.Failed,
		Error:         req.Error,
	})
	if err != nil {
		api.writeDomainError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, snap)
}

func (api *simulationAPI) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createTemplateRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		api.writeError(w, r, http.StatusBadRequest, "name_required")
		return
	}

	now := time.Now().UTC()
	template := domain.Template{
		ID:          uuid.NewString(),
		Name:        name,
		Type:        strings.TrimSpace(req.Type),
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	template.ObjectKey = "definitions/" + template.ID + ".yaml"

	def := domain.TemplateDefinition{
		Name:       name,
		Type:       template.Type,
		Topics:     req.Definition.Topics,
		Parameters: req.Definition.Parameters,
	}
	if strings.TrimSpace(req.Definition.Name) != "" {
		def.Name = strings.TrimSpace(req.Definition.Name)
	}
	if err := api.resolver.PutDefinition(r.Context(), template, def); err != nil {
		api.logger.Error("store template definition failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusBadGateway, "object_store_error")
		return
	}
	if err := api.templates.CreateTemplate(r.Context(), template); err != nil {
		if isUniqueViolation(err) {
			api.writeError(w, r, http.StatusConflict, "template_exists")
			return
		}
		api.logger.Error("create template failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	w.Header().Set("Location", "/templates/"+template.ID)
	api.writeJSON(w, http.StatusCreated, templateToPayload(template))
}

func (api *simulationAPI) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(parseIntQuery(r, "limit", 100), 1, 500)
	items, err := api.templates.ListTemplates(r.Context(), limit)
	if err != nil {
		api.logger.Error("list templates failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	out := make([]templatePayload, 0, len(items))
	for _, item := range items {
		out = append(out, templateToPayload(item))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"templates": out})
}

func (api *simulationAPI) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := strings.TrimSpace(r.PathValue("template_id"))
	if templateID == "" {
		api.writeError(w, r, http.StatusBadRequest, "template_id_required")
		return
	}
	template, err := api.templates.GetTemplate(r.Context(), templateID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			api.writeError(w, r, http.StatusNotFound, "not_found")
			return
		}
		api.logger.Error("get template failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	definition, err := api.resolver.GetDefinition(r.Context(), template)
	if err != nil {
		api.logger.Warn("resolve template definition failed", "request_id", r.Header.Get("X-Request-Id"), "template_id", templateID, "error", err.Error())
		api.writeJSON(w, http.StatusOK, map[string]any{"template": templateToPayload(template)})
		return
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"template":   templateToPayload(template),
		"definition": definitionToPayload(definition),
	})
}

func (api *simulationAPI) auditExecutionEvent(r *http.Request, action string, exec domain.SimulationExecution, payload map[string]any) {
	if api.db == nil {
		return
	}
	actor := "anonymous"
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && strings.TrimSpace(identity.Subject) != "" {
		actor = strings.TrimSpace(identity.Subject)
	}
	_, err := auditlog.Insert(r.Context(), api.db, auditlog.Event{
		OccurredAt:   time.Now().UTC(),
		Actor:        actor,
		Action:       action,
		ResourceType: "execution",
		ResourceID:   exec.ID,
		RequestID:    r.Header.Get("X-Request-Id"),
		IP:           requestIP(r.RemoteAddr),
		UserAgent:    r.UserAgent(),
		Payload:      payload,
	})
	if err != nil {
		api.logger.Warn("audit insert failed", "request_id", r.Header.Get("X-Request-Id"), "action", action, "error", err.Error())
	}
}

func (api *simulationAPI) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *domain.StatusConflictError
	if errors.As(err, &conflict) {
		api.writeErrorWithDetails(w, r, http.StatusConflict, "status_conflict", conflict.Error())
		return
	}
	if errors.Is(err, executions.ErrRepeatOutOfRange) {
		api.writeErrorWithDetails(w, r, http.StatusConflict, "repeat_out_of_range", err.Error())
		return
	}
	var simNotFound *domain.SimulationNotFoundError
	var execNotFound *domain.ExecutionNotFoundError
	var stepNotFound *domain.StepNotFoundError
	var groupNotFound *domain.GroupNotFoundError
	if errors.As(err, &simNotFound) || errors.As(err, &execNotFound) ||
		errors.As(err, &stepNotFound) || errors.As(err, &groupNotFound) ||
		errors.Is(err, repo.ErrNotFound) {
		api.writeError(w, r, http.StatusNotFound, "not_found")
		return
	}
	if domain.IsDomainError(err) {
		api.writeErrorWithDetails(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	api.logger.Error("request failed", "request_id", r.Header.Get("X-Request-Id"), "error", err.Error())
	api.writeError(w, r, http.StatusInternalServerError, "internal_error")
}

func planFromPayload(pattern domain.PatternType, steps []planStepPayload, groups []planGroupPayload) domain.ExecutionPlan {
	plan := domain.ExecutionPlan{PatternType: pattern}
	for _, step := range steps {
		plan.Steps = append(plan.Steps, domain.PlanStep{
			StepOrder:            step.StepOrder,
			TemplateID:           strings.TrimSpace(step.TemplateID),
			AutonomousAgentCount: step.AutonomousAgentCount,
			ExecutionTime:        step.ExecutionTime,
			DelayAfterCompletion: step.DelayAfterCompletion,
			RepeatCount:          step.RepeatCount,
		})
	}
	for _, group := range groups {
		plan.Groups = append(plan.Groups, domain.PlanGroup{
			GroupID:              strings.TrimSpace(group.GroupID),
			GroupName:            strings.TrimSpace(group.GroupName),
			TemplateID:           strings.TrimSpace(group.TemplateID),
			AutonomousAgentCount: group.AutonomousAgentCount,
			ExecutionTime:        group.ExecutionTime,
			AssignedArea:         strings.TrimSpace(group.AssignedArea),
			RepeatCount:          group.RepeatCount,
		})
	}
	return plan
}

func simulationToPayload(sim domain.Simulation) simulationPayload {
	out := simulationPayload{
		SimulationID: sim.ID,
		Name:         sim.Name,
		Description:  sim.Description,
		Namespace:    sim.Namespace,
		PatternType:  string(sim.PatternType),
		CreatedAt:    sim.CreatedAt,
		UpdatedAt:    sim.UpdatedAt,
	}
	for _, step := range sim.Plan.Steps {
		out.Steps = append(out.Steps, planStepPayload{
			StepOrder:            step.StepOrder,
			TemplateID:           step.TemplateID,
			AutonomousAgentCount: step.AutonomousAgentCount,
			ExecutionTime:        step.ExecutionTime,
			DelayAfterCompletion: step.DelayAfterCompletion,
			RepeatCount:          step.RepeatCount,
		})
	}
	for _, group := range sim.Plan.Groups {
		out.Groups = append(out.Groups, planGroupPayload{
			GroupID:              group.GroupID,
			GroupName:            group.GroupName,
			TemplateID:           group.TemplateID,
			AutonomousAgentCount: group.AutonomousAgentCount,
			ExecutionTime:        group.ExecutionTime,
			AssignedArea:         group.AssignedArea,
			RepeatCount:          group.RepeatCount,
		})
	}
	return out
}

func executionToPayload(exec domain.SimulationExecution) executionPayload {
	return executionPayload{
		ExecutionID:   exec.ID,
		SimulationID:  exec.SimulationID,
		PatternType:   string(exec.PatternType),
		Status:        string(exec.Status),
		StatusLabel:   dashboard.StatusLabel(exec.Status),
		FailureReason: exec.FailureReason,
		StartedAt:     exec.StartedAt,
		CompletedAt:   exec.CompletedAt,
		FailedAt:      exec.FailedAt,
		StoppedAt:     exec.StoppedAt,
		CreatedAt:     exec.CreatedAt,
		UpdatedAt:     exec.UpdatedAt,
	}
}

func groupExecutionToPayload(record domain.GroupExecution) groupExecutionPayload {
	return groupExecutionPayload{
		GroupExecutionID:     record.ID,
		GroupKey:             record.GroupID,
		Status:               string(record.Status),
		StatusLabel:          dashboard.StatusLabel(record.Status),
		Error:                record.Error,
		AutonomousAgentCount: record.AutonomousAgentCount,
		CurrentRepeat:        record.CurrentRepeat,
		TotalRepeats:         record.TotalRepeats,
		Progress:             record.Progress(),
	}
}

func definitionToPayload(def domain.TemplateDefinition) templateDefinitionPayload {
	return templateDefinitionPayload{
		Name:       def.Name,
		Type:       def.Type,
		Topics:     def.Topics,
		Parameters: def.Parameters,
	}
}

func templateToPayload(template domain.Template) templatePayload {
	return templatePayload{
		TemplateID:  template.ID,
		Name:        template.Name,
		Type:        template.Type,
		Description: template.Description,
		ObjectKey:   template.ObjectKey,
		CreatedAt:   template.CreatedAt,
		UpdatedAt:   template.UpdatedAt,
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *simulationAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *simulationAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func (api *simulationAPI) writeErrorWithDetails(w http.ResponseWriter, r *http.Request, status int, code string, details any) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
		"details":    details,
	})
}

func requestIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return nil
	}
	return net.ParseIP(host)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
