package reports

import (
	"time"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/progress"
)

// Report is the exportable record of one execution: the parent summary plus
// one line per group.
type Report struct {
	Execution ExecutionLine
	Groups    []GroupLine
}

type ExecutionLine struct {
	Record          string     `json:"record"`
	ExecutionID     string     `json:"execution_id"`
	SimulationID    string     `json:"simulation_id"`
	PatternType     string     `json:"pattern_type"`
	Status          string     `json:"status"`
	FailureReason   string     `json:"failure_reason,omitempty"`
	OverallProgress float64    `json:"overall_progress"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	FailedAt        *time.Time `json:"failed_at,omitempty"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	GeneratedAt     time.Time  `json:"generated_at"`
}

type GroupLine struct {
	Record        string  `json:"record"`
	ExecutionID   string  `json:"execution_id"`
	GroupKey      string  `json:"group_key"`
	Status        string  `json:"status"`
	Error         string  `json:"error,omitempty"`
	AgentCount    int     `json:"agent_count"`
	CurrentRepeat int     `json:"current_repeat"`
	TotalRepeats  int     `json:"total_repeats"`
	Progress      float64 `json:"progress"`
}

// Build assembles a report from the durable records at generatedAt.
func Build(exec domain.SimulationExecution, children []domain.GroupExecution, generatedAt time.Time) Report {
	snap := progress.BuildSnapshot(exec, children)
	report := Report{
		Execution: ExecutionLine{
			Record:          "execution",
			ExecutionID:     exec.ID,
			SimulationID:    exec.SimulationID,
			PatternType:     string(exec.PatternType),
			Status:          string(exec.Status),
			FailureReason:   exec.FailureReason,
			OverallProgress: snap.OverallProgress,
			StartedAt:       exec.StartedAt,
			CompletedAt:     exec.CompletedAt,
			FailedAt:        exec.FailedAt,
			StoppedAt:       exec.StoppedAt,
			GeneratedAt:     generatedAt.UTC(),
		},
	}
	for _, child := range children {
		report.Groups = append(report.Groups, GroupLine{
			Record:        "group",
			ExecutionID:   exec.ID,
			GroupKey:      child.GroupID,
			Status:        string(child.Status),
			Error:         child.Error,
			AgentCount:    child.AutonomousAgentCount,
			CurrentRepeat: child.CurrentRepeat,
			TotalRepeats:  child.TotalRepeats,
			Progress:      child.Progress(),
		})
	}
	return report
}
