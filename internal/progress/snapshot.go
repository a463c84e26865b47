package progress

import (
	"strings"
	"time"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
)

// Snapshot is the ephemeral progress document kept in the cache. The durable
// store stays authoritative; a snapshot can always be rebuilt from it.
type Snapshot struct {
	ExecutionID     string              `json:"executionId"`
	SimulationID    string              `json:"simulationId"`
	PatternType     string              `json:"patternType"`
	Status          string              `json:"status"`
	FailureReason   string              `json:"failureReason,omitempty"`
	OverallProgress float64             `json:"overallProgress"`
	Sequential      *SequentialProgress `json:"sequential,omitempty"`
	Parallel        *ParallelProgress   `json:"parallel,omitempty"`
	Details         []Detail            `json:"details"`
	StartedAt       *time.Time          `json:"startedAt,omitempty"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
	FailedAt        *time.Time          `json:"failedAt,omitempty"`
	StoppedAt       *time.Time          `json:"stoppedAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	LastUpdated     time.Time           `json:"lastUpdated"`
}

type SequentialProgress struct {
	CurrentStep    string `json:"currentStep,omitempty"`
	CompletedSteps int    `json:"completedSteps"`
	TotalSteps     int    `json:"totalSteps"`
}

type ParallelProgress struct {
	CompletedGroups int `json:"completedGroups"`
	RunningGroups   int `json:"runningGroups"`
	TotalGroups     int `json:"totalGroups"`
}

type Detail struct {
	Key           string  `json:"key"`
	Status        string  `json:"status"`
	CurrentRepeat int     `json:"currentRepeat"`
	TotalRepeats  int     `json:"totalRepeats"`
	Progress      float64 `json:"progress"`
	Error         string  `json:"error,omitempty"`
}

// BuildSnapshot derives a snapshot from the durable execution records.
func BuildSnapshot(exec domain.SimulationExecution, children []domain.GroupExecution) Snapshot {
	snap := Snapshot{
		ExecutionID:   exec.ID,
		SimulationID:  exec.SimulationID,
		PatternType:   string(exec.PatternType),
		Status:        string(exec.Status),
		FailureReason: exec.FailureReason,
		Details:       make([]Detail, 0, len(children)),
		StartedAt:     exec.StartedAt,
		CompletedAt:   exec.CompletedAt,
		FailedAt:      exec.FailedAt,
		StoppedAt:     exec.StoppedAt,
		CreatedAt:     exec.CreatedAt,
		LastUpdated:   exec.UpdatedAt,
	}

	var sum float64
	completed := 0
	running := 0
	currentStep := ""
	for _, child := range children {
		p := child.Progress()
		sum += p
		switch child.Status {
		case domain.StatusCompleted:
			completed++
		case domain.StatusRunning:
			running++
			if currentStep == "" {
				currentStep = child.GroupID
			}
		}
		snap.Details = append(snap.Details, Detail{
			Key:           child.GroupID,
			Status:        string(child.Status),
			CurrentRepeat: child.CurrentRepeat,
			TotalRepeats:  child.TotalRepeats,
			Progress:      p,
			Error:         child.Error,
		})
	}
	if len(children) > 0 {
		snap.OverallProgress = sum / float64(len(children))
	}
	if exec.Status == domain.StatusCompleted {
		snap.OverallProgress = 1.0
	}

	switch exec.PatternType {
	case domain.PatternSequential:
		snap.Sequential = &SequentialProgress{
			CurrentStep:    currentStep,
			CompletedSteps: completed,
			TotalSteps:     len(children),
		}
	case domain.PatternParallel:
		snap.Parallel = &ParallelProgress{
			CompletedGroups: completed,
			RunningGroups:   running,
			TotalGroups:     len(children),
		}
	}
	return snap
}

func (s Snapshot) Terminal() bool {
	return domain.NormalizeStatus(strings.TrimSpace(s.Status)).Terminal()
}
