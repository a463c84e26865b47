package runnerexec

import (
	"context"
	"strings"
)

// Launcher starts runner workloads for dispatched group executions. Runner
// status flows back through progress callbacks, not through the launcher.
type Launcher interface {
	Kind() string
	Launch(ctx context.Context, spec LaunchSpec) error
}

type LaunchSpec struct {
	ExecutionID  string
	SimulationID string
	GroupKey     string
	ImageRef     string

	// ControlPlaneURL is the base URL runners call back with progress.
	ControlPlaneURL string
	RunnerToken     string

	AgentCount    int
	ExecutionTime int
	RepeatCount   int

	K8sNamespace string
	DockerName   string
	Env          map[string]string
}

// JobName derives a DNS-1123 compatible workload name for one group
// execution.
func JobName(executionID, groupKey string) string {
	name := "agentsim-runner-" + sanitizeNamePart(executionID) + "-" + sanitizeNamePart(groupKey)
	if len(name) > 63 {
		name = name[:63]
	}
	return strings.Trim(name, "-")
}

func sanitizeNamePart(part string) string {
	part = strings.ToLower(strings.TrimSpace(part))
	var b strings.Builder
	for _, r := range part {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func isReservedRunnerEnvKey(key string) bool {
	switch strings.ToUpper(strings.TrimSpace(key)) {
	case "EXECUTION_ID", "SIMULATION_ID", "GROUP_KEY", "AGENTSIM_URL", "RUNNER_TOKEN", "AGENT_COUNT", "EXECUTION_TIME", "REPEAT_COUNT":
		return true
	default:
		return false
	}
}
