package runnerexec

import (
	"strings"
	"testing"
)

func TestJobName(t *testing.T) {
	name := JobName("8F0C2D4A-1234-5678-9abc-def012345678", "Step_1")
	if name != "agentsim-runner-8f0c2d4a-1234-5678-9abc-def012345678-step-1" {
		t.Fatalf("JobName=%q", name)
	}
	if len(name) > 63 {
		t.Fatalf("name too long: %d", len(name))
	}

	long := JobName(strings.Repeat("a", 80), "alpha")
	if len(long) > 63 {
		t.Fatalf("long name not truncated: %d", len(long))
	}
	if strings.HasSuffix(long, "-") {
		t.Fatalf("truncated name ends with dash: %q", long)
	}
}

func TestIsReservedRunnerEnvKey(t *testing.T) {
	if !isReservedRunnerEnvKey("execution_id") {
		t.Fatalf("execution_id should be reserved")
	}
	if !isReservedRunnerEnvKey(" RUNNER_TOKEN ") {
		t.Fatalf("RUNNER_TOKEN should be reserved")
	}
	if isReservedRunnerEnvKey("SCENARIO_SEED") {
		t.Fatalf("SCENARIO_SEED should not be reserved")
	}
}
