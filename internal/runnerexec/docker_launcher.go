package runnerexec

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// DockerLauncher runs runners as detached containers on the local daemon,
// intended for development setups without a cluster.
type DockerLauncher struct {
	dockerBin string
}

func NewDockerLauncher(dockerBin string) (*DockerLauncher, error) {
	dockerBin = strings.TrimSpace(dockerBin)
	if dockerBin == "" {
		dockerBin = "docker"
	}
	if _, err := exec.LookPath(dockerBin); err != nil {
		return nil, fmt.Errorf("docker binary not found: %w", err)
	}
	return &DockerLauncher{dockerBin: dockerBin}, nil
}

func (l *DockerLauncher) Kind() string {
	return "docker"
}

func (l *DockerLauncher) Launch(ctx context.Context, spec LaunchSpec) error {
	if strings.TrimSpace(spec.ExecutionID) == "" {
		return errors.New("execution id is required")
	}
	if strings.TrimSpace(spec.GroupKey) == "" {
		return errors.New("group key is required")
	}
	imageRef := strings.TrimSpace(spec.ImageRef)
	if imageRef == "" {
		return errors.New("image ref is required")
	}
	name := strings.TrimSpace(spec.DockerName)
	if name == "" {
		name = JobName(spec.ExecutionID, spec.GroupKey)
	}

	args := []string{
		"run",
		"--detach",
		"--name", name,
		"--network", "host",
		"-e", "EXECUTION_ID=" + spec.ExecutionID,
		"-e", "SIMULATION_ID=" + spec.SimulationID,
		"-e", "GROUP_KEY=" + spec.GroupKey,
		"-e", "AGENTSIM_URL=" + spec.ControlPlaneURL,
		"-e", "RUNNER_TOKEN=" + spec.RunnerToken,
		"-e", "AGENT_COUNT=" + strconv.Itoa(spec.AgentCount),
		"-e", "EXECUTION_TIME=" + strconv.Itoa(spec.ExecutionTime),
		"-e", "REPEAT_COUNT=" + strconv.Itoa(spec.RepeatCount),
	}

	if len(spec.Env) > 0 {
		keys := make([]string, 0, len(spec.Env))
		for k := range spec.Env {
			key := strings.TrimSpace(k)
			if key == "" || isReservedRunnerEnvKey(key) {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			args = append(args, "-e", key+"="+spec.Env[key])
		}
	}

	args = append(args, imageRef)

	cmd := exec.CommandContext(ctx, l.dockerBin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker run failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
