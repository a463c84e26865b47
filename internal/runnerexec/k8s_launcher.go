package runnerexec

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/agentsim-labs/agentsim-go/internal/platform/k8s"
)

type KubernetesJobLauncher struct {
	client            *k8s.Client
	namespace         string
	jobTTLSeconds     int32
	jobServiceAccount string
}

func NewKubernetesJobLauncher(client *k8s.Client, namespace string, jobTTLSeconds int32, jobServiceAccount string) (*KubernetesJobLauncher, error) {
	if client == nil {
		return nil, errors.New("k8s client is required")
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = strings.TrimSpace(client.Namespace())
	}
	if namespace == "" {
		return nil, errors.New("runner namespace is required")
	}
	if jobTTLSeconds < 0 {
		return nil, errors.New("job ttl must be non-negative")
	}
	return &KubernetesJobLauncher{
		client:            client,
		namespace:         namespace,
		jobTTLSeconds:     jobTTLSeconds,
		jobServiceAccount: strings.TrimSpace(jobServiceAccount),
	}, nil
}

func (l *KubernetesJobLauncher) Kind() string {
	return "kubernetes_job"
}

func (l *KubernetesJobLauncher) Launch(ctx context.Context, spec LaunchSpec) error {
	if strings.TrimSpace(spec.ExecutionID) == "" {
		return errors.New("execution id is required")
	}
	if strings.TrimSpace(spec.GroupKey) == "" {
		return errors.New("group key is required")
	}
	if strings.TrimSpace(spec.ImageRef) == "" {
		return errors.New("image ref is required")
	}

	namespace := strings.TrimSpace(spec.K8sNamespace)
	if namespace == "" {
		namespace = l.namespace
	}
	jobName := JobName(spec.ExecutionID, spec.GroupKey)

	labels := map[string]string{
		"app.kubernetes.io/name":      "agentsim",
		"app.kubernetes.io/component": "runner-job",
		"agentsim.execution_id":       spec.ExecutionID,
		"agentsim.group_key":          sanitizeNamePart(spec.GroupKey),
	}

	backoff := int32(0)
	var ttl *int32
	if l.jobTTLSeconds > 0 {
		ttl = &l.jobTTLSeconds
	}

	container := k8s.Container{
		Name:  "runner",
		Image: spec.ImageRef,
		Env: []k8s.EnvVar{
			{Name: "EXECUTION_ID", Value: spec.ExecutionID},
			{Name: "SIMULATION_ID", Value: spec.SimulationID},
			{Name: "GROUP_KEY", Value: spec.GroupKey},
			{Name: "AGENTSIM_URL", Value: spec.ControlPlaneURL},
			{Name: "RUNNER_TOKEN", Value: spec.RunnerToken},
			{Name: "AGENT_COUNT", Value: strconv.Itoa(spec.AgentCount)},
			{Name: "EXECUTION_TIME", Value: strconv.Itoa(spec.ExecutionTime)},
			{Name: "REPEAT_COUNT", Value: strconv.Itoa(spec.RepeatCount)},
		},
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
			container.Env = append(container.Env, k8s.EnvVar{Name: key, Value: spec.Env[key]})
		}
	}

	podSpec := k8s.PodSpec{
		RestartPolicy: "Never",
		Containers:    []k8s.Container{container},
	}
	if l.jobServiceAccount != "" {
		podSpec.ServiceAccountName = l.jobServiceAccount
	}

	job := k8s.Job{
		Metadata: k8s.ObjectMeta{
			Name:      jobName,
			Namespace: namespace,
			Labels:    labels,
		},
		Spec: k8s.JobSpec{
			BackoffLimit: &backoff,
			Template: k8s.PodTemplateSpec{
				Metadata: k8s.ObjectMeta{Labels: labels},
				Spec:     podSpec,
			},
			TTLSecondsAfterFinished: ttl,
		},
	}

	err := l.client.CreateJob(ctx, namespace, job)
	if err == nil || errors.Is(err, k8s.ErrAlreadyExists) {
		return nil
	}
	return err
}
