package reports

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/storage/objectstore"
)

type fakeStore struct {
	objects map[string][]byte
}

func (f *fakeStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.objects[bucket+"/"+key] = data
	return nil
}

func (f *fakeStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, objectstore.ObjectInfo{}, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), objectstore.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeStore) Stat(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	data, ok := f.objects[bucket+"/"+key]
	if !ok {
		return objectstore.ObjectInfo{}, io.ErrUnexpectedEOF
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeStore) Delete(ctx context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

func sampleExecution() (domain.SimulationExecution, []domain.GroupExecution) {
	started := time.Date(2026, 5, 2, 9, 0, 0, 0, time.UTC)
	failed := started.Add(3 * time.Minute)
	exec := domain.SimulationExecution{
		ID:            "exec-1",
		SimulationID:  "sim-1",
		PatternType:   domain.PatternSequential,
		Status:        domain.StatusFailed,
		FailureReason: "step-1: nav stack crashed",
		StartedAt:     &started,
		FailedAt:      &failed,
	}
	children := []domain.GroupExecution{
		{ID: "g-1", ExecutionID: "exec-1", GroupID: "step-1", Status: domain.StatusFailed, Error: "nav stack crashed", AutonomousAgentCount: 2, CurrentRepeat: 1, TotalRepeats: 3},
		{ID: "g-2", ExecutionID: "exec-1", GroupID: "step-2", Status: domain.StatusStopped, AutonomousAgentCount: 1, CurrentRepeat: 0, TotalRepeats: 5},
	}
	return exec, children
}

func TestBuildAndEncodeNDJSON(t *testing.T) {
	exec, children := sampleExecution()
	generatedAt := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	report := Build(exec, children, generatedAt)

	if report.Execution.Status != "FAILED" {
		t.Fatalf("Status=%q, want FAILED", report.Execution.Status)
	}
	if len(report.Groups) != 2 {
		t.Fatalf("groups=%d, want 2", len(report.Groups))
	}

	var buf bytes.Buffer
	if err := NewNDJSONEncoder(&buf).Encode(report); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	scanner := bufio.NewScanner(&buf)
	var lines []map[string]any
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line not valid JSON: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 3 {
		t.Fatalf("lines=%d, want 3", len(lines))
	}
	if lines[0]["record"] != "execution" {
		t.Fatalf("first record=%v, want execution", lines[0]["record"])
	}
	if lines[0]["failure_reason"] != "step-1: nav stack crashed" {
		t.Fatalf("failure_reason=%v", lines[0]["failure_reason"])
	}
	if lines[1]["record"] != "group" || lines[1]["group_key"] != "step-1" {
		t.Fatalf("second line=%v", lines[1])
	}
	if got := lines[2]["progress"].(float64); got != 0 {
		t.Fatalf("step-2 progress=%v, want 0", got)
	}
}

func TestObjectExporter(t *testing.T) {
	exec, children := sampleExecution()
	generatedAt := time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)
	report := Build(exec, children, generatedAt)

	store := &fakeStore{objects: map[string][]byte{}}
	exporter, err := NewObjectExporter(store, "reports")
	if err != nil {
		t.Fatalf("NewObjectExporter: %v", err)
	}

	key, err := exporter.Export(context.Background(), report)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !strings.HasPrefix(key, "executions/exec-1/report-") || !strings.HasSuffix(key, ".ndjson") {
		t.Fatalf("key=%q", key)
	}
	data, ok := store.objects["reports/"+key]
	if !ok {
		t.Fatalf("object not stored")
	}
	if !bytes.Contains(data, []byte(`"group_key":"step-2"`)) {
		t.Fatalf("report body missing group line: %s", data)
	}
}

func TestObjectExporterValidation(t *testing.T) {
	if _, err := NewObjectExporter(nil, "reports"); err == nil {
		t.Fatalf("expected error for nil store")
	}
	store := &fakeStore{objects: map[string][]byte{}}
	if _, err := NewObjectExporter(store, "  "); err == nil {
		t.Fatalf("expected error for empty bucket")
	}
	exporter, _ := NewObjectExporter(store, "reports")
	if _, err := exporter.Export(context.Background(), Report{}); err == nil {
		t.Fatalf("expected error for empty execution id")
	}
}
