package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentsim-labs/agentsim-go/internal/storage/objectstore"
)

const reportContentType = "application/x-ndjson"

// ObjectExporter persists execution reports in the reports bucket.
type ObjectExporter struct {
	store  objectstore.Store
	bucket string
}

func NewObjectExporter(store objectstore.Store, bucket string) (*ObjectExporter, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &ObjectExporter{store: store, bucket: bucket}, nil
}

// Export writes the report and returns its object key.
func (e *ObjectExporter) Export(ctx context.Context, report Report) (string, error) {
	if strings.TrimSpace(report.Execution.ExecutionID) == "" {
		return "", errors.New("execution id is required")
	}

	var buf bytes.Buffer
	if err := NewNDJSONEncoder(&buf).Encode(report); err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	key := fmt.Sprintf("executions/%s/report-%d.ndjson",
		report.Execution.ExecutionID,
		report.Execution.GeneratedAt.UTC().Unix())
	if err := e.store.Put(ctx, e.bucket, key, &buf, int64(buf.Len()), reportContentType); err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	return key, nil
}
