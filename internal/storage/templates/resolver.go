package templates

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/storage/objectstore"
)

// Resolver loads template definition documents from the object store. The
// templates table holds the reference; the YAML body lives in the bucket.
type Resolver struct {
	store  objectstore.Store
	bucket string
}

func NewResolver(store objectstore.Store, bucket string) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	return &Resolver{store: store, bucket: bucket}, nil
}

func (r *Resolver) GetDefinition(ctx context.Context, template domain.Template) (domain.TemplateDefinition, error) {
	if r == nil || r.store == nil {
		return domain.TemplateDefinition{}, fmt.Errorf("template resolver not initialized")
	}
	key := strings.TrimSpace(template.ObjectKey)
	if key == "" {
		return domain.TemplateDefinition{}, fmt.Errorf("template %s has no object key", template.ID)
	}

	body, _, err := r.store.Get(ctx, r.bucket, key)
	if err != nil {
		return domain.TemplateDefinition{}, fmt.Errorf("get template object %s: %w", key, err)
	}
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(body)
	if err != nil {
		return domain.TemplateDefinition{}, fmt.Errorf("read template object %s: %w", key, err)
	}

	var def domain.TemplateDefinition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return domain.TemplateDefinition{}, fmt.Errorf("parse template %s: %w", template.ID, err)
	}
	return def, nil
}

func (r *Resolver) PutDefinition(ctx context.Context, template domain.Template, def domain.TemplateDefinition) error {
	if r == nil || r.store == nil {
		return fmt.Errorf("template resolver not initialized")
	}
	key := strings.TrimSpace(template.ObjectKey)
	if key == "" {
		return fmt.Errorf("template %s has no object key", template.ID)
	}

	raw, err := yaml.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal template %s: %w", template.ID, err)
	}
	if err := r.store.Put(ctx, r.bucket, key, bytes.NewReader(raw), int64(len(raw)), "application/yaml"); err != nil {
		return fmt.Errorf("put template object %s: %w", key, err)
	}
	return nil
}
