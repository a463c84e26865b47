package templates

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/agentsim-labs/agentsim-go/internal/domain"
	"github.com/agentsim-labs/agentsim-go/internal/storage/objectstore"
)

type fakeStore struct {
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error {
	raw, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[bucket+"/"+key] = raw
	return nil
}

func (s *fakeStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, objectstore.ObjectInfo, error) {
	raw, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, objectstore.ObjectInfo{}, fmt.Errorf("object not found: %s/%s", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(raw)), objectstore.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (s *fakeStore) Stat(ctx context.Context, bucket, key string) (objectstore.ObjectInfo, error) {
	raw, ok := s.objects[bucket+"/"+key]
	if !ok {
		return objectstore.ObjectInfo{}, fmt.Errorf("object not found: %s/%s", bucket, key)
	}
	return objectstore.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (s *fakeStore) Delete(ctx context.Context, bucket, key string) error {
	delete(s.objects, bucket+"/"+key)
	return nil
}

func TestResolver_GetDefinition(t *testing.T) {
	store := newFakeStore()
	store.objects["templates/defs/patrol.yaml"] = []byte(`
name: patrol
type: movement
topics:
  - /cmd_vel
  - /odom
parameters:
  speed: 1.5
  loop: true
`)

	resolver, err := NewResolver(store, "templates")
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	def, err := resolver.GetDefinition(context.Background(), domain.Template{
		ID:        "tpl-1",
		Name:      "patrol",
		ObjectKey: "defs/patrol.yaml",
	})
	if err != nil {
		t.Fatalf("GetDefinition: %v", err)
	}
	if def.Name != "patrol" {
		t.Fatalf("Name=%q, want patrol", def.Name)
	}
	if def.Type != "movement" {
		t.Fatalf("Type=%q, want movement", def.Type)
	}
	if len(def.Topics) != 2 {
		t.Fatalf("Topics=%v, want 2 entries", def.Topics)
	}
	if def.Parameters["speed"] != 1.5 {
		t.Fatalf("Parameters[speed]=%v, want 1.5", def.Parameters["speed"])
	}
}

func TestResolver_GetDefinition_MissingObjectKey(t *testing.T) {
	resolver, err := NewResolver(newFakeStore(), "templates")
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := resolver.GetDefinition(context.Background(), domain.Template{ID: "tpl-1"}); err == nil {
		t.Fatalf("expected error for empty object key")
	}
}

func TestResolver_PutGetRoundTrip(t *testing.T) {
	store := newFakeStore()
	resolver, err := NewResolver(store, "templates")
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	template := domain.Template{ID: "tpl-2", Name: "sweep", ObjectKey: "defs/sweep.yaml"}
	in := domain.TemplateDefinition{
		Name:   "sweep",
		Type:   "coverage",
		Topics: []string{"/scan"},
		Parameters: map[string]any{
			"rows": 4,
		},
	}
	if err := resolver.PutDefinition(context.Background(), template, in); err != nil {
		t.Fatalf("PutDefinition: %v", err)
	}
	out, err := resolver.GetDefinition(context.Background(), template)
	if err != nil {
		t.Fatalf("GetDefinition: %v", err)
	}
	if out.Name != in.Name || out.Type != in.Type {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
