package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/chifamba/dzinza-sub004/internal/infra/blob"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != blob.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}

	md := map[string]string{"tree_id": "t1"}
	info, err := s.Put(ctx, "trees/t1/exports/a.json", strings.NewReader(`{"a":1}`), blob.PutOptions{ContentType: "application/json", Metadata: md})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	md["tree_id"] = "mutated"
	if info.Size != 7 || info.Metadata["tree_id"] != "t1" {
		t.Fatalf("unexpected info %+v", info)
	}
	if _, err := s.Put(ctx, "trees/t1/exports/a.json", strings.NewReader("x"), blob.PutOptions{}); !errors.Is(err, blob.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, "../escape", strings.NewReader("x"), blob.PutOptions{}); err == nil {
		t.Fatalf("expected key validation error")
	}

	got, rc, err := s.Get(ctx, "trees/t1/exports/a.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"a":1}` || got.ContentType != "application/json" {
		t.Fatalf("unexpected object %+v %s", got, body)
	}

	if _, err := s.Put(ctx, "trees/t2/exports/b.json", strings.NewReader("{}"), blob.PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	list, err := s.List(ctx, "trees/t1/")
	if err != nil || len(list) != 1 || list[0].Key != "trees/t1/exports/a.json" {
		t.Fatalf("unexpected list %+v (%v)", list, err)
	}
	if all, _ := s.List(ctx, ""); len(all) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(all))
	}

	if err := s.Delete(ctx, "trees/t1/exports/a.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Delete(ctx, "trees/t1/exports/a.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if _, _, err := s.Get(ctx, "trees/t1/exports/a.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
