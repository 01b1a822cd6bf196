package core

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chifamba/dzinza-sub004/internal/infra/persistence/memory"
	"github.com/chifamba/dzinza-sub004/internal/infra/persistence/sqlite"
	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, closeFn, err := OpenPersistentStore(context.Background(), StorageOptions{Driver: StorageMemory}, nil)
	if err != nil {
		t.Fatalf("open memory: %v", err)
	}
	defer closeFn()
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLiteSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dzinza.db")
	store, closeFn, err := OpenPersistentStore(ctx, StorageOptions{SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store by default, got %T", store)
	}
	svc := NewService(store)
	tree := mustTree(t, svc)
	parent := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "Parent", Gender: domain.GenderFemale})
	child := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "Child", BiologicalMotherID: parent.ID})
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, closeAgain, err := OpenPersistentStore(ctx, StorageOptions{Driver: StorageSQLite, SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer closeAgain()
	svc = NewService(reopened)
	details, err := svc.GetPerson(ctx, tree.ID, owner, child.ID)
	if err != nil {
		t.Fatalf("get after restart: %v", err)
	}
	if details.BiologicalMother == nil || details.BiologicalMother.ID != parent.ID {
		t.Fatalf("parent link lost across restart: %+v", details)
	}
	assertConsistent(t, svc, tree.ID)
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	if _, _, err := OpenPersistentStore(context.Background(), StorageOptions{Driver: "mongo"}, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
