package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

func seed(t *testing.T, store *Store) (domain.FamilyTree, domain.Person) {
	t.Helper()
	var tree domain.FamilyTree
	var person domain.Person
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		tree, err = tx.CreateFamilyTree(domain.FamilyTree{Name: "Persist", OwnerID: "owner"})
		if err != nil {
			return err
		}
		person, err = tx.CreatePerson(domain.Person{FamilyTreeID: tree.ID, Identifier: "I1", FirstName: "Nyasha"})
		if err != nil {
			return err
		}
		_, err = tx.AdjustTreeStatistics(tree.ID, 1, 0)
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return tree, person
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	tree, person := seed(t, store)
	if store.Path() != path {
		t.Fatalf("unexpected path %s", store.Path())
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	got, ok := reloaded.GetPerson(person.ID)
	if !ok || got.FirstName != "Nyasha" {
		t.Fatalf("expected person reloaded, got %+v", got)
	}
	gotTree, ok := reloaded.GetFamilyTree(tree.ID)
	if !ok || gotTree.Statistics.TotalPersons != 1 {
		t.Fatalf("expected statistics reloaded, got %+v", gotTree)
	}
}

func TestSQLiteStoreLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "load.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	seed(t, store)
	if _, err := store.DB().Exec(`INSERT OR REPLACE INTO state(bucket,payload) VALUES(?,?)`, "persons", []byte("not-json")); err != nil {
		t.Fatalf("inject invalid state: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	_, err = NewStore(path, domain.NewRulesEngine())
	if err == nil {
		t.Fatalf("expected load error due to invalid json")
	}
	if !strings.Contains(err.Error(), "decode persons") {
		t.Fatalf("expected decode persons error, got %v", err)
	}
}

func TestSQLiteStorePersistFailureKeepsMemoryUnchanged(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "fail.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	tree, _ := seed(t, store)
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, e := tx.CreatePerson(domain.Person{FamilyTreeID: tree.ID, Identifier: "I2", FirstName: "Lost"})
		return e
	})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if got := len(store.ListPersons(tree.ID)); got != 1 {
		t.Fatalf("expected in-memory state unchanged, got %d persons", got)
	}
}
