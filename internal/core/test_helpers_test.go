package core

import (
	"context"
	"slices"
	"testing"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

const (
	owner    = "user-owner"
	stranger = "user-stranger"
)

func strPtr(v string) *string {
	return &v
}

func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	return NewInMemoryService(nil, append([]Option{WithRetry(3, 0)}, opts...)...)
}

func mustTree(t *testing.T, svc *Service) FamilyTree {
	t.Helper()
	tree, err := svc.CreateFamilyTree(context.Background(), owner, FamilyTreeInput{Name: "Moyo"})
	if err != nil {
		t.Fatalf("create tree: %v", err)
	}
	return tree
}

func mustPerson(t *testing.T, svc *Service, treeID string, in PersonInput) Person {
	t.Helper()
	p, err := svc.CreatePerson(context.Background(), treeID, owner, in)
	if err != nil {
		t.Fatalf("create person %s: %v", in.FirstName, err)
	}
	return p
}

func mustRelationship(t *testing.T, svc *Service, treeID string, in RelationshipInput) Relationship {
	t.Helper()
	rel, err := svc.CreateRelationship(context.Background(), treeID, owner, in)
	if err != nil {
		t.Fatalf("create %s relationship: %v", in.Type, err)
	}
	return rel
}

func loadPerson(t *testing.T, svc *Service, id string) (Person, bool) {
	t.Helper()
	var (
		p  Person
		ok bool
	)
	if err := svc.Store().View(context.Background(), func(v TransactionView) error {
		p, ok = v.FindPerson(id)
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	return p, ok
}

func loadTree(t *testing.T, svc *Service, id string) FamilyTree {
	t.Helper()
	var tree FamilyTree
	if err := svc.Store().View(context.Background(), func(v TransactionView) error {
		tree, _ = v.FindFamilyTree(id)
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	return tree
}

func treeRelationships(t *testing.T, svc *Service, treeID string) []Relationship {
	t.Helper()
	var rels []Relationship
	if err := svc.Store().View(context.Background(), func(v TransactionView) error {
		rels = v.ListRelationships(treeID)
		return nil
	}); err != nil {
		t.Fatalf("view: %v", err)
	}
	return rels
}

// assertConsistent runs the integrity rules over committed state and checks
// the maintained counters against live rows.
func assertConsistent(t *testing.T, svc *Service, treeID string) {
	t.Helper()
	ctx := context.Background()
	err := svc.Store().View(ctx, func(v TransactionView) error {
		res, err := NewDefaultRulesEngine().Evaluate(ctx, v, []Change{{TreeID: treeID}})
		if err != nil {
			return err
		}
		for _, violation := range res.Violations {
			t.Errorf("violation %s (%s): %s", violation.Rule, violation.Severity, violation.Message)
		}
		tree, _ := v.FindFamilyTree(treeID)
		if got, want := tree.Statistics.TotalPersons, len(v.ListPersons(treeID)); got != want {
			t.Errorf("total persons %d, live %d", got, want)
		}
		if got, want := tree.Statistics.TotalRelationships, len(v.ListRelationships(treeID)); got != want {
			t.Errorf("total relationships %d, live %d", got, want)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("evaluate rules: %v", err)
	}
}

func expectCode(t *testing.T, err error, code domain.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if got := domain.CodeOf(err); got != code {
		t.Fatalf("expected %s error, got %s (%v)", code, got, err)
	}
}

func spouseIDs(p Person) []string {
	out := make([]string, 0, len(p.Spouses))
	for _, s := range p.Spouses {
		out = append(out, s.SpouseID)
	}
	slices.Sort(out)
	return out
}
