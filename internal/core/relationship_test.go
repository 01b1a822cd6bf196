package core

import (
	"context"
	"testing"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

func TestSpouseRelationshipLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	tree := mustTree(t, svc)
	a := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "A"})
	b := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "B"})

	rel := mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: a.ID, Person2ID: b.ID, Type: domain.RelationshipSpouse})
	pa, _ := loadPerson(t, svc, a.ID)
	pb, _ := loadPerson(t, svc, b.ID)
	if ids := spouseIDs(pa); len(ids) != 1 || ids[0] != b.ID {
		t.Fatalf("a spouses %v", ids)
	}
	if ids := spouseIDs(pb); len(ids) != 1 || ids[0] != a.ID {
		t.Fatalf("b spouses %v", ids)
	}
	if pa.Spouses[0].RelationshipID != rel.ID {
		t.Fatalf("spouse link missing relationship id")
	}
	if got := loadTree(t, svc, tree.ID).Statistics.TotalRelationships; got != 1 {
		t.Fatalf("expected 1 relationship, got %d", got)
	}
	assertConsistent(t, svc, tree.ID)

	if err := svc.DeleteRelationship(ctx, tree.ID, owner, rel.ID); err != nil {
		t.Fatalf("delete relationship: %v", err)
	}
	pa, _ = loadPerson(t, svc, a.ID)
	pb, _ = loadPerson(t, svc, b.ID)
	if len(pa.Spouses) != 0 || len(pb.Spouses) != 0 {
		t.Fatalf("spouse pointers left behind: %v %v", pa.Spouses, pb.Spouses)
	}
	if rels := treeRelationships(t, svc, tree.ID); len(rels) != 0 {
		t.Fatalf("relationship row left behind: %+v", rels)
	}
	assertConsistent(t, svc, tree.ID)

	err := svc.DeleteRelationship(ctx, tree.ID, owner, rel.ID)
	expectCode(t, err, domain.CodeNotFound)
}

func TestDeleteParentCascades(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	tree := mustTree(t, svc)
	a := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "A", Gender: domain.GenderMale})
	b := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "B"})
	mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: a.ID, Person2ID: b.ID, Type: domain.RelationshipParentChild})

	child, _ := loadPerson(t, svc, b.ID)
	if child.BiologicalFatherID == nil || *child.BiologicalFatherID != a.ID {
		t.Fatalf("expected father slot chosen from gender, got %+v", child)
	}
	if got := loadTree(t, svc, tree.ID).Statistics.TotalPersons; got != 2 {
		t.Fatalf("expected 2 persons, got %d", got)
	}

	if err := svc.DeletePerson(ctx, tree.ID, owner, a.ID); err != nil {
		t.Fatalf("delete person: %v", err)
	}
	child, _ = loadPerson(t, svc, b.ID)
	if child.BiologicalFatherID != nil {
		t.Fatalf("parent pointer not cleared")
	}
	if rels := treeRelationships(t, svc, tree.ID); len(rels) != 0 {
		t.Fatalf("PARENT_CHILD row left behind")
	}
	if got := loadTree(t, svc, tree.ID).Statistics.TotalPersons; got != 1 {
		t.Fatalf("expected 1 person, got %d", got)
	}
	assertConsistent(t, svc, tree.ID)
}

func TestCreateRelationshipErrors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	tree := mustTree(t, svc)
	other := mustTree(t, svc)
	mom := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "Mom", Gender: domain.GenderFemale})
	mom2 := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "Mom2", Gender: domain.GenderFemale})
	nb := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "NB", Gender: domain.GenderNonBinary})
	kid := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "Kid"})
	foreign := mustPerson(t, svc, other.ID, PersonInput{FirstName: "Foreign"})

	mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: mom.ID, Person2ID: kid.ID, Type: domain.RelationshipParentChild})
	mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: mom.ID, Person2ID: mom2.ID, Type: domain.RelationshipSibling})

	cases := []struct {
		name string
		in   RelationshipInput
		code domain.Code
	}{
		{"duplicate parent edge", RelationshipInput{Person1ID: mom.ID, Person2ID: kid.ID, Type: domain.RelationshipParentChild}, domain.CodeConflict},
		{"duplicate sibling reversed", RelationshipInput{Person1ID: mom2.ID, Person2ID: mom.ID, Type: domain.RelationshipSibling}, domain.CodeConflict},
		{"mother slot occupied", RelationshipInput{Person1ID: mom2.ID, Person2ID: kid.ID, Type: domain.RelationshipParentChild}, domain.CodeConflict},
		{"role required for non-binary parent", RelationshipInput{Person1ID: nb.ID, Person2ID: kid.ID, Type: domain.RelationshipParentChild}, domain.CodeValidation},
		{"child as parent of parent", RelationshipInput{Person1ID: kid.ID, Person2ID: mom.ID, Type: domain.RelationshipParentChild, BiologicalRole: domain.RoleFather}, domain.CodeValidation},
		{"self", RelationshipInput{Person1ID: kid.ID, Person2ID: kid.ID, Type: domain.RelationshipSpouse}, domain.CodeValidation},
		{"unknown type", RelationshipInput{Person1ID: kid.ID, Person2ID: mom.ID, Type: "COUSIN"}, domain.CodeValidation},
		{"missing person", RelationshipInput{Person1ID: kid.ID, Person2ID: "ghost", Type: domain.RelationshipSpouse}, domain.CodeNotFound},
		{"other tree", RelationshipInput{Person1ID: kid.ID, Person2ID: foreign.ID, Type: domain.RelationshipSpouse}, domain.CodeNotFound},
		{"legal type on spouse", RelationshipInput{Person1ID: kid.ID, Person2ID: nb.ID, Type: domain.RelationshipSpouse, LegalType: domain.LegalAdoptive}, domain.CodeValidation},
		{"unknown legal type", RelationshipInput{Person1ID: nb.ID, Person2ID: kid.ID, Type: domain.RelationshipParentChild, LegalType: "uncle"}, domain.CodeValidation},
	}
	for _, tc := range cases {
		_, err := svc.CreateRelationship(ctx, tree.ID, owner, tc.in)
		if got := domain.CodeOf(err); got != tc.code {
			t.Fatalf("%s: expected %s, got %s (%v)", tc.name, tc.code, got, err)
		}
	}
	_, err := svc.CreateRelationship(ctx, tree.ID, stranger, RelationshipInput{Person1ID: kid.ID, Person2ID: nb.ID, Type: domain.RelationshipSibling})
	expectCode(t, err, domain.CodeForbidden)

	if got := loadTree(t, svc, tree.ID).Statistics.TotalRelationships; got != 2 {
		t.Fatalf("failed creates changed counter: %d", got)
	}
	assertConsistent(t, svc, tree.ID)
}

func TestParentChildRoleAndLegalSlots(t *testing.T) {
	svc := newTestService(t)
	tree := mustTree(t, svc)
	nb := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "NB", Gender: domain.GenderNonBinary})
	step := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "Step", Gender: domain.GenderMale})
	kid := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "Kid"})

	mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: nb.ID, Person2ID: kid.ID, Type: domain.RelationshipParentChild, BiologicalRole: domain.RoleMother})
	rel := mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: step.ID, Person2ID: kid.ID, Type: domain.RelationshipParentChild, LegalType: domain.LegalStepParent, Notes: "married in 2001"})
	if rel.LegalType != domain.LegalStepParent || rel.Notes != "married in 2001" {
		t.Fatalf("relationship metadata not stored: %+v", rel)
	}

	child, _ := loadPerson(t, svc, kid.ID)
	if child.BiologicalMotherID == nil || *child.BiologicalMotherID != nb.ID {
		t.Fatalf("explicit role ignored: %+v", child.BiologicalMotherID)
	}
	if child.BiologicalFatherID != nil {
		t.Fatalf("legal parent leaked into father slot")
	}
	if len(child.LegalParents) != 1 || child.LegalParents[0].Type != domain.LegalStepParent {
		t.Fatalf("legal parent not mirrored: %+v", child.LegalParents)
	}
	assertConsistent(t, svc, tree.ID)

	if err := svc.DeleteRelationship(context.Background(), tree.ID, owner, rel.ID); err != nil {
		t.Fatalf("delete legal edge: %v", err)
	}
	child, _ = loadPerson(t, svc, kid.ID)
	if len(child.LegalParents) != 0 || child.BiologicalMotherID == nil {
		t.Fatalf("unexpected pointers after legal edge removal: %+v", child)
	}
	assertConsistent(t, svc, tree.ID)
}

func TestDeleteRelationshipBetween(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	tree := mustTree(t, svc)
	a := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "A", Gender: domain.GenderFemale})
	b := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "B"})
	mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: a.ID, Person2ID: b.ID, Type: domain.RelationshipSibling})
	mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: a.ID, Person2ID: b.ID, Type: domain.RelationshipParentChild})

	err := svc.DeleteRelationshipBetween(ctx, tree.ID, owner, b.ID, a.ID, domain.RelationshipParentChild)
	expectCode(t, err, domain.CodeNotFound)

	if err := svc.DeleteRelationshipBetween(ctx, tree.ID, owner, b.ID, a.ID, domain.RelationshipSibling); err != nil {
		t.Fatalf("delete undirected edge in reverse order: %v", err)
	}
	if err := svc.DeleteRelationshipBetween(ctx, tree.ID, owner, a.ID, b.ID, domain.RelationshipParentChild); err != nil {
		t.Fatalf("delete parent edge: %v", err)
	}
	pa, _ := loadPerson(t, svc, a.ID)
	pb, _ := loadPerson(t, svc, b.ID)
	if len(pa.Siblings) != 0 || len(pb.Siblings) != 0 || pb.BiologicalMotherID != nil {
		t.Fatalf("pointers left behind: %+v %+v", pa, pb)
	}
	err = svc.DeleteRelationshipBetween(ctx, tree.ID, owner, a.ID, b.ID, "COUSIN")
	expectCode(t, err, domain.CodeValidation)
	assertConsistent(t, svc, tree.ID)
}

func TestListRelationships(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	tree := mustTree(t, svc)
	if _, err := svc.AddCollaborator(ctx, tree.ID, owner, "viewer", domain.CollaboratorViewer); err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	a := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "A"})
	b := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "B"})
	hidden := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "Hidden", Privacy: domain.PrivacySettings{ShowProfile: domain.ProfilePrivate}})
	mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: a.ID, Person2ID: b.ID, Type: domain.RelationshipSpouse})
	mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: a.ID, Person2ID: hidden.ID, Type: domain.RelationshipSibling})

	all, err := svc.ListRelationships(ctx, tree.ID, owner, "")
	if err != nil || len(all) != 2 {
		t.Fatalf("owner should see 2 relationships, got %d (%v)", len(all), err)
	}
	visible, err := svc.ListRelationships(ctx, tree.ID, "viewer", "")
	if err != nil || len(visible) != 1 {
		t.Fatalf("viewer should see 1 relationship, got %d (%v)", len(visible), err)
	}
	forB, err := svc.ListRelationships(ctx, tree.ID, owner, b.ID)
	if err != nil || len(forB) != 1 || !forB[0].Involves(b.ID) {
		t.Fatalf("filter by person failed: %+v (%v)", forB, err)
	}
	_, err = svc.ListRelationships(ctx, tree.ID, owner, "ghost")
	expectCode(t, err, domain.CodeNotFound)
	_, err = svc.ListRelationships(ctx, tree.ID, stranger, "")
	expectCode(t, err, domain.CodeForbidden)
}
