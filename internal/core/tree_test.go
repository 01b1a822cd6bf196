package core

import (
	"context"
	"testing"

	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

func TestCreateFamilyTree(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	tree, err := svc.CreateFamilyTree(ctx, owner, FamilyTreeInput{Name: "  Shumba  ", Description: "lion clan"})
	if err != nil {
		t.Fatalf("create tree: %v", err)
	}
	if tree.ID == "" || tree.Name != "Shumba" || tree.OwnerID != owner || tree.Visibility != domain.TreePrivate {
		t.Fatalf("unexpected tree %+v", tree)
	}

	_, err = svc.CreateFamilyTree(ctx, owner, FamilyTreeInput{})
	expectCode(t, err, domain.CodeValidation)
	_, err = svc.CreateFamilyTree(ctx, owner, FamilyTreeInput{Name: "X", Visibility: "secret"})
	expectCode(t, err, domain.CodeValidation)
	_, err = svc.CreateFamilyTree(ctx, "", FamilyTreeInput{Name: "X"})
	expectCode(t, err, domain.CodeUnauthenticated)
}

func TestFamilyTreeAccess(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	private := mustTree(t, svc)
	public, err := svc.CreateFamilyTree(ctx, "someone-else", FamilyTreeInput{Name: "Open", Visibility: domain.TreePublic})
	if err != nil {
		t.Fatalf("create public tree: %v", err)
	}

	if _, err := svc.GetFamilyTree(ctx, private.ID, owner); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	_, err = svc.GetFamilyTree(ctx, private.ID, stranger)
	expectCode(t, err, domain.CodeForbidden)
	_, err = svc.GetFamilyTree(ctx, "missing", owner)
	expectCode(t, err, domain.CodeNotFound)
	if _, err := svc.GetFamilyTree(ctx, public.ID, stranger); err != nil {
		t.Fatalf("public tree hidden: %v", err)
	}
	_, err = svc.CreatePerson(ctx, public.ID, stranger, PersonInput{FirstName: "X"})
	expectCode(t, err, domain.CodeForbidden)

	trees, err := svc.ListFamilyTrees(ctx, stranger)
	if err != nil || len(trees) != 1 || trees[0].ID != public.ID {
		t.Fatalf("stranger should list only the public tree, got %+v (%v)", trees, err)
	}
	trees, err = svc.ListFamilyTrees(ctx, owner)
	if err != nil || len(trees) != 2 {
		t.Fatalf("owner should list 2 trees, got %d (%v)", len(trees), err)
	}
	ids, err := svc.TreeIDs(ctx)
	if err != nil || len(ids) != 2 {
		t.Fatalf("tree ids: %v (%v)", ids, err)
	}
}

func TestCollaborators(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	tree := mustTree(t, svc)

	updated, err := svc.AddCollaborator(ctx, tree.ID, owner, "ed", domain.CollaboratorViewer)
	if err != nil {
		t.Fatalf("add collaborator: %v", err)
	}
	if role, ok := updated.CollaboratorRole("ed"); !ok || role != domain.CollaboratorViewer {
		t.Fatalf("viewer not recorded: %+v", updated.Collaborators)
	}
	_, err = svc.CreatePerson(ctx, tree.ID, "ed", PersonInput{FirstName: "X"})
	expectCode(t, err, domain.CodeForbidden)

	updated, err = svc.AddCollaborator(ctx, tree.ID, owner, "ed", domain.CollaboratorEditor)
	if err != nil {
		t.Fatalf("promote collaborator: %v", err)
	}
	if len(updated.Collaborators) != 1 {
		t.Fatalf("role change duplicated collaborator: %+v", updated.Collaborators)
	}
	if _, err := svc.CreatePerson(ctx, tree.ID, "ed", PersonInput{FirstName: "ByEditor"}); err != nil {
		t.Fatalf("editor create: %v", err)
	}

	_, err = svc.AddCollaborator(ctx, tree.ID, "ed", "other", domain.CollaboratorViewer)
	expectCode(t, err, domain.CodeForbidden)
	_, err = svc.AddCollaborator(ctx, tree.ID, owner, owner, domain.CollaboratorEditor)
	expectCode(t, err, domain.CodeValidation)
	_, err = svc.AddCollaborator(ctx, tree.ID, owner, "x", "admin")
	expectCode(t, err, domain.CodeValidation)
	_, err = svc.AddCollaborator(ctx, "missing", owner, "x", domain.CollaboratorViewer)
	expectCode(t, err, domain.CodeNotFound)

	if _, err := svc.RemoveCollaborator(ctx, tree.ID, owner, "ed"); err != nil {
		t.Fatalf("remove collaborator: %v", err)
	}
	_, err = svc.RemoveCollaborator(ctx, tree.ID, owner, "ed")
	expectCode(t, err, domain.CodeNotFound)
	_, err = svc.GetFamilyTree(ctx, tree.ID, "ed")
	expectCode(t, err, domain.CodeForbidden)
}

func TestReconcileStatisticsWithoutDrift(t *testing.T) {
	svc := newTestService(t)
	tree := mustTree(t, svc)
	buildFamily(t, svc, tree.ID)

	drift, err := svc.ReconcileStatistics(context.Background(), tree.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if drift.Drifted() || drift.PersonsAfter != 7 || drift.RelationshipsAfter != 10 {
		t.Fatalf("unexpected drift %+v", drift)
	}
	_, err = svc.ReconcileStatistics(context.Background(), "missing")
	expectCode(t, err, domain.CodeNotFound)
}

func TestTreeDocument(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	tree := mustTree(t, svc)
	if _, err := svc.AddCollaborator(ctx, tree.ID, owner, "viewer", domain.CollaboratorViewer); err != nil {
		t.Fatalf("add viewer: %v", err)
	}
	a := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "A"})
	hidden := mustPerson(t, svc, tree.ID, PersonInput{FirstName: "Hidden", Privacy: domain.PrivacySettings{ShowProfile: domain.ProfilePrivate}})
	mustRelationship(t, svc, tree.ID, RelationshipInput{Person1ID: a.ID, Person2ID: hidden.ID, Type: domain.RelationshipSpouse})

	full, err := svc.TreeDocument(ctx, tree.ID, owner)
	if err != nil {
		t.Fatalf("owner document: %v", err)
	}
	if len(full.Persons) != 2 || len(full.Relationships) != 1 || full.Tree.ID != tree.ID || full.ExportedAt.IsZero() {
		t.Fatalf("unexpected full document %+v", full)
	}
	partial, err := svc.TreeDocument(ctx, tree.ID, "viewer")
	if err != nil {
		t.Fatalf("viewer document: %v", err)
	}
	if len(partial.Persons) != 1 || len(partial.Relationships) != 0 {
		t.Fatalf("private data leaked into viewer document: %+v", partial)
	}
	_, err = svc.TreeDocument(ctx, tree.ID, stranger)
	expectCode(t, err, domain.CodeForbidden)

	system, err := svc.LoadTreeDocument(ctx, tree.ID)
	if err != nil || len(system.Persons) != 2 {
		t.Fatalf("system document: %+v (%v)", system, err)
	}
	_, err = svc.LoadTreeDocument(ctx, "missing")
	expectCode(t, err, domain.CodeNotFound)
}
