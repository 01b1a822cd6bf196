package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chifamba/dzinza-sub004/internal/core"
	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

// seed builds a tree whose store runs no rules so it can be corrupted.
func seed(t *testing.T) (*core.Service, string, string) {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInMemoryService(core.NewRulesEngine())
	tree, err := svc.CreateFamilyTree(ctx, "owner", core.FamilyTreeInput{Name: "Audit"})
	if err != nil {
		t.Fatalf("create tree: %v", err)
	}
	mother, err := svc.CreatePerson(ctx, tree.ID, "owner", core.PersonInput{FirstName: "Rudo"})
	if err != nil {
		t.Fatalf("create mother: %v", err)
	}
	if _, err := svc.CreatePerson(ctx, tree.ID, "owner", core.PersonInput{FirstName: "Tendai", BiologicalMotherID: mother.ID}); err != nil {
		t.Fatalf("create child: %v", err)
	}
	return svc, tree.ID, mother.ID
}

func TestAuditCleanStore(t *testing.T) {
	svc, _, _ := seed(t)
	findings, trees, err := audit(context.Background(), svc.Store(), core.NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if trees != 1 || len(findings) != 0 {
		t.Fatalf("expected clean audit of 1 tree, got %d trees %+v", trees, findings)
	}
}

func TestAuditReportsDanglingPointerAndDrift(t *testing.T) {
	svc, treeID, motherID := seed(t)
	_, err := svc.Store().RunInTransaction(context.Background(), func(tx core.Transaction) error {
		_, err := tx.CreatePerson(domain.Person{FamilyTreeID: treeID, FirstName: "Orphan", Gender: domain.GenderUnknown, BiologicalMotherID: &motherID})
		return err
	})
	if err != nil {
		t.Fatalf("corrupt: %v", err)
	}

	findings, _, err := audit(context.Background(), svc.Store(), core.NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	var blocking, drift bool
	for _, f := range findings {
		if f.Severity == domain.SeverityBlock && strings.Contains(f.Message, "no backing relationship") {
			blocking = true
		}
		if f.Severity == domain.SeverityWarn && f.EntityID == treeID {
			drift = true
		}
	}
	if !blocking || !drift {
		t.Fatalf("expected dangling pointer and counter drift, got %+v", findings)
	}

	var out bytes.Buffer
	if err := report(&out, findings, 1, false); err != nil {
		t.Fatalf("report: %v", err)
	}
	if !strings.Contains(out.String(), "SEVERITY") || !strings.Contains(out.String(), "findings") {
		t.Fatalf("unexpected table:\n%s", out.String())
	}
	out.Reset()
	if err := report(&out, findings, 1, true); err != nil {
		t.Fatalf("report json: %v", err)
	}
	var decoded struct {
		Trees    int       `json:"trees"`
		Findings []finding `json:"findings"`
	}
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Trees != 1 || len(decoded.Findings) != len(findings) {
		t.Fatalf("unexpected json report %+v", decoded)
	}
}

func TestCLIOnEmptySQLiteStore(t *testing.T) {
	t.Setenv("DZINZA_STORAGE_DRIVER", "sqlite")
	t.Setenv("DZINZA_SQLITE_PATH", filepath.Join(t.TempDir(), "audit.db"))
	var stdout, stderr bytes.Buffer
	if code := cli(context.Background(), nil, &stdout, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "Checked 0 family trees") {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestCLIConfigError(t *testing.T) {
	t.Setenv("DZINZA_STORAGE_DRIVER", "postgres")
	t.Setenv("DZINZA_POSTGRES_DSN", "")
	var stderr bytes.Buffer
	if code := cli(context.Background(), nil, &bytes.Buffer{}, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
}
