// Command dzinza-check audits a stored dataset by running the integrity rules
// over every family tree. Counter drift shows up as a warning.
//
// Exit status is 0 when the data is consistent, 1 when any blocking
// violation is found and 2 on usage or configuration errors.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/chifamba/dzinza-sub004/internal/core"
	"github.com/chifamba/dzinza-sub004/internal/platform/config"
	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

var exitFunc = os.Exit

// finding is one reported problem.
type finding struct {
	Rule     string          `json:"rule"`
	Severity domain.Severity `json:"severity"`
	Entity   string          `json:"entity"`
	EntityID string          `json:"entity_id"`
	Message  string          `json:"message"`
}

func main() {
	exitFunc(cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dzinza-check", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("DZINZA_CONFIG"), "path to YAML config file")
	asJSON := fs.Bool("json", false, "print findings as JSON")
	strict := fs.Bool("strict", false, "treat counter drift and other warnings as failures")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 2
	}
	store, closeStore, err := core.OpenPersistentStore(ctx, core.StorageOptions{
		Driver:      core.StorageDriver(cfg.Storage.Driver),
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "open store: %v\n", err)
		return 2
	}
	defer func() { _ = closeStore() }()

	findings, trees, err := audit(ctx, store, core.NewDefaultRulesEngine())
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "audit: %v\n", err)
		return 2
	}
	if err := report(stdout, findings, trees, *asJSON); err != nil {
		_, _ = fmt.Fprintf(stderr, "write report: %v\n", err)
		return 2
	}
	for _, f := range findings {
		if f.Severity == domain.SeverityBlock || *strict {
			return 1
		}
	}
	return 0
}

// audit evaluates every rule against the whole store. It returns the number
// of trees inspected.
func audit(ctx context.Context, store core.PersistentStore, engine *core.RulesEngine) ([]finding, int, error) {
	var (
		findings []finding
		trees    int
	)
	err := store.View(ctx, func(view core.TransactionView) error {
		res, err := engine.Evaluate(ctx, view, nil)
		if err != nil {
			return err
		}
		for _, v := range res.Violations {
			findings = append(findings, finding{
				Rule:     v.Rule,
				Severity: v.Severity,
				Entity:   string(v.Entity),
				EntityID: v.EntityID,
				Message:  v.Message,
			})
		}
		trees = len(view.ListFamilyTrees())
		return nil
	})
	return findings, trees, err
}

func report(w io.Writer, findings []finding, trees int, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Trees    int       `json:"trees"`
			Findings []finding `json:"findings"`
		}{Trees: trees, Findings: findings})
	}
	if len(findings) == 0 {
		_, err := fmt.Fprintf(w, "Checked %d family trees: no problems found.\n", trees)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "SEVERITY\tRULE\tENTITY\tID\tMESSAGE")
	for _, f := range findings {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.Severity, f.Rule, f.Entity, f.EntityID, f.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "Checked %d family trees: %d findings.\n", trees, len(findings))
	return err
}
