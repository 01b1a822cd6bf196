package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/chifamba/dzinza-sub004/internal/core"
	"github.com/chifamba/dzinza-sub004/internal/export"
	"github.com/chifamba/dzinza-sub004/internal/infra/blob/memory"
	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recorder struct {
	mu       sync.Mutex
	runs     map[string][]bool
	repaired int
}

func (r *recorder) JobRun(job string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.runs == nil {
		r.runs = map[string][]bool{}
	}
	r.runs[job] = append(r.runs[job], success)
}

func (r *recorder) StatisticsRepaired() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.repaired++
}

func TestRegisterValidatesSchedules(t *testing.T) {
	s := NewScheduler(quietLogger(), nil)
	noop := func(context.Context) error { return nil }

	if err := s.Register("disabled", "", noop); err != nil {
		t.Fatalf("empty schedule should disable, got %v", err)
	}
	if err := s.Register("bad", "every tuesday", noop); err == nil {
		t.Fatalf("expected parse error")
	}
	if err := s.Register("hourly", "@hourly", noop); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := s.Register("hourly", "0 * * * *", noop); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if jobs := s.Jobs(); len(jobs) != 1 || jobs[0] != "hourly" {
		t.Fatalf("unexpected jobs %v", jobs)
	}
}

func TestSchedulerRunsJobs(t *testing.T) {
	rec := &recorder{}
	s := NewScheduler(quietLogger(), rec)
	ran := make(chan struct{}, 8)
	if err := s.Register("tick", "@every 1s", func(context.Context) error {
		ran <- struct{}{}
		return errors.New("boom")
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	s.Start()
	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatalf("job never ran")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if runs := rec.runs["tick"]; len(runs) == 0 || runs[0] {
		t.Fatalf("failed run not recorded: %v", runs)
	}
}

// corruptCounters skews the person counter the way a bad import would.
func corruptCounters(t *testing.T, svc *core.Service, treeID string) {
	t.Helper()
	_, err := svc.Store().RunInTransaction(context.Background(), func(tx core.Transaction) error {
		_, err := tx.AdjustTreeStatistics(treeID, 5, 0)
		return err
	})
	if err != nil {
		t.Fatalf("corrupt counters: %v", err)
	}
}

func TestReconcileAll(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	clean, err := svc.CreateFamilyTree(ctx, "owner", core.FamilyTreeInput{Name: "Clean"})
	if err != nil {
		t.Fatalf("create tree: %v", err)
	}
	drifted, err := svc.CreateFamilyTree(ctx, "owner", core.FamilyTreeInput{Name: "Drifted"})
	if err != nil {
		t.Fatalf("create tree: %v", err)
	}
	if _, err := svc.CreatePerson(ctx, clean.ID, "owner", core.PersonInput{FirstName: "A"}); err != nil {
		t.Fatalf("create person: %v", err)
	}
	corruptCounters(t, svc, drifted.ID)

	rec := &recorder{}
	if err := ReconcileAll(svc, rec, quietLogger())(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rec.repaired != 1 {
		t.Fatalf("expected 1 repaired tree, got %d", rec.repaired)
	}
	tree, err := svc.GetFamilyTree(ctx, drifted.ID, "owner")
	if err != nil {
		t.Fatalf("get tree: %v", err)
	}
	if tree.Statistics.TotalPersons != 0 {
		t.Fatalf("counters not repaired: %+v", tree.Statistics)
	}
}

type failingReconciler struct{}

func (failingReconciler) TreeIDs(context.Context) ([]string, error) { return []string{"a", "b"}, nil }

func (failingReconciler) ReconcileStatistics(_ context.Context, id string) (core.StatisticsDrift, error) {
	if id == "a" {
		return core.StatisticsDrift{}, domain.New(domain.CodeNotFound, "gone")
	}
	return core.StatisticsDrift{TreeID: id}, nil
}

func TestReconcileAllJoinsFailures(t *testing.T) {
	err := ReconcileAll(failingReconciler{}, nil, quietLogger())(context.Background())
	if err == nil || !domain.HasCode(err, domain.CodeNotFound) {
		t.Fatalf("expected joined not found error, got %v", err)
	}
}

func TestExportAllJob(t *testing.T) {
	ctx := context.Background()
	svc := core.NewInMemoryService(nil)
	tree, err := svc.CreateFamilyTree(ctx, "owner", core.FamilyTreeInput{Name: "Exported"})
	if err != nil {
		t.Fatalf("create tree: %v", err)
	}
	store := memory.New()
	job := ExportAll(export.New(svc, store, export.WithLogger(quietLogger())), quietLogger())
	if err := job(ctx); err != nil {
		t.Fatalf("export job: %v", err)
	}
	if infos, _ := store.List(ctx, export.Prefix(tree.ID)); len(infos) != 1 {
		t.Fatalf("expected one export, got %d", len(infos))
	}
}
