package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/chifamba/dzinza-sub004/internal/core"
	"github.com/chifamba/dzinza-sub004/internal/export"
)

// Job names.
const (
	JobReconcileStatistics = "reconcile_statistics"
	JobExportTrees         = "export_trees"
)

// Reconciler repairs maintained tree counters.
type Reconciler interface {
	TreeIDs(ctx context.Context) ([]string, error)
	ReconcileStatistics(ctx context.Context, treeID string) (core.StatisticsDrift, error)
}

// RepairRecorder counts repaired trees.
type RepairRecorder interface {
	StatisticsRepaired()
}

// ReconcileAll recounts every tree. Trees that fail are logged and reported
// together after the rest have been processed.
func ReconcileAll(r Reconciler, recorder RepairRecorder, logger *slog.Logger) Func {
	return func(ctx context.Context) error {
		ids, err := r.TreeIDs(ctx)
		if err != nil {
			return fmt.Errorf("list trees: %w", err)
		}
		var errs []error
		repaired := 0
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			drift, err := r.ReconcileStatistics(ctx, id)
			if err != nil {
				logger.ErrorContext(ctx, "statistics reconciliation failed", "tree_id", id, "error", err)
				errs = append(errs, fmt.Errorf("tree %s: %w", id, err))
				continue
			}
			if drift.Drifted() {
				repaired++
				if recorder != nil {
					recorder.StatisticsRepaired()
				}
			}
		}
		logger.InfoContext(ctx, "statistics reconciliation finished", "trees", len(ids), "repaired", repaired)
		return errors.Join(errs...)
	}
}

// ExportAll writes an export for every tree.
func ExportAll(e *export.Exporter, logger *slog.Logger) Func {
	return func(ctx context.Context) error {
		results, err := e.ExportAll(ctx)
		logger.InfoContext(ctx, "tree export run finished", "exported", len(results))
		return err
	}
}
