// Package export writes point-in-time tree documents to blob storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chifamba/dzinza-sub004/internal/core"
	"github.com/chifamba/dzinza-sub004/internal/infra/blob"
	"github.com/chifamba/dzinza-sub004/pkg/domain"
)

// ContentType of every export document.
const ContentType = "application/json"

// TreeSource yields tree documents.
type TreeSource interface {
	TreeDocument(ctx context.Context, treeID, actorID string) (core.TreeDocument, error)
	LoadTreeDocument(ctx context.Context, treeID string) (core.TreeDocument, error)
	TreeIDs(ctx context.Context) ([]string, error)
	GetFamilyTree(ctx context.Context, treeID, actorID string) (core.FamilyTree, error)
}

// Recorder is notified of every written export.
type Recorder interface {
	ExportWritten()
}

// Result describes one written export.
type Result struct {
	TreeID string    `json:"tree_id"`
	Info   blob.Info `json:"blob"`
}

// Exporter serialises tree documents and stores them.
type Exporter struct {
	source      TreeSource
	store       blob.Store
	logger      *slog.Logger
	recorder    Recorder
	concurrency int
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder reports written exports, typically to Prometheus.
func WithRecorder(r Recorder) Option {
	return func(e *Exporter) { e.recorder = r }
}

// WithConcurrency bounds the number of trees ExportAll writes at once.
func WithConcurrency(n int) Option {
	return func(e *Exporter) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New returns an Exporter reading from source and writing to store.
func New(source TreeSource, store blob.Store, opts ...Option) *Exporter {
	e := &Exporter{source: source, store: store, logger: slog.Default(), concurrency: 4}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Key returns the blob key for a document exported from treeID.
func Key(doc core.TreeDocument) string {
	return fmt.Sprintf("trees/%s/exports/%s-%s.json", doc.Tree.ID, doc.ExportedAt.UTC().Format("20060102T150405Z"), uuid.NewString())
}

// Prefix is the key prefix holding all exports of treeID.
func Prefix(treeID string) string {
	return "trees/" + treeID + "/exports/"
}

// Export writes the tree as visible to actorID.
func (e *Exporter) Export(ctx context.Context, treeID, actorID string) (Result, error) {
	doc, err := e.source.TreeDocument(ctx, treeID, actorID)
	if err != nil {
		return Result{}, err
	}
	return e.write(ctx, doc, actorID)
}

// List returns the exports stored for treeID, oldest first. The caller must
// be able to view the tree.
func (e *Exporter) List(ctx context.Context, treeID, actorID string) ([]blob.Info, error) {
	if _, err := e.source.GetFamilyTree(ctx, treeID, actorID); err != nil {
		return nil, err
	}
	infos, err := e.store.List(ctx, Prefix(treeID))
	if err != nil {
		return nil, domain.Wrap(err, domain.CodeInternal, "list exports")
	}
	return infos, nil
}

// ExportAll writes a complete document for every tree. Failures for one tree
// do not stop the others; the first error is returned with the successful
// results.
func (e *Exporter) ExportAll(ctx context.Context) ([]Result, error) {
	ids, err := e.source.TreeIDs(ctx)
	if err != nil {
		return nil, err
	}
	var (
		mu       sync.Mutex
		results  []Result
		firstErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			res, err := e.exportSystem(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.ErrorContext(gctx, "tree export failed", "tree_id", id, "error", err)
				if firstErr == nil {
					firstErr = err
				}
				return nil
			}
			results = append(results, res)
			return nil
		})
	}
	_ = g.Wait()
	return results, firstErr
}

func (e *Exporter) exportSystem(ctx context.Context, treeID string) (Result, error) {
	doc, err := e.source.LoadTreeDocument(ctx, treeID)
	if err != nil {
		return Result{}, err
	}
	return e.write(ctx, doc, core.SystemActor)
}

func (e *Exporter) write(ctx context.Context, doc core.TreeDocument, actorID string) (Result, error) {
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Result{}, domain.Wrap(err, domain.CodeInternal, "encode tree document")
	}
	info, err := e.store.Put(ctx, Key(doc), bytes.NewReader(raw), blob.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"tree-id":     doc.Tree.ID,
			"exported-by": actorID,
			"persons":     fmt.Sprint(len(doc.Persons)),
		},
	})
	if err != nil {
		return Result{}, domain.Wrap(err, domain.CodeInternal, "store tree export")
	}
	if e.recorder != nil {
		e.recorder.ExportWritten()
	}
	e.logger.InfoContext(ctx, "tree exported", "tree_id", doc.Tree.ID, "key", info.Key, "size", info.Size, "actor", actorID)
	return Result{TreeID: doc.Tree.ID, Info: info}, nil
}
