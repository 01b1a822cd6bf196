// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics. Several processes may share one database: every commit
// checks a version row under FOR UPDATE and fails with domain.ErrStale when
// another writer got there first, so the caller retries against fresh state.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chifamba/dzinza-sub004/internal/infra/persistence/memory"
	"github.com/chifamba/dzinza-sub004/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/dzinza?sslmode=disable"
)

// SQL statements issued by the store.
const (
	stmtCreateState = `CREATE TABLE IF NOT EXISTS dzinza_state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`
	stmtCreateVersion = `CREATE TABLE IF NOT EXISTS dzinza_state_version (
		id INTEGER PRIMARY KEY,
		version BIGINT NOT NULL
	)`
	stmtSeedVersion   = `INSERT INTO dzinza_state_version(id, version) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`
	stmtSelectVersion = `SELECT version FROM dzinza_state_version WHERE id = 1`
	stmtLockVersion   = `SELECT version FROM dzinza_state_version WHERE id = 1 FOR UPDATE`
	stmtBumpVersion   = `UPDATE dzinza_state_version SET version = $1 WHERE id = 1`
	stmtSelectState   = `SELECT bucket, payload FROM dzinza_state`
	stmtUpsertState   = `INSERT INTO dzinza_state(bucket, payload) VALUES ($1, $2) ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload`
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB

	refreshMu sync.Mutex
	version   atomic.Int64
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It ensures the snapshot tables exist and hydrates the in-memory store from
// any existing snapshot.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(engine, append(opts[:len(opts):len(opts)], memory.WithCommitHook(s.persist))...)
	if err := s.reload(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// RunInTransaction refreshes from Postgres when another writer has committed,
// then applies fn through the in-memory store whose commit hook persists the
// result.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	if err := s.refresh(ctx); err != nil {
		return domain.Result{}, err
	}
	return s.Store.RunInTransaction(ctx, fn)
}

// View refreshes from Postgres when needed and reads the in-memory snapshot.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	if err := s.refresh(ctx); err != nil {
		return err
	}
	return s.Store.View(ctx, fn)
}

// Version reports the snapshot version the in-memory state reflects.
func (s *Store) Version() int64 { return s.version.Load() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func ensureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{stmtCreateState, stmtCreateVersion, stmtSeedVersion} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) refresh(ctx context.Context) error {
	var remote int64
	if err := s.db.QueryRowContext(ctx, stmtSelectVersion).Scan(&remote); err != nil {
		return fmt.Errorf("read state version: %w: %w", domain.ErrUnavailable, err)
	}
	if remote == s.version.Load() {
		return nil
	}
	return s.reload(ctx)
}

// reload imports the stored snapshot before publishing its version so a
// commit never pairs a newer version with older state.
func (s *Store) reload(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	snapshot, version, err := loadSnapshot(ctx, s.db)
	if err != nil {
		return err
	}
	if version == s.version.Load() && version != 0 {
		return nil
	}
	s.ImportState(snapshot)
	s.version.Store(version)
	return nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (snapshot memory.Snapshot, version int64, retErr error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return memory.Snapshot{}, 0, fmt.Errorf("begin load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := tx.QueryRowContext(ctx, stmtSelectVersion).Scan(&version); err != nil {
		return memory.Snapshot{}, 0, fmt.Errorf("select state version: %w", err)
	}
	rows, err := tx.QueryContext(ctx, stmtSelectState)
	if err != nil {
		return memory.Snapshot{}, 0, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, 0, fmt.Errorf("scan state: %w", err)
		}
		if err := snapshot.DecodeBucket(bucket, payload); err != nil {
			return memory.Snapshot{}, 0, err
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, 0, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, version, nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot) error {
	buckets, err := memory.EncodeBuckets(snapshot)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", domain.ErrUnavailable, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	var current int64
	if err := tx.QueryRowContext(ctx, stmtLockVersion).Scan(&current); err != nil {
		return fmt.Errorf("lock state version: %w: %w", domain.ErrUnavailable, err)
	}
	if loaded := s.version.Load(); current != loaded {
		return fmt.Errorf("state version %d, loaded %d: %w", current, loaded, domain.ErrStale)
	}
	for _, bucket := range memory.Buckets() {
		if _, err := tx.ExecContext(ctx, stmtUpsertState, bucket, buckets[bucket]); err != nil {
			return fmt.Errorf("upsert %s: %w: %w", bucket, domain.ErrUnavailable, err)
		}
	}
	if _, err := tx.ExecContext(ctx, stmtBumpVersion, current+1); err != nil {
		return fmt.Errorf("bump state version: %w: %w", domain.ErrUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		committed = true
		return fmt.Errorf("commit: %w: %w", domain.ErrOutcomeUnknown, err)
	}
	committed = true
	s.version.Store(current + 1)
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
