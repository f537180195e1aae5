// Package store implements the single embedded relational database
// connection pool and the scoped transaction/savepoint primitive (C1).
// It is grounded on the teacher's internal/memory/db.go connect/migrate
// shape, generalized from a flat withTx helper to nested savepoints.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/CLIAIMONITOR/orchestrator/internal/orcerr"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so repositories can
// be written once against whichever is ambient for the current context.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store owns the one process-wide *sql.DB pool.
type Store struct {
	db  *sql.DB
	log *logrus.Entry

	exitOnce sync.Once
	stopExit chan struct{}
}

type txKey struct{}

type txState struct {
	q     Querier
	depth int
}

// Open creates (if absent) and connects to the embedded database at
// path, runs the idempotent schema exactly once inside one transaction,
// and installs a process-exit hook that checkpoints and closes the pool
// on unexpected termination.
func Open(path string, poolSize int) (*Store, error) {
	if poolSize <= 0 {
		poolSize = 10
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOFatal, "create database directory", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, orcerr.Wrap(orcerr.KindIOFatal, "open database", err)
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	s := &Store{
		db:       db,
		log:      logrus.WithField("component", "store"),
		stopExit: make(chan struct{}),
	}

	if err := s.Transaction(context.Background(), func(ctx context.Context) error {
		return s.initSchema(ctx)
	}); err != nil {
		db.Close()
		return nil, orcerr.Wrap(orcerr.KindIOFatal, "initialize schema", err)
	}

	s.installExitHook()

	return s, nil
}

// Querier returns the ambient connection for ctx: the active
// transaction's *sql.Tx if one is in progress, otherwise the pool.
func (s *Store) Querier(ctx context.Context) Querier {
	if st, ok := ctx.Value(txKey{}).(*txState); ok {
		return st.q
	}
	return s.db
}

// Transaction runs fn under a scoped transaction. The outermost call
// disables auto-commit, runs fn, commits on normal return, and rolls
// back on any failure; it restores auto-commit and returns the
// connection to the pool on every exit path. A nested call (fn invoked
// while a transaction is already ambient on ctx, discovered via ctx
// rather than parameter passing) wraps fn in a uniquely-named
// savepoint instead: failure rolls back to that savepoint only, success
// releases it, and the outer transaction is untouched either way.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if existing, ok := ctx.Value(txKey{}).(*txState); ok {
		return s.runSavepoint(ctx, existing, fn)
	}
	return s.runRootTransaction(ctx, fn)
}

func (s *Store) runRootTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "begin transaction", err)
	}

	childCtx := context.WithValue(ctx, txKey{}, &txState{q: tx, depth: 1})

	if err := fn(childCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.WithError(rbErr).Warn("rollback failed after transaction error")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "commit transaction", err)
	}
	return nil
}

func (s *Store) runSavepoint(ctx context.Context, parent *txState, fn func(ctx context.Context) error) error {
	name := savepointName(parent.depth)

	if _, err := parent.q.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "create savepoint", err)
	}

	childCtx := context.WithValue(ctx, txKey{}, &txState{q: parent.q, depth: parent.depth + 1})

	if err := fn(childCtx); err != nil {
		if _, rbErr := parent.q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			s.log.WithError(rbErr).Warn("rollback to savepoint failed")
		}
		return err
	}

	if _, err := parent.q.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return orcerr.Wrap(orcerr.KindIOTransient, "release savepoint", err)
	}
	return nil
}

func savepointName(depth int) string {
	return fmt.Sprintf("sp_%d_%s", depth, uuid.New().String()[:8])
}

// Shutdown issues a checkpoint then closes the pool.
func (s *Store) Shutdown() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.log.WithError(err).Warn("checkpoint failed during shutdown")
	}
	close(s.stopExit)
	return s.db.Close()
}

// installExitHook performs the same checkpoint-then-close on SIGINT/
// SIGTERM so an unexpected termination does not leave the WAL unmerged.
func (s *Store) installExitHook() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			s.exitOnce.Do(func() {
				s.log.Warn("process signal received, checkpointing before exit")
				_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
				_ = s.db.Close()
			})
		case <-s.stopExit:
		}
		signal.Stop(sigCh)
	}()
}
