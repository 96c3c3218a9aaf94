package store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/hyperengineering/habitstore/internal/types"
)

// MemoryPath selects a private in-memory database.
const MemoryPath = ":memory:"

// Options configures Open.
type Options struct {
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// SQLiteStore is the SQLite-backed Handle.
type SQLiteStore struct {
	db       *sqlx.DB
	sourceID string
	logger   *slog.Logger

	jobs chan job
	done chan struct{}

	// mu guards closed against concurrent sends on jobs.
	mu     sync.RWMutex
	closed bool

	subsMu  sync.Mutex
	subs    map[uint64]func(ChangeSet)
	nextSub uint64
}

type job struct {
	run    func() error
	result chan error
}

var _ Handle = (*SQLiteStore)(nil)

// Open opens the database, applies pragmas and migrations, and starts the
// serialized queue.
func Open(opts Options) (*SQLiteStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	path := opts.Path
	if opts.InMemory || path == "" {
		path = MemoryPath
	}
	if path != MemoryPath {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, &ContainerLoadError{Cause: fmt.Errorf("create database directory: %w", err)}
			}
		}
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, &ContainerLoadError{Cause: fmt.Errorf("open database: %w", err)}
	}
	// One connection: the queue is the only user and :memory: lives per connection.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &ContainerLoadError{Cause: fmt.Errorf("ping database: %w", err)}
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, &ContainerLoadError{Cause: fmt.Errorf("enable pragmas: %w", err)}
	}

	if err := RunMigrations(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
	}

	s := &SQLiteStore{
		db:       db,
		sourceID: ulid.Make().String(),
		logger:   logger.With("component", "store"),
		jobs:     make(chan job),
		done:     make(chan struct{}),
		subs:     make(map[uint64]func(ChangeSet)),
	}
	go s.loop()

	s.logger.Info("store opened", "path", path, "source_id", s.sourceID)
	return s, nil
}

// OpenOrDegrade opens the store and falls back to a NopStore when the
// database cannot be loaded.
func OpenOrDegrade(opts Options) Handle {
	s, err := Open(opts)
	if err != nil {
		logger := opts.Logger
		if logger == nil {
			logger = slog.Default()
		}
		logger.Error("store unavailable, running degraded",
			"component", "store",
			"error", err,
		)
		return NopStore{}
	}
	return s
}

// enablePragmas sets SQLite pragmas for optimal performance and safety.
func enablePragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// SourceID identifies this store session in the change log.
func (s *SQLiteStore) SourceID() string {
	return s.sourceID
}

func (s *SQLiteStore) loop() {
	defer close(s.done)
	for j := range s.jobs {
		j.result <- j.run()
	}
}

// enqueue runs fn on the queue and waits for it.
func (s *SQLiteStore) enqueue(fn func() error) error {
	j := job{run: fn, result: make(chan error, 1)}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.jobs <- j
	s.mu.RUnlock()

	return <-j.result
}

// WithTransaction implements Handle.
func (s *SQLiteStore) WithTransaction(fn func(tx Tx) error) error {
	var changes ChangeSet
	err := s.enqueue(func() error {
		var err error
		changes, err = s.runTx(fn)
		return err
	})
	if err != nil {
		return err
	}
	if !changes.Empty() {
		s.notify(changes)
	}
	return nil
}

func (s *SQLiteStore) runTx(fn func(tx Tx) error) (ChangeSet, error) {
	sqlTx, err := s.db.Beginx()
	if err != nil {
		return ChangeSet{}, fmt.Errorf("begin transaction: %w", err)
	}
	tx := newSQLiteTx(sqlTx, s.sourceID)

	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		return ChangeSet{}, err
	}
	if err := tx.Save(); err != nil {
		sqlTx.Rollback()
		return ChangeSet{}, err
	}
	// A Save error swallowed inside fn still aborts the transaction.
	if tx.failed != nil {
		sqlTx.Rollback()
		return ChangeSet{}, tx.failed
	}
	cs := tx.changeSet()
	if cs.Has(types.KindStatistic) {
		if cs.Statistics, err = tx.Statistics(); err != nil {
			sqlTx.Rollback()
			return ChangeSet{}, err
		}
	}
	if err := sqlTx.Commit(); err != nil {
		return ChangeSet{}, &SaveError{Cause: fmt.Errorf("commit transaction: %w", err)}
	}
	return cs, nil
}

// Snapshot writes a consistent copy of the database to path using VACUUM INTO.
func (s *SQLiteStore) Snapshot(path string) error {
	return s.enqueue(func() error {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create snapshot directory: %w", err)
			}
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove stale snapshot: %w", err)
		}
		if _, err := s.db.Exec("VACUUM INTO ?", path); err != nil {
			return fmt.Errorf("vacuum into: %w", err)
		}
		return nil
	})
}

// Subscribe implements Handle.
func (s *SQLiteStore) Subscribe(fn func(ChangeSet)) (cancel func()) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			defer s.subsMu.Unlock()
			delete(s.subs, id)
		})
	}
}

// notify runs on the committing goroutine after the queue slot is released,
// so concurrent commits may reach subscribers out of Sequence order.
func (s *SQLiteStore) notify(changes ChangeSet) {
	s.subsMu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(ChangeSet), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(changes)
	}
}

// Close drains the queue, stops it and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.closed = true
	close(s.jobs)
	s.mu.Unlock()

	<-s.done
	s.logger.Info("store closed")
	return s.db.Close()
}
