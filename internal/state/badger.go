// Package state persists the processor tree across restarts — the
// resolved trace configuration, the last processed timestamp, and every
// group's accumulated statistics — in a badger key/value store (spec §6
// "Persistence").
package state

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Config configures the underlying badger database.
type Config struct {
	InMemory          bool
	Path              string
	SyncWrites        bool
	NumVersionsToKeep int
	GCInterval        time.Duration
}

// DefaultConfig returns settings for a persistent, on-disk database.
func DefaultConfig() Config {
	return Config{
		SyncWrites:        true,
		NumVersionsToKeep: 1,
		GCInterval:        5 * time.Minute,
	}
}

// InMemoryConfig returns settings for a transient database with value-log
// GC disabled, suitable for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true, NumVersionsToKeep: 1}
}

// DB wraps a badger.DB with context-aware transaction helpers.
type DB struct {
	badger *badger.DB
	cfg    Config
}

// Open opens a database per cfg.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("state: path is required for a persistent store")
	}
	opts := badger.DefaultOptions(cfg.Path)
	opts = opts.WithInMemory(cfg.InMemory)
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(int(max1(cfg.NumVersionsToKeep)))
	opts = opts.WithLogger(nil)
	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("state: open badger at %q: %w", cfg.Path, err)
	}
	return &DB{badger: bdb, cfg: cfg}, nil
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// OpenInMemory opens a transient, in-memory database.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

// OpenWithPath opens a persistent database at dir, creating it if absent.
func OpenWithPath(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("state: create %q: %w", dir, err)
	}
	cfg := DefaultConfig()
	cfg.Path = dir
	return Open(cfg)
}

// Close releases the database.
func (db *DB) Close() error { return db.badger.Close() }

// Update runs fn in a read-write transaction.
func (db *DB) Update(fn func(txn *badger.Txn) error) error {
	return db.badger.Update(fn)
}

// View runs fn in a read-only transaction.
func (db *DB) View(fn func(txn *badger.Txn) error) error {
	return db.badger.View(fn)
}

// WithTxn runs fn in a read-write transaction, honoring ctx cancellation
// before starting it.
func (db *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("state: context cancelled: %w", err)
	}
	return db.badger.Update(fn)
}

// WithReadTxn runs fn in a read-only transaction, honoring ctx
// cancellation before starting it.
func (db *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("state: context cancelled: %w", err)
	}
	return db.badger.View(fn)
}

// GCRunner periodically reclaims badger value-log space. Value-log GC is
// opportunistic (badger.ErrNoRewrite is not an error worth logging at
// anything above debug), so the runner just keeps calling it on an
// interval until stopped.
type GCRunner struct {
	db       *DB
	interval time.Duration
	ratio    float64
	onError  func(error)
	done     chan struct{}
}

// NewGCRunner validates parameters and builds a runner; call Start to
// begin the background loop.
func NewGCRunner(db *DB, interval time.Duration, ratio float64, onError func(error)) (*GCRunner, error) {
	if db == nil {
		return nil, fmt.Errorf("state: db must not be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("state: interval must be positive")
	}
	if ratio <= 0 || ratio > 1 {
		return nil, fmt.Errorf("state: ratio must be between 0 and 1")
	}
	return &GCRunner{db: db, interval: interval, ratio: ratio, onError: onError, done: make(chan struct{})}, nil
}

// Start begins the periodic GC loop in a new goroutine.
func (r *GCRunner) Start() {
	go r.run()
}

// Stop ends the loop. Safe to call once.
func (r *GCRunner) Stop() {
	close(r.done)
}

func (r *GCRunner) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for {
				err := r.db.badger.RunValueLogGC(r.ratio)
				if err != nil {
					if err != badger.ErrNoRewrite && r.onError != nil {
						r.onError(err)
					}
					break
				}
			}
		case <-r.done:
			return
		}
	}
}
