package state

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AnomalyAI/anomalyd/internal/config"
	"github.com/AnomalyAI/anomalyd/internal/processor"
)

// stateKey is the single key every snapshot is stored under — there is
// exactly one running processor per deployment, so one row suffices.
var stateKey = []byte("anomalyd/state")

// schema versions recorded alongside a snapshot. v0 predates the
// per-group LastSeen field (spec §6): "If present but using the legacy
// v0 group schema (no last_seen), groups are loaded with last_seen = t -
// 29d".
const (
	schemaV0 = 0
	schemaV1 = 1
)

// Snapshot is the persisted blob: {config, last_timestamp, TraceState}.
type Snapshot struct {
	Config  config.Config
	Last    int64 // microseconds since epoch
	Trace   *processor.TraceState
	Version int
}

// Store persists Snapshots in a badger DB.
type Store struct {
	db *DB
}

// NewStore wraps an already-open DB.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// Save gob-encodes and writes snap, stamped with the current schema
// version.
func (s *Store) Save(snap Snapshot) error {
	snap.Version = schemaV1
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(snap); err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey, buf.Bytes())
	})
}

// Load reads and decodes the persisted snapshot. ok is false if no
// snapshot has ever been written (spec §6: "If absent, the processor is
// initialised with defaults").
func (s *Store) Load(at int64) (snap Snapshot, ok bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, getErr := txn.Get(stateKey)
		if getErr == badger.ErrKeyNotFound {
			return nil
		}
		if getErr != nil {
			return getErr
		}
		return item.Value(func(val []byte) error {
			if decErr := gob.NewDecoder(bytes.NewReader(val)).Decode(&snap); decErr != nil {
				return fmt.Errorf("state: decode: %w", decErr)
			}
			ok = true
			return nil
		})
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	if ok && snap.Version < schemaV1 {
		migrateLegacyGroups(snap.Trace, at)
	}
	return snap, ok, nil
}

// migrateLegacyGroups backfills LastSeen on groups persisted before that
// field existed, 29 days behind at — one day inside the 30-day cleanup
// horizon, so a legacy group that sees no fresh traffic is dropped by
// cleanup about one day after the load (spec §6).
func migrateLegacyGroups(trace *processor.TraceState, at int64) {
	if trace == nil {
		return
	}
	fallback := at - int64(29*24*time.Hour/time.Microsecond)
	for _, sp := range trace.Groups {
		if sp == nil {
			continue
		}
		for gk, gs := range sp.Groups {
			if gs.LastSeen == 0 {
				gs.LastSeen = fallback
				sp.Groups[gk] = gs
			}
		}
	}
}
