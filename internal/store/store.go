package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ridestore/internal/models"
	"ridestore/internal/repositories/interfaces"
	"ridestore/internal/utils"
	"ridestore/pkg/logger"
)

type Options struct {
	// Journal persists commits before they become visible. Nil keeps the
	// store in memory only.
	Journal interfaces.JournalRepository
	Logger  *logger.Logger
	// ConsistencyMode is utils.ConsistencyStrict (default) or
	// utils.ConsistencyWarn.
	ConsistencyMode string
	// SnapshotEvery writes a snapshot after that many commits. Zero disables
	// snapshots.
	SnapshotEvery int
	Now           func() time.Time
}

// Store is the committed state of every table. All writes go through a Tx.
type Store struct {
	current atomic.Pointer[state]

	// commitSlot serializes commits; a channel so waiting honours ctx.
	commitSlot chan struct{}

	journal       interfaces.JournalRepository
	logger        *logger.Logger
	strict        bool
	snapshotEvery uint64
	now           func() time.Time

	snapshotMu   sync.Mutex
	lastSnapshot uint64

	journalMu  sync.Mutex
	journalErr error
}

// New returns an empty in-memory store. Use Open to recover from a journal.
func New(opts Options) *Store {
	s := &Store{
		commitSlot:    make(chan struct{}, 1),
		journal:       opts.Journal,
		logger:        opts.Logger,
		strict:        opts.ConsistencyMode != utils.ConsistencyWarn,
		snapshotEvery: uint64(max(opts.SnapshotEvery, 0)),
		now:           opts.Now,
	}
	if s.logger == nil {
		s.logger = logger.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.current.Store(emptyState())
	return s
}

// Open builds a store and replays the journal, if any, before returning.
func Open(ctx context.Context, opts Options) (*Store, error) {
	s := New(opts)
	if s.journal == nil {
		return s, nil
	}
	if err := s.recoverFromJournal(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Seq is the sequence of the last committed transaction.
func (s *Store) Seq() uint64 {
	return s.current.Load().seq
}

// Get reads the last committed row.
func (s *Store) Get(table models.Table, key models.Key) (models.Record, bool) {
	return s.current.Load().get(table, key)
}

// Count returns the committed row count of table.
func (s *Store) Count(table models.Table) int {
	ts, ok := s.current.Load().tables[table]
	if !ok {
		return 0
	}
	return len(ts.rows)
}

// ExportSnapshot renders the committed state. Rows are in key order so two
// exports of the same state are byte-identical.
func (s *Store) ExportSnapshot() (*models.Snapshot, error) {
	return exportState(s.current.Load())
}

func exportState(st *state) (*models.Snapshot, error) {
	snap := &models.Snapshot{
		Seq:    st.seq,
		Tables: make(map[models.Table][]json.RawMessage, len(models.Tables)),
	}
	for _, table := range models.Tables {
		ts := st.tables[table]
		rows := make([]json.RawMessage, 0, len(ts.rows))
		for _, key := range ts.sortedKeys() {
			raw, err := models.EncodeRecord(ts.rows[key])
			if err != nil {
				return nil, err
			}
			rows = append(rows, raw)
		}
		snap.Tables[table] = rows
	}
	return snap, nil
}

func (s *Store) maybeSnapshot(ctx context.Context, st *state) {
	if s.journal == nil || s.snapshotEvery == 0 || st.seq%s.snapshotEvery != 0 {
		return
	}
	s.snapshotMu.Lock()
	defer s.snapshotMu.Unlock()

	// A slower writer must not replace a newer snapshot.
	if st.seq <= s.lastSnapshot {
		return
	}
	snap, err := exportState(st)
	if err != nil {
		s.logger.WithError(err).Error("Failed to export snapshot")
		return
	}
	if err := s.journal.SaveSnapshot(ctx, snap); err != nil {
		s.logger.WithError(err).WithField("seq", st.seq).Error("Failed to save snapshot")
		return
	}
	s.lastSnapshot = st.seq
	s.logger.WithField("seq", st.seq).Info("Snapshot saved")
}

// JournalErr reports why the store stopped accepting commits, or nil.
func (s *Store) JournalErr() error {
	s.journalMu.Lock()
	defer s.journalMu.Unlock()
	return s.journalErr
}

func (s *Store) poisonJournal(seq uint64, cause error) {
	s.journalMu.Lock()
	s.journalErr = fmt.Errorf("%w: commit %d: %v", ErrJournalFailed, seq, cause)
	s.journalMu.Unlock()
	s.logger.WithError(cause).WithField("seq", seq).Error("Journal append failed, refusing further commits")
}

func (s *Store) acquireCommit(ctx context.Context) error {
	select {
	case s.commitSlot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to acquire commit lock: %w", ctx.Err())
	}
}

func (s *Store) releaseCommit() {
	<-s.commitSlot
}
