package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ridestore/internal/models"
	"ridestore/internal/repositories/file"
	"ridestore/internal/repositories/interfaces"
)

func openFileStore(t *testing.T, dir string, snapshotEvery int) (*Store, func()) {
	t.Helper()
	journal, err := file.NewJournalRepository(dir)
	if err != nil {
		t.Fatalf("NewJournalRepository: %v", err)
	}
	s, err := Open(context.Background(), Options{Journal: journal, SnapshotEvery: snapshotEvery})
	if err != nil {
		_ = journal.Close()
		t.Fatalf("Open: %v", err)
	}
	return s, func() {
		if err := journal.Close(); err != nil {
			t.Fatalf("journal Close: %v", err)
		}
	}
}

func exportJSON(t *testing.T, s *Store) string {
	t.Helper()
	snap, err := s.ExportSnapshot()
	if err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return string(data)
}

func TestStore_RecoversFromFileJournal(t *testing.T) {
	for _, snapshotEvery := range []int{0, 2, 3} {
		dir := t.TempDir()

		s, closeJournal := openFileStore(t, dir, snapshotEvery)
		seedStore(t, s)
		tx := s.Begin()
		if err := tx.DeleteCascade(models.TableRides, models.IDKey(1)); err != nil {
			t.Fatalf("DeleteCascade: %v", err)
		}
		if err := tx.Update(models.TableDrivers, models.IDKey(2), map[string]interface{}{"rating": 4.5}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		mustCommit(t, tx)
		want := exportJSON(t, s)
		wantSeq := s.Seq()
		closeJournal()

		_, statErr := os.Stat(filepath.Join(dir, "snapshot.json"))
		if snapshotEvery == 0 && statErr == nil {
			t.Fatalf("snapshot written with snapshots disabled")
		}
		if snapshotEvery > 0 && statErr != nil {
			t.Fatalf("expected a snapshot with interval %d: %v", snapshotEvery, statErr)
		}

		recovered, closeRecovered := openFileStore(t, dir, snapshotEvery)
		if got := exportJSON(t, recovered); got != want {
			t.Fatalf("recovered state differs (interval %d):\nwant: %s\ngot:  %s", snapshotEvery, want, got)
		}
		if recovered.Seq() != wantSeq {
			t.Fatalf("expected seq %d after recovery, got %d", wantSeq, recovered.Seq())
		}

		// The recovered store keeps committing after the last sequence.
		tx = recovered.Begin()
		mustInsert(t, tx, models.Driver{ID: 3, Name: "After Restart", Rating: 3})
		if result := mustCommit(t, tx); result.Seq != wantSeq+1 {
			t.Fatalf("expected seq %d, got %d", wantSeq+1, result.Seq)
		}
		closeRecovered()
	}
}

func TestStore_RecoveryIgnoresTornTail(t *testing.T) {
	dir := t.TempDir()
	s, closeJournal := openFileStore(t, dir, 0)
	seedStore(t, s)
	want := exportJSON(t, s)
	closeJournal()

	f, err := os.OpenFile(filepath.Join(dir, "commit.log"), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := f.WriteString(`{"seq":99,"tx_id":"torn","mut`); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	_ = f.Close()

	recovered, closeRecovered := openFileStore(t, dir, 0)
	defer closeRecovered()
	if got := exportJSON(t, recovered); got != want {
		t.Fatalf("torn tail changed recovered state")
	}
}

type memoryJournal struct {
	entries   []*models.CommitEntry
	snapshot  *models.Snapshot
	appendErr error
}

func (j *memoryJournal) Append(_ context.Context, entry *models.CommitEntry) error {
	if j.appendErr != nil {
		return j.appendErr
	}
	j.entries = append(j.entries, entry)
	return nil
}

func (j *memoryJournal) ReadEntries(_ context.Context, afterSeq uint64, fn func(*models.CommitEntry) error) error {
	for _, entry := range j.entries {
		if entry.Seq <= afterSeq {
			continue
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

func (j *memoryJournal) SaveSnapshot(_ context.Context, snapshot *models.Snapshot) error {
	j.snapshot = snapshot
	return nil
}

func (j *memoryJournal) LoadSnapshot(context.Context) (*models.Snapshot, error) {
	return j.snapshot, nil
}

func (j *memoryJournal) Close() error { return nil }

func TestStore_FailedJournalAppendLeavesStateUnchanged(t *testing.T) {
	journal := &memoryJournal{}
	s := New(Options{Journal: journal})
	seedStore(t, s)
	before := exportJSON(t, s)

	journal.appendErr = errors.New("disk full")
	tx := s.Begin()
	mustInsert(t, tx, models.Driver{ID: 3, Name: "Unlogged"})
	_, err := tx.Commit(context.Background())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected journal error, got %v", err)
	}
	if got := exportJSON(t, s); got != before {
		t.Fatalf("state changed after a failed append")
	}
	if tx.Status() != TxFailed {
		t.Fatalf("expected failed tx, got %s", tx.Status())
	}
}

func TestStore_RecoveryRejectsJournalGap(t *testing.T) {
	journal := &memoryJournal{}
	s := New(Options{Journal: journal})
	seedStore(t, s)

	// Drop the second commit.
	journal.entries = append(journal.entries[:1], journal.entries[2:]...)

	_, err := Open(context.Background(), Options{Journal: journal})
	if err == nil || !strings.Contains(err.Error(), "journal gap") {
		t.Fatalf("expected journal gap error, got %v", err)
	}
}

// lostAckJournal writes through to the wrapped journal and then reports the
// first append as failed, as a sync error or a client timeout would.
type lostAckJournal struct {
	interfaces.JournalRepository
	failed bool
}

func (j *lostAckJournal) Append(ctx context.Context, entry *models.CommitEntry) error {
	if err := j.JournalRepository.Append(ctx, entry); err != nil {
		return err
	}
	if !j.failed {
		j.failed = true
		return errors.New("sync timed out")
	}
	return nil
}

func TestStore_FailedAppendRefusesCommitsUntilReopened(t *testing.T) {
	dir := t.TempDir()
	inner, err := file.NewJournalRepository(dir)
	if err != nil {
		t.Fatalf("NewJournalRepository: %v", err)
	}
	s := New(Options{Journal: &lostAckJournal{JournalRepository: inner}})

	tx := s.Begin()
	mustInsert(t, tx, seedDrivers[0])
	if _, err := tx.Commit(context.Background()); err == nil || !strings.Contains(err.Error(), "sync timed out") {
		t.Fatalf("expected append error, got %v", err)
	}
	if _, ok := s.Get(models.TableDrivers, models.IDKey(1)); ok {
		t.Fatalf("failed commit must not be visible")
	}
	if !errors.Is(s.JournalErr(), ErrJournalFailed) {
		t.Fatalf("expected journal to be marked failed, got %v", s.JournalErr())
	}

	tx = s.Begin()
	mustInsert(t, tx, seedDrivers[1])
	if _, err := tx.Commit(context.Background()); !errors.Is(err, ErrJournalFailed) {
		t.Fatalf("expected ErrJournalFailed, got %v", err)
	}

	// Empty commits never touch the journal.
	mustCommit(t, s.Begin())

	if err := inner.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	recovered, closeJournal := openFileStore(t, dir, 0)
	defer closeJournal()
	if recovered.Seq() != 1 {
		t.Fatalf("expected the written entry to be recovered at seq 1, got %d", recovered.Seq())
	}
	if _, ok := recovered.Get(models.TableDrivers, models.IDKey(1)); !ok {
		t.Fatalf("expected driver 1 from the journaled entry")
	}
	if recovered.JournalErr() != nil {
		t.Fatalf("reopened store should accept commits, got %v", recovered.JournalErr())
	}

	tx = recovered.Begin()
	mustInsert(t, tx, seedDrivers[1])
	if result := mustCommit(t, tx); result.Seq != 2 {
		t.Fatalf("expected seq 2, got %d", result.Seq)
	}
}

func TestStore_RecoveryKeepsFirstEntryForDuplicateSeq(t *testing.T) {
	journal := &memoryJournal{}
	s := New(Options{Journal: journal})
	seedStore(t, s)
	want := exportJSON(t, s)

	dup := &models.CommitEntry{
		Seq:  journal.entries[1].Seq,
		TxID: "duplicate",
		Mutations: []models.Mutation{{
			Op:     models.OpInsert,
			Table:  models.TablePassengers,
			Key:    models.IDKey(9),
			Record: json.RawMessage(`{"id":9,"name":"Ghost","phone":"555-0009"}`),
		}},
	}
	entries := append([]*models.CommitEntry{}, journal.entries[:2]...)
	entries = append(entries, dup)
	journal.entries = append(entries, journal.entries[2:]...)

	recovered, err := Open(context.Background(), Options{Journal: journal})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := exportJSON(t, recovered); got != want {
		t.Fatalf("duplicate entry changed recovered state")
	}
}
