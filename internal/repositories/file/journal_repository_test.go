package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ridestore/internal/models"
	"ridestore/internal/repositories/interfaces"
)

func newJournal(t *testing.T, dir string) interfaces.JournalRepository {
	t.Helper()
	journal, err := NewJournalRepository(dir)
	if err != nil {
		t.Fatalf("NewJournalRepository: %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })
	return journal
}

func entry(seq uint64) *models.CommitEntry {
	return &models.CommitEntry{
		Seq:         seq,
		TxID:        "tx",
		CommittedAt: time.Date(2023, 1, 1, 0, 0, int(seq), 0, time.UTC),
		Mutations: []models.Mutation{{
			Op:     models.OpInsert,
			Table:  models.TablePassengers,
			Key:    models.IDKey(int64(seq)),
			Record: json.RawMessage(`{"id":1}`),
		}},
	}
}

func readAll(t *testing.T, journal interfaces.JournalRepository, afterSeq uint64) []uint64 {
	t.Helper()
	var seqs []uint64
	err := journal.ReadEntries(context.Background(), afterSeq, func(e *models.CommitEntry) error {
		seqs = append(seqs, e.Seq)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	return seqs
}

func TestJournalRepository_AppendAndRead(t *testing.T) {
	journal := newJournal(t, t.TempDir())
	ctx := context.Background()

	if seqs := readAll(t, journal, 0); len(seqs) != 0 {
		t.Fatalf("expected empty journal, got %v", seqs)
	}
	for seq := uint64(1); seq <= 3; seq++ {
		if err := journal.Append(ctx, entry(seq)); err != nil {
			t.Fatalf("Append(%d): %v", seq, err)
		}
	}

	if seqs := readAll(t, journal, 0); len(seqs) != 3 || seqs[0] != 1 || seqs[2] != 3 {
		t.Fatalf("unexpected entries: %v", seqs)
	}
	if seqs := readAll(t, journal, 2); len(seqs) != 1 || seqs[0] != 3 {
		t.Fatalf("expected only seq 3 after 2, got %v", seqs)
	}

	var got *models.CommitEntry
	_ = journal.ReadEntries(ctx, 0, func(e *models.CommitEntry) error {
		if got == nil {
			got = e
		}
		return nil
	})
	if got.TxID != "tx" || len(got.Mutations) != 1 || got.Mutations[0].Table != models.TablePassengers {
		t.Fatalf("entry did not round trip: %+v", got)
	}
}

func TestJournalRepository_TornTailIsDropped(t *testing.T) {
	dir := t.TempDir()
	journal, err := NewJournalRepository(dir)
	if err != nil {
		t.Fatalf("NewJournalRepository: %v", err)
	}
	if err := journal.Append(context.Background(), entry(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, commitLogFile), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	if _, err := f.WriteString(`{"seq":2,"tx_id":"t`); err != nil {
		t.Fatalf("write torn tail: %v", err)
	}
	_ = f.Close()

	reopened := newJournal(t, dir)
	if seqs := readAll(t, reopened, 0); len(seqs) != 1 || seqs[0] != 1 {
		t.Fatalf("expected only seq 1, got %v", seqs)
	}
	if err := reopened.Append(context.Background(), entry(2)); err != nil {
		t.Fatalf("Append after repair: %v", err)
	}
	if seqs := readAll(t, reopened, 0); len(seqs) != 2 || seqs[1] != 2 {
		t.Fatalf("expected seqs 1 and 2, got %v", seqs)
	}
}

func TestJournalRepository_RollbackDropsUnacknowledgedLine(t *testing.T) {
	journal := newJournal(t, t.TempDir())
	ctx := context.Background()
	if err := journal.Append(ctx, entry(1)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	repo := journal.(*journalRepository)
	info, err := repo.log.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	offset := info.Size()
	if err := journal.Append(ctx, entry(2)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	cause := errors.New("sync failed")
	if err := repo.rollback(offset, cause); !errors.Is(err, cause) {
		t.Fatalf("expected the append error back, got %v", err)
	}
	if seqs := readAll(t, journal, 0); len(seqs) != 1 || seqs[0] != 1 {
		t.Fatalf("expected only seq 1 after rollback, got %v", seqs)
	}
	if err := journal.Append(ctx, entry(2)); err != nil {
		t.Fatalf("Append after rollback: %v", err)
	}
	if seqs := readAll(t, journal, 0); len(seqs) != 2 || seqs[1] != 2 {
		t.Fatalf("expected seqs 1 and 2, got %v", seqs)
	}
}

func TestJournalRepository_CorruptLineFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, commitLogFile), []byte("not json\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	journal := newJournal(t, dir)
	err := journal.ReadEntries(context.Background(), 0, func(*models.CommitEntry) error { return nil })
	if err == nil {
		t.Fatalf("expected error for corrupt line")
	}
}

func TestJournalRepository_Snapshot(t *testing.T) {
	dir := t.TempDir()
	journal := newJournal(t, dir)
	ctx := context.Background()

	snapshot, err := journal.LoadSnapshot(ctx)
	if err != nil || snapshot != nil {
		t.Fatalf("expected no snapshot, got %+v, %v", snapshot, err)
	}

	want := &models.Snapshot{
		Seq: 7,
		Tables: map[models.Table][]json.RawMessage{
			models.TableDrivers: {json.RawMessage(`{"id":1}`), json.RawMessage(`{"id":2}`)},
		},
	}
	if err := journal.SaveSnapshot(ctx, want); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	want.Seq = 8
	if err := journal.SaveSnapshot(ctx, want); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, err := journal.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if got.Seq != 8 || len(got.Tables[models.TableDrivers]) != 2 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "*.tmp*"))
	if len(matches) != 0 {
		t.Fatalf("temp files left behind: %v", matches)
	}
}

func TestJournalRepository_ClosedAndCancelled(t *testing.T) {
	journal, err := NewJournalRepository(t.TempDir())
	if err != nil {
		t.Fatalf("NewJournalRepository: %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := journal.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := journal.Append(context.Background(), entry(1)); err == nil {
		t.Fatalf("expected append on closed journal to fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewJournalRepository(""); err == nil {
		t.Fatalf("expected error for empty dir")
	}
	open := newJournal(t, t.TempDir())
	if err := open.Append(ctx, entry(1)); err == nil {
		t.Fatalf("expected cancelled append to fail")
	}
}
