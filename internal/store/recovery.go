package store

import (
	"context"
	"fmt"

	"ridestore/internal/models"
)

// recoverFromJournal loads the newest snapshot and replays later journal entries
// through the same checks as live commits.
func (s *Store) recoverFromJournal(ctx context.Context) error {
	st := emptyState()

	snap, err := s.journal.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	if snap != nil {
		w := newWorking(st)
		for _, table := range models.Tables {
			for i, raw := range snap.Tables[table] {
				rec, err := models.DecodeRecord(table, raw)
				if err != nil {
					return fmt.Errorf("failed to decode snapshot row %s[%d]: %w", table, i, err)
				}
				if err := w.insert(rec); err != nil {
					return fmt.Errorf("failed to load snapshot row %s %s: %w", table, rec.PrimaryKey(), err)
				}
			}
		}
		st = w.publish(snap.Seq)
		s.lastSnapshot = snap.Seq
	}

	replayed, skipped := 0, 0
	err = s.journal.ReadEntries(ctx, st.seq, func(entry *models.CommitEntry) error {
		// A seq seen twice comes from a log written before failed appends
		// stopped commits. The first entry is the one that was replayed.
		if entry.Seq <= st.seq {
			skipped++
			s.logger.WithFields(map[string]interface{}{
				"seq":   entry.Seq,
				"tx_id": entry.TxID,
			}).Warn("Skipping duplicate journal entry")
			return nil
		}
		if entry.Seq != st.seq+1 {
			return fmt.Errorf("journal gap: expected seq %d, found %d", st.seq+1, entry.Seq)
		}
		w := newWorking(st)
		for _, m := range entry.Mutations {
			mut, err := decodeMutation(m)
			if err != nil {
				return fmt.Errorf("failed to decode commit %d: %w", entry.Seq, err)
			}
			if err := w.apply(mut); err != nil {
				return fmt.Errorf("failed to replay commit %d: %w", entry.Seq, err)
			}
		}
		st = w.publish(entry.Seq)
		replayed++
		return nil
	})
	if err != nil {
		return err
	}

	s.current.Store(st)
	s.logger.WithFields(map[string]interface{}{
		"seq":      st.seq,
		"replayed": replayed,
		"skipped":  skipped,
	}).Info("Store recovered from journal")
	return nil
}
