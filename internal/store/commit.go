package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ridestore/internal/models"
	"ridestore/internal/utils"
	"ridestore/internal/validators"
)

// ErrJournalFailed is returned by every commit after a journal append failed.
var ErrJournalFailed = errors.New("journal append failed, reopen the store to resume commits")

type CommitResult struct {
	TxID        string            `json:"tx_id"`
	Seq         uint64            `json:"seq"`
	CommittedAt time.Time         `json:"committed_at"`
	Mutations   []models.Mutation `json:"mutations"`
	// Warnings lists consistency violations committed in warn mode.
	Warnings []utils.Violation `json:"warnings,omitempty"`
}

// Entry returns the journal record of the commit.
func (r *CommitResult) Entry() *models.CommitEntry {
	return &models.CommitEntry{
		Seq:         r.Seq,
		TxID:        r.TxID,
		CommittedAt: r.CommittedAt,
		Mutations:   r.Mutations,
	}
}

// journalEntry is Entry without the previous row images, which recovery never
// needs.
func (r *CommitResult) journalEntry() *models.CommitEntry {
	entry := r.Entry()
	entry.Mutations = make([]models.Mutation, len(r.Mutations))
	for i, m := range r.Mutations {
		m.Before = nil
		entry.Mutations[i] = m
	}
	return entry
}

// commitLocked runs with the commit slot held. It returns the published
// state, or nil when nothing was written.
func (s *Store) commitLocked(ctx context.Context, t *Tx) (*CommitResult, *state, error) {
	started := time.Now()
	current := s.current.Load()
	log := t.work.log

	if len(log) == 0 {
		return &CommitResult{TxID: t.id, Seq: current.seq, CommittedAt: s.now()}, nil, nil
	}

	w := t.work
	if current.seq != t.base.seq {
		for _, tk := range footprint(log) {
			if current.version(tk.table, tk.key) == t.base.version(tk.table, tk.key) {
				continue
			}
			return nil, nil, &utils.StoreError{
				Kind:  utils.KindConcurrentModification,
				Table: string(tk.table),
				Key:   tk.key.String(),
				Message: fmt.Sprintf("row changed by a concurrent commit (read at seq %d, now at seq %d)",
					t.base.seq, current.seq),
			}
		}
		// Nothing this transaction depends on moved; rebuild its writes on
		// top of the newer state so every check sees the latest commits.
		w = newWorking(current)
		for _, m := range log {
			if err := w.apply(m); err != nil {
				return nil, nil, err
			}
		}
	}

	var warnings []utils.Violation
	if violations := checkConsistency(w); len(violations) > 0 {
		if s.strict {
			return nil, nil, utils.NewViolationError(utils.KindConsistencyViolation, violations)
		}
		warnings = violations
		for _, v := range violations {
			s.logger.WithTxID(t.id).WithFields(map[string]interface{}{
				"rule":  v.Rule,
				"table": v.Table,
				"key":   v.Key,
				"field": v.Field,
				"value": v.Value,
			}).Warn("Consistency violation committed")
		}
	}

	seq := current.seq + 1
	mutations, err := encodeMutations(w.log)
	if err != nil {
		return nil, nil, err
	}
	result := &CommitResult{
		TxID:        t.id,
		Seq:         seq,
		CommittedAt: s.now().UTC(),
		Mutations:   mutations,
		Warnings:    warnings,
	}

	if s.journal != nil {
		if err := s.JournalErr(); err != nil {
			return nil, nil, err
		}
		if err := s.journal.Append(ctx, result.journalEntry()); err != nil {
			// The entry may have reached the log anyway, so seq is no longer
			// safe to hand out. Commits stay refused until the store is
			// reopened and recovers whatever the journal holds.
			s.poisonJournal(seq, err)
			return nil, nil, fmt.Errorf("failed to append commit %d: %w", seq, err)
		}
	}

	next := w.publish(seq)
	s.current.Store(next)
	s.logger.LogCommit(t.id, seq, len(mutations), time.Since(started))
	return result, next, nil
}

func encodeMutations(log []mutation) ([]models.Mutation, error) {
	out := make([]models.Mutation, 0, len(log))
	for _, m := range log {
		mut := models.Mutation{Op: m.op, Table: m.table, Key: m.key}
		if m.rec != nil {
			raw, err := models.EncodeRecord(m.rec)
			if err != nil {
				return nil, err
			}
			mut.Record = raw
		}
		if m.before != nil {
			raw, err := models.EncodeRecord(m.before)
			if err != nil {
				return nil, err
			}
			mut.Before = raw
		}
		out = append(out, mut)
	}
	return out, nil
}

// decodeMutation turns a journal mutation back into a replayable one.
func decodeMutation(m models.Mutation) (mutation, error) {
	out := mutation{op: m.Op, table: m.Table, key: m.Key}
	if m.Op == models.OpDelete {
		return out, nil
	}
	rec, err := models.DecodeRecord(m.Table, m.Record)
	if err != nil {
		return mutation{}, err
	}
	out.rec = rec
	return out, nil
}

// checkConsistency evaluates the cross-table rules over every row the
// transaction wrote, plus rows whose parents it changed.
func checkConsistency(w *working) []utils.Violation {
	var violations []utils.Violation
	for _, rec := range consistencyTargets(w) {
		violations = append(violations, validators.CheckConsistency(w, rec)...)
	}
	return violations
}

func consistencyTargets(w *working) []models.Record {
	seen := make(map[tableKey]bool)
	var out []models.Record
	add := func(table models.Table, key models.Key) {
		tk := tableKey{table, key}
		if seen[tk] {
			return
		}
		seen[tk] = true
		if rec, ok := w.Get(table, key); ok {
			out = append(out, rec)
		}
	}

	for _, m := range w.log {
		switch m.table {
		case models.TableIncidents, models.TableReviews, models.TableEarnings:
			add(m.table, m.key)
		case models.TableRides:
			for _, k := range w.table(models.TableIncidents).referencing("ride_id", m.key.ID) {
				add(models.TableIncidents, k)
			}
		case models.TableRidePassengers:
			for _, k := range w.table(models.TableIncidents).referencing("passenger_id", m.key.Sub) {
				if rec, ok := w.Get(models.TableIncidents, k); ok && rec.(models.Incident).RideID == m.key.ID {
					add(models.TableIncidents, k)
				}
			}
			for _, k := range w.table(models.TableReviews).referencing("passenger_id", m.key.Sub) {
				if rec, ok := w.Get(models.TableReviews, k); ok && rec.(models.Review).RideID == m.key.ID {
					add(models.TableReviews, k)
				}
			}
		case models.TablePayments:
			for _, k := range w.table(models.TableEarnings).referencing("payment_id", m.key.ID) {
				add(models.TableEarnings, k)
			}
		}
	}
	return out
}
