package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridestore/internal/models"
	"ridestore/internal/utils"
)

type TxStatus string

const (
	TxOpen      TxStatus = "open"
	TxCommitted TxStatus = "committed"
	TxAborted   TxStatus = "aborted"
	TxFailed    TxStatus = "failed"
)

// Tx stages mutations against a private copy of the snapshot it began on.
// Nothing is visible to other readers until Commit succeeds.
type Tx struct {
	id        string
	store     *Store
	base      *state
	startedAt time.Time

	mu     sync.Mutex
	work   *working
	status TxStatus
	err    error
}

// Begin opens a transaction on the current committed snapshot. It never
// blocks on running commits.
func (s *Store) Begin() *Tx {
	base := s.current.Load()
	return &Tx{
		id:        uuid.NewString(),
		store:     s,
		base:      base,
		startedAt: s.now(),
		work:      newWorking(base),
		status:    TxOpen,
	}
}

func (t *Tx) ID() string {
	return t.id
}

func (t *Tx) StartedAt() time.Time {
	return t.startedAt
}

// BaseSeq is the commit sequence of the snapshot the transaction read.
func (t *Tx) BaseSeq() uint64 {
	return t.base.seq
}

func (t *Tx) Status() TxStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Insert stages rec into table and returns its key. Any failure closes the
// transaction.
func (t *Tx) Insert(table models.Table, rec models.Record) (models.Key, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return models.Key{}, err
	}
	rec, err := normalizeRecord(table, rec)
	if err != nil {
		return models.Key{}, t.fail(err)
	}
	if err := t.work.insert(rec); err != nil {
		return models.Key{}, t.fail(err)
	}
	return rec.PrimaryKey(), nil
}

// Update merges patch, a column name to value map, over the row at key.
func (t *Tx) Update(table models.Table, key models.Key, patch map[string]interface{}) error {
	return t.UpdateFunc(table, key, func(current models.Record) (models.Record, error) {
		next, err := models.ApplyPatch(current, patch)
		if err != nil {
			var unknown *models.UnknownColumnError
			if errors.As(err, &unknown) {
				return nil, &utils.StoreError{
					Kind:    utils.KindDomainRuleViolation,
					Table:   string(table),
					Key:     key.String(),
					Rule:    fmt.Sprintf("%s.unknown_column", table),
					Field:   unknown.Column,
					Message: unknown.Error(),
				}
			}
			invalid := &utils.StoreError{
				Kind:    utils.KindDomainRuleViolation,
				Table:   string(table),
				Key:     key.String(),
				Rule:    fmt.Sprintf("%s.invalid_patch", table),
				Message: err.Error(),
			}
			var null *models.NullColumnError
			if errors.As(err, &null) {
				invalid.Field = null.Column
				invalid.Value = "null"
			}
			return nil, invalid
		}
		return next, nil
	})
}

// UpdateFunc replaces the row at key with the mutator's result. The mutator
// receives a copy of the current row as seen by this transaction.
func (t *Tx) UpdateFunc(table models.Table, key models.Key, mutate func(models.Record) (models.Record, error)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}
	if _, ok := schemaFor(table); !ok {
		return t.fail(unknownTableError(table))
	}
	current, ok := t.work.Get(table, key)
	if !ok {
		return t.fail(notFoundError(table, key))
	}
	next, err := mutate(current)
	if err != nil {
		return t.fail(err)
	}
	if next, err = normalizeRecord(table, next); err != nil {
		return t.fail(err)
	}
	if err := t.work.update(table, key, next); err != nil {
		return t.fail(err)
	}
	return nil
}

// Delete removes the row at key. It fails with ReferentialViolation while
// any row references it.
func (t *Tx) Delete(table models.Table, key models.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.work.delete(table, key); err != nil {
		return t.fail(err)
	}
	return nil
}

// DeleteCascade removes the row and everything it owns: a ride's passengers,
// reviews, incidents and payment, a payment's earning, a driver's licenses
// and vehicles.
func (t *Tx) DeleteCascade(table models.Table, key models.Key) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.work.deleteCascade(table, key); err != nil {
		return t.fail(err)
	}
	return nil
}

// Get reads through the transaction's own writes. A closed transaction has
// nothing left to read.
func (t *Tx) Get(table models.Table, key models.Key) (models.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.work == nil {
		return nil, false
	}
	return t.work.Get(table, key)
}

// Abort discards the transaction. It is safe to call more than once and
// after Commit.
func (t *Tx) Abort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != TxOpen {
		return
	}
	t.status = TxAborted
	t.work = nil
	t.store.logger.LogAbort(t.id, "aborted by caller")
}

// Commit validates the staged mutations as a unit and publishes them. On
// failure the committed state is unchanged and the transaction is closed,
// except when ctx ends while waiting for the commit lock.
func (t *Tx) Commit(ctx context.Context) (*CommitResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	// Waiting for the lock is the only failure that leaves the transaction
	// open, so the caller may retry Commit with a fresh context.
	if err := t.store.acquireCommit(ctx); err != nil {
		return nil, err
	}
	result, published, err := t.store.commitLocked(ctx, t)
	t.store.releaseCommit()
	if err != nil {
		return nil, t.fail(err)
	}
	if published != nil {
		t.store.maybeSnapshot(context.WithoutCancel(ctx), published)
	}
	t.status = TxCommitted
	t.work = nil
	return result, nil
}

func (t *Tx) checkOpen() error {
	if t.status == TxOpen {
		return nil
	}
	return &utils.StoreError{
		Kind:    utils.KindTxClosed,
		Key:     t.id,
		Message: fmt.Sprintf("transaction is %s", t.status),
	}
}

func (t *Tx) fail(err error) error {
	t.status = TxFailed
	t.err = err
	t.work = nil
	t.store.logger.WithTxID(t.id).WithError(err).Debug("Transaction failed")
	return err
}

// normalizeRecord dereferences pointer rows and checks rec belongs to table.
func normalizeRecord(table models.Table, rec models.Record) (models.Record, error) {
	if rec == nil {
		return nil, &utils.StoreError{
			Kind:    utils.KindDomainRuleViolation,
			Table:   string(table),
			Rule:    fmt.Sprintf("%s.record_required", table),
			Message: "record is nil",
		}
	}
	if v := reflect.ValueOf(rec); v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return normalizeRecord(table, nil)
		}
		rec = v.Elem().Interface().(models.Record)
	}
	if _, ok := schemaFor(table); !ok {
		return nil, unknownTableError(table)
	}
	if rec.TableName() != table {
		return nil, &utils.StoreError{
			Kind:    utils.KindDomainRuleViolation,
			Table:   string(table),
			Key:     rec.PrimaryKey().String(),
			Rule:    fmt.Sprintf("%s.record_type", table),
			Value:   string(rec.TableName()),
			Message: fmt.Sprintf("record belongs to %s", rec.TableName()),
		}
	}
	return rec, nil
}
