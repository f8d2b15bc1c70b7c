package store

import (
	"fmt"
	"strconv"
	"strings"

	"ridestore/internal/models"
	"ridestore/internal/utils"
	"ridestore/internal/validators"
)

type tableKey struct {
	table models.Table
	key   models.Key
}

// mutation is one applied write. rec is the row after the write and is nil
// for deletes. before is the replaced row of an update.
type mutation struct {
	op     models.MutationOp
	table  models.Table
	key    models.Key
	rec    models.Record
	before models.Record
}

// insert applies the row rules, uniqueness and referential checks and stages
// rec.
func (w *working) insert(rec models.Record) error {
	table := rec.TableName()
	s, ok := schemaFor(table)
	if !ok {
		return unknownTableError(table)
	}
	key := rec.PrimaryKey()

	if errs := validators.ValidateRecord(rec); len(errs) > 0 {
		return utils.NewViolationError(utils.KindDomainRuleViolation, errs.Violations(table, key))
	}
	ts := w.table(table)
	if _, exists := ts.rows[key]; exists {
		return &utils.StoreError{
			Kind:    utils.KindDuplicateKey,
			Table:   string(table),
			Key:     key.String(),
			Rule:    fmt.Sprintf("%s.primary_key", table),
			Field:   "id",
			Value:   key.String(),
			Message: "primary key already exists",
		}
	}
	if err := w.checkUnique(s, rec, nil); err != nil {
		return err
	}
	if err := w.checkReferences(s, rec); err != nil {
		return err
	}

	w.mutable(table).put(s, rec)
	w.log = append(w.log, mutation{op: models.OpInsert, table: table, key: key, rec: rec})
	return nil
}

// update replaces the row at key with next after row and transition checks.
func (w *working) update(table models.Table, key models.Key, next models.Record) error {
	s, ok := schemaFor(table)
	if !ok {
		return unknownTableError(table)
	}
	current, ok := w.table(table).rows[key]
	if !ok {
		return notFoundError(table, key)
	}

	if errs := validators.ValidateTransition(current, next); len(errs) > 0 {
		return utils.NewViolationError(utils.KindDomainRuleViolation, errs.Violations(table, key))
	}
	if errs := validators.ValidateRecord(next); len(errs) > 0 {
		return utils.NewViolationError(utils.KindDomainRuleViolation, errs.Violations(table, key))
	}
	if err := w.checkUnique(s, next, &key); err != nil {
		return err
	}
	if err := w.checkReferences(s, next); err != nil {
		return err
	}

	ts := w.mutable(table)
	ts.remove(s, current)
	ts.put(s, next)
	w.log = append(w.log, mutation{op: models.OpUpdate, table: table, key: key, rec: next, before: current})
	return nil
}

// delete removes the row at key when nothing references it.
func (w *working) delete(table models.Table, key models.Key) error {
	s, ok := schemaFor(table)
	if !ok {
		return unknownTableError(table)
	}
	current, ok := w.table(table).rows[key]
	if !ok {
		return notFoundError(table, key)
	}

	for _, dep := range dependents[table] {
		children := w.table(dep.table).referencing(dep.fk.column, key.ID)
		if len(children) == 0 {
			continue
		}
		return &utils.StoreError{
			Kind:  utils.KindReferentialViolation,
			Table: string(table),
			Key:   key.String(),
			Rule:  fmt.Sprintf("%s.%s_%s_restrict", table, dep.table, dep.fk.column),
			Field: fmt.Sprintf("%s.%s", dep.table, dep.fk.column),
			Value: key.String(),
			Message: fmt.Sprintf("still referenced by %d %s row(s) (%s)",
				len(children), dep.table, joinKeys(children)),
		}
	}

	w.mutable(table).remove(s, current)
	w.log = append(w.log, mutation{op: models.OpDelete, table: table, key: key})
	return nil
}

// deleteCascade removes owned dependents depth-first, then the row itself.
// Non-owned dependents still block the delete.
func (w *working) deleteCascade(table models.Table, key models.Key) error {
	if _, ok := schemaFor(table); !ok {
		return unknownTableError(table)
	}
	if _, ok := w.table(table).rows[key]; !ok {
		return notFoundError(table, key)
	}
	for _, dep := range dependents[table] {
		if !dep.fk.owned {
			continue
		}
		for _, child := range w.table(dep.table).referencing(dep.fk.column, key.ID) {
			// A child owned through two columns may already be gone.
			if _, ok := w.table(dep.table).rows[child]; !ok {
				continue
			}
			if err := w.deleteCascade(dep.table, child); err != nil {
				return err
			}
		}
	}
	return w.delete(table, key)
}

// apply replays a logged mutation through the same checks as staging.
func (w *working) apply(m mutation) error {
	switch m.op {
	case models.OpInsert:
		return w.insert(m.rec)
	case models.OpUpdate:
		return w.update(m.table, m.key, m.rec)
	case models.OpDelete:
		return w.delete(m.table, m.key)
	default:
		return fmt.Errorf("unknown mutation op %q", m.op)
	}
}

// checkUnique rejects rec when another row already holds one of its unique
// values. self is the key being updated, if any.
func (w *working) checkUnique(s *tableSchema, rec models.Record, self *models.Key) error {
	table := rec.TableName()
	ts := w.table(table)
	for _, uc := range s.unique {
		v := uc.value(rec)
		if v == "" {
			continue
		}
		owner, taken := ts.unique[uc.column][v]
		if !taken || (self != nil && owner == *self) {
			continue
		}
		return &utils.StoreError{
			Kind:    utils.KindDuplicateKey,
			Table:   string(table),
			Key:     rec.PrimaryKey().String(),
			Rule:    fmt.Sprintf("%s.%s_unique", table, uc.column),
			Field:   uc.column,
			Value:   v,
			Message: fmt.Sprintf("%s %s is already used by %s %s", uc.column, v, table, owner),
		}
	}
	return nil
}

func (w *working) checkReferences(s *tableSchema, rec models.Record) error {
	table := rec.TableName()
	for _, fk := range s.foreignKeys {
		parent := fk.value(rec)
		if _, ok := w.table(fk.parent).rows[models.IDKey(parent)]; ok {
			continue
		}
		return &utils.StoreError{
			Kind:    utils.KindDanglingReference,
			Table:   string(table),
			Key:     rec.PrimaryKey().String(),
			Rule:    fmt.Sprintf("%s.%s_reference", table, fk.column),
			Field:   fk.column,
			Value:   strconv.FormatInt(parent, 10),
			Message: fmt.Sprintf("%s %d does not exist", fk.parent, parent),
		}
	}
	return nil
}

// footprint lists the keys a conflicting commit could invalidate: every key
// written or deleted, plus the parents referenced by written rows.
func footprint(log []mutation) []tableKey {
	seen := make(map[tableKey]bool)
	var out []tableKey
	add := func(tk tableKey) {
		if !seen[tk] {
			seen[tk] = true
			out = append(out, tk)
		}
	}
	for _, m := range log {
		add(tableKey{m.table, m.key})
		if m.rec == nil {
			continue
		}
		s, _ := schemaFor(m.table)
		for _, fk := range s.foreignKeys {
			add(tableKey{fk.parent, models.IDKey(fk.value(m.rec))})
		}
	}
	return out
}

func unknownTableError(table models.Table) error {
	return &utils.StoreError{
		Kind:    utils.KindUnknownTable,
		Table:   string(table),
		Message: fmt.Sprintf("unknown table %q", table),
	}
}

func notFoundError(table models.Table, key models.Key) error {
	return &utils.StoreError{
		Kind:    utils.KindNotFound,
		Table:   string(table),
		Key:     key.String(),
		Message: "record not found",
	}
}

func joinKeys(keys []models.Key) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, ", ")
}
