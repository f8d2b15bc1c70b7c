package store

import (
	"maps"
	"slices"

	"ridestore/internal/models"
)

type keySet map[models.Key]struct{}

// tableState is one table's rows plus its indexes. A tableState reachable
// from a published state is never mutated; writers clone it first.
type tableState struct {
	rows map[models.Key]models.Record
	// versions holds the sequence of the last commit that wrote or deleted
	// each key. Deleted keys stay as tombstones.
	versions map[models.Key]uint64
	// unique maps column -> normalized value -> owning key.
	unique map[string]map[string]models.Key
	// refs maps fk column -> parent id -> child keys.
	refs map[string]map[int64]keySet
}

func newTableState() *tableState {
	return &tableState{
		rows:     make(map[models.Key]models.Record),
		versions: make(map[models.Key]uint64),
		unique:   make(map[string]map[string]models.Key),
		refs:     make(map[string]map[int64]keySet),
	}
}

func (ts *tableState) clone() *tableState {
	c := &tableState{
		rows:     maps.Clone(ts.rows),
		versions: maps.Clone(ts.versions),
		unique:   make(map[string]map[string]models.Key, len(ts.unique)),
		refs:     make(map[string]map[int64]keySet, len(ts.refs)),
	}
	for column, values := range ts.unique {
		c.unique[column] = maps.Clone(values)
	}
	for column, byParent := range ts.refs {
		cp := make(map[int64]keySet, len(byParent))
		for parent, keys := range byParent {
			cp[parent] = maps.Clone(keys)
		}
		c.refs[column] = cp
	}
	return c
}

func (ts *tableState) put(s *tableSchema, rec models.Record) {
	key := rec.PrimaryKey()
	ts.rows[key] = rec
	for _, uc := range s.unique {
		if v := uc.value(rec); v != "" {
			if ts.unique[uc.column] == nil {
				ts.unique[uc.column] = make(map[string]models.Key)
			}
			ts.unique[uc.column][v] = key
		}
	}
	for _, fk := range s.foreignKeys {
		byParent := ts.refs[fk.column]
		if byParent == nil {
			byParent = make(map[int64]keySet)
			ts.refs[fk.column] = byParent
		}
		parent := fk.value(rec)
		if byParent[parent] == nil {
			byParent[parent] = make(keySet)
		}
		byParent[parent][key] = struct{}{}
	}
}

func (ts *tableState) remove(s *tableSchema, rec models.Record) {
	key := rec.PrimaryKey()
	delete(ts.rows, key)
	for _, uc := range s.unique {
		v := uc.value(rec)
		if owner, ok := ts.unique[uc.column][v]; ok && owner == key {
			delete(ts.unique[uc.column], v)
		}
	}
	for _, fk := range s.foreignKeys {
		parent := fk.value(rec)
		if keys := ts.refs[fk.column][parent]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(ts.refs[fk.column], parent)
			}
		}
	}
}

// referencing returns the child keys whose column points at parent, in key
// order.
func (ts *tableState) referencing(column string, parent int64) []models.Key {
	keys := ts.refs[column][parent]
	if len(keys) == 0 {
		return nil
	}
	out := make([]models.Key, 0, len(keys))
	for k := range keys {
		out = append(out, k)
	}
	slices.SortFunc(out, compareKeys)
	return out
}

func (ts *tableState) sortedKeys() []models.Key {
	out := make([]models.Key, 0, len(ts.rows))
	for k := range ts.rows {
		out = append(out, k)
	}
	slices.SortFunc(out, compareKeys)
	return out
}

func compareKeys(a, b models.Key) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}

// state is an immutable committed snapshot.
type state struct {
	seq    uint64
	tables map[models.Table]*tableState
}

func emptyState() *state {
	st := &state{tables: make(map[models.Table]*tableState, len(models.Tables))}
	for _, t := range models.Tables {
		st.tables[t] = newTableState()
	}
	return st
}

func (st *state) get(table models.Table, key models.Key) (models.Record, bool) {
	ts, ok := st.tables[table]
	if !ok {
		return nil, false
	}
	rec, ok := ts.rows[key]
	return rec, ok
}

func (st *state) version(table models.Table, key models.Key) uint64 {
	ts, ok := st.tables[table]
	if !ok {
		return 0
	}
	return ts.versions[key]
}

// working is a copy-on-write view over a base state. Tables are cloned the
// first time they are written.
type working struct {
	tables map[models.Table]*tableState
	cloned map[models.Table]bool
	log    []mutation
}

func newWorking(base *state) *working {
	return &working{
		tables: maps.Clone(base.tables),
		cloned: make(map[models.Table]bool),
	}
}

func (w *working) table(t models.Table) *tableState {
	return w.tables[t]
}

func (w *working) mutable(t models.Table) *tableState {
	if !w.cloned[t] {
		w.tables[t] = w.tables[t].clone()
		w.cloned[t] = true
	}
	return w.tables[t]
}

// Get satisfies validators.View.
func (w *working) Get(table models.Table, key models.Key) (models.Record, bool) {
	ts, ok := w.tables[table]
	if !ok {
		return nil, false
	}
	rec, ok := ts.rows[key]
	return rec, ok
}

// publish stamps every logged key with seq and freezes the working set into
// a new state. w must not be used afterwards.
func (w *working) publish(seq uint64) *state {
	for _, m := range w.log {
		w.mutable(m.table).versions[m.key] = seq
	}
	return &state{seq: seq, tables: w.tables}
}
