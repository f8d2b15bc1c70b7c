package store

import (
	"fmt"
	"iter"

	"ridestore/internal/models"
	"ridestore/internal/utils"
)

// QueryByForeignKey yields the committed rows of table whose column equals
// value, in key order. The sequence is bound to the snapshot current at the
// call, so ranging over it again yields the same rows.
func (s *Store) QueryByForeignKey(table models.Table, column string, value int64) (iter.Seq[models.Record], error) {
	schema, ok := schemaFor(table)
	if !ok {
		return nil, unknownTableError(table)
	}
	if _, ok := schema.foreignKey(column); !ok {
		return nil, &utils.StoreError{
			Kind:    utils.KindDomainRuleViolation,
			Table:   string(table),
			Rule:    fmt.Sprintf("%s.unknown_column", table),
			Field:   column,
			Message: fmt.Sprintf("%s is not a foreign key of %s", column, table),
		}
	}

	ts := s.current.Load().tables[table]
	keys := ts.referencing(column, value)
	return func(yield func(models.Record) bool) {
		for _, key := range keys {
			if !yield(ts.rows[key]) {
				return
			}
		}
	}, nil
}
