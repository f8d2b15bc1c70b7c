package validators

import (
	"fmt"

	"ridestore/internal/models"
)

// ValidateTransition checks an update from before to after of the same row.
// Ride status order is free except that Completed and Canceled are final.
func ValidateTransition(before, after models.Record) ValidationErrors {
	var errs ValidationErrors
	table := before.TableName()

	if before.PrimaryKey() != after.PrimaryKey() || after.TableName() != table {
		errs = append(errs, ValidationError{
			Field:   "id",
			Tag:     "immutable",
			Rule:    fmt.Sprintf("%s.immutable_key", table),
			Value:   after.PrimaryKey().String(),
			Message: fmt.Sprintf("primary key %s can not change", before.PrimaryKey()),
		})
	}

	switch prev := before.(type) {
	case models.Ride:
		next, ok := after.(models.Ride)
		if ok && prev.Status.IsTerminal() && next.Status != prev.Status {
			errs = append(errs, terminalStatusError(table, string(prev.Status), string(next.Status)))
		}
	case models.Incident:
		next, ok := after.(models.Incident)
		if ok && prev.Status.IsTerminal() && next.Status != prev.Status {
			errs = append(errs, terminalStatusError(table, string(prev.Status), string(next.Status)))
		}
	}

	return errs
}

func terminalStatusError(table models.Table, from, to string) ValidationError {
	return ValidationError{
		Field:   "status",
		Tag:     "terminal",
		Rule:    fmt.Sprintf("%s.terminal_status", table),
		Value:   to,
		Message: fmt.Sprintf("status %s is terminal and can not change to %s", from, to),
	}
}
