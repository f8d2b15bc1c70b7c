package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type Table string

const (
	TableDrivers        Table = "drivers"
	TableLicenses       Table = "licenses"
	TablePassengers     Table = "passengers"
	TableVehicles       Table = "vehicles"
	TableRides          Table = "rides"
	TableRidePassengers Table = "ride_passengers"
	TableReviews        Table = "reviews"
	TableIncidents      Table = "incidents"
	TablePayments       Table = "payments"
	TableEarnings       Table = "earnings"
)

// Tables lists every table with parents before children, the order in which
// snapshots are written and replayed.
var Tables = []Table{
	TableDrivers,
	TableLicenses,
	TablePassengers,
	TableVehicles,
	TableRides,
	TableRidePassengers,
	TableReviews,
	TableIncidents,
	TablePayments,
	TableEarnings,
}

func ParseTable(name string) (Table, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, t := range Tables {
		if string(t) == name {
			return t, true
		}
	}
	return "", false
}

// Key identifies a row. Single-column keys use ID only; ride_passengers uses
// ID for ride_id and Sub for passenger_id.
type Key struct {
	ID  int64 `json:"id" bson:"id"`
	Sub int64 `json:"sub,omitempty" bson:"sub,omitempty"`
}

func IDKey(id int64) Key {
	return Key{ID: id}
}

func (k Key) String() string {
	if k.Sub != 0 {
		return fmt.Sprintf("%d:%d", k.ID, k.Sub)
	}
	return strconv.FormatInt(k.ID, 10)
}

func (k Key) Less(other Key) bool {
	if k.ID != other.ID {
		return k.ID < other.ID
	}
	return k.Sub < other.Sub
}

// ParseKey accepts "5" or "5:7".
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	head, tail, composite := strings.Cut(s, ":")
	id, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid key %q: %w", s, err)
	}
	if !composite {
		return Key{ID: id}, nil
	}
	sub, err := strconv.ParseInt(tail, 10, 64)
	if err != nil {
		return Key{}, fmt.Errorf("invalid key %q: %w", s, err)
	}
	return Key{ID: id, Sub: sub}, nil
}

// Record is one row of a table. Implementations are plain value types so a
// copy of a Record is a full copy of the row.
type Record interface {
	TableName() Table
	PrimaryKey() Key
}

// UnknownColumnError reports a patch or payload naming a column the table does
// not have.
type UnknownColumnError struct {
	Table  Table
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q for table %s", e.Column, e.Table)
}

// NullColumnError reports a patch that sets a column to null. Rows have no
// nullable columns, and decoding null would silently write the zero value.
type NullColumnError struct {
	Table  Table
	Column string
}

func (e *NullColumnError) Error() string {
	return fmt.Sprintf("column %q of table %s can not be null", e.Column, e.Table)
}

// DecodeRecord strictly decodes a JSON row into the typed model for table.
func DecodeRecord(table Table, data []byte) (Record, error) {
	switch table {
	case TableDrivers:
		return decodeStrict[Driver](table, data)
	case TableLicenses:
		return decodeStrict[License](table, data)
	case TablePassengers:
		return decodeStrict[Passenger](table, data)
	case TableVehicles:
		return decodeStrict[Vehicle](table, data)
	case TableRides:
		return decodeStrict[Ride](table, data)
	case TableRidePassengers:
		return decodeStrict[RidePassenger](table, data)
	case TableReviews:
		return decodeStrict[Review](table, data)
	case TableIncidents:
		return decodeStrict[Incident](table, data)
	case TablePayments:
		return decodeStrict[Payment](table, data)
	case TableEarnings:
		return decodeStrict[Earning](table, data)
	default:
		return nil, fmt.Errorf("unknown table %q", table)
	}
}

func decodeStrict[T Record](table Table, data []byte) (Record, error) {
	var rec T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		if column, ok := unknownField(err); ok {
			return nil, &UnknownColumnError{Table: table, Column: column}
		}
		return nil, fmt.Errorf("failed to decode %s row: %w", table, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, errors.New("invalid JSON: trailing content")
	}
	return rec, nil
}

func unknownField(err error) (string, bool) {
	const prefix = "json: unknown field "
	msg := err.Error()
	if !strings.HasPrefix(msg, prefix) {
		return "", false
	}
	return strings.Trim(strings.TrimPrefix(msg, prefix), `"`), true
}

// EncodeRecord returns the JSON row image of rec.
func EncodeRecord(rec Record) (json.RawMessage, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s row: %w", rec.TableName(), err)
	}
	return data, nil
}

// ApplyPatch merges patch (column name to JSON-compatible value) over rec and
// returns the patched row. Columns not present on the table and null values
// are rejected.
func ApplyPatch(rec Record, patch map[string]interface{}) (Record, error) {
	table := rec.TableName()
	current, err := EncodeRecord(rec)
	if err != nil {
		return nil, err
	}
	columns := make(map[string]json.RawMessage)
	if err := json.Unmarshal(current, &columns); err != nil {
		return nil, fmt.Errorf("failed to decode %s row: %w", table, err)
	}
	for column, value := range patch {
		if _, ok := columns[column]; !ok {
			return nil, &UnknownColumnError{Table: table, Column: column}
		}
		if value == nil {
			return nil, &NullColumnError{Table: table, Column: column}
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode column %s: %w", column, err)
		}
		columns[column] = raw
	}
	merged, err := json.Marshal(columns)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s row: %w", table, err)
	}
	return DecodeRecord(table, merged)
}
