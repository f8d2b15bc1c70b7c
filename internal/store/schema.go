package store

import (
	"strconv"
	"strings"

	"ridestore/internal/models"
	"ridestore/internal/utils"
)

// uniqueColumn maps a row to the normalized value that must be unique within
// its table. An empty value is never indexed.
type uniqueColumn struct {
	column string
	value  func(models.Record) string
}

// foreignKey references the parent's single-column primary key. Owned
// children are removed by DeleteCascade on the parent.
type foreignKey struct {
	column string
	parent models.Table
	owned  bool
	value  func(models.Record) int64
}

type tableSchema struct {
	unique      []uniqueColumn
	foreignKeys []foreignKey
}

// dependent is a child table column that points at a parent table.
type dependent struct {
	table models.Table
	fk    foreignKey
}

var (
	schemas    = buildSchemas()
	dependents = buildDependents(schemas)
)

func buildSchemas() map[models.Table]*tableSchema {
	return map[models.Table]*tableSchema{
		models.TableDrivers: {},
		models.TableLicenses: {
			unique: []uniqueColumn{{"license_number", func(r models.Record) string {
				return strings.TrimSpace(r.(models.License).LicenseNumber)
			}}},
			foreignKeys: []foreignKey{
				{"driver_id", models.TableDrivers, true, func(r models.Record) int64 { return r.(models.License).DriverID }},
			},
		},
		models.TablePassengers: {
			unique: []uniqueColumn{{"phone", func(r models.Record) string {
				return utils.NormalizePhone(r.(models.Passenger).Phone)
			}}},
		},
		models.TableVehicles: {
			unique: []uniqueColumn{{"license_plate", func(r models.Record) string {
				return strings.ToUpper(strings.TrimSpace(r.(models.Vehicle).LicensePlate))
			}}},
			foreignKeys: []foreignKey{
				{"driver_id", models.TableDrivers, true, func(r models.Record) int64 { return r.(models.Vehicle).DriverID }},
			},
		},
		models.TableRides: {
			foreignKeys: []foreignKey{
				{"driver_id", models.TableDrivers, false, func(r models.Record) int64 { return r.(models.Ride).DriverID }},
			},
		},
		models.TableRidePassengers: {
			foreignKeys: []foreignKey{
				{"ride_id", models.TableRides, true, func(r models.Record) int64 { return r.(models.RidePassenger).RideID }},
				{"passenger_id", models.TablePassengers, false, func(r models.Record) int64 { return r.(models.RidePassenger).PassengerID }},
			},
		},
		models.TableReviews: {
			foreignKeys: []foreignKey{
				{"ride_id", models.TableRides, true, func(r models.Record) int64 { return r.(models.Review).RideID }},
				{"passenger_id", models.TablePassengers, false, func(r models.Record) int64 { return r.(models.Review).PassengerID }},
			},
		},
		models.TableIncidents: {
			foreignKeys: []foreignKey{
				{"ride_id", models.TableRides, true, func(r models.Record) int64 { return r.(models.Incident).RideID }},
				{"driver_id", models.TableDrivers, false, func(r models.Record) int64 { return r.(models.Incident).DriverID }},
				{"passenger_id", models.TablePassengers, false, func(r models.Record) int64 { return r.(models.Incident).PassengerID }},
			},
		},
		models.TablePayments: {
			unique: []uniqueColumn{{"ride_id", func(r models.Record) string {
				return strconv.FormatInt(r.(models.Payment).RideID, 10)
			}}},
			foreignKeys: []foreignKey{
				{"ride_id", models.TableRides, true, func(r models.Record) int64 { return r.(models.Payment).RideID }},
			},
		},
		models.TableEarnings: {
			unique: []uniqueColumn{{"payment_id", func(r models.Record) string {
				return strconv.FormatInt(r.(models.Earning).PaymentID, 10)
			}}},
			foreignKeys: []foreignKey{
				{"payment_id", models.TablePayments, true, func(r models.Record) int64 { return r.(models.Earning).PaymentID }},
			},
		},
	}
}

func buildDependents(schemas map[models.Table]*tableSchema) map[models.Table][]dependent {
	deps := make(map[models.Table][]dependent)
	// Iterate in table order so restrict and cascade checks are deterministic.
	for _, table := range models.Tables {
		for _, fk := range schemas[table].foreignKeys {
			deps[fk.parent] = append(deps[fk.parent], dependent{table: table, fk: fk})
		}
	}
	return deps
}

func schemaFor(table models.Table) (*tableSchema, bool) {
	s, ok := schemas[table]
	return s, ok
}

func (s *tableSchema) foreignKey(column string) (foreignKey, bool) {
	for _, fk := range s.foreignKeys {
		if fk.column == column {
			return fk, true
		}
	}
	return foreignKey{}, false
}
