package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"ridestore/internal/models"
	"ridestore/internal/utils"
)

func at(hour, minute int) time.Time {
	return time.Date(2023, 1, 1, hour, minute, 0, 0, time.UTC)
}

var (
	seedDrivers = []models.Driver{
		{ID: 1, Name: "John Doe", Phone: "555-1234", Rating: 4.75},
		{ID: 2, Name: "Jane Smith", Phone: "555-5678", Rating: 4.9},
	}
	seedLicenses = []models.License{
		{ID: 1, LicenseNumber: "D1234567", IssueDate: time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC), ExpiryDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), DriverID: 1},
		{ID: 2, LicenseNumber: "D7654321", IssueDate: time.Date(2019, 3, 15, 0, 0, 0, 0, time.UTC), ExpiryDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), DriverID: 2},
	}
	seedVehicles = []models.Vehicle{
		{ID: 1, LicensePlate: "ABC123", Make: "Toyota", Model: "Camry", Year: 2018, DriverID: 1},
		{ID: 2, LicensePlate: "XYZ789", Make: "Honda", Model: "Civic", Year: 2020, DriverID: 2},
	}
	seedPassengers = []models.Passenger{
		{ID: 1, Name: "Alice Johnson", Phone: "555-8765", Email: "alice@example.com"},
		{ID: 2, Name: "Bob Brown", Phone: "555-4321", Email: "bob@example.com"},
	}
	seedRide = models.Ride{
		ID: 1, PickupLocation: "123 Main St", DropoffLocation: "456 Elm St",
		StartTime: at(8, 0), EndTime: at(8, 30), Status: models.RideStatusCompleted, DriverID: 1,
	}
	seedRidePassengers = []models.RidePassenger{
		{RideID: 1, PassengerID: 1},
		{RideID: 1, PassengerID: 2},
	}
	seedReview   = models.Review{ID: 1, RideID: 1, PassengerID: 1, Rating: 5, Comment: "Great ride!"}
	seedIncident = models.Incident{
		ID: 1, Type: "Accident", Description: "Minor fender bender", ReportedBy: "John Doe",
		Status: models.IncidentStatusReported, RideID: 1, DriverID: 1, PassengerID: 2,
	}
	seedPayment = models.Payment{ID: 1, RideID: 1, Amount: 25.50, Status: models.PaymentStatusCompleted, Method: "Credit Card"}
	seedEarning = models.Earning{ID: 1, PaymentID: 1, CommissionAmount: 5.10, DriverEarnings: 20.40}
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(Options{Now: func() time.Time { return at(12, 0) }})
}

func mustInsert(t *testing.T, tx *Tx, recs ...models.Record) {
	t.Helper()
	for _, rec := range recs {
		if _, err := tx.Insert(rec.TableName(), rec); err != nil {
			t.Fatalf("Insert %s %s: %v", rec.TableName(), rec.PrimaryKey(), err)
		}
	}
}

func mustCommit(t *testing.T, tx *Tx) *CommitResult {
	t.Helper()
	result, err := tx.Commit(context.Background())
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	return result
}

// seedStore loads the fixture rows one aggregate per transaction.
func seedStore(t *testing.T, s *Store) {
	t.Helper()
	for i := range seedDrivers {
		tx := s.Begin()
		mustInsert(t, tx, seedDrivers[i], seedLicenses[i], seedVehicles[i])
		mustCommit(t, tx)
	}

	tx := s.Begin()
	for _, p := range seedPassengers {
		mustInsert(t, tx, p)
	}
	mustCommit(t, tx)

	tx = s.Begin()
	mustInsert(t, tx, seedRide)
	for _, rp := range seedRidePassengers {
		mustInsert(t, tx, rp)
	}
	mustInsert(t, tx, seedReview, seedIncident, seedPayment, seedEarning)
	mustCommit(t, tx)
}

func requireKind(t *testing.T, err error, kind utils.ErrorKind) *utils.StoreError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	var storeErr *utils.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected *StoreError, got %T: %v", err, err)
	}
	if storeErr.Kind != kind {
		t.Fatalf("expected kind %s, got %s: %v", kind, storeErr.Kind, err)
	}
	return storeErr
}

func requireRule(t *testing.T, err error, kind utils.ErrorKind, rule string) {
	t.Helper()
	storeErr := requireKind(t, err, kind)
	if storeErr.Rule != rule {
		t.Fatalf("expected rule %s, got %s: %v", rule, storeErr.Rule, err)
	}
}
