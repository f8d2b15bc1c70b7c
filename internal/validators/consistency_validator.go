package validators

import (
	"fmt"

	"ridestore/internal/models"
	"ridestore/internal/utils"
)

// View is the read access consistency rules need: a point lookup against the
// state being committed.
type View interface {
	Get(table models.Table, key models.Key) (models.Record, bool)
}

// CheckConsistency evaluates the cross-table rules that concern rec. Missing
// parents are skipped since referential checks report them.
func CheckConsistency(view View, rec models.Record) []utils.Violation {
	switch r := rec.(type) {
	case models.Incident:
		return checkIncident(view, r)
	case models.Review:
		return checkReview(view, r)
	case models.Earning:
		return checkEarning(view, r)
	}
	return nil
}

func checkIncident(view View, inc models.Incident) []utils.Violation {
	var violations []utils.Violation
	key := inc.PrimaryKey().String()

	if rec, ok := view.Get(models.TableRides, models.IDKey(inc.RideID)); ok {
		ride := rec.(models.Ride)
		if ride.DriverID != inc.DriverID {
			violations = append(violations, utils.Violation{
				Rule:    "incidents.driver_matches_ride",
				Table:   string(models.TableIncidents),
				Key:     key,
				Field:   "driver_id",
				Value:   fmt.Sprint(inc.DriverID),
				Message: fmt.Sprintf("ride %d is driven by driver %d", ride.ID, ride.DriverID),
			})
		}
	}
	if !onRide(view, inc.RideID, inc.PassengerID) {
		violations = append(violations, utils.Violation{
			Rule:    "incidents.passenger_on_ride",
			Table:   string(models.TableIncidents),
			Key:     key,
			Field:   "passenger_id",
			Value:   fmt.Sprint(inc.PassengerID),
			Message: fmt.Sprintf("passenger %d is not on ride %d", inc.PassengerID, inc.RideID),
		})
	}
	return violations
}

func checkReview(view View, review models.Review) []utils.Violation {
	if onRide(view, review.RideID, review.PassengerID) {
		return nil
	}
	return []utils.Violation{{
		Rule:    "reviews.passenger_on_ride",
		Table:   string(models.TableReviews),
		Key:     review.PrimaryKey().String(),
		Field:   "passenger_id",
		Value:   fmt.Sprint(review.PassengerID),
		Message: fmt.Sprintf("passenger %d is not on ride %d", review.PassengerID, review.RideID),
	}}
}

func checkEarning(view View, earning models.Earning) []utils.Violation {
	rec, ok := view.Get(models.TablePayments, models.IDKey(earning.PaymentID))
	if !ok {
		return nil
	}
	payment := rec.(models.Payment)
	if utils.ToCents(earning.CommissionAmount)+utils.ToCents(earning.DriverEarnings) == utils.ToCents(payment.Amount) {
		return nil
	}
	return []utils.Violation{{
		Rule:  "earnings.split_matches_payment",
		Table: string(models.TableEarnings),
		Key:   earning.PrimaryKey().String(),
		Field: "commission_amount",
		Value: utils.FormatAmount(earning.CommissionAmount),
		Message: fmt.Sprintf("commission %s + driver earnings %s != payment amount %s",
			utils.FormatAmount(earning.CommissionAmount),
			utils.FormatAmount(earning.DriverEarnings),
			utils.FormatAmount(payment.Amount)),
	}}
}

func onRide(view View, rideID, passengerID int64) bool {
	_, ok := view.Get(models.TableRidePassengers, models.Key{ID: rideID, Sub: passengerID})
	return ok
}
