package models

import "time"

type RideStatus string

const (
	RideStatusRequested      RideStatus = "Requested"
	RideStatusDriverAssigned RideStatus = "Driver_Assigned"
	RideStatusInProgress     RideStatus = "In_Progress"
	RideStatusCompleted      RideStatus = "Completed"
	RideStatusCanceled       RideStatus = "Canceled"
	RideStatusPaymentPending RideStatus = "Payment_Pending"
)

var RideStatuses = []RideStatus{
	RideStatusRequested,
	RideStatusDriverAssigned,
	RideStatusInProgress,
	RideStatusCompleted,
	RideStatusCanceled,
	RideStatusPaymentPending,
}

func (s RideStatus) Valid() bool {
	for _, status := range RideStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status change is permitted.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCanceled
}

// Ride is the aggregate root for its passengers, reviews, incidents and payment.
type Ride struct {
	ID              int64      `json:"id" validate:"gt=0"`
	PickupLocation  string     `json:"pickup_location" validate:"required,max=255"`
	DropoffLocation string     `json:"dropoff_location" validate:"required,max=255"`
	StartTime       time.Time  `json:"start_time" validate:"required"`
	EndTime         time.Time  `json:"end_time" validate:"required,gtfield=StartTime" rule:"end_after_start"`
	Status          RideStatus `json:"status" validate:"required,ride_status" rule:"status_enum"`
	DriverID        int64      `json:"driver_id" validate:"gt=0"`
}

func (r Ride) TableName() Table { return TableRides }
func (r Ride) PrimaryKey() Key  { return IDKey(r.ID) }
