package models

// RidePassenger links a passenger to a ride.
type RidePassenger struct {
	RideID      int64 `json:"ride_id" validate:"gt=0"`
	PassengerID int64 `json:"passenger_id" validate:"gt=0"`
}

func (rp RidePassenger) TableName() Table { return TableRidePassengers }
func (rp RidePassenger) PrimaryKey() Key  { return Key{ID: rp.RideID, Sub: rp.PassengerID} }
