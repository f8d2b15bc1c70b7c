package models

// Earning splits one payment into platform commission and driver earnings.
type Earning struct {
	ID               int64   `json:"id" validate:"gt=0"`
	PaymentID        int64   `json:"payment_id" validate:"gt=0"`
	CommissionAmount float64 `json:"commission_amount" validate:"gte=0,cents" rule:"amounts_non_negative"`
	DriverEarnings   float64 `json:"driver_earnings" validate:"gte=0,cents" rule:"amounts_non_negative"`
}

func (e Earning) TableName() Table { return TableEarnings }
func (e Earning) PrimaryKey() Key  { return IDKey(e.ID) }
