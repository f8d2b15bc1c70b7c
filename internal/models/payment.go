package models

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusFailed    PaymentStatus = "Failed"
	PaymentStatusRefunded  PaymentStatus = "Refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	}
	return false
}

// Payment settles a ride. A ride has at most one payment.
type Payment struct {
	ID     int64         `json:"id" validate:"gt=0"`
	RideID int64         `json:"ride_id" validate:"gt=0"`
	Amount float64       `json:"amount" validate:"gt=0,cents" rule:"amount_positive"`
	Status PaymentStatus `json:"status" validate:"required,payment_status" rule:"status_enum"`
	Method string        `json:"method" validate:"max=50"`
}

func (p Payment) TableName() Table { return TablePayments }
func (p Payment) PrimaryKey() Key  { return IDKey(p.ID) }
