package models

import "time"

// License is a driving license held by a driver. A driver may hold several.
type License struct {
	ID            int64     `json:"id" validate:"gt=0"`
	LicenseNumber string    `json:"license_number" validate:"required,max=50"`
	IssueDate     time.Time `json:"issue_date" validate:"required"`
	ExpiryDate    time.Time `json:"expiry_date" validate:"required,gtfield=IssueDate" rule:"expiry_after_issue"`
	DriverID      int64     `json:"driver_id" validate:"gt=0"`
}

func (l License) TableName() Table { return TableLicenses }
func (l License) PrimaryKey() Key  { return IDKey(l.ID) }
