package models

type Vehicle struct {
	ID           int64  `json:"id" validate:"gt=0"`
	LicensePlate string `json:"license_plate" validate:"required,license_plate"`
	Make         string `json:"make" validate:"required,max=50"`
	Model        string `json:"model" validate:"required,max=50"`
	Year         int    `json:"year" validate:"omitempty,min=1900,max=2100"`
	DriverID     int64  `json:"driver_id" validate:"gt=0"`
}

func (v Vehicle) TableName() Table { return TableVehicles }
func (v Vehicle) PrimaryKey() Key  { return IDKey(v.ID) }
