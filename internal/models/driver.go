package models

type Driver struct {
	ID     int64   `json:"id" validate:"gt=0"`
	Name   string  `json:"name" validate:"required,max=100"`
	Phone  string  `json:"phone" validate:"omitempty,phone_number"`
	Rating float64 `json:"rating" validate:"gte=0,lte=5,cents" rule:"rating_range"`
}

func (d Driver) TableName() Table { return TableDrivers }
func (d Driver) PrimaryKey() Key  { return IDKey(d.ID) }
