package models

type Passenger struct {
	ID    int64  `json:"id" validate:"gt=0"`
	Name  string `json:"name" validate:"required,max=100"`
	Phone string `json:"phone" validate:"required,phone_number"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (p Passenger) TableName() Table { return TablePassengers }
func (p Passenger) PrimaryKey() Key  { return IDKey(p.ID) }
