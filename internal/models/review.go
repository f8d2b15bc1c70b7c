package models

type Review struct {
	ID          int64  `json:"id" validate:"gt=0"`
	RideID      int64  `json:"ride_id" validate:"gt=0"`
	PassengerID int64  `json:"passenger_id" validate:"gt=0"`
	Rating      int    `json:"rating" validate:"min=1,max=5" rule:"rating_range"`
	Comment     string `json:"comment" validate:"max=1000"`
}

func (r Review) TableName() Table { return TableReviews }
func (r Review) PrimaryKey() Key  { return IDKey(r.ID) }
