package models

type IncidentStatus string

const (
	IncidentStatusReported      IncidentStatus = "Reported"
	IncidentStatusInvestigating IncidentStatus = "Investigating"
	IncidentStatusResolved      IncidentStatus = "Resolved"
)

func (s IncidentStatus) Valid() bool {
	switch s {
	case IncidentStatusReported, IncidentStatusInvestigating, IncidentStatusResolved:
		return true
	}
	return false
}

func (s IncidentStatus) IsTerminal() bool {
	return s == IncidentStatusResolved
}

// Incident is reported against a ride and names the driver and passenger
// involved, both of whom must belong to that ride.
type Incident struct {
	ID          int64          `json:"id" validate:"gt=0"`
	Type        string         `json:"type" validate:"required,max=50"`
	Description string         `json:"description" validate:"max=1000"`
	ReportedBy  string         `json:"reported_by" validate:"required,max=100"`
	Status      IncidentStatus `json:"status" validate:"required,incident_status" rule:"status_enum"`
	RideID      int64          `json:"ride_id" validate:"gt=0"`
	DriverID    int64          `json:"driver_id" validate:"gt=0"`
	PassengerID int64          `json:"passenger_id" validate:"gt=0"`
}

func (i Incident) TableName() Table { return TableIncidents }
func (i Incident) PrimaryKey() Key  { return IDKey(i.ID) }
