package utils

import "time"

// Application Constants
const (
	AppName    = "RideStore"
	AppVersion = "1.0.0"

	// Store
	DefaultSnapshotEvery = 100
	DefaultTxIdleTTL     = 5 * time.Minute
	TxSweepInterval      = 30 * time.Second
	MaxRequestBodySize   = 1 << 20

	// Events
	DefaultEventChannel  = "ridestore:commits"
	DefaultEventExchange = "ridestore.commits"
	EventPublishTimeout  = 3 * time.Second
	DefaultRecentEvents  = 100
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidInput            = "invalid input"
	ErrInternalServer          = "internal server error"
	ErrValidationFailedMessage = "validation failed"
	ErrTransactionNotFound     = "transaction not found"
)

// Consistency modes
const (
	ConsistencyStrict = "strict"
	ConsistencyWarn   = "warn"
)

// Journal backends
const (
	JournalNone    = "none"
	JournalFile    = "file"
	JournalMongoDB = "mongodb"
)

// Event publishers
const (
	PublisherNone     = "none"
	PublisherRedis    = "redis"
	PublisherRabbitMQ = "rabbitmq"
)

// Event Types
const (
	EventTransactionCommitted = "transaction_committed"
	EventRideCompleted        = "ride_completed"
	EventRideCanceled         = "ride_canceled"
	EventIncidentResolved     = "incident_resolved"
)
