package models

import "time"

// Account lifecycle event types published to Kafka
const (
	EventAccountRegistered    = "account.registered"
	EventAccountQueryComplete = "account.query_completed"
	EventAccountDeleted       = "account.deleted"
)

// AccountEvent is the payload published to the account-events topic after
// every processed completion.
type AccountEvent struct {
	EventType  string    `json:"event_type"`
	AccountID  string    `json:"account_id,omitempty"`
	DeviceID   string    `json:"device_id,omitempty"`
	Success    bool      `json:"success"`
	OccurredAt time.Time `json:"occurred_at"`
}
