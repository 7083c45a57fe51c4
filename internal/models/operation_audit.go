package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationAudit is one row of the ClickHouse operation audit table: the full
// outcome of a single submitted operation.
type OperationAudit struct {
	Kind       OperationKind
	Handle     uuid.UUID
	AccountID  string
	StatusCode int
	Success    bool
	Duration   time.Duration
	EventTime  time.Time
}
