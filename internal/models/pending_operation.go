package models

import (
	"time"

	"github.com/google/uuid"
)

// OperationKind identifies one of the six asynchronous backend operations
type OperationKind string

const (
	OpRegisterGenerated OperationKind = "register_generated"
	OpRegisterEmail     OperationKind = "register_email"
	OpRegisterFacebook  OperationKind = "register_facebook"
	OpQueryOne          OperationKind = "query_one"
	OpQueryMany         OperationKind = "query_many"
	OpDelete            OperationKind = "delete"
)

// IsRegister reports whether the kind is one of the three register variants
func (k OperationKind) IsRegister() bool {
	switch k {
	case OpRegisterGenerated, OpRegisterEmail, OpRegisterFacebook:
		return true
	}
	return false
}

// PendingOperation is one in-flight asynchronous backend call. The Handle is
// the opaque correlation key generated by the transport at submission time;
// completions are matched by handle identity only, never by request content.
type PendingOperation struct {
	Kind            OperationKind
	Handle          uuid.UUID
	DeviceID        string
	ResultAccountID string
	SubmittedAt     time.Time
}
