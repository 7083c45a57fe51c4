// Package parser decodes backend query responses into user-status records.
//
// The backend is loose with its payloads: individual fields may be missing or
// carry the wrong type, and the batch endpoint may interleave well-formed and
// malformed elements. Each field is therefore decoded independently and falls
// back to its zero value instead of failing the record, while a structurally
// invalid outer payload is a hard error.
//
// Register responses never pass through this package: their body is the raw
// account id string, not JSON.
package parser

import (
	"encoding/json"
	"fmt"

	"account-mapper/internal/models"
)

// Wire field names used by the backend
const (
	fieldAccountID      = "unique_user_id"
	fieldDeviceID       = "udid"
	fieldCountryCode    = "country_code"
	fieldLastActiveDate = "last_active_date"
	fieldDaysInactive   = "days_inactive"
	fieldIsBanned       = "is_banned"
)

// ParseSingle decodes one user-status object. An empty body is the documented
// no-data case: it returns a zero record, found=false and no error. A
// non-object body is a hard parse error.
func ParseSingle(body string) (models.UserStatus, bool, error) {
	if body == "" {
		return models.UserStatus{}, false, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return models.UserStatus{}, false, fmt.Errorf("response is not a JSON object: %w", err)
	}

	return decodeStatus(fields), true, nil
}

// ParseMany decodes an array of user-status objects, preserving order. An
// empty body yields an empty slice. A body that is not a JSON array is a hard
// parse error; a malformed element inside the array yields a zero-value
// record rather than aborting the batch.
func ParseMany(body string) ([]models.UserStatus, error) {
	if body == "" {
		return nil, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elements); err != nil {
		return nil, fmt.Errorf("response is not a JSON array: %w", err)
	}

	statuses := make([]models.UserStatus, 0, len(elements))
	for _, element := range elements {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(element, &fields); err != nil {
			// Malformed element: defaults apply, the batch continues
			statuses = append(statuses, models.UserStatus{})
			continue
		}
		statuses = append(statuses, decodeStatus(fields))
	}

	return statuses, nil
}

// decodeStatus extracts each wire field independently so that one bad field
// cannot poison the rest of the record.
func decodeStatus(fields map[string]json.RawMessage) models.UserStatus {
	return models.UserStatus{
		AccountID:      stringField(fields, fieldAccountID),
		DeviceID:       stringField(fields, fieldDeviceID),
		CountryCode:    stringField(fields, fieldCountryCode),
		LastActiveDate: stringField(fields, fieldLastActiveDate),
		DaysInactive:   intField(fields, fieldDaysInactive),
		IsBanned:       boolField(fields, fieldIsBanned),
	}
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

func intField(fields map[string]json.RawMessage, key string) int {
	raw, ok := fields[key]
	if !ok {
		return 0
	}
	var value int
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0
	}
	if value < 0 {
		return 0
	}
	return value
}

func boolField(fields map[string]json.RawMessage, key string) bool {
	raw, ok := fields[key]
	if !ok {
		return false
	}
	var value bool
	if err := json.Unmarshal(raw, &value); err != nil {
		return false
	}
	return value
}
