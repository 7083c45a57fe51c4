package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-mapper/internal/models"
)

func TestParseSingle_AllFields(t *testing.T) {
	body := `{
		"unique_user_id": "ACC123",
		"udid": "D1",
		"country_code": "NO",
		"last_active_date": "2019-04-01T10:00:00Z",
		"days_inactive": 12,
		"is_banned": true
	}`

	status, found, err := ParseSingle(body)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.UserStatus{
		AccountID:      "ACC123",
		DeviceID:       "D1",
		CountryCode:    "NO",
		LastActiveDate: "2019-04-01T10:00:00Z",
		DaysInactive:   12,
		IsBanned:       true,
	}, status)
}

func TestParseSingle_MissingFieldsDefault(t *testing.T) {
	status, found, err := ParseSingle(`{"unique_user_id":"ACC123"}`)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ACC123", status.AccountID)
	assert.Empty(t, status.DeviceID)
	assert.Empty(t, status.CountryCode)
	assert.Zero(t, status.DaysInactive)
	assert.False(t, status.IsBanned)
}

func TestParseSingle_WrongTypeFieldDefaults(t *testing.T) {
	status, found, err := ParseSingle(`{"unique_user_id":"ACC123","days_inactive":"tw12","is_banned":"yes"}`)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "ACC123", status.AccountID)
	assert.Zero(t, status.DaysInactive)
	assert.False(t, status.IsBanned)
}

func TestParseSingle_NegativeDaysInactiveClamped(t *testing.T) {
	status, _, err := ParseSingle(`{"unique_user_id":"ACC123","days_inactive":-3}`)
	require.NoError(t, err)
	assert.Zero(t, status.DaysInactive)
}

func TestParseSingle_EmptyBodyIsNoData(t *testing.T) {
	status, found, err := ParseSingle("")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, models.UserStatus{}, status)
}

func TestParseSingle_InvalidBody(t *testing.T) {
	_, _, err := ParseSingle("not json at all")
	require.Error(t, err)

	_, _, err = ParseSingle(`["array","not","object"]`)
	require.Error(t, err)
}

func TestParseMany_OrderPreserved(t *testing.T) {
	body := `[
		{"unique_user_id":"A1","udid":"D1"},
		{"unique_user_id":"A2","udid":"D2","is_banned":true},
		{"unique_user_id":"A3","days_inactive":7}
	]`

	statuses, err := ParseMany(body)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, "A1", statuses[0].AccountID)
	assert.Equal(t, "A2", statuses[1].AccountID)
	assert.True(t, statuses[1].IsBanned)
	assert.Equal(t, "A3", statuses[2].AccountID)
	assert.Equal(t, 7, statuses[2].DaysInactive)
}

func TestParseMany_MalformedElementDoesNotAbortBatch(t *testing.T) {
	statuses, err := ParseMany(`[{"unique_user_id":"A1"},"garbage",{"unique_user_id":"A2"}]`)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, "A1", statuses[0].AccountID)
	assert.Equal(t, models.UserStatus{}, statuses[1])
	assert.Equal(t, "A2", statuses[2].AccountID)
}

func TestParseMany_EmptyCases(t *testing.T) {
	statuses, err := ParseMany("")
	require.NoError(t, err)
	assert.Empty(t, statuses)

	statuses, err = ParseMany("[]")
	require.NoError(t, err)
	assert.Empty(t, statuses)
}

func TestParseMany_NonArrayIsHardError(t *testing.T) {
	_, err := ParseMany(`{"unique_user_id":"A1"}`)
	require.Error(t, err)
}
