package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"account-mapper/internal/hashing"
	"account-mapper/internal/models"
	"account-mapper/internal/service"
)

// stubOperations records engine calls and returns canned results
type stubOperations struct {
	lastDeviceID    string
	lastAccountID   string
	lastEmail       string
	lastPasswordLen int
	lastBatch       []string
	submitErr       error
	knownUsers      []models.UserStatus
}

func (s *stubOperations) RegisterGenerated(_ context.Context, deviceID, _ string) (uuid.UUID, error) {
	s.lastDeviceID = deviceID
	return s.result()
}

func (s *stubOperations) RegisterEmail(_ context.Context, deviceID, email, passwordHash, _ string) (uuid.UUID, error) {
	s.lastDeviceID = deviceID
	s.lastEmail = email
	s.lastPasswordLen = len(passwordHash)
	return s.result()
}

func (s *stubOperations) RegisterFacebook(_ context.Context, deviceID, _, _, _ string) (uuid.UUID, error) {
	s.lastDeviceID = deviceID
	return s.result()
}

func (s *stubOperations) QueryUser(_ context.Context, accountID string, _ bool) (uuid.UUID, error) {
	s.lastAccountID = accountID
	return s.result()
}

func (s *stubOperations) QueryUsers(_ context.Context, accountIDs []string) (uuid.UUID, error) {
	s.lastBatch = accountIDs
	return s.result()
}

func (s *stubOperations) DeleteUser(_ context.Context, accountID string) (uuid.UUID, error) {
	s.lastAccountID = accountID
	return s.result()
}

func (s *stubOperations) AllKnownUsers() []models.UserStatus { return s.knownUsers }
func (s *stubOperations) PendingCount() int                  { return 0 }

func (s *stubOperations) result() (uuid.UUID, error) {
	if s.submitErr != nil {
		return uuid.Nil, s.submitErr
	}
	return uuid.New(), nil
}

func newTestRouter(ops *stubOperations) http.Handler {
	return newTestRouterWithHealth(ops, nil)
}

func newTestRouterWithHealth(ops *stubOperations, health HealthFunc) http.Handler {
	h := NewAccountHandler(ops, hashing.NewHasher(hashing.DefaultParams()), zap.NewNop())
	return NewRouter(h, health, zap.NewNop())
}

func doJSON(t *testing.T, router http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterGenerated_Accepted(t *testing.T) {
	ops := &stubOperations{}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/accounts/register/generated",
		map[string]string{"device_id": "D1"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "D1", ops.lastDeviceID)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}

func TestRegisterGenerated_MissingDeviceID(t *testing.T) {
	ops := &stubOperations{}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/accounts/register/generated",
		map[string]string{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ops.lastDeviceID)
}

func TestRegisterEmail_HashesPassword(t *testing.T) {
	ops := &stubOperations{}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/accounts/register/email",
		map[string]string{"device_id": "D1", "email": "a@b.no", "password": "hunter2"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	// The engine must never see the plaintext password
	assert.Greater(t, ops.lastPasswordLen, len("hunter2"))
}

func TestRegisterEmail_MissingFields(t *testing.T) {
	router := newTestRouter(&stubOperations{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/accounts/register/email",
		map[string]string{"device_id": "D1", "email": "a@b.no"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryOne(t *testing.T) {
	ops := &stubOperations{}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/accounts/ACC123?refresh_last_active=true", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ACC123", ops.lastAccountID)
}

func TestQueryBatch(t *testing.T) {
	ops := &stubOperations{}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/accounts/query",
		map[string][]string{"account_ids": {"A1", "A2"}})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"A1", "A2"}, ops.lastBatch)
}

func TestQueryBatch_RejectsSuspiciousIDs(t *testing.T) {
	ops := &stubOperations{}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/accounts/query",
		map[string][]string{"account_ids": {`A1"`, "A2"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, ops.lastBatch)
}

func TestDelete(t *testing.T) {
	ops := &stubOperations{}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/accounts/ACC123", nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "ACC123", ops.lastAccountID)
}

func TestListKnownUsers(t *testing.T) {
	ops := &stubOperations{knownUsers: []models.UserStatus{
		{AccountID: "A1", DeviceID: "D1"},
		{AccountID: "A2", DeviceID: "D2", IsBanned: true},
	}}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/accounts", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.EqualValues(t, 2, data["total"])
}

func TestEngineValidationErrorMapsTo400(t *testing.T) {
	ops := &stubOperations{submitErr: service.ErrEmptyDeviceID}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/accounts/register/generated",
		map[string]string{"device_id": "D1"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitFailureMapsTo502(t *testing.T) {
	ops := &stubOperations{submitErr: assert.AnError}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/accounts/register/generated",
		map[string]string{"device_id": "D1"})

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRegisterEmail_SanitizesEmail(t *testing.T) {
	ops := &stubOperations{}
	router := newTestRouter(ops)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/accounts/register/email",
		map[string]string{"device_id": "D1", "email": "  a@b.no ", "password": "hunter2"})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "a@b.no", ops.lastEmail)
}

func TestHealth_AllCollaboratorsHealthy(t *testing.T) {
	router := newTestRouterWithHealth(&stubOperations{}, func(context.Context) map[string]error {
		return map[string]error{}
	})

	rec := doJSON(t, router, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.NotContains(t, body, "checks")
}

func TestHealth_DegradedCollaboratorReported(t *testing.T) {
	router := newTestRouterWithHealth(&stubOperations{}, func(context.Context) map[string]error {
		return map[string]error{"kafka": errors.New("broker unreachable")}
	})

	rec := doJSON(t, router, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "broker unreachable", checks["kafka"])
}

func TestHealth_NoCheckerConfigured(t *testing.T) {
	router := newTestRouter(&stubOperations{})
	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
