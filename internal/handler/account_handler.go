package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-mapper/internal/hashing"
	"account-mapper/internal/models"
	"account-mapper/internal/service"
	"account-mapper/internal/util"
)

// AccountOperations is the engine surface the handler drives
type AccountOperations interface {
	RegisterGenerated(ctx context.Context, deviceID, authTicket string) (uuid.UUID, error)
	RegisterEmail(ctx context.Context, deviceID, email, passwordHash, authTicket string) (uuid.UUID, error)
	RegisterFacebook(ctx context.Context, deviceID, facebookID, facebookToken, authTicket string) (uuid.UUID, error)
	QueryUser(ctx context.Context, accountID string, refreshLastActive bool) (uuid.UUID, error)
	QueryUsers(ctx context.Context, accountIDs []string) (uuid.UUID, error)
	DeleteUser(ctx context.Context, accountID string) (uuid.UUID, error)
	AllKnownUsers() []models.UserStatus
	PendingCount() int
}

// AccountHandler exposes the engine over HTTP. Submissions are asynchronous:
// every mutating endpoint answers 202 with the operation handle and the result
// lands in the cache and on the event stream.
type AccountHandler struct {
	accounts AccountOperations
	hasher   *hashing.Hasher
	logger   *zap.Logger
}

func NewAccountHandler(accounts AccountOperations, hasher *hashing.Hasher, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		hasher:   hasher,
		logger:   logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

type submittedData struct {
	Handle string `json:"handle"`
}

type registerGeneratedRequest struct {
	DeviceID   string `json:"device_id"`
	AuthTicket string `json:"auth_ticket,omitempty"`
}

type registerEmailRequest struct {
	DeviceID   string `json:"device_id"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	AuthTicket string `json:"auth_ticket,omitempty"`
}

type registerFacebookRequest struct {
	DeviceID      string `json:"device_id"`
	FacebookID    string `json:"facebook_id"`
	FacebookToken string `json:"facebook_token"`
	AuthTicket    string `json:"auth_ticket,omitempty"`
}

type queryBatchRequest struct {
	AccountIDs []string `json:"account_ids"`
}

// RegisterRoutes registers all account routes
func (h *AccountHandler) RegisterRoutes(router chi.Router) {
	router.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.ListKnownUsers)
		r.Post("/register/generated", h.RegisterGenerated)
		r.Post("/register/email", h.RegisterEmail)
		r.Post("/register/facebook", h.RegisterFacebook)
		r.Post("/query", h.QueryBatch)
		r.Get("/{accountID}", h.QueryOne)
		r.Delete("/{accountID}", h.Delete)
	})
}

// ListKnownUsers returns the cache snapshot in insertion order
func (h *AccountHandler) ListKnownUsers(w http.ResponseWriter, r *http.Request) {
	users := h.accounts.AllKnownUsers()
	h.writeJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"users":       users,
			"total":       len(users),
			"pending_ops": h.accounts.PendingCount(),
		},
	})
}

func (h *AccountHandler) RegisterGenerated(w http.ResponseWriter, r *http.Request) {
	var req registerGeneratedRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if !h.validID(w, req.DeviceID, "device_id") {
		return
	}

	// Background context: the backend call outlives this HTTP request
	handle, err := h.accounts.RegisterGenerated(context.Background(), req.DeviceID, req.AuthTicket)
	h.writeSubmitted(w, handle, err)
}

func (h *AccountHandler) RegisterEmail(w http.ResponseWriter, r *http.Request) {
	var req registerEmailRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if !h.validID(w, req.DeviceID, "device_id") {
		return
	}
	req.Email = util.SanitizeInput(req.Email)
	if req.Email == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, errors.New("email and password are required"))
		return
	}

	passwordHash, err := h.hasher.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("Failed to hash password", util.ErrorField(err))
		h.writeError(w, http.StatusInternalServerError, errors.New("failed to process credentials"))
		return
	}

	handle, err := h.accounts.RegisterEmail(context.Background(), req.DeviceID, req.Email, passwordHash, req.AuthTicket)
	h.writeSubmitted(w, handle, err)
}

func (h *AccountHandler) RegisterFacebook(w http.ResponseWriter, r *http.Request) {
	var req registerFacebookRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if !h.validID(w, req.DeviceID, "device_id") {
		return
	}

	handle, err := h.accounts.RegisterFacebook(context.Background(), req.DeviceID, req.FacebookID, req.FacebookToken, req.AuthTicket)
	h.writeSubmitted(w, handle, err)
}

func (h *AccountHandler) QueryOne(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if !h.validID(w, accountID, "account id") {
		return
	}
	refresh := r.URL.Query().Get("refresh_last_active") == "true"

	handle, err := h.accounts.QueryUser(context.Background(), accountID, refresh)
	h.writeSubmitted(w, handle, err)
}

func (h *AccountHandler) QueryBatch(w http.ResponseWriter, r *http.Request) {
	var req queryBatchRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	for _, id := range req.AccountIDs {
		if !h.validID(w, id, "account id") {
			return
		}
	}

	handle, err := h.accounts.QueryUsers(context.Background(), req.AccountIDs)
	h.writeSubmitted(w, handle, err)
}

func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	if !h.validID(w, accountID, "account id") {
		return
	}

	handle, err := h.accounts.DeleteUser(context.Background(), accountID)
	h.writeSubmitted(w, handle, err)
}

func (h *AccountHandler) decodeBody(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return false
	}
	return true
}

func (h *AccountHandler) validID(w http.ResponseWriter, id, label string) bool {
	if id == "" {
		h.writeError(w, http.StatusBadRequest, errors.New(label+" is required"))
		return false
	}
	if util.ContainsSuspicious(id) {
		h.writeError(w, http.StatusBadRequest, errors.New(label+" contains invalid characters"))
		return false
	}
	return true
}

// writeSubmitted maps engine submission results to HTTP: validation errors are
// the caller's fault, anything else is a transport construction failure.
func (h *AccountHandler) writeSubmitted(w http.ResponseWriter, handle uuid.UUID, err error) {
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusAccepted, Response{
			Success: true,
			Data:    submittedData{Handle: handle.String()},
			Message: "operation submitted",
		})
	case errors.Is(err, service.ErrEmptyAccountID),
		errors.Is(err, service.ErrEmptyDeviceID),
		errors.Is(err, service.ErrMissingCredentials):
		h.writeError(w, http.StatusBadRequest, err)
	default:
		h.writeError(w, http.StatusBadGateway, err)
	}
}

func (h *AccountHandler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, Response{Success: false, Error: err.Error()})
}

func (h *AccountHandler) writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", util.ErrorField(err))
	}
}
