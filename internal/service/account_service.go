// Package service implements the account operations engine: it submits
// asynchronous register, query and delete calls against the backend,
// correlates completions back to their originating operation through the
// pending registry, and merges parsed results into the user-status cache.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-mapper/internal/cache"
	"account-mapper/internal/client"
	"account-mapper/internal/config"
	"account-mapper/internal/models"
	"account-mapper/internal/parser"
	"account-mapper/internal/registry"
	"account-mapper/internal/util"
)

var (
	ErrEmptyAccountID     = errors.New("account id is empty")
	ErrEmptyDeviceID      = errors.New("device id is empty")
	ErrMissingCredentials = errors.New("missing registration credentials")
)

// Query parameter names understood by the backend
const (
	paramDeviceID          = "udid"
	paramEmail             = "email"
	paramPasswordHash      = "password_hash"
	paramFacebookID        = "facebook_id"
	paramFacebookAuthToken = "facebook_auth_token"
	paramAuthTicket        = "auth_ticket"
	paramAccountID         = "unique_user_id"
	paramRefreshLastActive = "refresh_last_active"
)

// Notifier receives exactly one callback per submitted operation. Callbacks
// run while the engine holds its lock and must not call back into the engine.
type Notifier interface {
	OnRegisterComplete(accountID, deviceID string, success bool, rawBody string)
	OnQueryComplete(success bool, rawBody string)
	OnDeleteComplete(success bool, rawBody string)
}

// EventPublisher pushes account lifecycle events to the event stream
type EventPublisher interface {
	PublishAccountEvent(ctx context.Context, event models.AccountEvent) error
}

// AuditRecorder persists the outcome of processed operations
type AuditRecorder interface {
	Record(ctx context.Context, entry models.OperationAudit) error
}

// AccountService orchestrates the six backend operations. The pending
// registry and the user-status cache are exclusively owned by the engine; the
// mutex serializes submissions against completions so each completion runs the
// full locate-classify-parse-merge-notify-remove sequence atomically.
type AccountService struct {
	backend     config.BackendConfig
	writePolicy config.WritePolicy
	pruneOnDel  bool

	transport client.Transport
	registry  *registry.PendingRegistry
	cache     *cache.UserStatusCache
	notifier  Notifier
	publisher EventPublisher
	auditor   AuditRecorder
	logger    *zap.Logger

	mu sync.Mutex
}

// NewAccountService creates the engine. notifier, publisher and auditor may
// each be nil; the corresponding hook is skipped.
func NewAccountService(
	cfg *config.Config,
	transport client.Transport,
	notifier Notifier,
	publisher EventPublisher,
	auditor AuditRecorder,
	logger *zap.Logger,
) *AccountService {
	return &AccountService{
		backend:     cfg.Backend,
		writePolicy: cfg.Cache.WritePolicy,
		pruneOnDel:  cfg.Cache.PruneOnDelete,
		transport:   transport,
		registry:    registry.NewPendingRegistry(),
		cache:       cache.NewUserStatusCache(),
		notifier:    notifier,
		publisher:   publisher,
		auditor:     auditor,
		logger:      logger,
	}
}

// RegisterGenerated registers a new anonymous account bootstrapped from a
// locally generated device id.
func (s *AccountService) RegisterGenerated(ctx context.Context, deviceID, authTicket string) (uuid.UUID, error) {
	if deviceID == "" {
		return uuid.Nil, ErrEmptyDeviceID
	}

	query := url.Values{}
	query.Set(paramDeviceID, deviceID)
	if authTicket != "" {
		query.Set(paramAuthTicket, authTicket)
	}

	op := &models.PendingOperation{Kind: models.OpRegisterGenerated, DeviceID: deviceID}
	endpoint := s.backend.EndpointURL(s.backend.RegisterGeneratedPath, query)
	return s.submit(ctx, op, http.MethodPost, endpoint, nil, nil)
}

// RegisterEmail registers an account bound to an email credential. The
// password must arrive pre-hashed.
func (s *AccountService) RegisterEmail(ctx context.Context, deviceID, email, passwordHash, authTicket string) (uuid.UUID, error) {
	if deviceID == "" {
		return uuid.Nil, ErrEmptyDeviceID
	}
	if email == "" || passwordHash == "" {
		return uuid.Nil, fmt.Errorf("%w: email and password hash are required", ErrMissingCredentials)
	}

	query := url.Values{}
	query.Set(paramDeviceID, deviceID)
	query.Set(paramEmail, email)
	query.Set(paramPasswordHash, passwordHash)
	if authTicket != "" {
		query.Set(paramAuthTicket, authTicket)
	}

	op := &models.PendingOperation{Kind: models.OpRegisterEmail, DeviceID: deviceID}
	endpoint := s.backend.EndpointURL(s.backend.RegisterEmailPath, query)
	return s.submit(ctx, op, http.MethodPost, endpoint, nil, nil)
}

// RegisterFacebook registers an account bound to a Facebook identity
func (s *AccountService) RegisterFacebook(ctx context.Context, deviceID, facebookID, facebookToken, authTicket string) (uuid.UUID, error) {
	if deviceID == "" {
		return uuid.Nil, ErrEmptyDeviceID
	}
	if facebookID == "" || facebookToken == "" {
		return uuid.Nil, fmt.Errorf("%w: facebook id and auth token are required", ErrMissingCredentials)
	}

	query := url.Values{}
	query.Set(paramDeviceID, deviceID)
	query.Set(paramFacebookID, facebookID)
	query.Set(paramFacebookAuthToken, facebookToken)
	if authTicket != "" {
		query.Set(paramAuthTicket, authTicket)
	}

	op := &models.PendingOperation{Kind: models.OpRegisterFacebook, DeviceID: deviceID}
	endpoint := s.backend.EndpointURL(s.backend.RegisterFacebookPath, query)
	return s.submit(ctx, op, http.MethodPost, endpoint, nil, nil)
}

// QueryUser fetches the status of one account. An empty account id issues no
// call and produces no notification; the caller gets ErrEmptyAccountID.
func (s *AccountService) QueryUser(ctx context.Context, accountID string, refreshLastActive bool) (uuid.UUID, error) {
	if accountID == "" {
		s.logger.Debug("dropping query for empty account id")
		return uuid.Nil, ErrEmptyAccountID
	}

	query := url.Values{}
	query.Set(paramAccountID, accountID)
	query.Set(paramRefreshLastActive, strconv.FormatBool(refreshLastActive))

	op := &models.PendingOperation{Kind: models.OpQueryOne, ResultAccountID: accountID}
	endpoint := s.backend.EndpointURL(s.backend.QueryUserPath, query)
	return s.submit(ctx, op, http.MethodGet, endpoint, nil, nil)
}

// QueryUsers fetches the status of a batch of accounts. An empty batch still
// issues the call with an empty-array payload.
func (s *AccountService) QueryUsers(ctx context.Context, accountIDs []string) (uuid.UUID, error) {
	if accountIDs == nil {
		accountIDs = []string{}
	}

	payload, err := json.Marshal(accountIDs)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode account id batch: %w", err)
	}

	headers := map[string]string{"Content-Type": "application/json"}
	op := &models.PendingOperation{Kind: models.OpQueryMany}
	endpoint := s.backend.EndpointURL(s.backend.QueryUsersPath, nil)
	return s.submit(ctx, op, http.MethodPost, endpoint, headers, payload)
}

// DeleteUser removes an account backend-side. Whether the local cache is
// pruned on success is controlled by PRUNE_CACHE_ON_DELETE.
func (s *AccountService) DeleteUser(ctx context.Context, accountID string) (uuid.UUID, error) {
	if accountID == "" {
		return uuid.Nil, ErrEmptyAccountID
	}

	query := url.Values{}
	query.Set(paramAccountID, accountID)

	op := &models.PendingOperation{Kind: models.OpDelete, ResultAccountID: accountID}
	endpoint := s.backend.EndpointURL(s.backend.DeleteUserPath, query)
	return s.submit(ctx, op, http.MethodDelete, endpoint, nil, nil)
}

// AllKnownUsers returns an insertion-ordered snapshot of the cache, safe for
// the caller to retain.
func (s *AccountService) AllKnownUsers() []models.UserStatus {
	return s.cache.All()
}

// KnownUser returns the cached record for one account id
func (s *AccountService) KnownUser(accountID string) (models.UserStatus, bool) {
	return s.cache.Get(accountID)
}

// PendingCount returns the number of operations still awaiting completion
func (s *AccountService) PendingCount() int {
	return s.registry.Len()
}

// submit hands the call to the transport and registers the pending operation
// under the returned handle. Holding the lock across both steps guarantees the
// entry is registered before its completion can be processed. A submission
// error leaves no registry entry behind and fires no notification.
func (s *AccountService) submit(ctx context.Context, op *models.PendingOperation, method, endpoint string, headers map[string]string, body []byte) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle, err := s.transport.Submit(ctx, method, endpoint, headers, body, s.handleCompletion)
	if err != nil {
		s.logger.Error("Failed to submit backend call",
			util.String("kind", string(op.Kind)),
			util.ErrorField(err),
		)
		return uuid.Nil, fmt.Errorf("failed to submit %s: %w", op.Kind, err)
	}

	op.Handle = handle
	op.SubmittedAt = time.Now()
	s.registry.Register(op)

	s.logger.Debug("Operation submitted",
		util.String("kind", string(op.Kind)),
		util.String("handle", handle.String()),
	)

	return handle, nil
}

// handleCompletion runs the full completion sequence atomically: locate the
// registry entry, classify the outcome, parse, merge into the cache, notify
// the caller and drop the entry. Exactly one completion is processed per
// registered operation; stray handles are dropped silently.
func (s *AccountService) handleCompletion(res client.Completion) {
	s.mu.Lock()
	defer s.mu.Unlock()

	op, ok := s.registry.Complete(res.Handle)
	if !ok {
		s.logger.Debug("Dropping completion for unknown handle",
			util.String("handle", res.Handle.String()),
		)
		return
	}

	// No response at all is reported as a 500
	statusForLog := res.Status
	if !res.Success && res.Status == 0 {
		statusForLog = http.StatusInternalServerError
	}

	// A call succeeded only if the transport itself succeeded and the status
	// is exactly 200.
	transportOK := res.Success && res.Status == http.StatusOK

	switch {
	case op.Kind.IsRegister():
		s.completeRegister(op, res, transportOK, statusForLog)
	case op.Kind == models.OpQueryOne:
		s.completeQueryOne(op, res, transportOK, statusForLog)
	case op.Kind == models.OpQueryMany:
		s.completeQueryMany(op, res, transportOK, statusForLog)
	case op.Kind == models.OpDelete:
		s.completeDelete(op, res, transportOK, statusForLog)
	}
}

// completeRegister treats the raw response body as the new account id. The
// body never passes through the JSON parser.
func (s *AccountService) completeRegister(op *models.PendingOperation, res client.Completion, success bool, statusForLog int) {
	if success && res.Body != "" {
		op.ResultAccountID = res.Body
		s.mergeStatus(models.UserStatus{
			AccountID: op.ResultAccountID,
			DeviceID:  op.DeviceID,
		})
	}

	s.logCompletion(op, success, statusForLog)
	s.publishEvent(models.AccountEvent{
		EventType:  models.EventAccountRegistered,
		AccountID:  op.ResultAccountID,
		DeviceID:   op.DeviceID,
		Success:    success,
		OccurredAt: time.Now(),
	})
	s.recordAudit(op, statusForLog, success)

	if s.notifier != nil {
		s.notifier.OnRegisterComplete(op.ResultAccountID, op.DeviceID, success, res.Body)
	}
}

func (s *AccountService) completeQueryOne(op *models.PendingOperation, res client.Completion, transportOK bool, statusForLog int) {
	// A single query additionally needs a non-empty, parseable body
	success := transportOK && res.Body != ""
	if success {
		status, found, err := parser.ParseSingle(res.Body)
		switch {
		case err != nil:
			s.logger.Warn("Failed to parse query response",
				util.String("handle", op.Handle.String()),
				util.ErrorField(err),
			)
			success = false
		case found:
			op.ResultAccountID = status.AccountID
			s.mergeStatus(status)
		}
	}

	s.logCompletion(op, success, statusForLog)
	s.publishEvent(models.AccountEvent{
		EventType:  models.EventAccountQueryComplete,
		AccountID:  op.ResultAccountID,
		Success:    success,
		OccurredAt: time.Now(),
	})
	s.recordAudit(op, statusForLog, success)

	if s.notifier != nil {
		s.notifier.OnQueryComplete(success, res.Body)
	}
}

func (s *AccountService) completeQueryMany(op *models.PendingOperation, res client.Completion, success bool, statusForLog int) {
	if success {
		statuses, err := parser.ParseMany(res.Body)
		if err != nil {
			s.logger.Warn("Failed to parse batch query response",
				util.String("handle", op.Handle.String()),
				util.ErrorField(err),
			)
			success = false
		} else {
			// Arrival order is preserved; already-known ids are skipped
			// silently under the default policy.
			for _, status := range statuses {
				s.mergeStatus(status)
			}
		}
	}

	s.logCompletion(op, success, statusForLog)
	s.publishEvent(models.AccountEvent{
		EventType:  models.EventAccountQueryComplete,
		Success:    success,
		OccurredAt: time.Now(),
	})
	s.recordAudit(op, statusForLog, success)

	if s.notifier != nil {
		s.notifier.OnQueryComplete(success, res.Body)
	}
}

func (s *AccountService) completeDelete(op *models.PendingOperation, res client.Completion, success bool, statusForLog int) {
	if success && s.pruneOnDel {
		s.cache.Remove(op.ResultAccountID)
	}

	s.logCompletion(op, success, statusForLog)
	s.publishEvent(models.AccountEvent{
		EventType:  models.EventAccountDeleted,
		AccountID:  op.ResultAccountID,
		Success:    success,
		OccurredAt: time.Now(),
	})
	s.recordAudit(op, statusForLog, success)

	if s.notifier != nil {
		s.notifier.OnDeleteComplete(success, res.Body)
	}
}

// mergeStatus applies the configured duplicate-write policy
func (s *AccountService) mergeStatus(status models.UserStatus) {
	if s.writePolicy == config.WriteUpsert {
		s.cache.Upsert(status)
		return
	}
	s.cache.UpsertIfAbsent(status)
}

func (s *AccountService) logCompletion(op *models.PendingOperation, success bool, status int) {
	fields := []zap.Field{
		util.String("kind", string(op.Kind)),
		util.String("handle", op.Handle.String()),
		util.Int("status", status),
		util.Bool("success", success),
		util.Duration("elapsed", time.Since(op.SubmittedAt)),
	}
	if op.ResultAccountID != "" {
		fields = append(fields, util.String("account_id", op.ResultAccountID))
	}
	if success {
		s.logger.Info("Operation completed", fields...)
		return
	}
	s.logger.Warn("Operation failed", fields...)
}

// publishEvent hands the event to Kafka off the completion path so a slow
// broker cannot stall completion processing.
func (s *AccountService) publishEvent(event models.AccountEvent) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishAccountEvent(ctx, event); err != nil {
			s.logger.Warn("Failed to publish account event",
				util.String("event_type", event.EventType),
				util.ErrorField(err),
			)
		}
	}()
}

func (s *AccountService) recordAudit(op *models.PendingOperation, status int, success bool) {
	if s.auditor == nil {
		return
	}
	entry := models.OperationAudit{
		Kind:       op.Kind,
		Handle:     op.Handle,
		AccountID:  op.ResultAccountID,
		StatusCode: status,
		Success:    success,
		Duration:   time.Since(op.SubmittedAt),
		EventTime:  time.Now(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.auditor.Record(ctx, entry); err != nil {
			s.logger.Warn("Failed to record operation audit",
				util.String("kind", string(entry.Kind)),
				util.ErrorField(err),
			)
		}
	}()
}
