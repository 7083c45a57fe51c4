package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"account-mapper/internal/config"
)

// Completion is the outcome of one submitted call. Success reflects only the
// transport layer: a response was received, whatever its status. Status is 0
// when no response arrived at all.
type Completion struct {
	Handle  uuid.UUID
	Success bool
	Status  int
	Body    string
}

// CompletionHandler receives exactly one Completion per accepted submission
type CompletionHandler func(Completion)

// Transport performs one HTTP call asynchronously. Submit returns the opaque
// handle correlating the eventual completion, or an error when the call could
// not even be constructed — in which case the handler is never invoked.
type Transport interface {
	Submit(ctx context.Context, method, url string, headers map[string]string, body []byte, done CompletionHandler) (uuid.UUID, error)
}

// HTTPTransport is the production Transport over net/http
type HTTPTransport struct {
	client *http.Client
	logger *zap.Logger
}

func NewHTTPTransport(cfg *config.Config, logger *zap.Logger) *HTTPTransport {
	return &HTTPTransport{
		client: &http.Client{
			Timeout: cfg.Backend.RequestTimeout,
		},
		logger: logger,
	}
}

// Submit builds the request, assigns a fresh handle and performs the call on
// its own goroutine. The handler is invoked exactly once, from that goroutine.
func (t *HTTPTransport) Submit(ctx context.Context, method, url string, headers map[string]string, body []byte, done CompletionHandler) (uuid.UUID, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to build request: %w", err)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	handle := uuid.New()

	go func() {
		resp, err := t.client.Do(req)
		if err != nil {
			t.logger.Debug("transport call failed",
				zap.String("handle", handle.String()),
				zap.String("method", method),
				zap.Error(err),
			)
			done(Completion{Handle: handle})
			return
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			done(Completion{Handle: handle, Status: resp.StatusCode})
			return
		}

		done(Completion{
			Handle:  handle,
			Success: true,
			Status:  resp.StatusCode,
			Body:    string(payload),
		})
	}()

	return handle, nil
}
