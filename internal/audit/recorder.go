// Package audit records the outcome of every backend operation in ClickHouse.
package audit

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"account-mapper/internal/client"
	"account-mapper/internal/config"
	"account-mapper/internal/models"
)

// flushThreshold is the buffered row count that triggers a batch insert.
// ClickHouse strongly prefers batched writes over row-at-a-time inserts.
const flushThreshold = 32

// Recorder buffers one audit row per processed completion and flushes them in
// batches. Auditing is an observability concern: a failed flush is logged and
// swallowed, it never fails the operation itself.
type Recorder struct {
	clickhouse *client.ClickHouseClient
	table      string
	logger     *zap.Logger

	mu     sync.Mutex
	buffer []models.OperationAudit
}

func NewRecorder(clickhouse *client.ClickHouseClient, cfg *config.Config, logger *zap.Logger) *Recorder {
	return &Recorder{
		clickhouse: clickhouse,
		table:      cfg.Clickhouse.Table,
		logger:     logger,
	}
}

// EnsureSchema creates the audit table when it does not exist yet
func (r *Recorder) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			kind        LowCardinality(String),
			handle      UUID,
			account_id  String,
			status_code Int32,
			success     UInt8,
			duration_ms Int64,
			event_time  DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (event_time, kind)`, r.table)

	if err := r.clickhouse.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create audit table: %w", err)
	}
	return nil
}

// Record buffers one audit row and flushes once the buffer is full
func (r *Recorder) Record(ctx context.Context, entry models.OperationAudit) error {
	r.mu.Lock()
	r.buffer = append(r.buffer, entry)
	var pending []models.OperationAudit
	if len(r.buffer) >= flushThreshold {
		pending = r.buffer
		r.buffer = nil
	}
	r.mu.Unlock()

	if pending == nil {
		return nil
	}
	return r.flush(ctx, pending)
}

// Flush writes any buffered rows immediately, used at shutdown
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	pending := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}
	return r.flush(ctx, pending)
}

func (r *Recorder) flush(ctx context.Context, entries []models.OperationAudit) error {
	rows := make([][]interface{}, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []interface{}{
			string(entry.Kind),
			entry.Handle,
			entry.AccountID,
			int32(entry.StatusCode),
			boolToUInt8(entry.Success),
			entry.Duration.Milliseconds(),
			entry.EventTime.UTC(),
		})
	}

	query := fmt.Sprintf("INSERT INTO %s", r.table)
	if err := r.clickhouse.BatchInsert(ctx, query, rows); err != nil {
		r.logger.Error("failed to flush operation audit batch",
			zap.Int("rows", len(rows)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to insert audit batch: %w", err)
	}

	r.logger.Debug("Flushed operation audit batch", zap.Int("rows", len(rows)))
	return nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
