// Package factory manages the lifecycle of all application dependencies.
package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"account-mapper/internal/audit"
	"account-mapper/internal/client"
	"account-mapper/internal/config"
	"account-mapper/internal/hashing"
	"account-mapper/internal/service"
	"account-mapper/internal/util"
)

// Factory wires configuration, clients and the account engine together. The
// event publisher and audit recorder are optional collaborators: outside
// production an unreachable Kafka or ClickHouse downgrades to a warning and
// the service runs without them.
type Factory struct {
	config *config.Config

	transport        *client.HTTPTransport
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient
	auditRecorder    *audit.Recorder

	hasher         *hashing.Hasher
	accountService *service.AccountService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	factory.hasher = hashing.NewHasher(hashing.DefaultParams())

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("backend", cfg.Backend.BaseURL),
		util.Bool("kafka_enabled", factory.kafkaProducer != nil),
		util.Bool("audit_enabled", factory.auditRecorder != nil),
	)

	return factory, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	f.transport = client.NewHTTPTransport(f.config, util.Get())

	// Kafka
	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without events", util.ErrorField(err))
	} else if err := producer.HealthCheck(ctx); err != nil {
		if f.config.IsProduction() {
			return fmt.Errorf("kafka health check: %w", err)
		}
		util.Warn("Kafka health check failed - proceeding without events", util.ErrorField(err))
		_ = producer.Close()
	} else {
		f.kafkaProducer = producer
		util.Info("Kafka producer initialized and healthy")
	}

	// ClickHouse audit sink
	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		if f.config.IsProduction() {
			return fmt.Errorf("clickhouse: %w", err)
		}
		util.Warn("ClickHouse initialization failed - proceeding without audit", util.ErrorField(err))
	} else {
		f.clickhouseClient = chClient
		recorder := audit.NewRecorder(chClient, f.config, util.Get())
		if err := recorder.EnsureSchema(ctx); err != nil {
			if f.config.IsProduction() {
				return fmt.Errorf("audit schema: %w", err)
			}
			util.Warn("Audit schema setup failed - proceeding without audit", util.ErrorField(err))
		} else {
			f.auditRecorder = recorder
			util.Info("ClickHouse audit recorder initialized")
		}
	}

	return nil
}

// AccountService returns the account operations engine, constructing it on
// first use.
func (f *Factory) AccountService() *service.AccountService {
	if f.accountService == nil {
		var publisher service.EventPublisher
		if f.kafkaProducer != nil {
			publisher = f.kafkaProducer
		}
		var auditor service.AuditRecorder
		if f.auditRecorder != nil {
			auditor = f.auditRecorder
		}
		f.accountService = service.NewAccountService(
			f.config,
			f.transport,
			nil, // notifications flow through the event stream
			publisher,
			auditor,
			util.Get(),
		)
	}
	return f.accountService
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) Hasher() *hashing.Hasher {
	return f.hasher
}

// HealthCheck probes the optional collaborators concurrently
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	var mu sync.Mutex
	healthErrors := make(map[string]error)
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		healthErrors[name] = err
	}

	g, ctx := errgroup.WithContext(ctx)

	if f.kafkaProducer != nil {
		g.Go(func() error {
			if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
				record("kafka", err)
			}
			return nil
		})
	}
	if f.clickhouseClient != nil {
		g.Go(func() error {
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				record("clickhouse", err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return healthErrors
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.auditRecorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := f.auditRecorder.Flush(ctx); err != nil {
				util.Error("Failed to flush audit buffer", util.ErrorField(err))
			}
			cancel()
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}
