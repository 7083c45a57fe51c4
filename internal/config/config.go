package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"account-mapper/internal/util"

	"github.com/joho/godotenv"
)

// WritePolicy controls what happens when a record for an already-cached
// account id arrives again.
type WritePolicy string

const (
	// WriteInsertIfAbsent leaves the existing record untouched.
	WriteInsertIfAbsent WritePolicy = "insert_if_absent"
	// WriteUpsert overwrites the existing record with the newest one.
	WriteUpsert WritePolicy = "upsert"
)

// Config holds all application configuration loaded from the environment
type Config struct {
	Environment string
	Server      ServerConfig
	Logging     LoggingConfig
	Backend     BackendConfig
	Kafka       KafkaConfig
	Clickhouse  ClickhouseConfig
	Cache       CacheConfig
}

// ServerConfig configures the admin/API HTTP server
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	CertFile     string
	KeyFile      string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// BackendConfig describes the remote account-mapping backend: base URL,
// access-token fragment and the six endpoint paths.
type BackendConfig struct {
	BaseURL        string
	AccessToken    string
	RequestTimeout time.Duration

	RegisterGeneratedPath string
	RegisterEmailPath     string
	RegisterFacebookPath  string
	QueryUserPath         string
	QueryUsersPath        string
	DeleteUserPath        string
}

type KafkaConfig struct {
	Brokers     []string
	EventsTopic string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
	Table    string
}

// CacheConfig carries the explicit decisions around the cache open questions:
// the duplicate-write policy and whether a successful delete prunes the record.
type CacheConfig struct {
	WritePolicy   WritePolicy
	PruneOnDelete bool
}

var (
	globalConfig *Config
	once         sync.Once
)

// LoadConfig loads configuration from .env (if present) and the environment
func LoadConfig() *Config {
	once.Do(func() {
		// Missing .env is fine in containerized deployments
		_ = godotenv.Load()

		globalConfig = &Config{
			Environment: util.GetEnv("ENVIRONMENT", "development"),
			Server: ServerConfig{
				Host:         util.GetEnv("SERVER_HOST", "0.0.0.0"),
				Port:         util.GetEnvInt("SERVER_PORT", 8080),
				ReadTimeout:  util.GetEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
				WriteTimeout: util.GetEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
				IdleTimeout:  util.GetEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
				EnableTLS:    util.GetEnvBool("SERVER_ENABLE_TLS", false),
				CertFile:     util.GetEnv("SERVER_CERT_FILE", ""),
				KeyFile:      util.GetEnv("SERVER_KEY_FILE", ""),
			},
			Logging: LoggingConfig{
				Level:  util.GetEnv("LOG_LEVEL", "info"),
				Format: util.GetEnv("LOG_FORMAT", "json"),
			},
			Backend: BackendConfig{
				BaseURL:               util.GetEnv("BACKEND_BASE_URL", "http://localhost:9000"),
				AccessToken:           util.GetEnv("BACKEND_ACCESS_TOKEN", ""),
				RequestTimeout:        util.GetEnvDuration("BACKEND_REQUEST_TIMEOUT", 30*time.Second),
				RegisterGeneratedPath: util.GetEnv("BACKEND_REGISTER_GENERATED_PATH", "/users/register/generated"),
				RegisterEmailPath:     util.GetEnv("BACKEND_REGISTER_EMAIL_PATH", "/users/register/email"),
				RegisterFacebookPath:  util.GetEnv("BACKEND_REGISTER_FACEBOOK_PATH", "/users/register/facebook"),
				QueryUserPath:         util.GetEnv("BACKEND_QUERY_USER_PATH", "/users/status"),
				QueryUsersPath:        util.GetEnv("BACKEND_QUERY_USERS_PATH", "/users/status/batch"),
				DeleteUserPath:        util.GetEnv("BACKEND_DELETE_USER_PATH", "/users"),
			},
			Kafka: KafkaConfig{
				Brokers:     util.GetEnvSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
				EventsTopic: util.GetEnv("KAFKA_ACCOUNT_EVENTS_TOPIC", "account-events"),
			},
			Clickhouse: ClickhouseConfig{
				URL:      util.GetEnv("CLICKHOUSE_URL", "http://localhost:8123"),
				Username: util.GetEnv("CLICKHOUSE_USERNAME", "default"),
				Password: util.GetEnv("CLICKHOUSE_PASSWORD", ""),
				Database: util.GetEnv("CLICKHOUSE_DATABASE", "account_mapper"),
				Table:    util.GetEnv("CLICKHOUSE_AUDIT_TABLE", "operation_audit"),
			},
			Cache: CacheConfig{
				WritePolicy:   parseWritePolicy(util.GetEnv("CACHE_WRITE_POLICY", string(WriteInsertIfAbsent))),
				PruneOnDelete: util.GetEnvBool("PRUNE_CACHE_ON_DELETE", false),
			},
		}
	})

	return globalConfig
}

// Get returns the loaded configuration, loading it on first use
func Get() *Config {
	if globalConfig == nil {
		return LoadConfig()
	}
	return globalConfig
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func parseWritePolicy(value string) WritePolicy {
	switch WritePolicy(strings.ToLower(strings.TrimSpace(value))) {
	case WriteUpsert:
		return WriteUpsert
	default:
		return WriteInsertIfAbsent
	}
}

// EndpointURL joins a backend endpoint path with query parameters and the
// access-token fragment. Query values are escaped by url.Values.
func (b *BackendConfig) EndpointURL(path string, query url.Values) string {
	base := strings.TrimRight(b.BaseURL, "/")
	if query == nil {
		query = url.Values{}
	}
	if b.AccessToken != "" {
		query.Set("access_token", b.AccessToken)
	}
	encoded := query.Encode()
	if encoded == "" {
		return base + path
	}
	return base + path + "?" + encoded
}
