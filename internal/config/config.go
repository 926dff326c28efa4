// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"db-user-sync/internal/sync/domain"
)

// Directory backends.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the admin gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN of the directory store. Required for the postgres backend.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// DirectoryBackend selects the directory store: "postgres" or "memory".
	DirectoryBackend string `mapstructure:"DIRECTORY_BACKEND"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file. Only the CLI needs it, to mint admin tokens.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file. Without it the admin service is not registered.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the lifetime of minted admin tokens (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31) for provisioned temporary passwords; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTLPEndpoint is the OpenTelemetry collector; empty keeps telemetry in-process.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
	// KafkaBrokers is a comma-separated list of broker addresses; empty disables event publishing.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string `mapstructure:"SYNC_KAFKA_TOPIC"`
	// RequestTopic carries single-user sync requests consumed by cmd/worker under KafkaGroupID.
	RequestTopic string `mapstructure:"SYNC_REQUEST_TOPIC"`
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// Sync provider. The provider is configured when SOURCE_DSN is set.
	ProviderID               string `mapstructure:"SYNC_PROVIDER_ID"`
	Realm                    string `mapstructure:"SYNC_REALM"`
	SourceDriver             string `mapstructure:"SOURCE_DRIVER"`
	SourceDSN                string `mapstructure:"SOURCE_DSN"`
	SourceMaxSize            int    `mapstructure:"SOURCE_MAX_SIZE"`
	SourceMaxIdle            int    `mapstructure:"SOURCE_MAX_IDLE"`
	SourceMaxLifetime        string `mapstructure:"SOURCE_MAX_LIFETIME"`
	SourceAcquisitionTimeout string `mapstructure:"SOURCE_ACQUISITION_TIMEOUT"`
	SyncSQL                  string `mapstructure:"SYNC_SQL"`
	SyncSinceSQL             string `mapstructure:"SYNC_SINCE_SQL"`
	SyncOneSQL               string `mapstructure:"SYNC_ONE_SQL"`
	SyncRoleSQL              string `mapstructure:"SYNC_ROLE_SQL"`
	// FullSyncPeriod and ChangedSyncPeriod schedule periodic runs (e.g. "24h"); empty or "0" disables.
	FullSyncPeriod    string `mapstructure:"FULL_SYNC_PERIOD"`
	ChangedSyncPeriod string `mapstructure:"CHANGED_SYNC_PERIOD"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DIRECTORY_BACKEND", BackendPostgres)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "db-user-sync")
	v.SetDefault("JWT_AUDIENCE", "db-user-sync-admin")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "db-user-sync")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SYNC_KAFKA_TOPIC", "db-user-sync-events")
	v.SetDefault("SYNC_REQUEST_TOPIC", "db-user-sync-requests")
	v.SetDefault("KAFKA_GROUP_ID", "db-user-sync-worker")
	v.SetDefault("SYNC_PROVIDER_ID", "db-user-provider")
	v.SetDefault("SYNC_REALM", "")
	v.SetDefault("SOURCE_DRIVER", "pgx")
	v.SetDefault("SOURCE_DSN", "")
	v.SetDefault("SOURCE_MAX_SIZE", 10)
	v.SetDefault("SOURCE_MAX_IDLE", 0)
	v.SetDefault("SOURCE_MAX_LIFETIME", "30m")
	v.SetDefault("SOURCE_ACQUISITION_TIMEOUT", "5s")
	v.SetDefault("SYNC_SQL", "")
	v.SetDefault("SYNC_SINCE_SQL", "")
	v.SetDefault("SYNC_ONE_SQL", "")
	v.SetDefault("SYNC_ROLE_SQL", "")
	v.SetDefault("FULL_SYNC_PERIOD", "")
	v.SetDefault("CHANGED_SYNC_PERIOD", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	switch c.DirectoryBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when DIRECTORY_BACKEND=postgres")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("config: DIRECTORY_BACKEND must be %q or %q, got %q", BackendPostgres, BackendMemory, c.DirectoryBackend)
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	for key, val := range map[string]string{
		"SOURCE_MAX_LIFETIME":        c.SourceMaxLifetime,
		"SOURCE_ACQUISITION_TIMEOUT": c.SourceAcquisitionTimeout,
		"FULL_SYNC_PERIOD":           c.FullSyncPeriod,
		"CHANGED_SYNC_PERIOD":        c.ChangedSyncPeriod,
		"JWT_ACCESS_TTL":             c.JWTAccessTTL,
	} {
		if _, err := parseDuration(val); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	if c.SourceDSN == "" {
		return nil
	}
	if strings.TrimSpace(c.Realm) == "" {
		return errors.New("config: SYNC_REALM must be set when SOURCE_DSN is set")
	}
	if strings.TrimSpace(c.ProviderID) == "" {
		return errors.New("config: SYNC_PROVIDER_ID must not be empty")
	}
	if c.SourceDriver != "pgx" && c.SourceDriver != "postgres" {
		return fmt.Errorf("config: SOURCE_DRIVER must be pgx or postgres, got %q", c.SourceDriver)
	}
	if c.SourceMaxSize < 0 || c.SourceMaxIdle < 0 || (c.SourceMaxSize > 0 && c.SourceMaxIdle > c.SourceMaxSize) {
		return errors.New("config: SOURCE_MAX_IDLE must be between 0 and SOURCE_MAX_SIZE")
	}
	return nil
}

// parseDuration accepts "" and "0" as zero.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return d, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := parseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means event publishing to Kafka is disabled.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Provider builds the synchronization provider from the SOURCE_* and SYNC_* keys.
// It returns (nil, nil) when SOURCE_DSN is unset, meaning no provider is configured.
func (c *Config) Provider() (*domain.Provider, error) {
	if c == nil || c.SourceDSN == "" {
		return nil, nil
	}
	// validate already parsed these; errors cannot occur for a loaded Config.
	lifetime, _ := parseDuration(c.SourceMaxLifetime)
	acquire, _ := parseDuration(c.SourceAcquisitionTimeout)
	full, _ := parseDuration(c.FullSyncPeriod)
	changed, _ := parseDuration(c.ChangedSyncPeriod)
	p := &domain.Provider{
		ID:    c.ProviderID,
		Realm: c.Realm,
		DataSource: domain.DataSource{
			Driver:             c.SourceDriver,
			DSN:                c.SourceDSN,
			MaxSize:            c.SourceMaxSize,
			MaxIdle:            c.SourceMaxIdle,
			MaxLifetime:        lifetime,
			AcquisitionTimeout: acquire,
		},
		Queries: domain.Queries{
			All:   c.SyncSQL,
			Since: c.SyncSinceSQL,
			One:   c.SyncOneSQL,
			Role:  c.SyncRoleSQL,
		},
		FullSyncPeriod:    full,
		ChangedSyncPeriod: changed,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return p, nil
}
