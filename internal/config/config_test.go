package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

// setEnv clears the environment and sets kv for the duration of the test.
func setEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	os.Clearenv()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, map[string]string{"DIRECTORY_BACKEND": "memory"})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":8080" {
		t.Errorf("GRPCAddr = %q, want %q", cfg.GRPCAddr, ":8080")
	}
	if cfg.JWTIssuer != "db-user-sync" || cfg.JWTAudience != "db-user-sync-admin" {
		t.Errorf("JWT issuer/audience = %q/%q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
	if cfg.ServiceName != "db-user-sync" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.KafkaTopic != "db-user-sync-events" {
		t.Errorf("KafkaTopic = %q", cfg.KafkaTopic)
	}
	if cfg.RequestTopic != "db-user-sync-requests" || cfg.KafkaGroupID != "db-user-sync-worker" {
		t.Errorf("RequestTopic/KafkaGroupID = %q/%q", cfg.RequestTopic, cfg.KafkaGroupID)
	}
	if cfg.SourceDriver != "pgx" || cfg.SourceMaxSize != 10 {
		t.Errorf("source defaults = %q/%d", cfg.SourceDriver, cfg.SourceMaxSize)
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	p, err := cfg.Provider()
	if err != nil || p != nil {
		t.Errorf("Provider without SOURCE_DSN = %v, %v; want nil, nil", p, err)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	setEnv(t, map[string]string{
		"GRPC_ADDR":         ":9090",
		"DIRECTORY_BACKEND": "postgres",
		"DATABASE_URL":      "postgres://localhost/directory",
		"JWT_ISSUER":        "custom-issuer",
		"BCRYPT_COST":       "14",
		"KAFKA_BROKERS":     " k1:9092, ,k2:9092 ",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GRPCAddr != ":9090" || cfg.JWTIssuer != "custom-issuer" || cfg.BcryptCost != 14 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	brokers := cfg.KafkaBrokersList()
	if strings.Join(brokers, ",") != "k1:9092,k2:9092" {
		t.Errorf("KafkaBrokersList = %v", brokers)
	}
}

func TestLoad_DirectoryBackend(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"postgres requires url", map[string]string{"DIRECTORY_BACKEND": "postgres"}, "DATABASE_URL"},
		{"unknown backend", map[string]string{"DIRECTORY_BACKEND": "ldap"}, "DIRECTORY_BACKEND"},
		{"memory", map[string]string{"DIRECTORY_BACKEND": "memory"}, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setEnv(t, tc.env)
			cfg, err := Load()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("Load: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Load error = %v, want mention of %s", err, tc.wantErr)
			}
			if cfg != nil {
				t.Error("Load should return nil config on error")
			}
		})
	}
}

func TestLoad_BcryptCostRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 12, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setEnv(t, map[string]string{"DIRECTORY_BACKEND": "memory", "BCRYPT_COST": tc.value})
			cfg, err := Load()
			if tc.err {
				if err == nil {
					t.Fatal("Load should return error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if cfg.BcryptCost != tc.want {
				t.Errorf("BcryptCost = %d, want %d", cfg.BcryptCost, tc.want)
			}
		})
	}
}

func TestLoad_Provider(t *testing.T) {
	setEnv(t, map[string]string{
		"DIRECTORY_BACKEND":          "memory",
		"SOURCE_DSN":                 "postgres://src/users",
		"SOURCE_DRIVER":              "postgres",
		"SOURCE_MAX_SIZE":            "4",
		"SOURCE_MAX_IDLE":            "1",
		"SOURCE_ACQUISITION_TIMEOUT": "2s",
		"SYNC_REALM":                 "demo",
		"SYNC_SQL":                   "SELECT * FROM users",
		"SYNC_SINCE_SQL":             "SELECT * FROM users WHERE updated > $1",
		"SYNC_ONE_SQL":               "SELECT * FROM users WHERE username = $1",
		"SYNC_ROLE_SQL":              "SELECT name FROM roles WHERE username = $1",
		"FULL_SYNC_PERIOD":           "24h",
		"CHANGED_SYNC_PERIOD":        "0",
	})
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := cfg.Provider()
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if p.ID != "db-user-provider" || p.Realm != "demo" {
		t.Errorf("provider identity = %q/%q", p.ID, p.Realm)
	}
	ds := p.DataSource
	if ds.Driver != "postgres" || ds.MaxSize != 4 || ds.MaxIdle != 1 || ds.AcquisitionTimeout != 2*time.Second || ds.MaxLifetime != 30*time.Minute {
		t.Errorf("data source = %+v", ds)
	}
	if p.Queries.Role == "" || p.Queries.One == "" {
		t.Errorf("queries = %+v", p.Queries)
	}
	if p.FullSyncPeriod != 24*time.Hour || p.ChangedSyncPeriod != 0 {
		t.Errorf("periods = %v/%v", p.FullSyncPeriod, p.ChangedSyncPeriod)
	}
}

func TestLoad_ProviderValidation(t *testing.T) {
	base := func() map[string]string {
		return map[string]string{
			"DIRECTORY_BACKEND": "memory",
			"SOURCE_DSN":        "postgres://src/users",
			"SYNC_REALM":        "demo",
		}
	}
	testCases := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"missing realm", "SYNC_REALM", "", "SYNC_REALM"},
		{"unknown driver", "SOURCE_DRIVER", "mysql", "SOURCE_DRIVER"},
		{"idle above max", "SOURCE_MAX_IDLE", "20", "SOURCE_MAX_IDLE"},
		{"bad period", "FULL_SYNC_PERIOD", "daily", "FULL_SYNC_PERIOD"},
		{"negative timeout", "SOURCE_ACQUISITION_TIMEOUT", "-1s", "SOURCE_ACQUISITION_TIMEOUT"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := base()
			env[tc.key] = tc.value
			setEnv(t, env)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("Load error = %v, want mention of %s", err, tc.wantErr)
			}
			if !strings.HasPrefix(err.Error(), "config:") {
				t.Errorf("error %q should be prefixed with config:", err)
			}
		})
	}
}

func TestKafkaBrokersList_Nil(t *testing.T) {
	var c *Config
	if c.KafkaBrokersList() != nil {
		t.Error("nil config should have no brokers")
	}
	if (&Config{}).KafkaBrokersList() != nil {
		t.Error("empty KAFKA_BROKERS should have no brokers")
	}
}
