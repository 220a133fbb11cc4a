package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

const (
	BackendPostgREST = "postgrest"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"

	MessagesDefault = "default"
	MessagesScylla  = "scylla"
)

// Config aggregates server configuration values loaded from environment variables.
type Config struct {
	Env             string
	HTTPAddr        string
	GRPCAddr        string
	CORSOrigins     []string
	StoreBackend    string
	MessagesBackend string
	StoreTimeout    time.Duration
	MarkReadTimeout time.Duration
	FixturesPath    string

	SupabaseURL            string
	SupabaseAnonKey        string
	SupabaseServiceRoleKey string
	SupabaseJWTSecret      string
	AllowUnverifiedTokens  bool

	DatabaseURL string

	ScyllaHosts       []string
	ScyllaKeyspace    string
	ScyllaUsername    string
	ScyllaPassword    string
	ScyllaConsistency gocql.Consistency
	ScyllaTimeout     time.Duration
	ReplicationFactor int

	MongoURI           string
	MongoDB            string
	IdempotencyTTL     time.Duration
	KafkaBrokers       []string
	KafkaTopicPrefix   string
	OutboxPollInterval time.Duration
	RetryBackoff       []time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Load parses configuration from the current environment.
func Load() (Config, error) {
	cfg := Config{
		Env:                    getEnv("APP_ENV", "dev"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:               getEnv("GRPC_ADDR", ":9090"),
		CORSOrigins:            splitAndTrim(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		StoreBackend:           strings.ToLower(getEnv("STORE_BACKEND", BackendMemory)),
		MessagesBackend:        strings.ToLower(getEnv("MESSAGES_BACKEND", MessagesDefault)),
		FixturesPath:           os.Getenv("FIXTURES_PATH"),
		SupabaseURL:            strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseAnonKey:        os.Getenv("SUPABASE_ANON_KEY"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseJWTSecret:      os.Getenv("SUPABASE_JWT_SECRET"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		ScyllaHosts:            splitAndTrim(os.Getenv("SCYLLA_HOSTS")),
		ScyllaKeyspace:         getEnv("SCYLLA_KEYSPACE", "octopus"),
		ScyllaUsername:         strings.TrimSpace(os.Getenv("SCYLLA_USERNAME")),
		ScyllaPassword:         strings.TrimSpace(os.Getenv("SCYLLA_PASSWORD")),
		ReplicationFactor:      parseIntWithDefault(strings.TrimSpace(os.Getenv("SCYLLA_REPLICATION_FACTOR")), 1),
		MongoURI:               os.Getenv("MONGO_URI"),
		MongoDB:                getEnv("MONGO_DB", "octopus"),
		KafkaBrokers:           splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		KafkaTopicPrefix:       getEnv("KAFKA_TOPIC_PREFIX", ""),
		RedisAddr:              strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:          os.Getenv("REDIS_PASSWORD"),
		RedisDB:                parseIntWithDefault(strings.TrimSpace(os.Getenv("REDIS_DB")), 0),
		RedisPrefix:            getEnv("REDIS_CHANNEL_PREFIX", "octopus:user:"),
	}

	var err error
	if cfg.StoreTimeout, err = parseDurationEnv("STORE_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MarkReadTimeout, err = parseDurationEnv("MARK_READ_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaTimeout, err = parseDurationEnv("SCYLLA_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ScyllaConsistency, err = parseConsistency(getEnv("SCYLLA_CONSISTENCY", "quorum")); err != nil {
		return Config{}, err
	}
	if cfg.ReplicationFactor < 1 {
		cfg.ReplicationFactor = 1
	}
	if cfg.IdempotencyTTL, err = parseDurationEnv("IDEMP_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = parseDurationEnv("OUTBOX_POLL_INTERVAL", 500*time.Millisecond); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoff, err = parseDurationList("RETRY_BACKOFF", "1s,5s,30s"); err != nil {
		return Config{}, err
	}
	devEnv := cfg.Env == "dev" || cfg.Env == "local"
	if cfg.AllowUnverifiedTokens, err = parseBoolEnv("AUTH_ALLOW_UNVERIFIED", devEnv && cfg.SupabaseJWTSecret == ""); err != nil {
		return Config{}, err
	}

	switch cfg.StoreBackend {
	case BackendPostgREST:
		if cfg.SupabaseURL == "" {
			return Config{}, fmt.Errorf("SUPABASE_URL is required for the %s backend", cfg.StoreBackend)
		}
		if cfg.SupabaseServiceRoleKey == "" && cfg.SupabaseAnonKey == "" {
			return Config{}, fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY or SUPABASE_ANON_KEY is required")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL is required for the %s backend", cfg.StoreBackend)
		}
	case BackendMemory:
	default:
		return Config{}, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
	switch cfg.MessagesBackend {
	case MessagesDefault:
	case MessagesScylla:
		if len(cfg.ScyllaHosts) == 0 {
			return Config{}, fmt.Errorf("SCYLLA_HOSTS is required for the %s messages backend", cfg.MessagesBackend)
		}
	default:
		return Config{}, fmt.Errorf("unknown MESSAGES_BACKEND %q", cfg.MessagesBackend)
	}
	if cfg.SupabaseJWTSecret == "" && !cfg.AllowUnverifiedTokens {
		return Config{}, fmt.Errorf("SUPABASE_JWT_SECRET is required unless AUTH_ALLOW_UNVERIFIED is set")
	}
	if cfg.AllowUnverifiedTokens && !devEnv {
		return Config{}, fmt.Errorf("AUTH_ALLOW_UNVERIFIED is only permitted in dev")
	}
	return cfg, nil
}

// ClientConfig configures the octopus-chat terminal client.
type ClientConfig struct {
	Env             string
	SupabaseURL     string
	SupabaseAnonKey string
	APIAddr         string
	SessionPath     string
	PollInterval    time.Duration
	StoreTimeout    time.Duration
}

// LoadClient parses the client configuration. OCTOPUS_API_ADDR points the
// client at an octopus gRPC server; without it the client reads the Supabase
// project directly.
func LoadClient() (ClientConfig, error) {
	cfg := ClientConfig{
		Env:             getEnv("APP_ENV", "dev"),
		SupabaseURL:     strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseAnonKey: os.Getenv("SUPABASE_ANON_KEY"),
		APIAddr:         strings.TrimSpace(os.Getenv("OCTOPUS_API_ADDR")),
		SessionPath:     os.Getenv("OCTOPUS_SESSION_PATH"),
	}
	var err error
	if cfg.PollInterval, err = parseDurationEnv("POLL_INTERVAL", 5*time.Second); err != nil {
		return ClientConfig{}, err
	}
	if cfg.StoreTimeout, err = parseDurationEnv("STORE_TIMEOUT", 10*time.Second); err != nil {
		return ClientConfig{}, err
	}
	if cfg.PollInterval <= 0 {
		return ClientConfig{}, fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if cfg.APIAddr == "" && (cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "") {
		return ClientConfig{}, fmt.Errorf("SUPABASE_URL and SUPABASE_ANON_KEY are required without OCTOPUS_API_ADDR")
	}
	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", key, err)
	}
	return d, nil
}

func parseDurationList(key, def string) ([]time.Duration, error) {
	var out []time.Duration
	for _, val := range splitAndTrim(getEnv(key, def)) {
		d, err := time.ParseDuration(val)
		if err != nil {
			return nil, fmt.Errorf("invalid %s component %q: %w", key, val, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "y", "on":
		return true, nil
	case "0", "f", "false", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s boolean: %q", key, raw)
	}
}

func parseIntWithDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v == 0 {
		return def
	}
	return v
}

func parseConsistency(raw string) (gocql.Consistency, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "quorum":
		return gocql.Quorum, nil
	case "one":
		return gocql.One, nil
	case "local_quorum", "localquorum":
		return gocql.LocalQuorum, nil
	case "all":
		return gocql.All, nil
	default:
		return gocql.Quorum, fmt.Errorf("unsupported SCYLLA_CONSISTENCY: %s", raw)
	}
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
