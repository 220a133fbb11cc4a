package config

import (
	"testing"
	"time"

	"github.com/gocql/gocql"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("SUPABASE_JWT_SECRET", "")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, ":9090", cfg.GRPCAddr)
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, MessagesDefault, cfg.MessagesBackend)
	require.Equal(t, []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}, cfg.RetryBackoff)
	require.True(t, cfg.AllowUnverifiedTokens)
	require.Empty(t, cfg.RedisAddr)
	require.Equal(t, "octopus:user:", cfg.RedisPrefix)
}

func TestLoadPostgRESTRequiresProject(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("STORE_BACKEND", "postgrest")
	_, err := Load()
	require.ErrorContains(t, err, "SUPABASE_URL")

	t.Setenv("SUPABASE_URL", "https://proj.supabase.co/")
	t.Setenv("SUPABASE_SERVICE_ROLE_KEY", "service")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://proj.supabase.co", cfg.SupabaseURL)
}

func TestLoadScyllaNeedsHosts(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("MESSAGES_BACKEND", "scylla")
	_, err := Load()
	require.ErrorContains(t, err, "SCYLLA_HOSTS")

	t.Setenv("SCYLLA_HOSTS", " 10.0.0.1 , ,10.0.0.2")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, cfg.ScyllaHosts)
}

func TestLoadRejectsUnverifiedTokensInProd(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	_, err := Load()
	require.ErrorContains(t, err, "SUPABASE_JWT_SECRET")

	t.Setenv("SUPABASE_JWT_SECRET", "secret")
	t.Setenv("AUTH_ALLOW_UNVERIFIED", "yes")
	_, err = Load()
	require.ErrorContains(t, err, "only permitted in dev")
}

func TestLoadInvalidDuration(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("STORE_TIMEOUT", "soon")
	_, err := Load()
	require.ErrorContains(t, err, "STORE_TIMEOUT")
}

func TestLoadClient(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("OCTOPUS_API_ADDR", "")
	_, err := LoadClient()
	require.Error(t, err)

	t.Setenv("OCTOPUS_API_ADDR", " localhost:9090 ")
	t.Setenv("POLL_INTERVAL", "2s")
	cfg, err := LoadClient()
	require.NoError(t, err)
	require.Equal(t, "localhost:9090", cfg.APIAddr)
	require.Equal(t, 2*time.Second, cfg.PollInterval)
}

func TestLoadScyllaConsistency(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("SCYLLA_CONSISTENCY", "local_quorum")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, gocql.LocalQuorum, cfg.ScyllaConsistency)
	require.Equal(t, 1, cfg.ReplicationFactor)

	t.Setenv("SCYLLA_CONSISTENCY", "sometimes")
	_, err = Load()
	require.ErrorContains(t, err, "SCYLLA_CONSISTENCY")
}
