package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(`
database:
  host: "localhost"
  port: 5432
  username: "u"
  password: "p"
  name: "db"
redis:
  host: "localhost"
  port: 6379
kafka:
  host: "localhost"
  port: 9092
  provider_location_topic_name: "provider.location"
  dispatch_searched_topic_name: "dispatch.searched"
  sla_checkpoint_topic_name: "sla.checkpoint"
routing:
  base_url: "http://localhost:5000"
  mode: "osrm"
  rate_limit_per_minute: 120
  hot_cache_ttl_seconds: 600
case_track:
  base_url: "http://localhost:8090"
identity:
  base_url: "http://localhost:8091"
dispatch:
  http_addr: ":8080"
  kafka_consumer_group: "dispatch-api"
  default_limit: 10
  default_radius_km: 30
  enrich_concurrency: 8
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "provider.location", cfg.Kafka.ProviderLocationTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, "http://localhost:5000", cfg.Routing.BaseURL)
	require.Equal(t, ":8080", cfg.Dispatch.HTTPAddr)
	require.Equal(t, 10, cfg.Dispatch.DefaultLimit)
	require.False(t, cfg.Dispatch.EnablePatrolFallback)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
