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
kafka:
  host: "localhost"
  port: 9092
  registro_events_topic_name: "registro.events"
redis:
  host: "localhost"
  port: 6379
fiscbox:
  http_addr: ":8080"
  kafka_consumer_group: "fisc-api"
  aplicar_rate_limit_per_minute: 30
`), 0o600))

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	require.Equal(t, "u", cfg.Database.Username)
	require.Equal(t, "registro.events", cfg.Kafka.RegistroEventsTopicName)
	require.Equal(t, 6379, cfg.Redis.Port)
	require.Equal(t, ":8080", cfg.FiscBox.HTTPAddr)
	require.Equal(t, 30, cfg.FiscBox.AplicarRateLimitPerMinute)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "no.yaml"))
	require.Error(t, err)
}
