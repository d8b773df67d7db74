package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TAPSPOT_DB_DRIVER", "sqlite")
	t.Chdir(t.TempDir())

	conf, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conf.Database.Driver)
	assert.Equal(t, 8080, conf.Backend.Port)
	assert.Equal(t, "info", conf.Logs.Level)
	assert.Equal(t, 24*time.Hour, conf.Auth.TokenTTL)
	assert.Equal(t, 1000, conf.Chat.MaxMessageLength)
	assert.Equal(t, "chat_events", conf.RabbitMQ.Exchange)
	assert.Equal(t, "@every 10m", conf.Tasks.ReconcileSchedule)
	assert.False(t, conf.Redis.Enabled)
	assert.Equal(t, ":8080", conf.ListenAddr())
}

func TestLoadConfigYAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
db:
  driver: postgres
  host: db.local
  port: 5432
  user: tap
  password: spot
  name: tapspot
  replicas:
    - "host=replica user=tap dbname=tapspot"
backend:
  port: 9000
auth:
  jwt_secret: from-yaml
  token_ttl: 2h
chat:
  max_message_length: 500
`)
	t.Setenv("TAPSPOT_JWT_SECRET", "from-env")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("RABBITMQ_URL", "amqp://guest:guest@mq:5672/")
	t.Chdir(t.TempDir())

	conf, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", conf.Database.Driver)
	assert.Len(t, conf.Database.Replicas, 1)
	assert.Equal(t, 9000, conf.Backend.Port)
	assert.Equal(t, "from-env", conf.Auth.JWTSecret)
	assert.Equal(t, 2*time.Hour, conf.Auth.TokenTTL)
	assert.Equal(t, 500, conf.Chat.MaxMessageLength)
	assert.True(t, conf.Redis.Enabled)
	assert.Equal(t, "cache:6380", conf.Redis.Addr())
	assert.True(t, conf.RabbitMQ.Enabled)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := LoadConfig(writeConfig(t, "db:\n  driver: oracle\n"))
	assert.ErrorContains(t, err, "unsupported db driver")

	_, err = LoadConfig(writeConfig(t, "db:\n  driver: mysql\n"))
	assert.ErrorContains(t, err, "jwt_secret")

	_, err = LoadConfig(writeConfig(t, "db:\n  driver: sqlite\nrabbitmq:\n  enabled: true\n"))
	assert.ErrorContains(t, err, "rabbitmq.url")

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
