package sql2hub_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/autom8ter/sql2hub"
	"github.com/autom8ter/sql2hub/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("legacy environment names with defaults", func(t *testing.T) {
		t.Setenv("SqlQuery", "SELECT * FROM Telemetry")
		t.Setenv("ConnectionString", "Server=db;User ID=svc;Password=hunter2")
		t.Setenv("DeviceConnectionString", "redis://localhost:6379/0")
		cfg, err := sql2hub.LoadConfig("")
		require.Nil(t, err)
		assert.Equal(t, "SELECT * FROM Telemetry", cfg.Query)
		assert.Equal(t, "Server=db;User ID=svc;Password=hunter2", cfg.ConnectionString)
		assert.Equal(t, "redis://localhost:6379/0", cfg.SinkConnectionString)
		assert.Equal(t, 200, cfg.MaxBatchSize)
		assert.Equal(t, "sqlserver", cfg.Driver)
		assert.Equal(t, "redis", cfg.Sink)
		assert.Equal(t, "sql2hub", cfg.SinkTopic)
		assert.Equal(t, "0 * * * * *", cfg.Schedule)
		assert.Equal(t, "info", cfg.Level())
	})
	t.Run("prefixed environment names", func(t *testing.T) {
		t.Setenv("SQL2HUB_QUERY", "SELECT 1")
		t.Setenv("SQL2HUB_CONNECTION_STRING", "postgres://svc:pw@db/plant")
		t.Setenv("SQL2HUB_DRIVER", "pgx")
		t.Setenv("SQL2HUB_MAX_BATCH_SIZE", "50")
		t.Setenv("SQL2HUB_SINK", "badger")
		t.Setenv("SQL2HUB_SINK_OPTIONS", `{"ttl":"1h"}`)
		t.Setenv("SQL2HUB_RUN_TIMEOUT", "30s")
		t.Setenv("SQL2HUB_DEBUG", "true")
		cfg, err := sql2hub.LoadConfig("")
		require.Nil(t, err)
		assert.Equal(t, "pgx", cfg.Driver)
		assert.Equal(t, 50, cfg.MaxBatchSize)
		assert.Equal(t, "badger", cfg.Sink)
		assert.Equal(t, 30*time.Second, cfg.RunTimeout)
		assert.Equal(t, "1h", cfg.SinkOptions["ttl"])
		assert.Equal(t, "debug", cfg.Level())
		assert.Equal(t, map[string]any{
			"connection_string": "",
			"topic":             "sql2hub",
			"options":           map[string]any{"ttl": "1h"},
		}, cfg.PublisherParams())
	})
	t.Run("config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "sql2hub.yaml")
		require.Nil(t, os.WriteFile(path, []byte(`
query: SELECT * FROM Telemetry
connection_string: Server=db
max_batch_size: 10
sink: inmem
schedule: "@every 5m"
sink_options:
  mode: stream
`), 0600))
		cfg, err := sql2hub.LoadConfig(path)
		require.Nil(t, err)
		assert.Equal(t, 10, cfg.MaxBatchSize)
		assert.Equal(t, "inmem", cfg.Sink)
		assert.Equal(t, "@every 5m", cfg.Schedule)
		assert.Equal(t, "stream", cfg.SinkOptions["mode"])
	})
	t.Run("missing query", func(t *testing.T) {
		t.Setenv("ConnectionString", "Server=db")
		t.Setenv("DeviceConnectionString", "redis://localhost:6379/0")
		_, err := sql2hub.LoadConfig("")
		assert.NotNil(t, err)
		assert.True(t, errors.Is(err, errors.Configuration))
	})
	t.Run("redis requires a sink connection string", func(t *testing.T) {
		t.Setenv("SqlQuery", "SELECT 1")
		t.Setenv("ConnectionString", "Server=db")
		_, err := sql2hub.LoadConfig("")
		assert.True(t, errors.Is(err, errors.Configuration))
	})
	t.Run("invalid batch size", func(t *testing.T) {
		t.Setenv("SqlQuery", "SELECT 1")
		t.Setenv("ConnectionString", "Server=db")
		t.Setenv("SQL2HUB_SINK", "inmem")
		t.Setenv("MaxBatchSize", "0")
		_, err := sql2hub.LoadConfig("")
		assert.True(t, errors.Is(err, errors.Configuration))
	})
	t.Run("invalid schedule", func(t *testing.T) {
		t.Setenv("SqlQuery", "SELECT 1")
		t.Setenv("ConnectionString", "Server=db")
		t.Setenv("SQL2HUB_SINK", "inmem")
		t.Setenv("SQL2HUB_SCHEDULE", "whenever")
		_, err := sql2hub.LoadConfig("")
		assert.True(t, errors.Is(err, errors.Configuration))
	})
	t.Run("yaml sink options", func(t *testing.T) {
		t.Setenv("SqlQuery", "SELECT 1")
		t.Setenv("ConnectionString", "Server=db")
		t.Setenv("SQL2HUB_SINK", "redis")
		t.Setenv("SQL2HUB_SINK_CONNECTION_STRING", "redis://localhost:6379/0")
		t.Setenv("SQL2HUB_SINK_OPTIONS", "mode: stream\nmax_len: 1000")
		cfg, err := sql2hub.LoadConfig("")
		require.Nil(t, err)
		assert.Equal(t, "stream", cfg.SinkOptions["mode"])
		assert.Equal(t, float64(1000), cfg.SinkOptions["max_len"])
	})
	t.Run("invalid sink options", func(t *testing.T) {
		t.Setenv("SqlQuery", "SELECT 1")
		t.Setenv("ConnectionString", "Server=db")
		t.Setenv("SQL2HUB_SINK", "inmem")
		t.Setenv("SQL2HUB_SINK_OPTIONS", "mode=stream")
		_, err := sql2hub.LoadConfig("")
		assert.True(t, errors.Is(err, errors.Configuration))
	})
	t.Run("missing config file", func(t *testing.T) {
		_, err := sql2hub.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.True(t, errors.Is(err, errors.Configuration))
	})
	t.Run("string masks secrets", func(t *testing.T) {
		cfg := &sql2hub.Config{
			Query:                "SELECT 1",
			ConnectionString:     "Server=db;Password=hunter2",
			SinkConnectionString: "redis://:s3cret@localhost:6379",
			MaxBatchSize:         200,
		}
		s := cfg.String()
		assert.Contains(t, s, "query=SELECT 1")
		assert.Contains(t, s, "max_batch_size=200")
		assert.NotContains(t, s, "hunter2")
		assert.NotContains(t, s, "s3cret")
	})
}
