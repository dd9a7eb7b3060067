package sql2hub

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/autom8ter/sql2hub/errors"
	"github.com/autom8ter/sql2hub/util"
	"github.com/robfig/cron"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Config configures a sql2hub job
type Config struct {
	// Query is the query executed on every run
	Query string `mapstructure:"query" json:"query" validate:"required"`
	// Driver is the registered database/sql driver name (sqlserver, pgx)
	Driver string `mapstructure:"driver" json:"driver" validate:"required"`
	// ConnectionString is the data source connection string passed to the driver
	ConnectionString string `mapstructure:"connection_string" json:"connection_string" validate:"required"`
	// MaxBatchSize is the maximum number of documents per published payload
	MaxBatchSize int `mapstructure:"max_batch_size" json:"max_batch_size" validate:"gte=1"`
	// Sink is the registered publisher name (redis, badger, inmem)
	Sink string `mapstructure:"sink" json:"sink" validate:"required"`
	// SinkConnectionString locates the sink. It is required for redis.
	SinkConnectionString string `mapstructure:"sink_connection_string" json:"sink_connection_string" validate:"required_if=Sink redis"`
	// SinkTopic is the channel, stream or key prefix payloads are published under
	SinkTopic string `mapstructure:"sink_topic" json:"sink_topic" validate:"required"`
	// SinkOptions are provider specific publisher settings
	SinkOptions map[string]any `mapstructure:"-" json:"sink_options,omitempty"`
	// Schedule is a cron schedule with a leading seconds field, or a descriptor such as @every 1m
	Schedule string `mapstructure:"schedule" json:"schedule" validate:"required"`
	// RunTimeout cancels a run that takes longer than this. 0 disables it.
	RunTimeout time.Duration `mapstructure:"run_timeout" json:"run_timeout" validate:"gte=0"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	// Debug sets the log level to debug
	Debug bool `mapstructure:"debug" json:"debug"`
}

// envBindings maps config keys to the environment variables they are read from, in order of precedence
var envBindings = map[string][]string{
	"query":                  {"SQL2HUB_QUERY", "SqlQuery"},
	"driver":                 {"SQL2HUB_DRIVER"},
	"connection_string":      {"SQL2HUB_CONNECTION_STRING", "ConnectionString"},
	"max_batch_size":         {"SQL2HUB_MAX_BATCH_SIZE", "MaxBatchSize"},
	"sink":                   {"SQL2HUB_SINK"},
	"sink_connection_string": {"SQL2HUB_SINK_CONNECTION_STRING", "DeviceConnectionString"},
	"sink_topic":             {"SQL2HUB_SINK_TOPIC"},
	"sink_options":           {"SQL2HUB_SINK_OPTIONS"},
	"schedule":               {"SQL2HUB_SCHEDULE"},
	"run_timeout":            {"SQL2HUB_RUN_TIMEOUT"},
	"log_level":              {"SQL2HUB_LOG_LEVEL"},
	"debug":                  {"SQL2HUB_DEBUG"},
}

// LoadConfig loads the config from defaults, then the optional yaml/json file at path, then the environment
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("driver", "sqlserver")
	v.SetDefault("max_batch_size", DefaultMaxBatchSize)
	v.SetDefault("sink", "redis")
	v.SetDefault("sink_topic", "sql2hub")
	v.SetDefault("schedule", "0 * * * * *")
	v.SetDefault("log_level", "info")
	for key, envs := range envBindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, errors.Wrap(err, errors.Configuration, "failed to bind %s", key)
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.Configuration, "failed to read config file %s", path)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.Configuration, "failed to decode config")
	}
	options, err := decodeOptions(v.Get("sink_options"))
	if err != nil {
		return nil, err
	}
	cfg.SinkOptions = options
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeOptions(raw any) (map[string]any, error) {
	switch raw := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		if strings.TrimSpace(raw) == "" {
			return map[string]any{}, nil
		}
		bits, err := util.YAMLToJSON([]byte(raw))
		if err != nil {
			return nil, errors.Wrap(err, errors.Configuration, "sink options must be a json or yaml object")
		}
		options := map[string]any{}
		if err := json.Unmarshal(bits, &options); err != nil {
			return nil, errors.Wrap(err, errors.Configuration, "sink options must be a json or yaml object")
		}
		return options, nil
	default:
		options, err := cast.ToStringMapE(raw)
		if err != nil {
			return nil, errors.Wrap(err, errors.Configuration, "invalid sink options")
		}
		return options, nil
	}
}

// Validate validates the config
func (c *Config) Validate() error {
	if err := util.ValidateStruct(c); err != nil {
		return errors.Wrap(err, errors.Configuration, "invalid config")
	}
	if strings.TrimSpace(c.Query) == "" {
		return errors.New(errors.Configuration, "query not specified")
	}
	if _, err := cron.Parse(c.Schedule); err != nil {
		return errors.Wrap(err, errors.Configuration, "invalid schedule %s", c.Schedule)
	}
	return nil
}

// Level returns the effective log level
func (c *Config) Level() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// PublisherParams returns the params the sink is opened with
func (c *Config) PublisherParams() map[string]any {
	return map[string]any{
		"connection_string": c.SinkConnectionString,
		"topic":             c.SinkTopic,
		"options":           c.SinkOptions,
	}
}

// String returns the settings one per line with credentials masked
func (c *Config) String() string {
	fields := map[string]string{
		"query":                  c.Query,
		"driver":                 c.Driver,
		"connection_string":      util.MaskSecret(c.ConnectionString),
		"max_batch_size":         cast.ToString(c.MaxBatchSize),
		"sink":                   c.Sink,
		"sink_connection_string": util.MaskSecret(c.SinkConnectionString),
		"sink_topic":             c.SinkTopic,
		"schedule":               c.Schedule,
		"run_timeout":            c.RunTimeout.String(),
		"log_level":              c.Level(),
	}
	var keys []string
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s=%s", k, fields[k]))
	}
	return "Settings:\n" + strings.Join(lines, "\n")
}
