// Package config assembles the server configuration from defaults, an optional config
// file, SWAPKV_ environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"swapkv/internal/api"
	"swapkv/internal/engine"
	"swapkv/internal/events"
	"swapkv/internal/journal"
	"swapkv/internal/logging"
	"swapkv/internal/service"
)

// EnvPrefix is prepended to every environment override, e.g. SWAPKV_STORE_MAX_TTL.
const EnvPrefix = "SWAPKV"

type BaseConfig struct {
	ConfigFile        string        `mapstructure:"config"`
	Listen            string        `mapstructure:"listen"`
	ReadHeaderTimeout time.Duration `mapstructure:"read-header-timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown-timeout"`
}

type Config struct {
	BaseConfig `mapstructure:",squash"`

	Store   engine.Config      `mapstructure:"store"`
	Janitor service.Config     `mapstructure:"janitor"`
	HTTP    api.Config         `mapstructure:"http"`
	Logging logging.Config     `mapstructure:"logging"`
	Journal journal.Config     `mapstructure:"journal"`
	Kafka   events.KafkaConfig `mapstructure:"kafka"`
}

func DefaultConfig() Config {
	return Config{
		BaseConfig: BaseConfig{
			Listen:            ":8000",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Store:   engine.DefaultConfig(),
		Janitor: service.DefaultConfig(),
		HTTP:    api.DefaultConfig(),
		Logging: logging.DefaultConfig(),
		Journal: journal.DefaultConfig(),
		Kafka:   events.DefaultKafkaConfig(),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address is empty"))
	}
	if c.ReadHeaderTimeout < 0 || c.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if err := c.Store.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	if c.Janitor.Interval < 0 {
		errs = append(errs, fmt.Errorf("janitor: negative interval %s", c.Janitor.Interval))
	}
	if c.Journal.Path != "" {
		if c.Journal.MaxEnqueuing <= 0 {
			errs = append(errs, fmt.Errorf("journal: max-enqueuing must be positive, got %d", c.Journal.MaxEnqueuing))
		}
		if c.Journal.BufferBytes <= 0 {
			errs = append(errs, fmt.Errorf("journal: buffer-bytes must be positive, got %d", c.Journal.BufferBytes))
		}
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka: topic is required when brokers are set"))
	}
	return errors.Join(errs...)
}

// AddFlags registers one flag per config key. Flag names are the viper keys so that
// BindPFlags wires them directly.
func AddFlags(fs *pflag.FlagSet, d Config) {
	fs.StringP("config", "c", d.ConfigFile, "config file (yaml, toml or json)")
	fs.String("listen", d.Listen, "address the HTTP server listens on")
	fs.Duration("read-header-timeout", d.ReadHeaderTimeout, "time allowed to read request headers")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "grace period for in-flight requests on shutdown")

	fs.Duration("store.max-ttl", d.Store.MaxTTL, "upper bound of offer and answer lifetimes")
	fs.Int("store.shards", d.Store.Shards, "number of independently locked key shards")
	fs.Duration("janitor.interval", d.Janitor.Interval, "interval of the full expiry sweep, 0 disables it")

	fs.StringSlice("http.cors-origins", d.HTTP.CORSOrigins, "origins allowed by CORS, empty disables CORS")
	fs.Bool("http.metrics", d.HTTP.Metrics, "expose prometheus metrics on /metrics")

	fs.String("logging.level", d.Logging.Level, "log level (debug, info, warn, error)")
	fs.String("logging.encoding", d.Logging.Encoding, "log encoding (console or json)")

	fs.String("journal.path", d.Journal.Path, "event journal file, empty disables the journal")
	fs.Duration("journal.flush-interval", d.Journal.FlushInterval, "interval between journal flushes")
	fs.Duration("journal.enqueue-timeout", d.Journal.EnqueueTimeout, "how long appends wait for queue space")
	fs.Int("journal.max-enqueuing", d.Journal.MaxEnqueuing, "capacity of the journal queue")
	fs.Int("journal.buffer-bytes", d.Journal.BufferBytes, "buffered bytes that force a flush")

	fs.StringSlice("kafka.brokers", d.Kafka.Brokers, "kafka brokers for event broadcast, empty disables it")
	fs.String("kafka.topic", d.Kafka.Topic, "kafka topic for events")
	fs.Bool("kafka.async", d.Kafka.Async, "publish to kafka without waiting for acknowledgements")
}

// Load reads the config file named by the "config" key, applies environment overrides
// and decodes the result over DefaultConfig.
func Load(v *viper.Viper) (Config, error) {
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	conf := DefaultConfig()
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&conf, viper.DecodeHook(hook)); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return conf, nil
}

// setDefaults makes every key known to viper, which AutomaticEnv needs for keys that
// appear in neither flags nor the config file.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("config", d.ConfigFile)
	v.SetDefault("listen", d.Listen)
	v.SetDefault("read-header-timeout", d.ReadHeaderTimeout)
	v.SetDefault("shutdown-timeout", d.ShutdownTimeout)
	v.SetDefault("store.max-ttl", d.Store.MaxTTL)
	v.SetDefault("store.shards", d.Store.Shards)
	v.SetDefault("janitor.interval", d.Janitor.Interval)
	v.SetDefault("http.cors-origins", d.HTTP.CORSOrigins)
	v.SetDefault("http.metrics", d.HTTP.Metrics)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.encoding", d.Logging.Encoding)
	v.SetDefault("journal.path", d.Journal.Path)
	v.SetDefault("journal.flush-interval", d.Journal.FlushInterval)
	v.SetDefault("journal.enqueue-timeout", d.Journal.EnqueueTimeout)
	v.SetDefault("journal.max-enqueuing", d.Journal.MaxEnqueuing)
	v.SetDefault("journal.buffer-bytes", d.Journal.BufferBytes)
	v.SetDefault("kafka.brokers", d.Kafka.Brokers)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.async", d.Kafka.Async)
}
