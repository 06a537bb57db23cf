package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig
	Client     ClientConfig
	Supervisor SupervisorConfig
	Sink       SinkConfig
	Admin      AdminConfig
	Metrics    MetricsConfig
	Tracing    TracingConfig
	LogLevel   string
	LogPretty  bool
}

type AppConfig struct {
	ID     string
	Secret string
	Domain string
}

type ClientConfig struct {
	HandshakeTimeout     time.Duration
	HeartbeatTimeout     time.Duration
	LivenessInterval     time.Duration
	WriteTimeout         time.Duration
	ReassemblyTTL        time.Duration
	ReassemblyMaxEntries int
	Workers              int
	SkipMalformedFrames  bool
	// Message types answered by the event handler in addition to "event".
	HandleTypes []string
	// Message types dropped without a response in addition to "card".
	IgnoreTypes []string
}

type SupervisorConfig struct {
	// MaxAttempts overrides the server's reconnect count when non-zero.
	// Negative means retry forever.
	MaxAttempts        int
	FallbackInterval   time.Duration
	BreakerMaxFailures uint32
	BreakerTimeout     time.Duration
}

type SinkConfig struct {
	Enabled        bool
	Addr           string
	Password       string
	DB             int
	ChannelPrefix  string
	PublishTimeout time.Duration
	// Strict fails the handler, and so the response, when publishing fails.
	Strict bool
}

type AdminConfig struct {
	Enabled      bool
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AuthEnabled  bool
	JWTSecret    string
	APIKeys      []string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

type TracingConfig struct {
	Enabled  bool
	Exporter string
}

var envKeyReplacer = strings.NewReplacer(".", "_")

var (
	ErrMissingAppID     = errors.New("app.id is required")
	ErrMissingAppSecret = errors.New("app.secret is required")
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/larkws")

	// Set defaults
	setDefaults()

	// Environment variable binding, e.g. LARKWS_APP_ID
	viper.SetEnvPrefix("LARKWS")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	// Read config file (optional)
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports settings the client cannot start without.
func (c *Config) Validate() error {
	if c.App.ID == "" {
		return ErrMissingAppID
	}
	if c.App.Secret == "" {
		return ErrMissingAppSecret
	}
	return nil
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.id", "")
	viper.SetDefault("app.secret", "")
	viper.SetDefault("app.domain", "https://open.feishu.cn")

	// Client defaults
	viper.SetDefault("client.handshaketimeout", 10*time.Second)
	viper.SetDefault("client.heartbeattimeout", 120*time.Second)
	viper.SetDefault("client.livenessinterval", 1*time.Second)
	viper.SetDefault("client.writetimeout", 10*time.Second)
	viper.SetDefault("client.reassemblyttl", 5*time.Second)
	viper.SetDefault("client.reassemblymaxentries", 1024)
	viper.SetDefault("client.workers", 1)
	viper.SetDefault("client.skipmalformedframes", false)
	viper.SetDefault("client.handletypes", []string{})
	viper.SetDefault("client.ignoretypes", []string{})

	// Supervisor defaults
	viper.SetDefault("supervisor.maxattempts", 0)
	viper.SetDefault("supervisor.fallbackinterval", 2*time.Minute)
	viper.SetDefault("supervisor.breakermaxfailures", 5)
	viper.SetDefault("supervisor.breakertimeout", 60*time.Second)

	// Sink defaults
	viper.SetDefault("sink.enabled", false)
	viper.SetDefault("sink.addr", "localhost:6379")
	viper.SetDefault("sink.password", "")
	viper.SetDefault("sink.db", 0)
	viper.SetDefault("sink.channelprefix", "larkws:events:")
	viper.SetDefault("sink.publishtimeout", 3*time.Second)
	viper.SetDefault("sink.strict", false)

	// Admin defaults
	viper.SetDefault("admin.enabled", true)
	viper.SetDefault("admin.addr", "127.0.0.1:8081")
	viper.SetDefault("admin.readtimeout", 10*time.Second)
	viper.SetDefault("admin.writetimeout", 10*time.Second)
	viper.SetDefault("admin.authenabled", false)
	viper.SetDefault("admin.jwtsecret", "")
	viper.SetDefault("admin.apikeys", []string{})

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.exporter", "noop")

	// Logging defaults
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logpretty", false)
}
