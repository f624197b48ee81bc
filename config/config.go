package config

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	API       APIConfig       `mapstructure:"api"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Events    EventsConfig    `mapstructure:"events"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// AuthConfig points at the token database. Driver is "postgres" or "mysql".
type AuthConfig struct {
	Driver string `mapstructure:"driver"`
	URL    string `mapstructure:"url"`
	// Disabled skips token validation entirely. Only meant for local runs.
	Disabled bool `mapstructure:"disabled"`
}

// APIConfig holds the addresses of the external collaborators
type APIConfig struct {
	ActionDs           string        `mapstructure:"action_ds"`
	ModelerIPAddress   string        `mapstructure:"modeler_ip_address"`
	DownloadResultsURL string        `mapstructure:"download_results_url"`
	OutputURL          string        `mapstructure:"output_url"`
	DownloadTimeout    time.Duration `mapstructure:"download_timeout"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
}

// DispatchConfig bounds a single dispatcher invocation
type DispatchConfig struct {
	BatchSize           int `mapstructure:"batch_size"`
	MaxInFlight         int `mapstructure:"max_in_flight"`
	Concurrency         int `mapstructure:"concurrency"`
	TechnologyBatchSize int `mapstructure:"technology_batch_size"`
	NextBatchSize       int `mapstructure:"next_batch_size"`
	ErrorStatus         int `mapstructure:"error_status"`
	// ForwardLease hides a claimed ReadyForNext entry from other run-next
	// passes until it is sent onward or released.
	ForwardLease time.Duration `mapstructure:"forward_lease"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	NoColor bool   `mapstructure:"no_color"`
	// File is the newest-first debug log. Empty disables it.
	File string `mapstructure:"file"`
}

// RateLimitConfig holds inbound rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	// RunRequestsPerSecond and RunBurst throttle the run and run-next
	// triggers only. Zero disables that limiter.
	RunRequestsPerSecond float64 `mapstructure:"run_requests_per_second"`
	RunBurst             int     `mapstructure:"run_burst"`
}

// SchedulerConfig drives the optional in-process run / run-next trigger
type SchedulerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	RunInterval  time.Duration `mapstructure:"run_interval"`
	NextInterval time.Duration `mapstructure:"next_interval"`
}

// TelemetryConfig holds OpenTelemetry exporter settings
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

// EventsConfig holds the RabbitMQ publisher settings
type EventsConfig struct {
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

var globalConfig *Config

// Load loads the configuration from file, .env, and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := loadEnvFile(); err != nil {
		// .env is optional
		log.Debug().Err(err).Msg(".env file not loaded")
	}

	v.SetEnvPrefix("QUEUE_SERVICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

// loadEnvFile loads the first .env file found
func loadEnvFile() error {
	for _, path := range []string{".", "./config"} {
		envFile := fmt.Sprintf("%s/.env", path)
		if _, err := os.Stat(envFile); err == nil {
			if err := loadDotEnvFile(envFile); err == nil {
				return nil
			}
		}
	}
	return fmt.Errorf("no .env file found")
}

// loadDotEnvFile reads a .env file and sets environment variables.
// Variables already present in the environment win.
func loadDotEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), "\"'")
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// bindEnvVars binds the unprefixed variables used by deployments
func bindEnvVars(v *viper.Viper) {
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("auth.url", "AUTH_DATABASE_URL")
	v.BindEnv("auth.driver", "AUTH_DATABASE_DRIVER")

	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.host", "HOST")

	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.file", "LOG_FILE")

	v.BindEnv("api.action_ds", "API_ACTION_DS")
	v.BindEnv("api.modeler_ip_address", "MODELER_IP_ADDRESS")
	v.BindEnv("api.download_results_url", "DOWNLOAD_RESULTS_URL")
	v.BindEnv("api.output_url", "OUTPUT_API_URL")

	v.BindEnv("storage.base_dir", "BASE_DIR")

	v.BindEnv("events.url", "RABBITMQ_URL")
	v.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 6*time.Minute)

	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", 1*time.Hour)
	v.SetDefault("database.max_conn_idle_time", 30*time.Minute)

	v.SetDefault("auth.driver", "postgres")
	v.SetDefault("auth.disabled", false)

	v.SetDefault("api.download_timeout", 5*time.Minute)
	v.SetDefault("api.requests_per_second", 0)

	v.SetDefault("dispatch.batch_size", 2)
	v.SetDefault("dispatch.max_in_flight", 2)
	v.SetDefault("dispatch.concurrency", 4)
	v.SetDefault("dispatch.technology_batch_size", 1)
	v.SetDefault("dispatch.next_batch_size", 20)
	v.SetDefault("dispatch.error_status", 4)
	v.SetDefault("dispatch.forward_lease", 30*time.Minute)

	v.SetDefault("storage.base_dir", "./data")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.no_color", false)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_second", 10)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("rate_limit.run_requests_per_second", 5)
	v.SetDefault("rate_limit.run_burst", 10)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.run_interval", 1*time.Minute)
	v.SetDefault("scheduler.next_interval", 1*time.Minute)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.sample_rate", 1.0)

	v.SetDefault("events.exchange", "queue.events")
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// writeTimeoutMargin is the headroom kept above the download timeout
const writeTimeoutMargin = time.Minute

// EffectiveWriteTimeout returns the server write timeout, raised when needed
// so a run-next response can outlive a full results download.
func (c *Config) EffectiveWriteTimeout() time.Duration {
	floor := c.API.DownloadTimeout + writeTimeoutMargin
	if c.Server.WriteTimeout <= 0 || c.Server.WriteTimeout >= floor {
		return c.Server.WriteTimeout
	}
	return floor
}

// ResolveOutputURL returns the configured Output API address. When unset it
// is derived from the action URL: scheme and host, the path up to and
// including "/api/", then "app/output".
func (c APIConfig) ResolveOutputURL() string {
	if c.OutputURL != "" {
		return c.OutputURL
	}
	u, err := url.Parse(c.ActionDs)
	if err != nil || u.Host == "" {
		return ""
	}
	idx := strings.Index(strings.ToLower(u.Path), "/api/")
	if idx < 0 {
		return ""
	}
	return u.Scheme + "://" + u.Host + u.Path[:idx+len("/api/")] + "app/output"
}
