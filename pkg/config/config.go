package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		MaxBodyBytes    int64         `yaml:"max_body_bytes"`
		StaticDir       string        `yaml:"static_dir"`
		// TrustedProxies are the addresses or CIDRs whose X-Forwarded-For is
		// believed when resolving the client IP. Empty trusts none.
		TrustedProxies  []string      `yaml:"trusted_proxies"`
	} `yaml:"server"`

	// Directory is the BigBlueButton API used to look up meeting credentials.
	Directory struct {
		BaseURL string        `yaml:"base_url"`
		Secret  string        `yaml:"secret"`
		Timeout time.Duration `yaml:"timeout"` // per attempt

		// LookupBudget bounds one meeting lookup including retries.
		LookupBudget time.Duration `yaml:"lookup_budget"`

		Retry struct {
			Enabled      bool          `yaml:"enabled"`
			MaxAttempts  int           `yaml:"max_attempts"`
			InitialDelay time.Duration `yaml:"initial_delay"`
			MaxDelay     time.Duration `yaml:"max_delay"`
		} `yaml:"retry"`

		CircuitBreaker struct {
			Enabled          bool          `yaml:"enabled"`
			FailureThreshold int           `yaml:"failure_threshold"`
			SuccessThreshold int           `yaml:"success_threshold"`
			Timeout          time.Duration `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"directory"`

	Worker struct {
		Image                string        `yaml:"image"`
		NamePrefix           string        `yaml:"name_prefix"`
		ControlSocket        string        `yaml:"control_socket"`
		MaxConcurrentStreams int           `yaml:"max_concurrent_streams"`
		RuntimeTimeout       time.Duration `yaml:"runtime_timeout"`
		RemoveOnStartFailure bool          `yaml:"remove_on_start_failure"`
	} `yaml:"worker"`

	Admission struct {
		Backend  string        `yaml:"backend"` // local | redis
		LockKey  string        `yaml:"lock_key"`
		LockTTL  time.Duration `yaml:"lock_ttl"`
		LockWait time.Duration `yaml:"lock_wait"`
	} `yaml:"admission"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`

	Events struct {
		Enabled      bool          `yaml:"enabled"`
		PingInterval time.Duration `yaml:"ping_interval"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		BufferSize   int           `yaml:"buffer_size"`
		RedisChannel string        `yaml:"redis_channel"` // relay between controllers sharing redis
	} `yaml:"events"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		// Control limits POST /bot/start and /bot/stop per client on top of
		// the HTTP limit. Zero disables it.
		Control struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"control"`

		IdleTTL time.Duration `yaml:"idle_ttl"`
	} `yaml:"rate_limiting"`
}

const (
	AdmissionLocal = "local"
	AdmissionRedis = "redis"
)

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("cors.allowed_origins: %q must be \"*\" or an http(s) origin", origin)
		}
	}
	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return fmt.Errorf("server.trusted_proxies: %q is neither an IP nor a CIDR", proxy)
			}
		}
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be > 0")
	}

	// Directory
	if c.Directory.BaseURL == "" {
		return fmt.Errorf("directory.base_url must not be empty")
	}
	if err := validation.ValidateURL(c.Directory.BaseURL); err != nil {
		return fmt.Errorf("directory.base_url: %w", err)
	}
	if c.Directory.Secret == "" {
		return fmt.Errorf("directory.secret must not be empty")
	}
	if c.Directory.Timeout <= 0 {
		return fmt.Errorf("directory.timeout must be > 0")
	}
	if c.Directory.LookupBudget < c.Directory.Timeout {
		return fmt.Errorf("directory.lookup_budget must be >= directory.timeout")
	}
	if c.Directory.Retry.Enabled && c.Directory.Retry.MaxAttempts < 0 {
		return fmt.Errorf("directory.retry.max_attempts must be >= 0")
	}
	if c.Directory.CircuitBreaker.Enabled {
		if c.Directory.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("directory.circuit_breaker.failure_threshold must be > 0")
		}
		if c.Directory.CircuitBreaker.Timeout <= 0 {
			return fmt.Errorf("directory.circuit_breaker.timeout must be > 0")
		}
	}

	// Worker
	if c.Worker.Image == "" {
		return fmt.Errorf("worker.image must not be empty")
	}
	if c.Worker.NamePrefix == "" {
		return fmt.Errorf("worker.name_prefix must not be empty")
	}
	if c.Worker.ControlSocket == "" {
		return fmt.Errorf("worker.control_socket must not be empty")
	}
	if c.Worker.MaxConcurrentStreams < 0 {
		return fmt.Errorf("worker.max_concurrent_streams must be >= 0")
	}
	if c.Worker.RuntimeTimeout <= 0 {
		return fmt.Errorf("worker.runtime_timeout must be > 0")
	}

	// Admission
	switch c.Admission.Backend {
	case AdmissionLocal:
	case AdmissionRedis:
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when admission.backend=redis")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when admission.backend=redis")
		}
		if c.Admission.LockKey == "" {
			return fmt.Errorf("admission.lock_key must not be empty when admission.backend=redis")
		}
		if c.Admission.LockTTL <= 0 {
			return fmt.Errorf("admission.lock_ttl must be > 0 when admission.backend=redis")
		}
	default:
		return fmt.Errorf("admission.backend must be %q or %q", AdmissionLocal, AdmissionRedis)
	}
	if c.Admission.LockWait <= 0 {
		return fmt.Errorf("admission.lock_wait must be > 0")
	}

	// Events
	if c.Events.Enabled {
		if c.Events.PingInterval <= 0 {
			return fmt.Errorf("events.ping_interval must be > 0 when events.enabled=true")
		}
		if c.Events.BufferSize <= 0 {
			return fmt.Errorf("events.buffer_size must be > 0 when events.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Control.RequestsPerSecond > 0 && c.RateLimiting.Control.Burst <= 0 {
			return fmt.Errorf("rate_limiting.control.burst must be > 0 when a control rate is set")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
// A missing file is not an error: defaults plus environment are used.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":4500"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 60 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second
	cfg.Server.MaxBodyBytes = 1 << 20
	cfg.Server.TrustedProxies = []string{"127.0.0.1", "::1"}

	cfg.Directory.Timeout = 5 * time.Second
	cfg.Directory.LookupBudget = 15 * time.Second
	cfg.Directory.Retry.Enabled = true
	cfg.Directory.Retry.MaxAttempts = 2
	cfg.Directory.Retry.InitialDelay = 200 * time.Millisecond
	cfg.Directory.Retry.MaxDelay = 2 * time.Second
	cfg.Directory.CircuitBreaker.Enabled = true
	cfg.Directory.CircuitBreaker.FailureThreshold = 5
	cfg.Directory.CircuitBreaker.SuccessThreshold = 2
	cfg.Directory.CircuitBreaker.Timeout = 30 * time.Second

	cfg.Worker.Image = "bbb-stream:v1.0"
	cfg.Worker.NamePrefix = "bbb-stream-"
	cfg.Worker.ControlSocket = "/var/run/docker.sock"
	cfg.Worker.MaxConcurrentStreams = 5
	cfg.Worker.RuntimeTimeout = 30 * time.Second
	cfg.Worker.RemoveOnStartFailure = false

	cfg.Admission.Backend = AdmissionLocal
	cfg.Admission.LockKey = "admission"
	cfg.Admission.LockTTL = 30 * time.Second
	cfg.Admission.LockWait = 15 * time.Second

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.CORS.AllowedOrigins = []string{"*"}

	cfg.Events.Enabled = true
	cfg.Events.PingInterval = 30 * time.Second
	cfg.Events.WriteTimeout = 10 * time.Second
	cfg.Events.BufferSize = 16
	cfg.Events.RedisChannel = "bbb-streaming:events"

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "bbb-streaming"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 10
	cfg.RateLimiting.HTTP.Burst = 20
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.Control.RequestsPerSecond = 1
	cfg.RateLimiting.Control.Burst = 5
	cfg.RateLimiting.IdleTTL = 10 * time.Minute

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	// Variables understood by the original deployment
	if v := os.Getenv("BBB_URL"); v != "" {
		c.Directory.BaseURL = v
	}
	if v := os.Getenv("BBB_SECRET"); v != "" {
		c.Directory.Secret = v
	}
	if v := os.Getenv("NUMBER_OF_CONCURRENT_STREAMINGS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("NUMBER_OF_CONCURRENT_STREAMINGS must be an integer: %w", err)
		}
		c.Worker.MaxConcurrentStreams = n
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Address = ":" + strings.TrimPrefix(v, ":")
	}

	if addr := os.Getenv("STREAMING_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("STREAMING_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if image := os.Getenv("STREAMING_WORKER_IMAGE"); image != "" {
		c.Worker.Image = image
	}
	if backend := os.Getenv("STREAMING_ADMISSION_BACKEND"); backend != "" {
		c.Admission.Backend = backend
	}
	if addr := os.Getenv("STREAMING_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
	if pw := os.Getenv("STREAMING_REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}
	return nil
}
