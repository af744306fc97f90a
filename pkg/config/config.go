package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		BaseURL         string        `yaml:"base_url"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Room struct {
		UpdateInterval time.Duration `yaml:"update_interval"`
		GossipInterval time.Duration `yaml:"gossip_interval"`
		SnapshotTTL    time.Duration `yaml:"snapshot_ttl"`
		OwnershipTTL   time.Duration `yaml:"ownership_ttl"`
		VideoInfoTTL   time.Duration `yaml:"video_info_ttl"`
	} `yaml:"room"`

	Balancers []struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Path string `yaml:"path"`
	} `yaml:"balancers"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled        bool    `yaml:"enabled"`
		JaegerEndpoint string  `yaml:"jaeger_endpoint"`
		SampleRate     float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret  string        `yaml:"jwt_secret"`
		SessionTTL time.Duration `yaml:"session_ttl"`
		// APIKey guards operator endpoints; empty disables them.
		APIKey string `yaml:"api_key"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled               bool    `yaml:"enabled"`
		MessagesPerSecond     float64 `yaml:"messages_per_second"`
		Burst                 int     `yaml:"burst"`
		HTTPRequestsPerSecond float64 `yaml:"http_requests_per_second"`
		HTTPBurst             int     `yaml:"http_burst"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
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
	if c.Room.UpdateInterval <= 0 {
		return fmt.Errorf("room.update_interval must be > 0")
	}
	if c.Room.GossipInterval <= 0 {
		return fmt.Errorf("room.gossip_interval must be > 0")
	}
	if c.Room.OwnershipTTL <= 0 {
		return fmt.Errorf("room.ownership_ttl must be > 0")
	}
	for i, b := range c.Balancers {
		if b.Host == "" {
			return fmt.Errorf("balancers[%d].host must not be empty", i)
		}
		if b.Port <= 0 || b.Port > 65535 {
			return fmt.Errorf("balancers[%d].port must be a valid port", i)
		}
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}
	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint must not be empty when tracing is enabled")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in [0, 1]")
		}
	}
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis is enabled")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0")
		}
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.RateLimiting.Enabled {
		if c.RateLimiting.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.messages_per_second must be > 0")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0")
		}
		if c.RateLimiting.HTTPRequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http_requests_per_second must be > 0")
		}
		if c.RateLimiting.HTTPBurst <= 0 {
			return fmt.Errorf("rate_limiting.http_burst must be > 0")
		}
	}
	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing path yields the defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Room.UpdateInterval = 1 * time.Second
	cfg.Room.GossipInterval = 20 * time.Second
	cfg.Room.SnapshotTTL = 10 * time.Minute
	cfg.Room.OwnershipTTL = 30 * time.Second
	cfg.Room.VideoInfoTTL = 1 * time.Hour

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090

	cfg.Tracing.SampleRate = 0.1

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "dev-secret-change-me"
	cfg.Auth.SessionTTL = 24 * time.Hour

	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.MessagesPerSecond = 20
	cfg.RateLimiting.Burst = 40
	cfg.RateLimiting.HTTPRequestsPerSecond = 50
	cfg.RateLimiting.HTTPBurst = 100

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("ROOMCAST_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if base := os.Getenv("ROOMCAST_BASE_URL"); base != "" {
		c.Server.BaseURL = base
	}
	if level := os.Getenv("ROOMCAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("ROOMCAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if key := os.Getenv("ROOMCAST_API_KEY"); key != "" {
		c.Auth.APIKey = key
	}
	if addr := os.Getenv("ROOMCAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Address = addr
	}
	if password := os.Getenv("ROOMCAST_REDIS_PASSWORD"); password != "" {
		c.Redis.Password = password
	}
	if db := os.Getenv("ROOMCAST_REDIS_DB"); db != "" {
		if n, err := strconv.Atoi(db); err == nil {
			c.Redis.DB = n
		}
	}
	if endpoint := os.Getenv("ROOMCAST_JAEGER_ENDPOINT"); endpoint != "" {
		c.Tracing.Enabled = true
		c.Tracing.JaegerEndpoint = endpoint
	}
}
