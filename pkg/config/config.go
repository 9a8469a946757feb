package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the root configuration for both the recorder and playlist
// server binaries. Both read the same file; each only cares about its
// own sections.
type Config struct {
	Recorder struct {
		DataDir             string        `yaml:"data_dir"`
		DefaultMinChunkSecs time.Duration `yaml:"default_min_chunk_duration"`
		ShutdownTimeout     time.Duration `yaml:"shutdown_timeout"`
		MetricsAddress      string        `yaml:"metrics_address"`
	} `yaml:"recorder"`

	PlaylistServer struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"playlist_server"`

	Feeds []FeedConfig `yaml:"feeds"`

	Monitoring struct {
		PrometheusEnabled bool          `yaml:"prometheus_enabled"`
		PrometheusPort    int           `yaml:"prometheus_port"`
		MetricsInterval   time.Duration `yaml:"metrics_interval"`
	} `yaml:"monitoring"`

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

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int     `yaml:"connections_per_minute"`
			MessagesPerSecond    float64 `yaml:"messages_per_second"`
			Burst                int     `yaml:"burst"`
			MaxConcurrent        int     `yaml:"max_concurrent_connections"`
			MaxMessageSizeBytes  int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// FeedConfig describes one upstream HLS feed to be pulled and archived.
type FeedConfig struct {
	ID                string        `yaml:"id"`
	SourceURL         string        `yaml:"source_url"`
	ParallelDownloads int           `yaml:"parallel_downloads"`
	ChunkExtension    string        `yaml:"chunk_extension"`
	MinChunkDuration  time.Duration `yaml:"min_chunk_duration"`
	RunForever        bool          `yaml:"run_forever"`
	RawRetention      int           `yaml:"raw_retention"`
	NotifyURL         string        `yaml:"notify_url"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Recorder
	if c.Recorder.DataDir == "" {
		return fmt.Errorf("recorder.data_dir must not be empty")
	}
	if c.Recorder.DefaultMinChunkSecs <= 0 {
		return fmt.Errorf("recorder.default_min_chunk_duration must be > 0")
	}
	if c.Recorder.ShutdownTimeout <= 0 {
		return fmt.Errorf("recorder.shutdown_timeout must be > 0")
	}

	// Playlist server
	if c.PlaylistServer.Address == "" {
		return fmt.Errorf("playlist_server.address must not be empty")
	}
	if c.PlaylistServer.ReadTimeout <= 0 {
		return fmt.Errorf("playlist_server.read_timeout must be > 0")
	}
	if c.PlaylistServer.WriteTimeout <= 0 {
		return fmt.Errorf("playlist_server.write_timeout must be > 0")
	}
	if c.PlaylistServer.ShutdownTimeout <= 0 {
		return fmt.Errorf("playlist_server.shutdown_timeout must be > 0")
	}

	// Feeds
	seen := make(map[string]bool, len(c.Feeds))
	for i, f := range c.Feeds {
		if f.ID == "" {
			return fmt.Errorf("feeds[%d].id must not be empty", i)
		}
		if seen[f.ID] {
			return fmt.Errorf("feeds[%d].id %q is duplicated", i, f.ID)
		}
		seen[f.ID] = true
		if f.SourceURL == "" {
			return fmt.Errorf("feeds[%d].source_url must not be empty", i)
		}
		if f.ParallelDownloads < 0 {
			return fmt.Errorf("feeds[%d].parallel_downloads must be >= 0", i)
		}
		if f.RawRetention < 0 {
			return fmt.Errorf("feeds[%d].raw_retention must be >= 0", i)
		}
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort <= 0 {
		return fmt.Errorf("monitoring.prometheus_port must be > 0 when prometheus_enabled=true")
	}
	if c.Monitoring.MetricsInterval <= 0 {
		return fmt.Errorf("monitoring.metrics_interval must be > 0")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
		}
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
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_concurrent_connections must be >= 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
			return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
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

	cfg.Recorder.DataDir = "./data"
	cfg.Recorder.DefaultMinChunkSecs = 60 * time.Second
	cfg.Recorder.ShutdownTimeout = 30 * time.Second
	cfg.Recorder.MetricsAddress = ":9090"

	cfg.PlaylistServer.Address = ":8080"
	cfg.PlaylistServer.ReadTimeout = 30 * time.Second
	cfg.PlaylistServer.WriteTimeout = 30 * time.Second
	cfg.PlaylistServer.ShutdownTimeout = 30 * time.Second
	cfg.PlaylistServer.AllowedOrigins = []string{"*"}

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.PrometheusPort = 9090
	cfg.Monitoring.MetricsInterval = 30 * time.Second

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 100
	cfg.RateLimiting.WebSocket.Burst = 200
	cfg.RateLimiting.WebSocket.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("HLSARCHIVER_DATA_DIR"); dir != "" {
		c.Recorder.DataDir = dir
	}
	if addr := os.Getenv("HLSARCHIVER_PLAYLIST_ADDRESS"); addr != "" {
		c.PlaylistServer.Address = addr
	}
	if level := os.Getenv("HLSARCHIVER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if addr := os.Getenv("HLSARCHIVER_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
	}
}
