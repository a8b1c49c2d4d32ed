package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Log      LogConfig      `mapstructure:"log"`
	Data     DataConfig     `mapstructure:"data"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
	Network  NetworkConfig  `mapstructure:"network"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DataConfig holds host storage configuration.
type DataConfig struct {
	// Dir is the host directory region volumes live under. Each region
	// gets a subdirectory named after it, which is why region names are
	// reserved forever.
	Dir string `mapstructure:"dir"`
}

// SecretsConfig holds secret material configuration.
type SecretsConfig struct {
	// Master is the master secret per-region database credentials are
	// sealed with. Minimum 16 bytes. Set via REGIOND_SECRETS_MASTER.
	Master string `mapstructure:"master"`
}

// NetworkConfig holds the allocation derivation ranges.
type NetworkConfig struct {
	// SubnetBase is the /16 that per-region /24 blocks are carved from.
	SubnetBase string `mapstructure:"subnet_base"`

	// OctetMin and OctetMax bound the derived third octet, inclusive.
	OctetMin int `mapstructure:"octet_min"`
	OctetMax int `mapstructure:"octet_max"`

	// PortBase is the first external port handed to regions.
	PortBase int `mapstructure:"port_base"`

	// PortRange is the number of distinct external ports.
	PortRange int `mapstructure:"port_range"`

	// MaxProbes bounds the collision probe loop per reservation.
	MaxProbes int `mapstructure:"max_probes"`
}

// LimitsConfig bounds what a single region may request.
type LimitsConfig struct {
	MinCPUCores float64 `mapstructure:"min_cpu_cores"`
	MaxCPUCores float64 `mapstructure:"max_cpu_cores"`
	MinMemoryGB int     `mapstructure:"min_memory_gb"`
	MaxMemoryGB int     `mapstructure:"max_memory_gb"`
	MinDiskGB   int     `mapstructure:"min_disk_gb"`
	MaxDiskGB   int     `mapstructure:"max_disk_gb"`
	MinPlayers  int     `mapstructure:"min_players"`
	MaxPlayers  int     `mapstructure:"max_players"`
	MinCredits  int64   `mapstructure:"min_credits"`
}

// ReaperConfig holds the failed-region reaper configuration.
type ReaperConfig struct {
	// Interval is the time between sweep cycles.
	Interval time.Duration `mapstructure:"interval"`

	// RetentionPeriod is how long a failed region is kept for inspection
	// before its leftovers are swept.
	RetentionPeriod time.Duration `mapstructure:"retention_period"`
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("database.dsn", "./data/regiond.db")
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("data.dir", "/var/lib/regiond/regions")
	v.SetDefault("secrets.master", "") // Must be set via environment

	// Allocation derivation defaults: 250 subnets x 900 ports
	v.SetDefault("network.subnet_base", "172.22")
	v.SetDefault("network.octet_min", 1)
	v.SetDefault("network.octet_max", 250)
	v.SetDefault("network.port_base", 8100)
	v.SetDefault("network.port_range", 900)
	v.SetDefault("network.max_probes", 64)

	// Per-region request bounds
	v.SetDefault("limits.min_cpu_cores", 1.0)
	v.SetDefault("limits.max_cpu_cores", 8.0)
	v.SetDefault("limits.min_memory_gb", 2)
	v.SetDefault("limits.max_memory_gb", 16)
	v.SetDefault("limits.min_disk_gb", 10)
	v.SetDefault("limits.max_disk_gb", 100)
	v.SetDefault("limits.min_players", 10)
	v.SetDefault("limits.max_players", 1000)
	v.SetDefault("limits.min_credits", 100)

	// Reaper defaults
	v.SetDefault("reaper.interval", "5m")
	v.SetDefault("reaper.retention_period", "1h")

	// Load from file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			// Only return error if file was explicitly specified and is invalid
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
			// File not found is OK, we'll use defaults
		}
	}

	// Enable environment variable overrides
	v.SetEnvPrefix("REGIOND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
