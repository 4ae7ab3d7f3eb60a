package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config struct is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Drafts   DraftsConfig   `mapstructure:"drafts"`
	Wizard   WizardConfig   `mapstructure:"wizard"`
	Polling  PollingConfig  `mapstructure:"polling"`
	Sessions SessionsConfig `mapstructure:"sessions"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	SessionSecret string `mapstructure:"session_secret"`
	AllowedOrigin string `mapstructure:"allowed_origin"`
	Production    bool   `mapstructure:"production"`
	// CatalogFile overrides the built-in field catalog when set.
	CatalogFile string `mapstructure:"catalog_file"`
}

// APIConfig points at the external Assessment API.
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// DraftsConfig selects where in-progress drafts are kept: memory, sql or redis.
type DraftsConfig struct {
	Backend string `mapstructure:"backend"`
}

type WizardConfig struct {
	AutosaveDelay time.Duration `mapstructure:"autosave_delay"`
	FocusDelay    time.Duration `mapstructure:"focus_delay"`
	StoreTimeout  time.Duration `mapstructure:"store_timeout"`
}

type PollingConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Interval    time.Duration `mapstructure:"interval"`
}

type SessionsConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "change-me-in-production")
	v.SetDefault("server.allowed_origin", "http://localhost:5173")
	v.SetDefault("server.production", false)

	v.SetDefault("api.base_url", "http://localhost:5000/api")
	v.SetDefault("api.timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "sympto-db")
	v.SetDefault("database.sqlite_path", "sympto.db")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 30*24*time.Hour)

	v.SetDefault("drafts.backend", "sql")

	v.SetDefault("wizard.autosave_delay", time.Second)
	v.SetDefault("wizard.focus_delay", 100*time.Millisecond)
	v.SetDefault("wizard.store_timeout", 5*time.Second)

	v.SetDefault("polling.max_attempts", 10)
	v.SetDefault("polling.interval", 3*time.Second)

	v.SetDefault("sessions.idle_timeout", 30*time.Minute)
	v.SetDefault("sessions.sweep_interval", time.Minute)

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs
}

// Store holds the live configuration. Reloads replace it atomically.
type Store struct {
	v *viper.Viper

	mu  sync.RWMutex
	cur Config
}

// Load reads defaults, config/config.yaml under projectRoot, and SYMPTO_* environment variables.
func Load(projectRoot string) (*Store, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("SYMPTO") // e.g., SYMPTO_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	s := &Store{v: v}
	if err := v.Unmarshal(&s.cur); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return s, nil
}

// Current returns a copy of the configuration in effect.
func (s *Store) Current() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Watch hot-reloads the file on change. A file that fails to decode leaves the previous
// configuration in place.
func (s *Store) Watch(log *zap.Logger) {
	s.v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		var next Config
		if err := s.v.Unmarshal(&next); err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
			return
		}
		s.mu.Lock()
		s.cur = next
		s.mu.Unlock()
	})
	s.v.WatchConfig()
}
