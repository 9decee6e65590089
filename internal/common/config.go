package common

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	OCR      OCRConfig      `mapstructure:"ocr"`
	Rules    RulesConfig    `mapstructure:"rules"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Inbox    InboxConfig    `mapstructure:"inbox"`
	Log      LogConfig      `mapstructure:"log"`
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string        `mapstructure:"driver"` // postgres | sqlite
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	MaxConnLifetime  time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime  time.Duration `mapstructure:"max_conn_idle_time"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string `mapstructure:"grpc_addr"`
	HTTPAddr string `mapstructure:"http_addr"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Pdftoppm      string `mapstructure:"pdftoppm"`
	Tesseract     string `mapstructure:"tesseract"`
	TesseractLang string `mapstructure:"tesseract_lang"`
	TessdataDir   string `mapstructure:"tessdata_dir"`
	DPI           int    `mapstructure:"dpi"`
	MaxPages      int    `mapstructure:"max_pages"`
}

// RulesConfig points at an optional YAML file overriding the embedded rule tables
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig holds the correction lookup cache configuration
type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// BatchConfig holds worker pool sizing for batch and inbox processing
type BatchConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// InboxConfig lists directories the daemon watches for new reports
type InboxConfig struct {
	Dirs     []string      `mapstructure:"dirs"`
	Debounce time.Duration `mapstructure:"debounce"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// SlogLevel parses the configured level, defaulting to info.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

var defaults = map[string]any{
	"database.driver":             "sqlite",
	"database.dsn":                "file:labreport.db?_pragma=busy_timeout(5000)",
	"database.max_conns":          20,
	"database.min_conns":          5,
	"database.max_conn_lifetime":  30 * time.Minute,
	"database.max_conn_idle_time": 5 * time.Minute,
	"database.dial_timeout":       3 * time.Second,
	"database.statement_timeout":  time.Duration(0),
	"server.grpc_addr":            ":8080",
	"server.http_addr":            ":8081",
	"ocr.pdftoppm":                "pdftoppm",
	"ocr.tesseract":               "tesseract",
	"ocr.tesseract_lang":          "eng",
	"ocr.tessdata_dir":            "",
	"ocr.dpi":                     300,
	"ocr.max_pages":               0,
	"rules.path":                  "",
	"cache.enabled":               false,
	"cache.addr":                  "localhost:6379",
	"cache.password":              "",
	"cache.db":                    0,
	"cache.ttl":                   10 * time.Minute,
	"cache.prefix":                "labreport:corrections:",
	"batch.workers":               3,
	"batch.queue_size":            256,
	"batch.timeout":               3 * time.Minute,
	"inbox.dirs":                  []string{},
	"inbox.debounce":              500 * time.Millisecond,
	"log.level":                   "info",
}

// Manager loads configuration and hot-reloads it when the config file changes.
type Manager struct {
	v         *viper.Viper
	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager reads defaults, an optional config file and LABREPORT_* env vars.
// An empty cfgFile searches ./labreport.yaml and $HOME/.labreport/.
func NewManager(cfgFile string) (*Manager, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("LABREPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("labreport")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.labreport")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, NewAppError("CONFIG_ERROR", "read config file", err)
		}
	}

	m := &Manager{v: v}
	cfg, err := m.load()
	if err != nil {
		return nil, err
	}
	m.config = cfg
	return m, nil
}

func (m *Manager) load() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, NewAppError("CONFIG_ERROR", "unmarshal config", err)
	}
	return &cfg, nil
}

// Get returns the current configuration (thread-safe).
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// OnChange registers a callback for config changes.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (m *Manager) WatchConfig(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	m.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := m.load()
		if err != nil {
			logger.Error("config.reload.failed", "file", e.Name, "error", err)
			return
		}

		m.mu.Lock()
		m.config = cfg
		callbacks := make([]func(*Config), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.Unlock()

		logger.Info("config.reload.ok", "file", e.Name, "op", e.Op.String())
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	m.v.WatchConfig()
}

// LoadConfig loads configuration once without watching.
func LoadConfig(cfgFile string) (*Config, error) {
	m, err := NewManager(cfgFile)
	if err != nil {
		return nil, err
	}
	return m.Get(), nil
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" {
			return NewAppError("CONFIG_ERROR", "database.dsn is required for postgres", ErrInvalidInput)
		}
	case "sqlite":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported database.driver %q", c.Database.Driver), ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "server.grpc_addr is required", ErrInvalidInput)
	}
	if c.Batch.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "batch.workers must be positive", ErrInvalidInput)
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		return NewAppError("CONFIG_ERROR", "cache.addr is required when cache is enabled", ErrInvalidInput)
	}
	return nil
}
