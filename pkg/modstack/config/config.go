package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/jamesainslie/modstack/pkg/modstack/logging"
	"github.com/jamesainslie/modstack/pkg/modstack/types"
)

// FileName is the config file name inside ConfigDir.
const FileName = "config.yml"

// ErrInvalidPlatform means platform names neither target.
var ErrInvalidPlatform = errors.New("invalid platform")

// ErrInvalidConfig means a value failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// DumpConfig locates the unmodified game files.
type DumpConfig struct {
	Content string `mapstructure:"content"`
	Update  string `mapstructure:"update"`
	Aoc     string `mapstructure:"aoc"`
	// Packed is a zip of a whole dump. It is consulted after the loose
	// directories.
	Packed string `mapstructure:"packed"`
}

// LayerConfig is one enabled mod layer. Layers apply in list order.
type LayerConfig struct {
	Path    string   `mapstructure:"path"`
	Options []string `mapstructure:"options"`
}

// Config represents the application configuration.
type Config struct {
	Platform string        `mapstructure:"platform"`
	Dump     DumpConfig    `mapstructure:"dump"`
	Output   string        `mapstructure:"output"`
	Index    string        `mapstructure:"index"`
	Layers   []LayerConfig `mapstructure:"layers"`
	Deploy   struct {
		Method string `mapstructure:"method"`
	} `mapstructure:"deploy"`
	Unpack struct {
		Workers int    `mapstructure:"workers"`
		Orphans string `mapstructure:"orphans"`
	} `mapstructure:"unpack"`
	Cache struct {
		Capacity    int           `mapstructure:"capacity"`
		IdleTimeout time.Duration `mapstructure:"idle_timeout"`
		Persistent  bool          `mapstructure:"persistent"`
		Path        string        `mapstructure:"path"`
	} `mapstructure:"cache"`
	History struct {
		Path          string `mapstructure:"path"`
		RetentionDays int    `mapstructure:"retention_days"`
	} `mapstructure:"history"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Load reads configuration from file and environment variables. An
// explicit path wins; otherwise the file is looked up in
// $XDG_CONFIG_HOME/modstack and $HOME/.config/modstack. A missing file
// is not an error.
//
// Environment variables are prefixed with MODSTACK_ (e.g.
// MODSTACK_PLATFORM, MODSTACK_UNPACK_WORKERS).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix("MODSTACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(path != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{&cfg.Dump.Content, &cfg.Dump.Update, &cfg.Dump.Aoc, &cfg.Dump.Packed,
		&cfg.Output, &cfg.Index, &cfg.Cache.Path, &cfg.History.Path, &cfg.Logging.Path} {
		expanded, err := ExpandPath(*p)
		if err != nil {
			return nil, err
		}
		*p = expanded
	}
	for i := range cfg.Layers {
		expanded, err := ExpandPath(cfg.Layers[i].Path)
		if err != nil {
			return nil, err
		}
		cfg.Layers[i].Path = expanded
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("platform", DefaultPlatform)
	v.SetDefault("index", filepath.Join(CacheDir(), "parents.json"))
	v.SetDefault("deploy.method", DefaultDeployMethod)
	v.SetDefault("unpack.workers", 0) // 0 means tuned to the machine
	v.SetDefault("unpack.orphans", DefaultOrphanMethod)
	v.SetDefault("cache.capacity", 0)
	v.SetDefault("cache.idle_timeout", DefaultCacheIdleTimeout)
	v.SetDefault("cache.persistent", true)
	v.SetDefault("cache.path", filepath.Join(CacheDir(), "resources"))
	v.SetDefault("history.path", filepath.Join(StateDir(), "history"))
	v.SetDefault("history.retention_days", DefaultRetentionDays)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use logging.DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.components", map[string]string{
		"store":  "info",
		"layer":  "info",
		"unpack": "info",
	})
}

// Endian returns the byte order of the configured platform.
func (c *Config) Endian() (types.Endian, error) {
	e, err := types.ParseEndian(c.Platform)
	if err != nil {
		return e, fmt.Errorf("%w: %q", ErrInvalidPlatform, c.Platform)
	}
	return e, nil
}

// Validate checks the settings an apply run depends on.
func (c *Config) Validate() error {
	if _, err := c.Endian(); err != nil {
		return err
	}
	if c.Dump.Content == "" && c.Dump.Packed == "" {
		return fmt.Errorf("%w: dump.content or dump.packed is required", ErrInvalidConfig)
	}
	if c.Output == "" {
		return fmt.Errorf("%w: output is required", ErrInvalidConfig)
	}
	if !slices.Contains(DeployMethods, c.Deploy.Method) {
		return fmt.Errorf("%w: deploy.method %q (want one of %s)", ErrInvalidConfig,
			c.Deploy.Method, strings.Join(DeployMethods, ", "))
	}
	for i, l := range c.Layers {
		if l.Path == "" {
			return fmt.Errorf("%w: layers[%d] has no path", ErrInvalidConfig, i)
		}
	}
	return nil
}

// LoggingSettings converts the logging section for logging.Init.
func (c *Config) LoggingSettings(console string) (logging.Config, error) {
	rotation := logging.DefaultRotationConfig()
	if c.Logging.Rotation.MaxSize != "" {
		size, err := types.ParseSize(c.Logging.Rotation.MaxSize)
		if err != nil {
			return logging.Config{}, fmt.Errorf("logging.rotation.max_size: %w", err)
		}
		rotation.MaxSize = size
	}
	if c.Logging.Rotation.MaxBackups > 0 {
		rotation.MaxBackups = c.Logging.Rotation.MaxBackups
	}
	path := c.Logging.Path
	if path == "" {
		path = logging.DefaultLogPath()
	}
	return logging.Config{
		Level:        c.Logging.Level,
		Path:         path,
		Rotation:     rotation,
		Components:   c.Logging.Components,
		ConsoleLevel: console,
	}, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "modstack"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "modstack"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// WriteDefault writes a default config file to path, or to ConfigPath
// when path is empty. It returns the path written and does nothing when
// the file already exists.
func WriteDefault(path string) (string, error) {
	if path == "" {
		var err error
		if path, err = ConfigPath(); err != nil {
			return "", err
		}
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to check config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# modstack configuration

# Deployment target: switch or wiiu
platform: %s

# Unmodified game files
dump:
  content: ""
  update: ""
  aoc: ""
  # A zip of the whole dump, read after the directories above
  packed: ""

# Where merged files are written
output: ""

# Parent index built by "modstack index"
index: %s

# Mod layers, lowest priority first
layers: []
#  - path: ~/mods/first-mod.zip
#  - path: ~/mods/second-mod.zip
#    options: [extra-music]

deploy:
  # copy, hardlink or symlink
  method: %s

unpack:
  # Parallel merges (0 tunes to the machine)
  workers: 0
  # delete or trash
  orphans: %s

cache:
  # In-memory entries (0 tunes to the machine)
  capacity: 0
  idle_timeout: %s
  # Keep parsed base resources between runs
  persistent: true
  path: %s

history:
  path: %s
  retention_days: %d

logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/modstack/modstack.log)
  path: ""
  rotation:
    max_size: 10MB
    max_backups: 5
  components:
    store: info
    layer: info
    unpack: info
`, DefaultPlatform, filepath.Join(CacheDir(), "parents.json"), DefaultDeployMethod, DefaultOrphanMethod,
		DefaultCacheIdleTimeout, filepath.Join(CacheDir(), "resources"),
		filepath.Join(StateDir(), "history"), DefaultRetentionDays)

	if err := os.WriteFile(path, []byte(defaultConfig), 0o644); err != nil {
		return "", fmt.Errorf("failed to write default config: %w", err)
	}
	return path, nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// StateDir returns $XDG_STATE_HOME/modstack/ for logs and history.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "modstack")
}

// CacheDir returns $XDG_CACHE_HOME/modstack/ for the parent index and
// the persistent resource cache.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "modstack")
}
