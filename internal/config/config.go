package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mmcdole/recents/internal/domain"
	"github.com/mmcdole/recents/internal/logging"
)

// SourceType identifies where a namespace fetches its canonical list
type SourceType string

const (
	SourceTypeHTTP SourceType = "http"
	SourceTypeFile SourceType = "file"
)

// Defaults applied to namespaces that do not override them
const (
	DefaultLimit = 20
)

// Config holds all application configuration
type Config struct {
	Storage    StorageConfig              `mapstructure:"storage"`
	Logging    logging.Config             `mapstructure:"logging"`
	Defaults   DefaultsConfig             `mapstructure:"defaults"`
	Open       OpenConfig                 `mapstructure:"open"`
	Namespaces map[string]NamespaceConfig `mapstructure:"namespaces"`
}

// StorageConfig holds the key-value store location
type StorageConfig struct {
	Dir string `mapstructure:"dir"` // "" keeps everything in memory
}

// OpenConfig holds the program used to open record URLs
type OpenConfig struct {
	Command string   `mapstructure:"command"` // "" = system default
	Args    []string `mapstructure:"args"`
}

// DefaultsConfig holds recency behaviour shared by all namespaces
type DefaultsConfig struct {
	Limit          int  `mapstructure:"limit"` // 0 = unbounded
	KeepDuplicates bool `mapstructure:"keep_duplicates"`
	PruneMissing   bool `mapstructure:"prune_missing"`
}

// NamespaceConfig overrides defaults for one namespace. Nil means inherit.
type NamespaceConfig struct {
	Limit          *int         `mapstructure:"limit"`
	KeepDuplicates *bool        `mapstructure:"keep_duplicates"`
	PruneMissing   *bool        `mapstructure:"prune_missing"`
	Source         SourceConfig `mapstructure:"source"`
}

// SourceConfig describes the canonical source of a namespace
type SourceConfig struct {
	Type        SourceType    `mapstructure:"type"`         // "http" or "file"
	URL         string        `mapstructure:"url"`          // http only
	Path        string        `mapstructure:"path"`         // file only
	Token       string        `mapstructure:"token"`        // http only
	TokenHeader string        `mapstructure:"token_header"` // defaults to Authorization: Bearer
	ListField   string        `mapstructure:"list_field"`   // body key holding the array, "" = body is the array
	TotalField  string        `mapstructure:"total_field"`  // body key holding the total count
	PageSize    int           `mapstructure:"page_size"`    // 0 disables pagination
	OffsetParam string        `mapstructure:"offset_param"`
	LimitParam  string        `mapstructure:"limit_param"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Fields      FieldMap      `mapstructure:"fields"`
}

// FieldMap names the JSON keys mapped onto record fields
type FieldMap struct {
	ID       string `mapstructure:"id"`
	Title    string `mapstructure:"title"`
	Subtitle string `mapstructure:"subtitle"`
	URL      string `mapstructure:"url"`
}

// Namespace is a fully resolved namespace configuration
type Namespace struct {
	Name           string
	Limit          int
	KeepDuplicates bool
	PruneMissing   bool
	Source         SourceConfig
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Dir: defaultDataPath(),
		},
		Logging: logging.Config{
			File:  filepath.Join(defaultDataPath(), "recents.log"),
			Level: "INFO",
		},
		Defaults: DefaultsConfig{
			Limit: DefaultLimit,
		},
		Namespaces: map[string]NamespaceConfig{},
	}
}

// defaultDataPath returns the default data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "recents")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "recents")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "recents")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "recents")
	}
}

// DefaultConfigFile returns where SaveConfig writes when no path is given
func DefaultConfigFile() string {
	return filepath.Join(defaultConfigPath(), "config.yaml")
}

// LoadConfig loads configuration from file and environment. An empty path
// searches the default config directory and the working directory.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := newViper(cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if cfg.Namespaces == nil {
		cfg.Namespaces = map[string]NamespaceConfig{}
	}

	dir, err := logging.ExpandHome(cfg.Storage.Dir)
	if err != nil {
		return nil, err
	}
	cfg.Storage.Dir = dir

	for name, nc := range cfg.Namespaces {
		if nc.Source.Path == "" {
			continue
		}
		if nc.Source.Path, err = logging.ExpandHome(nc.Source.Path); err != nil {
			return nil, err
		}
		cfg.Namespaces[name] = nc
	}

	return cfg, nil
}

// newViper returns a viper instance seeded with defaults so environment
// overrides (RECENTS_STORAGE_DIR, RECENTS_DEFAULTS_LIMIT, ...) apply.
func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetDefault("storage.dir", cfg.Storage.Dir)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("defaults.limit", cfg.Defaults.Limit)
	v.SetDefault("defaults.keep_duplicates", cfg.Defaults.KeepDuplicates)
	v.SetDefault("defaults.prune_missing", cfg.Defaults.PruneMissing)
	v.SetDefault("open.command", cfg.Open.Command)

	v.SetEnvPrefix("RECENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// SaveConfig writes the configuration as YAML. An empty path writes to the
// default config file.
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		path = DefaultConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	// Set fields individually to ensure correct key names (snake_case)
	v.Set("storage.dir", cfg.Storage.Dir)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("defaults.limit", cfg.Defaults.Limit)
	v.Set("defaults.keep_duplicates", cfg.Defaults.KeepDuplicates)
	v.Set("defaults.prune_missing", cfg.Defaults.PruneMissing)
	if cfg.Open.Command != "" {
		v.Set("open.command", cfg.Open.Command)
		v.Set("open.args", cfg.Open.Args)
	}

	for name, ns := range cfg.Namespaces {
		prefix := "namespaces." + name + "."
		if ns.Limit != nil {
			v.Set(prefix+"limit", *ns.Limit)
		}
		if ns.KeepDuplicates != nil {
			v.Set(prefix+"keep_duplicates", *ns.KeepDuplicates)
		}
		if ns.PruneMissing != nil {
			v.Set(prefix+"prune_missing", *ns.PruneMissing)
		}
		setSource(v, prefix+"source.", ns.Source)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setSource(v *viper.Viper, prefix string, src SourceConfig) {
	if src.Type == "" {
		return
	}
	set := func(key string, value any, empty bool) {
		if !empty {
			v.Set(prefix+key, value)
		}
	}
	set("type", string(src.Type), false)
	set("url", src.URL, src.URL == "")
	set("path", src.Path, src.Path == "")
	set("token", src.Token, src.Token == "")
	set("token_header", src.TokenHeader, src.TokenHeader == "")
	set("list_field", src.ListField, src.ListField == "")
	set("total_field", src.TotalField, src.TotalField == "")
	set("page_size", src.PageSize, src.PageSize == 0)
	set("offset_param", src.OffsetParam, src.OffsetParam == "")
	set("limit_param", src.LimitParam, src.LimitParam == "")
	set("timeout", src.Timeout.String(), src.Timeout == 0)
	set("fields.id", src.Fields.ID, src.Fields.ID == "")
	set("fields.title", src.Fields.Title, src.Fields.Title == "")
	set("fields.subtitle", src.Fields.Subtitle, src.Fields.Subtitle == "")
	set("fields.url", src.Fields.URL, src.Fields.URL == "")
}

// Namespace resolves a namespace against the defaults. Namespaces that are
// not configured are valid; they simply have no source.
func (c *Config) Namespace(name string) (Namespace, error) {
	if err := ValidateName(name); err != nil {
		return Namespace{}, err
	}
	name = NormalizeName(name)

	ns := Namespace{
		Name:           name,
		Limit:          c.Defaults.Limit,
		KeepDuplicates: c.Defaults.KeepDuplicates,
		PruneMissing:   c.Defaults.PruneMissing,
	}
	nc, ok := c.Namespaces[name]
	if !ok {
		return ns, nil
	}
	if nc.Limit != nil {
		ns.Limit = *nc.Limit
	}
	if nc.KeepDuplicates != nil {
		ns.KeepDuplicates = *nc.KeepDuplicates
	}
	if nc.PruneMissing != nil {
		ns.PruneMissing = *nc.PruneMissing
	}
	ns.Source = nc.Source
	return ns, nil
}

// SourceFor returns the source of a configured namespace.
func (c *Config) SourceFor(name string) (SourceConfig, error) {
	nc, ok := c.Namespaces[NormalizeName(name)]
	if !ok {
		return SourceConfig{}, fmt.Errorf("%w: %q", domain.ErrUnknownNamespace, name)
	}
	if nc.Source.Type == "" {
		return SourceConfig{}, fmt.Errorf("%w: %q", domain.ErrNoSource, name)
	}
	return nc.Source, nil
}

// ValidateName rejects names that cannot be used as a storage key suffix.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("namespace name is required")
	}
	if strings.ContainsAny(name, " \t\n:") {
		return fmt.Errorf("invalid namespace name %q", name)
	}
	return nil
}

// NormalizeName lowercases a namespace name; config keys are
// case-insensitive so storage keys must be too.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsMemoryOnly returns true if nothing will be written to disk
func (c *Config) IsMemoryOnly() bool {
	return c.Storage.Dir == ""
}

// GetCachePath returns the storage directory path
func (c *Config) GetCachePath() string {
	return c.Storage.Dir
}

// ClearCache removes the storage directory and everything in it
func (c *Config) ClearCache() error {
	if c.IsMemoryOnly() {
		return nil
	}
	if err := os.RemoveAll(c.Storage.Dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
