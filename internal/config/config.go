package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Built-in JSON source kinds understood by the bridge.
const (
	SourceTimetable  = "timetable"
	SourceAssignment = "assignment"
	SourceExam       = "exam"
	SourceEvent      = "event"
	SourceICS        = "ics"
)

const (
	defaultListen    = "127.0.0.1:8080"
	defaultLocale    = "vi-VN"
	defaultLogLevel  = "info"
	defaultIssuer    = "https://gwdu.ptit.edu.vn/sso/realms/ptit"
	defaultAPIBase   = "https://gwdu.ptit.edu.vn"
	defaultClientID  = "ptit-connect"
	defaultTokenPath = "/var/lib/weekcal/token.json"
	defaultCacheDir  = "/var/lib/weekcal/ics-cache"
)

// SourceConfig describes one place the bridge pulls events from.
type SourceConfig struct {
	// Kind is one of timetable, assignment, exam, event, ics.
	Kind string `yaml:"kind" json:"kind"`
	// Path is appended to Bridge.APIBase for JSON kinds.
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// URL is the subscription endpoint for ics sources.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Type is the event type label assigned to ics events.
	Type string `yaml:"type,omitempty" json:"type,omitempty"`
	// ID is used for logging and cache keys.
	ID string `yaml:"id,omitempty" json:"id,omitempty"`
}

// BridgeConfig holds the OAuth session and event source settings.
type BridgeConfig struct {
	// Issuer is the OpenID Connect issuer; discovery is read from
	// <Issuer>/.well-known/openid-configuration.
	Issuer   string   `yaml:"issuer" json:"issuer"`
	ClientID string   `yaml:"client_id" json:"client_id"`
	Scopes   []string `yaml:"scopes" json:"scopes"`
	// RedirectURL overrides the callback URL derived from Listen.
	RedirectURL string `yaml:"redirect_url,omitempty" json:"redirect_url,omitempty"`
	// TokenPath is where the refresh token is kept between runs.
	TokenPath string `yaml:"token_path" json:"token_path"`
	// APIBase prefixes every JSON source path.
	APIBase  string         `yaml:"api_base" json:"api_base"`
	CacheDir string         `yaml:"cache_dir" json:"cache_dir"`
	Sources  []SourceConfig `yaml:"sources" json:"sources"`
}

// SnapshotConfig controls headless PNG captures of the rendered page.
type SnapshotConfig struct {
	// Cron is a cron expression (e.g. "*/30 * * * *"); empty disables
	// scheduled captures.
	Cron   string `yaml:"cron,omitempty" json:"cron,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
	Width  int    `yaml:"width,omitempty" json:"width,omitempty"`
	Height int    `yaml:"height,omitempty" json:"height,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the viewer.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address of the viewer.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is an IANA zone used as the host locale's clock. Empty means
	// the process local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Locale selects month/weekday names and the time format.
	Locale string `yaml:"locale" json:"locale"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// EventColors overrides entries of the event type color table.
	EventColors map[string]string `yaml:"event_colors,omitempty" json:"event_colors,omitempty"`
	// FallbackColor is used for type labels absent from the table.
	FallbackColor string `yaml:"fallback_color,omitempty" json:"fallback_color,omitempty"`

	// Locked is the initial state of the window lock flag.
	Locked bool `yaml:"locked" json:"locked"`

	Bridge   BridgeConfig   `yaml:"bridge" json:"bridge"`
	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`

	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultSources mirrors the four university endpoints the viewer was built
// against.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{Kind: SourceTimetable, Path: "/qldt/thoi-khoa-bieu/sv", ID: "timetable"},
		{Kind: SourceAssignment, Path: "/qldt/assignment/lich/sinh-vien", ID: "assignment"},
		{Kind: SourceExam, Path: "/khao-thi/lich-thi/lich-thi/sv", ID: "exam"},
		{Kind: SourceEvent, Path: "/slink/su-kien/user", ID: "event"},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   defaultListen,
		Locale:   defaultLocale,
		LogLevel: defaultLogLevel,
		Bridge: BridgeConfig{
			Issuer:    defaultIssuer,
			ClientID:  defaultClientID,
			Scopes:    []string{"email", "offline_access", "openid", "profile"},
			TokenPath: defaultTokenPath,
			APIBase:   defaultAPIBase,
			CacheDir:  defaultCacheDir,
			Sources:   DefaultSources(),
		},
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Locale == "" {
		c.Locale = defaultLocale
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}

	b := &c.Bridge
	if b.Issuer == "" {
		b.Issuer = defaultIssuer
	}
	if b.ClientID == "" {
		b.ClientID = defaultClientID
	}
	if len(b.Scopes) == 0 {
		b.Scopes = []string{"email", "offline_access", "openid", "profile"}
	}
	if b.TokenPath == "" {
		b.TokenPath = defaultTokenPath
	}
	if b.APIBase == "" {
		b.APIBase = defaultAPIBase
	}
	if b.CacheDir == "" {
		b.CacheDir = defaultCacheDir
	}
	if b.Sources == nil {
		b.Sources = DefaultSources()
	}
	for i := range b.Sources {
		src := &b.Sources[i]
		if src.ID == "" {
			switch {
			case src.URL != "":
				src.ID = src.URL
			case src.Path != "":
				src.ID = src.Path
			default:
				src.ID = src.Kind
			}
		}
	}

	if c.Snapshot.Output == "" {
		c.Snapshot.Output = "snapshot.png"
	}
}

// Validate reports configuration errors Normalize cannot repair.
func (c *Config) Validate() error {
	for _, src := range c.Bridge.Sources {
		switch src.Kind {
		case SourceTimetable, SourceAssignment, SourceExam, SourceEvent:
			if src.Path == "" {
				return errors.New("config: source " + src.ID + " needs a path")
			}
		case SourceICS:
			if src.URL == "" {
				return errors.New("config: ics source " + src.ID + " needs a url")
			}
		default:
			return errors.New("config: unknown source kind " + `"` + src.Kind + `"`)
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			cfg.Normalize()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether a read-only location is fatal.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".weekcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
