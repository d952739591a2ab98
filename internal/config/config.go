package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dkoosis/amalgam/pkg/dashboard"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the working directory
// and under the user config dir.
const FileName = ".amalgam.yaml"

// Supported toolchains.
const (
	ToolchainPython = "python"
	ToolchainGo     = "go"
)

// Constants for default values.
const (
	DefaultToolchain       = ToolchainPython
	DefaultTemplateDir     = "feed_amalgamator/templates"
	DefaultCoverageProfile = "coverage.out"
	DefaultLogLevel        = "info"
	DefaultMastodonTries   = 3
	DefaultMastodonTimeout = 10 * time.Second
	DefaultRedirectURI     = "urn:ietf:wg:oauth:2.0:oob"
)

// DefaultScopes are the OAuth scopes the app needs on a user's account.
var DefaultScopes = []string{"read", "write", "push"}

// ErrInvalidToolchain is returned when a toolchain name is not recognized.
var ErrInvalidToolchain = errors.New("invalid toolchain")

// Config represents the application's overall configuration from .amalgam.yaml.
type Config struct {
	Toolchain       string                    `yaml:"toolchain"`
	TemplateDir     string                    `yaml:"template_dir"`
	CoverageProfile string                    `yaml:"coverage_profile"`
	NoColor         bool                      `yaml:"no_color"`
	CI              bool                      `yaml:"ci"`
	LogLevel        string                    `yaml:"log_level"`
	MetricsFile     string                    `yaml:"metrics_file"`
	HistoryFile     string                    `yaml:"history_file"`
	Coverage        CoverageConfig            `yaml:"coverage"`
	Targets         map[string]TargetConfig   `yaml:"targets"`
	Mastodon        MastodonConfig            `yaml:"mastodon"`
	Dashboard       *dashboard.DashboardTheme `yaml:"dashboard"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `yaml:"-"`
}

// CoverageConfig tunes the built-in markdown coverage report.
type CoverageConfig struct {
	SkipCovered bool    `yaml:"skip_covered"`
	SkipEmpty   bool    `yaml:"skip_empty"`
	SortBy      string  `yaml:"sort"`
	Precision   int     `yaml:"precision"`
	FailUnder   float64 `yaml:"fail_under"`
	StripPrefix string  `yaml:"strip_prefix"`
}

// TargetConfig replaces the steps of a named target.
type TargetConfig struct {
	Description string       `yaml:"description"`
	Steps       []StepConfig `yaml:"steps"`
}

// StepConfig is one external command within a target.
type StepConfig struct {
	Label   string   `yaml:"label"`
	Command []string `yaml:"command"`
	Kind    string   `yaml:"kind"` // "check" or "fix"
}

// MastodonConfig holds the app's OAuth credentials.
type MastodonConfig struct {
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	AccessToken  string        `yaml:"access_token"`
	Scopes       []string      `yaml:"scopes"`
	RedirectURI  string        `yaml:"redirect_uri"`
	Tries        int           `yaml:"tries"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Toolchain:       DefaultToolchain,
		TemplateDir:     DefaultTemplateDir,
		CoverageProfile: DefaultCoverageProfile,
		LogLevel:        DefaultLogLevel,
		Targets:         make(map[string]TargetConfig),
		Mastodon: MastodonConfig{
			Scopes:      append([]string(nil), DefaultScopes...),
			RedirectURI: DefaultRedirectURI,
			Tries:       DefaultMastodonTries,
			Timeout:     DefaultMastodonTimeout,
		},
	}
}

// Load reads the configuration at path, or looks it up when path is empty.
// A missing file yields defaults; an unreadable or malformed file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigPath()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path) // #nosec G304 -- config path is user-controlled on purpose
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	merge(cfg, &fileCfg)
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// merge overlays the values set in the file onto the defaults.
func merge(cfg, file *Config) {
	if file.Toolchain != "" {
		cfg.Toolchain = file.Toolchain
	}
	if file.TemplateDir != "" {
		cfg.TemplateDir = file.TemplateDir
	}
	if file.CoverageProfile != "" {
		cfg.CoverageProfile = file.CoverageProfile
	}
	cfg.NoColor = file.NoColor
	cfg.CI = file.CI
	if file.LogLevel != "" {
		cfg.LogLevel = file.LogLevel
	}
	cfg.MetricsFile = file.MetricsFile
	cfg.HistoryFile = file.HistoryFile
	cfg.Coverage = file.Coverage
	for name, t := range file.Targets {
		cfg.Targets[name] = t
	}
	cfg.Dashboard = file.Dashboard

	m := file.Mastodon
	if m.ClientID != "" {
		cfg.Mastodon.ClientID = m.ClientID
	}
	if m.ClientSecret != "" {
		cfg.Mastodon.ClientSecret = m.ClientSecret
	}
	if m.AccessToken != "" {
		cfg.Mastodon.AccessToken = m.AccessToken
	}
	if len(m.Scopes) > 0 {
		cfg.Mastodon.Scopes = m.Scopes
	}
	if m.RedirectURI != "" {
		cfg.Mastodon.RedirectURI = m.RedirectURI
	}
	if m.Tries > 0 {
		cfg.Mastodon.Tries = m.Tries
	}
	if m.Timeout > 0 {
		cfg.Mastodon.Timeout = m.Timeout
	}
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Toolchain {
	case ToolchainPython, ToolchainGo:
	default:
		return fmt.Errorf("%w: %q (expected %s or %s)", ErrInvalidToolchain, c.Toolchain, ToolchainPython, ToolchainGo)
	}
	for name, t := range c.Targets {
		for i, s := range t.Steps {
			if len(s.Command) == 0 {
				return fmt.Errorf("target %q step %d: command is empty", name, i+1)
			}
			if s.Kind != "" && s.Kind != "check" && s.Kind != "fix" {
				return fmt.Errorf("target %q step %d: kind %q (expected check or fix)", name, i+1, s.Kind)
			}
		}
	}
	if c.Coverage.Precision < 0 {
		return fmt.Errorf("coverage precision must not be negative")
	}
	return nil
}

// ApplyEnv overlays environment variables. getenv is os.Getenv outside tests.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("AMALGAM_TOOLCHAIN"); v != "" {
		c.Toolchain = strings.ToLower(v)
	}
	if b, ok := envBool(getenv, "AMALGAM_NO_COLOR", "NO_COLOR"); ok {
		c.NoColor = b
	}
	if b, ok := envBool(getenv, "AMALGAM_CI", "CI"); ok {
		c.CI = b
	}
	if v := firstEnv(getenv, "AMALGAM_LOG_LEVEL", "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("AMALGAM_METRICS_FILE"); v != "" {
		c.MetricsFile = v
	}
	if v := getenv("AMALGAM_HISTORY_FILE"); v != "" {
		c.HistoryFile = v
	}
	if v := getenv("AMALGAM_MASTODON_CLIENT_ID"); v != "" {
		c.Mastodon.ClientID = v
	}
	if v := getenv("AMALGAM_MASTODON_CLIENT_SECRET"); v != "" {
		c.Mastodon.ClientSecret = v
	}
	if v := getenv("AMALGAM_MASTODON_ACCESS_TOKEN"); v != "" {
		c.Mastodon.AccessToken = v
	}
}

func firstEnv(getenv func(string) string, keys ...string) string {
	for _, k := range keys {
		if v := getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// envBool reads the first set key as a bool. NO_COLOR is set-means-true
// by convention, so any non-boolean value counts as true.
func envBool(getenv func(string) string, keys ...string) (bool, bool) {
	for _, k := range keys {
		v := getenv(k)
		if v == "" {
			continue
		}
		if b, err := strconv.ParseBool(v); err == nil {
			return b, true
		}
		if k == "NO_COLOR" {
			return true, true
		}
	}
	return false, false
}

// findConfigPath looks for .amalgam.yaml locally, then in the user config dir.
func findConfigPath() string {
	if _, err := os.Stat(FileName); err == nil {
		return FileName
	}

	configHome, err := os.UserConfigDir()
	if err != nil || configHome == "" || configHome == "/" {
		return ""
	}
	xdgPath := filepath.Join(configHome, "amalgam", FileName)
	if _, err := os.Stat(xdgPath); err == nil {
		return xdgPath
	}
	return ""
}
