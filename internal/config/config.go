package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tabide/pagecheck/internal/suite"
	"github.com/tabide/pagecheck/internal/types"
)

const appName = "pagecheck"

// Config holds the user-level settings shared by every suite
type Config struct {
	Version  int           `toml:"version"`
	Suites   []string      `toml:"suites"`
	Parallel int           `toml:"parallel"`
	History  HistoryConfig `toml:"history"`
	Report   ReportConfig  `toml:"report"`
	Watch    WatchConfig   `toml:"watch"`
	Email    EmailConfig   `toml:"email"`
	Browser  BrowserConfig `toml:"browser"`
}

type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"` // empty means <cache dir>/history.db
}

type ReportConfig struct {
	HTML bool `toml:"html"`
	JSON bool `toml:"json"`
}

type WatchConfig struct {
	Schedule string `toml:"schedule"` // cron spec, e.g. "*/30 * * * *"
	Timezone string `toml:"timezone"`
}

type EmailConfig struct {
	Enabled  bool   `toml:"enabled"`
	Provider string `toml:"provider"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass"`
	FromAddr string `toml:"from_address"`
	ToAddr   string `toml:"to_address"`
}

type BrowserConfig struct {
	ExecPath  string `toml:"exec_path"` // empty lets chromedp find Chrome
	NoSandbox bool   `toml:"no_sandbox"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version:  1,
		Suites:   []string{},
		Parallel: 1,
		History: HistoryConfig{
			Enabled: true,
		},
		Report: ReportConfig{
			HTML: true,
			JSON: true,
		},
		Watch: WatchConfig{
			Schedule: "*/30 * * * *",
			Timezone: "Local",
		},
		Email: EmailConfig{
			Provider: "smtp",
			SMTPPort: 587,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, appName), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// SuitePath returns the path of the user's default suite file
func SuitePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "suite.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, appName), nil
}

// HistoryPath returns where the run history database lives
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// Load reads config from disk
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads config from path, filling unset fields with defaults
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return writeTOML(path, c)
}

// DefaultRun returns the run settings applied before a suite file is decoded
func DefaultRun() *types.Run {
	return &types.Run{
		Name:        "suite",
		BaseURL:     suite.DefaultBaseURL,
		Viewport:    types.Viewport{Width: 1280, Height: 800, Scale: 1},
		Headless:    true,
		OutputDir:   "verification",
		NavTimeout:  types.D(30 * time.Second),
		WaitTimeout: types.D(10 * time.Second),
	}
}

// DefaultSuite returns the built-in travel planner suite
func DefaultSuite() *types.Run {
	run := DefaultRun()
	run.Name = "travel-planner"
	run.LocalStorage = map[string]string{
		suite.ConsentStorageKey: suite.ConsentStorageValue,
	}
	run.Steps = append(run.Steps, suite.Planner()...)
	run.Steps = append(run.Steps, suite.Mobile()...)
	run.Steps = append(run.Steps, suite.TravelInfo(suite.DefaultDestination, "basic", "safety")...)
	return run
}

// LoadSuite decodes a suite file. The format follows the extension: .toml,
// or .yaml/.yml.
func LoadSuite(path string) (*types.Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	run := DefaultRun()
	run.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), run); err != nil {
			return nil, fmt.Errorf("failed to parse suite %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, run); err != nil {
			return nil, fmt.Errorf("failed to parse suite %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported suite format %q (want .toml, .yaml or .yml)", ext)
	}

	if run.Viewport.Scale == 0 {
		run.Viewport.Scale = 1
	}

	if err := run.Validate(); err != nil {
		return nil, fmt.Errorf("invalid suite %s: %w", path, err)
	}
	return run, nil
}

// SaveSuite writes a suite as TOML
func SaveSuite(path string, run *types.Run) error {
	return writeTOML(path, run)
}

func writeTOML(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(v)
}
