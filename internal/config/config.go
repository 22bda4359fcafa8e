package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/glassd/internal/directive"
	"github.com/loykin/glassd/internal/env"
	"github.com/loykin/glassd/internal/logger"
	"github.com/loykin/glassd/internal/overlay"
	"github.com/loykin/glassd/internal/profile"
)

// EnvPrefix prefixes environment overrides, e.g. GLASSD_PROFILES_DIR or
// GLASSD_SERVER_LISTEN.
const EnvPrefix = "GLASSD"

// Config is the daemon configuration read from TOML.
type Config struct {
	Executable       string        `toml:"executable" mapstructure:"executable"`
	ProfilesDir      string        `toml:"profiles_dir" mapstructure:"profiles_dir"`
	IgnoredProfiles  []string      `toml:"ignored_profiles" mapstructure:"ignored_profiles"`
	TagPrefix        string        `toml:"tag_prefix" mapstructure:"tag_prefix"`
	StopTimeout      time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
	ReconcileOnStart bool          `toml:"reconcile_on_start" mapstructure:"reconcile_on_start"`
	WatchProfiles    bool          `toml:"watch_profiles" mapstructure:"watch_profiles"`
	PruneMissing     bool          `toml:"prune_missing" mapstructure:"prune_missing"`

	// Store is the tag database DSN (sqlite path or postgres URL).
	Store string `toml:"store" mapstructure:"store"`
	// History lists DSNs of lifecycle event sinks.
	History []string `toml:"history" mapstructure:"history"`

	// Env and EnvFiles extend the overlay environment. Values may reference
	// ${VAR} from the daemon environment or other entries.
	Env      []string `toml:"env" mapstructure:"env"`
	EnvFiles []string `toml:"env_files" mapstructure:"env_files"`

	Log        logger.Config     `toml:"log" mapstructure:"log"`
	OverlayLog logger.FileConfig `toml:"overlay_log" mapstructure:"overlay_log"`
	Server     ServerConfig      `toml:"server" mapstructure:"server"`
	Metrics    MetricsConfig     `toml:"metrics" mapstructure:"metrics"`

	path string
}

type ServerConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
	PIDFile  string `toml:"pidfile" mapstructure:"pidfile"`
	LogFile  string `toml:"logfile" mapstructure:"logfile"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" mapstructure:"listen"`
}

var (
	ErrExecutableExt = errors.New("overlay executable has no recognized executable extension")
	ErrNotDirectory  = errors.New("not a directory")
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetDefault("executable", "")
	v.SetDefault("profiles_dir", "")
	v.SetDefault("ignored_profiles", []string{})
	v.SetDefault("tag_prefix", directive.DefaultPrefix)
	v.SetDefault("stop_timeout", overlay.DefaultStopTimeout)
	v.SetDefault("reconcile_on_start", true)
	v.SetDefault("watch_profiles", false)
	v.SetDefault("prune_missing", false)
	v.SetDefault("store", "glassd.db")
	v.SetDefault("history", []string{})
	v.SetDefault("env", []string{})
	v.SetDefault("env_files", []string{})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file.path", "")
	v.SetDefault("overlay_log.dir", "")
	v.SetDefault("server.listen", "127.0.0.1:8787")
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.pidfile", "")
	v.SetDefault("server.logfile", "")
	v.SetDefault("metrics.listen", "")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (optional) and applies defaults and environment overrides.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.path = path
	c.IgnoredProfiles = compact(c.IgnoredProfiles)
	return &c, nil
}

// Path is the file the configuration was loaded from, if any.
func (c *Config) Path() string { return c.path }

// StoreDSN returns the tag store DSN. Relative sqlite paths (bare or
// "sqlite://") are placed next to the configuration file.
func (c *Config) StoreDSN() string {
	return c.relative(c.Store)
}

// HistoryDSNs returns the history sink DSNs with relative sqlite paths
// resolved like StoreDSN.
func (c *Config) HistoryDSNs() []string {
	out := make([]string, 0, len(c.History))
	for _, d := range c.History {
		if d = c.relative(d); d != "" {
			out = append(out, d)
		}
	}
	return out
}

func (c *Config) relative(dsn string) string {
	d := strings.TrimSpace(dsn)
	scheme := ""
	if strings.HasPrefix(strings.ToLower(d), "sqlite://") {
		scheme, d = d[:len("sqlite://")], d[len("sqlite://"):]
	}
	if d == "" || c.path == "" || d == ":memory:" || strings.Contains(d, "://") || filepath.IsAbs(d) {
		return scheme + d
	}
	return scheme + filepath.Join(filepath.Dir(c.path), d)
}

// OverlayEnv returns the variables added to every overlay environment.
// Env files are applied in order, then Env entries.
func (c *Config) OverlayEnv() ([]string, error) {
	e := env.New()
	for _, f := range c.EnvFiles {
		if err := e.LoadFile(c.relative(f)); err != nil {
			return nil, err
		}
	}
	return e.Overrides(c.Env), nil
}

// OverlayOptions maps the configuration onto overlay manager options.
func (c *Config) OverlayOptions(l *slog.Logger) (overlay.Options, error) {
	env, err := c.OverlayEnv()
	if err != nil {
		return overlay.Options{}, err
	}
	return overlay.Options{
		Executable:  c.Executable,
		ProfilesDir: c.ProfilesDir,
		TagPrefix:   c.TagPrefix,
		StopTimeout: c.StopTimeout,
		Env:         env,
		Log:         logger.Config{File: c.OverlayLog},
		Logger:      l,
	}, nil
}

// Reconciler returns reconciliation settings for the profiles directory.
func (c *Config) Reconciler(l *slog.Logger) profile.Reconciler {
	return profile.Reconciler{
		Prefix:       c.TagPrefix,
		Ignored:      c.IgnoredProfiles,
		PruneMissing: c.PruneMissing,
		Logger:       l,
	}
}

// Verify checks the overlay settings: the executable must exist and be
// executable (".exe" on Windows) and the profiles directory must exist.
// All problems are returned together.
func (c *Config) Verify() error {
	var errs []error
	exe := strings.TrimSpace(c.Executable)
	switch fi, err := os.Stat(exe); {
	case exe == "":
		errs = append(errs, fmt.Errorf("executable: %w", overlay.ErrExecutableMissing))
	case err != nil:
		errs = append(errs, fmt.Errorf("executable %s: %w", exe, overlay.ErrExecutableMissing))
	case fi.IsDir():
		errs = append(errs, fmt.Errorf("executable %s: %w", exe, overlay.ErrExecutableMissing))
	case !isExecutable(exe, fi):
		errs = append(errs, fmt.Errorf("executable %s: %w", exe, ErrExecutableExt))
	}
	dir := strings.TrimSpace(c.ProfilesDir)
	switch fi, err := os.Stat(dir); {
	case dir == "" || err != nil:
		errs = append(errs, fmt.Errorf("profiles_dir %q: %w", dir, overlay.ErrProfilesDirMissing))
	case !fi.IsDir():
		errs = append(errs, fmt.Errorf("profiles_dir %s: %w: %w", dir, overlay.ErrProfilesDirMissing, ErrNotDirectory))
	}
	return errors.Join(errs...)
}

func isExecutable(path string, fi os.FileInfo) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(filepath.Ext(path), ".exe")
	}
	return fi.Mode().Perm()&0o111 != 0
}

// SetIgnored persists the ignored profile list into the TOML file at path,
// creating the file when it does not exist.
func SetIgnored(path string, names []string) error {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.Set("ignored_profiles", compact(names))
	return v.WriteConfigAs(path)
}

// Ignore adds name to the ignored list stored in path.
func Ignore(path, name string) ([]string, error) {
	return updateIgnored(path, func(cur []string) []string {
		if profile.IsIgnored(name, cur) {
			return cur
		}
		return append(cur, profile.FileName(strings.TrimSpace(name)))
	})
}

// Unignore removes name from the ignored list stored in path.
func Unignore(path, name string) ([]string, error) {
	return updateIgnored(path, func(cur []string) []string {
		out := cur[:0]
		for _, n := range cur {
			if !profile.IsIgnored(n, []string{name}) {
				out = append(out, n)
			}
		}
		return out
	})
}

func updateIgnored(path string, fn func([]string) []string) ([]string, error) {
	if path == "" {
		return nil, errors.New("a config file is required to persist ignored profiles")
	}
	var cur []string
	if _, err := os.Stat(path); err == nil {
		c, err := Load(path)
		if err != nil {
			return nil, err
		}
		cur = c.IgnoredProfiles
	}
	next := fn(append([]string(nil), cur...))
	if err := SetIgnored(path, next); err != nil {
		return nil, err
	}
	return compact(next), nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
