// Package config handles weaver.toml configuration.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/il-weaver/errors"
)

// FileName is the name of the configuration file.
const FileName = "weaver.toml"

// Config represents a weaver.toml configuration.
type Config struct {
	// SearchPaths are searched in order for referenced modules. Relative
	// entries are relative to Dir.
	SearchPaths []string `toml:"search_paths"`
	// Exclude lists member patterns that are never woven, such as
	// "Ns.Type::Member", "Member", "Ns.Type::*" or "Ns.*".
	Exclude        []string `toml:"exclude"`
	Isolate        bool     `toml:"isolate"`
	RegenerateMVID bool     `toml:"regenerate_mvid"`
	Verify         bool     `toml:"verify"`
	LogLevel       string   `toml:"log_level"`

	// Dir is the directory containing the weaver.toml file (set at load time).
	Dir string `toml:"-"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{LogLevel: "info"}
}

// Load parses the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindIO).
			Path(path).
			Detail("cannot read configuration").
			Cause(err).
			Build()
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(path).
			Detail("parse error").
			Cause(err).
			Build()
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Path(path).
			Detail("unknown key %q", undecoded[0].String()).
			Build()
	}
	if _, err := c.Level(); err != nil {
		return nil, err
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "resolve configuration directory")
	}
	return c, nil
}

// Discover walks up from startDir to find a weaver.toml file and loads it.
// It returns Default() when no file is found.
func Discover(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindIO, err, "resolve start directory")
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// SearchPathsAbs returns the search paths with relative entries resolved
// against Dir.
func (c *Config) SearchPathsAbs() []string {
	paths := make([]string, 0, len(c.SearchPaths))
	for _, p := range c.SearchPaths {
		if !filepath.IsAbs(p) && c.Dir != "" {
			p = filepath.Join(c.Dir, p)
		}
		paths = append(paths, p)
	}
	return paths
}

// Level parses LogLevel. An empty level means info.
func (c *Config) Level() (zapcore.Level, error) {
	if c.LogLevel == "" {
		return zapcore.InfoLevel, nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return lvl, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Value(c.LogLevel).
			Detail("unknown log level %q", c.LogLevel).
			Build()
	}
	return lvl, nil
}

// Logger builds a development-style console logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	lvl, err := c.Level()
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zc.Build()
}
