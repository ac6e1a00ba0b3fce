// Package config loads idxctl's layered runtime configuration: built-in
// defaults, an optional TOML config file, IDXCTL_-prefixed environment
// variables, and finally command-line flags bound in by cmd/idxctl — in
// that increasing order of precedence, the way internal/config's viper
// instance in the teacher repo layers config.yaml under environment
// variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

const envPrefix = "IDXCTL"

// Config holds idxctl's ambient settings: defaults for flags the CLI
// exposes only sometimes (batch sizes, lock timeout) and values that have
// no flag at all (default database-uri, for scripting a fixed target).
type Config struct {
	DatabaseURI    string `toml:"database-uri"`
	BatchSize      int    `toml:"batch-size"`
	LockTimeoutSec int    `toml:"lock-timeout-seconds"`
	Quiet          bool   `toml:"quiet"`
	Verbose        bool   `toml:"verbose"`
}

// Defaults returns the built-in configuration before any file or
// environment overrides are applied.
func Defaults() Config {
	return Config{
		BatchSize:      4096,
		LockTimeoutSec: 30,
	}
}

// Load builds a viper instance seeded with Defaults, optionally merges the
// TOML file at path (a missing path is not an error), applies
// IDXCTL_-prefixed environment overrides, and decodes the result into a
// Config.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	def := Defaults()
	v.SetDefault("database-uri", def.DatabaseURI)
	v.SetDefault("batch-size", def.BatchSize)
	v.SetDefault("lock-timeout-seconds", def.LockTimeoutSec)
	v.SetDefault("quiet", def.Quiet)
	v.SetDefault("verbose", def.Verbose)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := mergeTOMLFile(v, path); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		DatabaseURI:    v.GetString("database-uri"),
		BatchSize:      v.GetInt("batch-size"),
		LockTimeoutSec: v.GetInt("lock-timeout-seconds"),
		Quiet:          v.GetBool("quiet"),
		Verbose:        v.GetBool("verbose"),
	}
	return cfg, nil
}

// mergeTOMLFile decodes the TOML file at path with BurntSushi/toml (viper's
// own toml codec is lossy on integers in some versions, so idxctl decodes
// the file itself and merges the result) into viper's config layer, which
// takes precedence over the defaults and yields to environment overrides.
func mergeTOMLFile(v *viper.Viper, path string) error {
	var raw map[string]any
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("decode config file %s: %w", path, err)
	}
	return v.MergeConfigMap(raw)
}
