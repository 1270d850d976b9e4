package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// OverridePathEnv names the environment variable consulted for the override
// config file when --override-config is not passed. The override source is
// injected rather than compiled in; deployments that do not use it simply
// leave both unset.
const OverridePathEnv = "LESIONTRAIN_OVERRIDE_CONFIG"

// Layers records which source supplied which options, so the doctor command
// can show where a resolved value came from.
type Layers struct {
	File     map[string]any
	CLI      map[string]any
	Override map[string]any
}

// Resolve merges configuration sources into one effective Config.
//
// Precedence, lowest to highest:
//  1. flag-declared defaults
//  2. user config file (if given)
//  3. flags explicitly set on the command line
//  4. override config file (if it exists)
//
// The override file is applied unconditionally, after explicit CLI values.
// That means it can silently beat a flag the user typed. Sweep deployments
// rely on the override winning, so the ordering is kept as-is; see DESIGN.md
// before changing it.
func Resolve(flags *pflag.FlagSet, configPath, overridePath string) (*Config, *Layers, error) {
	layers := &Layers{
		File:     map[string]any{},
		CLI:      map[string]any{},
		Override: map[string]any{},
	}

	merged := map[string]any{}
	flags.VisitAll(func(f *pflag.Flag) {
		v, err := flagValue(flags, f)
		if err != nil {
			return
		}
		merged[f.Name] = v
		if f.Changed {
			layers.CLI[f.Name] = v
		}
	})

	if configPath != "" {
		fileLayer, err := readSettings(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
		layers.File = fileLayer

		for k, v := range fileLayer {
			if f := flags.Lookup(k); f != nil && f.Changed {
				continue // explicit CLI beats the file layer
			}
			merged[k] = v
		}
	}

	if overridePath == "" {
		overridePath = os.Getenv(OverridePathEnv)
	}
	if overridePath != "" {
		if _, err := os.Stat(overridePath); err == nil {
			overrideLayer, err := readSettings(overridePath)
			if err != nil {
				return nil, nil, fmt.Errorf("read override config %s: %w", overridePath, err)
			}
			layers.Override = overrideLayer

			for k, v := range overrideLayer {
				merged[k] = v
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("stat override config %s: %w", overridePath, err)
		}
	}

	cfg, err := decode(merged)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return cfg, layers, nil
}

// readSettings loads a YAML option file into a flat map. viper lowercases
// keys, matching the flag names used throughout.
func readSettings(path string) (map[string]any, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v.AllSettings(), nil
}

// flagValue extracts a typed value from a pflag entry.
func flagValue(flags *pflag.FlagSet, f *pflag.Flag) (any, error) {
	switch f.Value.Type() {
	case "bool":
		return flags.GetBool(f.Name)
	case "int":
		return flags.GetInt(f.Name)
	case "int64":
		return flags.GetInt64(f.Name)
	case "float64":
		return flags.GetFloat64(f.Name)
	default:
		return f.Value.String(), nil
	}
}
