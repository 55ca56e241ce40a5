// Package config loads service configuration from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Validator can optionally be implemented by configuration to do cross-field
// validation.
type Validator interface {
	IsValid() error
}

// Load fills cfg by:
// 1. Merging in the YAML file at yamlFilePath (if any) using MergeYAML.
// 2. Merging in the environment using MergeEnv.
// 3. Calling IsValid on cfg if *T implements Validator.
func Load[T any](cfg *T, yamlFilePath string, envMappings map[string]EnvMapping[T]) error {
	if yamlFilePath != "" {
		yamlFile, err := os.Open(yamlFilePath)
		if err != nil {
			return fmt.Errorf("open YAML file: %w", err)
		}
		defer yamlFile.Close()

		if err := MergeYAML(cfg, yamlFile); err != nil {
			return err
		}
	}

	if err := MergeEnv(cfg, envMappings); err != nil {
		return err
	}

	if v, ok := any(cfg).(Validator); ok {
		if err := v.IsValid(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return nil
}

// MergeYAML merges YAML from src into cfg. `${VAR}` is replaced by the value of
// VAR and fails when VAR is unset; `${VAR:-default}` falls back to default.
func MergeYAML[T any](cfg *T, src io.Reader) error {
	raw, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("read YAML source: %w", err)
	}

	var missing []string
	expanded := os.Expand(string(raw), func(key string) string {
		if i := strings.Index(key, ":-"); i != -1 {
			if val, ok := os.LookupEnv(key[:i]); ok {
				return val
			}
			return key[i+2:]
		}
		val, ok := os.LookupEnv(key)
		if !ok {
			missing = append(missing, key)
		}
		return val
	})
	if len(missing) > 0 {
		return fmt.Errorf("YAML source expects the following environment variables to be set: %v", missing)
	}

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("unmarshal YAML config: %w", err)
	}
	return nil
}

// EnvMapping maps one environment variable onto cfg. Required mappings fail
// when the variable is unset.
type EnvMapping[T any] struct {
	Required bool
	Func     func(cfg *T, val string) error
}

// MergeEnv applies every mapping whose variable is set. It collects all errors
// instead of stopping at the first.
func MergeEnv[T any](cfg *T, mappings map[string]EnvMapping[T]) error {
	var errs error
	for key, mapping := range mappings {
		val, ok := os.LookupEnv(key)
		if !ok {
			if mapping.Required {
				errs = errors.Join(errs, fmt.Errorf("missing required env variable %s", key))
			}
			continue
		}
		if err := mapping.Func(cfg, val); err != nil {
			errs = errors.Join(errs, fmt.Errorf("error for env variable %s: %w", key, err))
		}
	}
	return errs
}

// MapEnvInt parses val into tgt.
func MapEnvInt(tgt *int, val string) error {
	i, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return err
	}
	*tgt = i
	return nil
}

// MapEnvBool parses val into tgt.
func MapEnvBool(tgt *bool, val string) error {
	b, err := strconv.ParseBool(strings.TrimSpace(val))
	if err != nil {
		return err
	}
	*tgt = b
	return nil
}

// MapEnvString returns a mapping func that stores the raw value via set.
func MapEnvString[T any](set func(cfg *T) *string) func(cfg *T, val string) error {
	return func(cfg *T, val string) error {
		*set(cfg) = val
		return nil
	}
}
