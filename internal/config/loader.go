package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// parseBytes decodes raw bytes into a generic map, trying YAML first (a
// superset of JSON) and falling back to JSON.
func parseBytes(data []byte) (map[string]any, error) {
	var result map[string]any
	if err := yaml.Unmarshal(data, &result); err == nil {
		return result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("config: parse as YAML or JSON: %w", err)
	}
	return result, nil
}

// decode maps an expanded document onto out using mapstructure, matching
// YAML tag names and coercing durations and comma-separated strings.
func decode(input map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(input); err != nil {
		return fmt.Errorf("config: decode: %w", err)
	}
	return nil
}

// loadFile runs the read -> parse -> env-expand -> decode pipeline shared
// by every config document this package loads.
func loadFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	raw, err := parseBytes(data)
	if err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	expanded, ok := expandEnvVars(raw).(map[string]any)
	if !ok {
		expanded = raw
	}
	if err := decode(expanded, out); err != nil {
		return fmt.Errorf("config: %s: %w", path, err)
	}
	return nil
}

// LoadWorkflowSet reads and validates the workflow registry from path.
func LoadWorkflowSet(path string) (*WorkflowSetConfig, error) {
	var cfg WorkflowSetConfig
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPersonaSet reads and validates the persona registry from path.
func LoadPersonaSet(path string) (*PersonaSetConfig, error) {
	var cfg PersonaSetConfig
	if err := loadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadRuntimeConfig reads a RuntimeConfig from path (or starts from the
// zero value if path is empty, for a fully env/flag-driven run), layers
// the FEATURE_FACTORY_* environment overrides on top, fills defaults, and
// validates the result.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	var cfg RuntimeConfig
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
