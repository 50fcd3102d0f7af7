package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"multibot/entity"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// interpolateEnv replaces every ${VAR} occurrence in s with the process
// environment value for VAR, or "" when unset, per spec.md §6.
func interpolateEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

// interpolateNode walks a decoded YAML document recursively, replacing
// ${ENV_VAR} references inside maps and sequences, matching the original
// loader's behavior of substituting before validation.
func interpolateNode(node any) any {
	switch v := node.(type) {
	case string:
		return interpolateEnv(v)
	case map[string]any:
		for k, val := range v {
			v[k] = interpolateNode(val)
		}
		return v
	case []any:
		for i, val := range v {
			v[i] = interpolateNode(val)
		}
		return v
	default:
		return node
	}
}

// LoadBotConfig reads, interpolates, and validates a single bot YAML file.
func LoadBotConfig(path string) (*entity.BotConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	interpolateNode(generic)

	interpolated, err := yaml.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-marshal %s: %w", path, err)
	}

	cfg := &entity.BotConfig{}
	if err := yaml.Unmarshal(interpolated, cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.SourcePath = path

	if cfg.TokenMissing() {
		return cfg, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate %s: %w", path, &ValidationError{Field: cfg.ID, Reason: err.Error()})
	}

	return cfg, nil
}

// ValidationError is the typed ConfigValidation error kind from spec.md §7.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation: field=%s reason=%s", e.Field, e.Reason)
}

// FileMissingError is the typed ConfigFileMissing error kind.
type FileMissingError struct {
	Path string
}

func (e *FileMissingError) Error() string {
	return fmt.Sprintf("config file missing: %s", e.Path)
}

// DiscoverBotConfigs enumerates *.yaml/*.yml files directly under dir and
// loads each one. A single bad file is reported in the returned error slice
// but never aborts discovery of the rest.
func DiscoverBotConfigs(dir string) ([]*entity.BotConfig, []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, []error{&FileMissingError{Path: dir}}
	}

	var configs []*entity.BotConfig
	var errs []error
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		cfg, err := LoadBotConfig(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		configs = append(configs, cfg)
	}
	return configs, errs
}

// BotIDFromFilename derives the expected bot id from a config file's stem,
// used by the hot-reload controller to route a filesystem event without
// re-parsing the file first.
func BotIDFromFilename(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
}
