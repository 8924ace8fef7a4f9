// Package config loads unixagent's YAML configuration file: model
// aliases with extend-based inheritance, the sandbox policy, and the
// judge/approval thresholds.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/unixagent/unixagent/internal/risk"
)

// ModelConfig is one named backend configuration. Pointer fields
// distinguish "unset, inherit from extend" from "explicitly set to the
// zero value" the same way the config format this is ported from does.
type ModelConfig struct {
	Model       *string                `yaml:"model,omitempty"`
	APIBase     *string                `yaml:"api_base,omitempty"`
	APIKey      *string                `yaml:"api_key,omitempty"`
	Temperature *float64               `yaml:"temperature,omitempty"`
	Seed        *int                   `yaml:"seed,omitempty"`
	MaxTokens   *int                   `yaml:"max_tokens,omitempty"`
	ExtraBody   map[string]interface{} `yaml:"extra_body,omitempty"`
	Extend      *string                `yaml:"extend,omitempty"`
	Aliases     []string               `yaml:"aliases,omitempty"`
}

// SandboxConfig configures the per-session filesystem policy handed to
// the sandbox package; paths support $CWD/$HOME placeholders.
type SandboxConfig struct {
	Enabled  *bool    `yaml:"enabled,omitempty"`
	Writable []string `yaml:"writable,omitempty"`
	Readable []string `yaml:"readable,omitempty"`
	Denied   []string `yaml:"denied,omitempty"`
}

// JudgeConfig controls when the second-opinion LLM judge is consulted.
type JudgeConfig struct {
	Enabled       *bool   `yaml:"enabled,omitempty"`
	MinRiskLevel  *string `yaml:"min_risk_level,omitempty"`
	Model         *string `yaml:"model,omitempty"`
}

// ApprovalConfig sets which risk levels require interactive approval
// versus running unattended ("yolo").
type ApprovalConfig struct {
	AutoApproveBelow *string `yaml:"auto_approve_below,omitempty"`
	Yolo             *bool   `yaml:"yolo,omitempty"`
}

// File is the parsed top-level shape of config.yaml.
type File struct {
	Default         string                 `yaml:"default,omitempty"`
	JournalBudget   *int                   `yaml:"journal_budget_tokens,omitempty"`
	Models          map[string]ModelConfig `yaml:"models,omitempty"`
	Sandbox         *SandboxConfig         `yaml:"sandbox,omitempty"`
	Judge           *JudgeConfig           `yaml:"judge,omitempty"`
	Approval        *ApprovalConfig        `yaml:"approval,omitempty"`
	MaxNestingDepth *int                   `yaml:"max_nesting_depth,omitempty"`
}

// Dir returns the config directory, ${XDG_CONFIG_HOME:-$HOME/.config}/unixagent,
// creating it if missing. A failure to determine or create it is
// non-fatal to callers that only need a best-effort path.
func Dir() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, "unixagent")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Load reads and parses config.yaml from Dir(). A missing file is not
// an error: it returns an empty File so the rest of the program can
// fall back to built-in defaults. The file is named config.yaml, not
// config.toml: this module has no TOML dependency anywhere in its
// stack, while gopkg.in/yaml.v3 is already load-bearing for every other
// structured-config need, so YAML is the one format actually wired in.
func Load() (*File, error) {
	dir, err := Dir()
	if err != nil {
		return &File{}, nil
	}

	path := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &File{}, nil
		}
		return &File{}, nil
	}

	var cfg File
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	expandAliases(&cfg)
	return &cfg, nil
}

// expandAliases materializes each model's Aliases list as additional
// map entries that Extend the original model, so alias resolution can
// reuse the same recursive Extend walk as any other model name.
func expandAliases(cfg *File) {
	if cfg.Models == nil {
		return
	}
	aliasEntries := make(map[string]ModelConfig)
	for name, mc := range cfg.Models {
		for _, alias := range mc.Aliases {
			if _, exists := cfg.Models[alias]; exists {
				fmt.Fprintf(os.Stderr, "config: alias %q on model %q clashes with an existing model, ignoring\n", alias, name)
				continue
			}
			if _, exists := aliasEntries[alias]; exists {
				fmt.Fprintf(os.Stderr, "config: duplicate alias %q on model %q, ignoring\n", alias, name)
				continue
			}
			parent := name
			aliasEntries[alias] = ModelConfig{Extend: &parent}
		}
	}
	for k, v := range aliasEntries {
		cfg.Models[k] = v
	}
}

// ResolveModel walks modelName's Extend chain (if any), merging parent
// fields under child overrides, and reports a circular-dependency error
// instead of looping forever.
func ResolveModel(cfg *File, modelName string) (ModelConfig, error) {
	if cfg == nil || len(cfg.Models) == 0 || modelName == "" {
		return ModelConfig{}, nil
	}
	return resolveModelRec(cfg, modelName, map[string]bool{})
}

func resolveModelRec(cfg *File, modelName string, visited map[string]bool) (ModelConfig, error) {
	if modelName == "" {
		return ModelConfig{}, nil
	}
	if visited[modelName] {
		return ModelConfig{}, fmt.Errorf("config: circular extend chain at model %q", modelName)
	}
	visited[modelName] = true

	mc, ok := cfg.Models[modelName]
	if !ok {
		return ModelConfig{}, nil
	}
	if mc.Extend == nil {
		return mc, nil
	}

	parent, err := resolveModelRec(cfg, *mc.Extend, visited)
	if err != nil {
		return ModelConfig{}, err
	}

	merged := parent
	if mc.Model != nil {
		merged.Model = mc.Model
	}
	if mc.APIBase != nil {
		merged.APIBase = mc.APIBase
	}
	if mc.APIKey != nil {
		merged.APIKey = mc.APIKey
	}
	if mc.Temperature != nil {
		merged.Temperature = mc.Temperature
	}
	if mc.Seed != nil {
		merged.Seed = mc.Seed
	}
	if mc.MaxTokens != nil {
		merged.MaxTokens = mc.MaxTokens
	}
	merged.ExtraBody = mergeMaps(merged.ExtraBody, mc.ExtraBody)
	merged.Extend = mc.Extend

	return merged, nil
}

func mergeMaps(base, override map[string]interface{}) map[string]interface{} {
	if base == nil {
		base = make(map[string]interface{})
	}
	if override == nil {
		return base
	}
	result := make(map[string]interface{}, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if baseVal, ok := result[k]; ok {
			baseMap, baseOK := baseVal.(map[string]interface{})
			overrideMap, overrideOK := v.(map[string]interface{})
			if baseOK && overrideOK {
				result[k] = mergeMaps(baseMap, overrideMap)
				continue
			}
		}
		result[k] = v
	}
	return result
}

// JudgeMinRiskLevel parses the configured minimum risk level at which
// the judge is consulted, defaulting to risk.Write when unset or
// unparseable.
func JudgeMinRiskLevel(cfg *File) risk.Level {
	if cfg == nil || cfg.Judge == nil || cfg.Judge.MinRiskLevel == nil {
		return risk.Write
	}
	lvl, ok := parseLevel(*cfg.Judge.MinRiskLevel)
	if !ok {
		return risk.Write
	}
	return lvl
}

// AutoApproveBelow parses the risk level below which commands run
// without interactive approval, defaulting to risk.BuildTest (i.e. only
// read-only commands auto-approve) when unset or unparseable.
func AutoApproveBelow(cfg *File) risk.Level {
	if cfg == nil || cfg.Approval == nil || cfg.Approval.AutoApproveBelow == nil {
		return risk.BuildTest
	}
	lvl, ok := parseLevel(*cfg.Approval.AutoApproveBelow)
	if !ok {
		return risk.BuildTest
	}
	return lvl
}

func parseLevel(s string) (risk.Level, bool) {
	for l := risk.ReadOnly; l <= risk.Denied; l++ {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}
