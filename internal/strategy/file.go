package strategy

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"optlab/internal/domain"
)

// fileSpec is the on-disk strategy format: either a full StrategyConfig, or
// a preset name plus params.
type fileSpec struct {
	domain.StrategyConfig `yaml:",inline"`

	Preset string `yaml:"preset,omitempty"`
	Params Params `yaml:"params,omitempty"`
}

// LoadStrategyFile reads a strategy from a YAML file and validates it. Files
// naming a preset are resolved through reg.
func LoadStrategyFile(path string, reg *Registry) (domain.StrategyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.StrategyConfig{}, fmt.Errorf("reading strategy file: %w", err)
	}
	cfg, err := ParseStrategy(data, reg)
	if err != nil {
		return domain.StrategyConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ParseStrategy decodes a YAML strategy document. Unknown keys are rejected.
func ParseStrategy(data []byte, reg *Registry) (domain.StrategyConfig, error) {
	var spec fileSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return domain.StrategyConfig{}, fmt.Errorf("parsing strategy: %w", err)
	}

	cfg := spec.StrategyConfig
	if spec.Preset != "" {
		if reg == nil {
			return domain.StrategyConfig{}, fmt.Errorf("preset %q: no registry", spec.Preset)
		}
		p, ok := reg.Get(spec.Preset)
		if !ok {
			return domain.StrategyConfig{}, fmt.Errorf("%w: unknown preset %q", domain.ErrInvalidConfig, spec.Preset)
		}
		cfg = p.Config(spec.Params)
	}

	if err := cfg.Validate(); err != nil {
		return domain.StrategyConfig{}, err
	}
	return cfg, nil
}
