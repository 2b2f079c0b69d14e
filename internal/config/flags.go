package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/second-brain/internal/core/domain"
)

// LoadFlags reads feature flags from a YAML file. An empty path means no
// file is configured and the shipped defaults apply; a configured but
// unreadable file is an error, because silently falling back could enable
// a provider the operator meant to keep off.
func LoadFlags(path string) (domain.FeatureFlags, error) {
	if path == "" {
		return domain.DefaultFeatureFlags(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.FeatureFlags{}, fmt.Errorf("read feature flags %s: %w", path, err)
	}

	flags := domain.DefaultFeatureFlags()
	if err := yaml.Unmarshal(raw, &flags); err != nil {
		return domain.FeatureFlags{}, fmt.Errorf("parse feature flags %s: %w", path, err)
	}
	return flags, nil
}
