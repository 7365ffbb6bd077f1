package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/notary/pkg/aggregator"
)

// NamespaceProfile is one namespace's batching and admission policy,
// loaded from a namespace_<name>.yaml file at startup.
type NamespaceProfile struct {
	Namespace           string `yaml:"namespace" json:"namespace"`
	MaxReceiptsPerBatch int    `yaml:"max_receipts_per_batch" json:"max_receipts_per_batch"`
	MaxBatchWindowMs    int    `yaml:"max_batch_window_ms" json:"max_batch_window_ms"`
	SealRetryBackoffMs  int    `yaml:"seal_retry_backoff_ms" json:"seal_retry_backoff_ms"`
	EmissionBuffer      int    `yaml:"emission_buffer" json:"emission_buffer"`

	AdmissionPolicy AdmissionPolicyConfig `yaml:"admission_policy" json:"admission_policy"`
}

// AdmissionPolicyConfig selects optional admission policy plugins.
// Both may be set; they run as a chain, first denial wins.
type AdmissionPolicyConfig struct {
	// CEL is an expression over the `receipt` activation, e.g.
	// `receipt.operation != "" && receipt.cpu_time_millis < 60000`.
	CEL string `yaml:"cel,omitempty" json:"cel,omitempty"`

	// WASMModule is a path to a policy module; WASMName, WASMVersion
	// and WASMEngine fill its manifest.
	WASMModule  string `yaml:"wasm_module,omitempty" json:"wasm_module,omitempty"`
	WASMName    string `yaml:"wasm_name,omitempty" json:"wasm_name,omitempty"`
	WASMVersion string `yaml:"wasm_version,omitempty" json:"wasm_version,omitempty"`
	WASMEngine  string `yaml:"wasm_engine,omitempty" json:"wasm_engine,omitempty"`
}

// AggregatorConfig converts the profile into the supervisor's config,
// applying aggregator defaults for unset tuning fields.
func (p *NamespaceProfile) AggregatorConfig() aggregator.Config {
	return aggregator.Config{
		Namespace:           p.Namespace,
		MaxReceiptsPerBatch: p.MaxReceiptsPerBatch,
		MaxBatchWindow:      time.Duration(p.MaxBatchWindowMs) * time.Millisecond,
		SealRetryBackoff:    time.Duration(p.SealRetryBackoffMs) * time.Millisecond,
		EmissionBuffer:      p.EmissionBuffer,
	}
}

// LoadProfile loads one namespace profile by name. It reads
// namespace_<name>.yaml from the profiles directory.
func LoadProfile(profilesDir, name string) (*NamespaceProfile, error) {
	path := filepath.Join(profilesDir, fmt.Sprintf("namespace_%s.yaml", name))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	var profile NamespaceProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}

	if profile.Namespace == "" {
		profile.Namespace = name
	}
	return &profile, nil
}

// LoadAllProfiles loads every namespace_*.yaml file from the profiles
// directory, keyed by namespace.
func LoadAllProfiles(profilesDir string) (map[string]*NamespaceProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "namespace_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*NamespaceProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile NamespaceProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		if profile.Namespace == "" {
			// Extract from filename: namespace_app1.yaml -> app1
			base := filepath.Base(path)
			profile.Namespace = strings.TrimSuffix(strings.TrimPrefix(base, "namespace_"), ".yaml")
		}

		if _, dup := profiles[profile.Namespace]; dup {
			return nil, fmt.Errorf("profile namespace %q defined twice", profile.Namespace)
		}
		profiles[profile.Namespace] = &profile
	}

	return profiles, nil
}
