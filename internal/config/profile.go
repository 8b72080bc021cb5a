package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// NodeProfile is a named, file-defined bundle of per-node policy
// defaults: the compute ceiling any submitted code runs under absent
// an explicit override, which built-in policy types this node accepts
// at submission time, and its outbound networking posture toward
// external collaborators (the dataset store, the nested-job broker).
//
// Profiles are named YAML files loaded by code and looked up by
// directory glob. This package only parses them and answers
// IsIslandMode/IsAllowed; no other package reads a profile, so none of
// these settings is applied to executions, submissions or dispatch.
type NodeProfile struct {
	Name               string            `yaml:"name" json:"name"`
	Code               string            `yaml:"code" json:"code"`
	ComputeBudget      ComputeBudgetSpec  `yaml:"compute_budget" json:"compute_budget"`
	AllowedPolicyTypes []string          `yaml:"allowed_policy_types,omitempty" json:"allowed_policy_types,omitempty"`
	Networking         NetworkingConfig  `yaml:"networking" json:"networking"`
	Retention          RetentionConfig   `yaml:"retention" json:"retention"`
}

// ComputeBudgetSpec describes a per-node compute ceiling in the shape
// of the Sandbox Runtime's ComputeBudget; it is parsed only and not
// passed to the runtime.
type ComputeBudgetSpec struct {
	GasLimitSteps  uint64 `yaml:"gas_limit_steps" json:"gas_limit_steps"`
	TimeLimitMs    int64  `yaml:"time_limit_ms" json:"time_limit_ms"`
	MemoryLimitMB  int64  `yaml:"memory_limit_mb,omitempty" json:"memory_limit_mb,omitempty"`
}

// NetworkingConfig controls whether this node's dispatcher may reach
// an external collaborator at all.
type NetworkingConfig struct {
	OutboundMode string   `yaml:"outbound_mode" json:"outbound_mode"` // "allowlist" | "denylist" | "island"
	Allowlist    []string `yaml:"allowlist,omitempty" json:"allowlist,omitempty"`
	Denylist     []string `yaml:"denylist,omitempty" json:"denylist,omitempty"`
}

// RetentionConfig bounds how long this node keeps execution logs and
// approval history before they are eligible for pruning.
type RetentionConfig struct {
	LogRetentionDays  int `yaml:"log_retention_days" json:"log_retention_days"`
	JobRetentionDays  int `yaml:"job_retention_days" json:"job_retention_days"`
}

// IsIslandMode reports whether this profile blocks all outbound
// networking (IsAllowed then refuses every host).
func (p *NodeProfile) IsIslandMode() bool {
	return p.Networking.OutboundMode == "island"
}

// IsAllowed reports whether host may be reached under this profile's
// networking policy.
func (p *NodeProfile) IsAllowed(host string) bool {
	if p.IsIslandMode() {
		return false
	}
	switch p.Networking.OutboundMode {
	case "allowlist":
		for _, h := range p.Networking.Allowlist {
			if h == host {
				return true
			}
		}
		return false
	case "denylist":
		for _, h := range p.Networking.Denylist {
			if h == host {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// LoadProfile loads a node profile YAML by code, searching
// profilesDir for profile_<code>.yaml.
func LoadProfile(profilesDir, code string) (*NodeProfile, error) {
	code = strings.ToLower(code)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", code))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load node profile %q: %w", code, err)
	}

	var profile NodeProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse node profile %q: %w", code, err)
	}
	if profile.Code == "" {
		profile.Code = code
	}
	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml file in profilesDir.
func LoadAllProfiles(profilesDir string) (map[string]*NodeProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*NodeProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var profile NodeProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if profile.Code == "" {
			base := filepath.Base(path)
			profile.Code = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profiles[profile.Code] = &profile
	}
	return profiles, nil
}
