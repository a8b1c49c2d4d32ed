// Package validate normalizes and validates incoming region specifications.
// This is part of the Functional Core - all functions are pure with no I/O.
// The historical name registry is passed in as a snapshot; the validator
// itself reads no external state.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/artpar/regiond/internal/core/domain"
)

// =============================================================================
// Errors
// =============================================================================

// ErrInvalidConfig is the sentinel all validation failures wrap.
var ErrInvalidConfig = errors.New("invalid region config")

// InvalidConfigError carries every violated constraint, not just the first.
type InvalidConfigError struct {
	Violations []string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid region config: %s", strings.Join(e.Violations, "; "))
}

func (e *InvalidConfigError) Unwrap() error {
	return ErrInvalidConfig
}

// =============================================================================
// Constraints
// =============================================================================

const (
	minNameLength = 3
	maxNameLength = 50
)

// reservedNames are slugs that can never be claimed by a tenant region.
var reservedNames = map[string]bool{
	"central-nexus": true,
	"admin":         true,
	"api":           true,
	"system":        true,
	"default":       true,
	"test":          true,
	"staging":       true,
	"production":    true,
}

// customRuleKeyPattern is the allow-list for custom-rule keys. Rule values are
// injected into rendered environment variables, so keys are restricted to
// upper-snake identifiers.
var customRuleKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// =============================================================================
// Validation
// =============================================================================

// Normalize applies defaults and canonical forms to a raw config without
// validating it. The returned config is what Validate should be given.
func Normalize(cfg domain.RegionConfig) domain.RegionConfig {
	cfg.Name = domain.Slugify(strings.TrimSpace(cfg.Name))
	if cfg.Governance == "" {
		cfg.Governance = domain.GovernanceAutocracy
	}
	if cfg.Specialization == "" {
		cfg.Specialization = domain.SpecializationBalanced
	}
	if cfg.StartingShip == "" {
		cfg.StartingShip = "scout"
	}
	return cfg
}

// Validate checks a normalized config against host policy and the historical
// name registry. It returns nil, or an *InvalidConfigError listing every
// violated constraint.
//
// knownNames must contain every region name ever created, including
// terminated ones: names are permanently reserved to avoid host volume-path
// reuse between tenants.
func Validate(cfg domain.RegionConfig, policy domain.HostPolicy, knownNames []string) error {
	var violations []string

	switch {
	case cfg.Name == "":
		violations = append(violations, "name is required")
	case len(cfg.Name) < minNameLength || len(cfg.Name) > maxNameLength:
		violations = append(violations, fmt.Sprintf("name must be %d-%d characters, got %d", minNameLength, maxNameLength, len(cfg.Name)))
	case !domain.ValidSlug(cfg.Name):
		violations = append(violations, fmt.Sprintf("name %q is not a valid slug", cfg.Name))
	case reservedNames[cfg.Name]:
		violations = append(violations, fmt.Sprintf("name %q is reserved", cfg.Name))
	default:
		for _, known := range knownNames {
			if known == cfg.Name {
				violations = append(violations, fmt.Sprintf("name %q is already taken", cfg.Name))
				break
			}
		}
	}

	if cfg.OwnerID == "" {
		violations = append(violations, "owner_id is required")
	}

	if !cfg.Governance.Valid() {
		violations = append(violations, fmt.Sprintf("governance %q is not one of %v", cfg.Governance, domain.GovernanceTypes()))
	}
	if !cfg.Specialization.Valid() {
		violations = append(violations, fmt.Sprintf("specialization %q is not one of %v", cfg.Specialization, domain.Specializations()))
	}

	if cfg.CPUCores < policy.MinCPUCores || cfg.CPUCores > policy.MaxCPUCores {
		violations = append(violations, fmt.Sprintf("cpu_cores %.1f outside allowed range %.1f-%.1f", cfg.CPUCores, policy.MinCPUCores, policy.MaxCPUCores))
	}
	if cfg.MemoryGB < policy.MinMemoryGB || cfg.MemoryGB > policy.MaxMemoryGB {
		violations = append(violations, fmt.Sprintf("memory_gb %d outside allowed range %d-%d", cfg.MemoryGB, policy.MinMemoryGB, policy.MaxMemoryGB))
	}
	if cfg.DiskGB < policy.MinDiskGB || cfg.DiskGB > policy.MaxDiskGB {
		violations = append(violations, fmt.Sprintf("disk_gb %d outside allowed range %d-%d", cfg.DiskGB, policy.MinDiskGB, policy.MaxDiskGB))
	}
	if cfg.MaxPlayers <= 0 {
		violations = append(violations, "max_players must be greater than zero")
	} else if cfg.MaxPlayers < policy.MinPlayers || cfg.MaxPlayers > policy.MaxPlayers {
		violations = append(violations, fmt.Sprintf("max_players %d outside allowed range %d-%d", cfg.MaxPlayers, policy.MinPlayers, policy.MaxPlayers))
	}
	if cfg.StartingCredits < policy.MinCredits {
		violations = append(violations, fmt.Sprintf("starting_credits %d below minimum %d", cfg.StartingCredits, policy.MinCredits))
	}

	for key := range cfg.CustomRules {
		if !customRuleKeyPattern.MatchString(key) {
			violations = append(violations, fmt.Sprintf("custom rule key %q must match %s", key, customRuleKeyPattern.String()))
		}
	}
	violations = append(violations, validateStringMap("language_pack", cfg.LanguagePack)...)
	violations = append(violations, validateStringMap("aesthetic_theme", cfg.AestheticTheme)...)

	if len(violations) == 0 {
		return nil
	}
	return &InvalidConfigError{Violations: violations}
}

// validateStringMap rejects empty keys and empty leaf values in the optional
// key/value maps.
func validateStringMap(field string, m map[string]string) []string {
	var violations []string
	for k, v := range m {
		if strings.TrimSpace(k) == "" {
			violations = append(violations, fmt.Sprintf("%s contains an empty key", field))
		}
		if strings.TrimSpace(v) == "" {
			violations = append(violations, fmt.Sprintf("%s value for %q must be a non-empty string", field, k))
		}
	}
	return violations
}
