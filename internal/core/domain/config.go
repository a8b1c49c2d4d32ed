package domain

// =============================================================================
// Governance and Specialization
// =============================================================================

// GovernanceType is the political model a region runs under.
type GovernanceType string

const (
	GovernanceAutocracy GovernanceType = "autocracy"
	GovernanceDemocracy GovernanceType = "democracy"
	GovernanceCouncil   GovernanceType = "council"
)

// GovernanceTypes returns all valid governance types.
func GovernanceTypes() []GovernanceType {
	return []GovernanceType{GovernanceAutocracy, GovernanceDemocracy, GovernanceCouncil}
}

// Valid reports whether g is a member of the governance enum.
func (g GovernanceType) Valid() bool {
	switch g {
	case GovernanceAutocracy, GovernanceDemocracy, GovernanceCouncil:
		return true
	}
	return false
}

// Specialization is the economic/behavioral focus of a region.
type Specialization string

const (
	SpecializationBalanced      Specialization = "balanced"
	SpecializationCommerce      Specialization = "commerce"
	SpecializationIndustrial    Specialization = "industrial"
	SpecializationAgricultural  Specialization = "agricultural"
	SpecializationTechnological Specialization = "technological"
	SpecializationMilitary      Specialization = "military"
)

// Specializations returns all valid specialization tags.
func Specializations() []Specialization {
	return []Specialization{
		SpecializationBalanced,
		SpecializationCommerce,
		SpecializationIndustrial,
		SpecializationAgricultural,
		SpecializationTechnological,
		SpecializationMilitary,
	}
}

// Valid reports whether s is a member of the specialization enum.
func (s Specialization) Valid() bool {
	switch s {
	case SpecializationBalanced, SpecializationCommerce, SpecializationIndustrial,
		SpecializationAgricultural, SpecializationTechnological, SpecializationMilitary:
		return true
	}
	return false
}

// =============================================================================
// RegionConfig
// =============================================================================

// RegionConfig is the tenant's declarative intent for a region.
// The name is immutable once a region has been created and remains reserved
// forever, including after termination, so host volume paths are never reused.
type RegionConfig struct {
	Name            string            `json:"name"`
	OwnerID         string            `json:"owner_id"`
	Governance      GovernanceType    `json:"governance"`
	Specialization  Specialization    `json:"specialization"`
	StartingCredits int64             `json:"starting_credits"`
	StartingShip    string            `json:"starting_ship"`
	MaxPlayers      int               `json:"max_players"`
	CPUCores        float64           `json:"cpu_cores"`
	MemoryGB        int               `json:"memory_gb"`
	DiskGB          int               `json:"disk_gb"`
	CustomRules     map[string]string `json:"custom_rules,omitempty"`
	LanguagePack    map[string]string `json:"language_pack,omitempty"`
	AestheticTheme  map[string]string `json:"aesthetic_theme,omitempty"`
}

// =============================================================================
// Host Policy
// =============================================================================

// HostPolicy bounds what a single region may request from the host fleet.
type HostPolicy struct {
	MinCPUCores float64
	MaxCPUCores float64
	MinMemoryGB int
	MaxMemoryGB int
	MinDiskGB   int
	MaxDiskGB   int
	MinPlayers  int
	MaxPlayers  int
	MinCredits  int64
}

// DefaultHostPolicy returns the default per-region bounds.
func DefaultHostPolicy() HostPolicy {
	return HostPolicy{
		MinCPUCores: 1.0,
		MaxCPUCores: 8.0,
		MinMemoryGB: 2,
		MaxMemoryGB: 16,
		MinDiskGB:   10,
		MaxDiskGB:   100,
		MinPlayers:  10,
		MaxPlayers:  1000,
		MinCredits:  100,
	}
}
