package api

import (
	"time"

	"github.com/artpar/regiond/internal/core/domain"
)

// =============================================================================
// Request Types
// =============================================================================

// CreateRegionRequest is the request body for creating a region.
type CreateRegionRequest struct {
	Name            string            `json:"name"`
	OwnerID         string            `json:"owner_id"`
	Governance      string            `json:"governance,omitempty"`
	Specialization  string            `json:"specialization,omitempty"`
	StartingCredits int64             `json:"starting_credits"`
	StartingShip    string            `json:"starting_ship,omitempty"`
	MaxPlayers      int               `json:"max_players"`
	CPUCores        float64           `json:"cpu_cores"`
	MemoryGB        int               `json:"memory_gb"`
	DiskGB          int               `json:"disk_gb"`
	CustomRules     map[string]string `json:"custom_rules,omitempty"`
	LanguagePack    map[string]string `json:"language_pack,omitempty"`
	AestheticTheme  map[string]string `json:"aesthetic_theme,omitempty"`
}

// Config converts the request into a domain config.
func (r CreateRegionRequest) Config() domain.RegionConfig {
	return domain.RegionConfig{
		Name:            r.Name,
		OwnerID:         r.OwnerID,
		Governance:      domain.GovernanceType(r.Governance),
		Specialization:  domain.Specialization(r.Specialization),
		StartingCredits: r.StartingCredits,
		StartingShip:    r.StartingShip,
		MaxPlayers:      r.MaxPlayers,
		CPUCores:        r.CPUCores,
		MemoryGB:        r.MemoryGB,
		DiskGB:          r.DiskGB,
		CustomRules:     r.CustomRules,
		LanguagePack:    r.LanguagePack,
		AestheticTheme:  r.AestheticTheme,
	}
}

// ResizeRegionRequest is the request body for resizing a region. Zero values
// keep the current setting.
type ResizeRegionRequest struct {
	CPUCores   float64 `json:"cpu_cores,omitempty"`
	MemoryGB   int     `json:"memory_gb,omitempty"`
	DiskGB     int     `json:"disk_gb,omitempty"`
	MaxPlayers int     `json:"max_players,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// RegionResponse is the response for region operations.
type RegionResponse struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	OwnerID         string              `json:"owner_id"`
	Status          string              `json:"status"`
	Governance      string              `json:"governance"`
	Specialization  string              `json:"specialization"`
	StartingCredits int64               `json:"starting_credits"`
	StartingShip    string              `json:"starting_ship"`
	MaxPlayers      int                 `json:"max_players"`
	CPUCores        float64             `json:"cpu_cores"`
	MemoryGB        int                 `json:"memory_gb"`
	DiskGB          int                 `json:"disk_gb"`
	Allocation      *AllocationResponse `json:"allocation,omitempty"`
	ErrorMessage    string              `json:"error_message,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	ActivatedAt     *time.Time          `json:"activated_at,omitempty"`
	TerminatedAt    *time.Time          `json:"terminated_at,omitempty"`
}

// AllocationResponse describes a region's network allocation.
type AllocationResponse struct {
	Subnet       string `json:"subnet"`
	Gateway      string `json:"gateway"`
	ExternalPort int    `json:"external_port"`
}

// ListRegionsResponse wraps a page of regions.
type ListRegionsResponse struct {
	Regions []RegionResponse `json:"regions"`
	Count   int              `json:"count"`
}

// ErrorResponse is the error response format.
type ErrorResponse struct {
	Error      string   `json:"error"`
	Code       string   `json:"code"`
	Violations []string `json:"violations,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// =============================================================================
// Conversion
// =============================================================================

func regionToResponse(region *domain.Region) RegionResponse {
	resp := RegionResponse{
		ID:              region.ID,
		Name:            region.Config.Name,
		OwnerID:         region.Config.OwnerID,
		Status:          string(region.Status),
		Governance:      string(region.Config.Governance),
		Specialization:  string(region.Config.Specialization),
		StartingCredits: region.Config.StartingCredits,
		StartingShip:    region.Config.StartingShip,
		MaxPlayers:      region.Config.MaxPlayers,
		CPUCores:        region.Config.CPUCores,
		MemoryGB:        region.Config.MemoryGB,
		DiskGB:          region.Config.DiskGB,
		ErrorMessage:    region.ErrorMessage,
		CreatedAt:       region.CreatedAt,
		UpdatedAt:       region.UpdatedAt,
		ActivatedAt:     region.ActivatedAt,
		TerminatedAt:    region.TerminatedAt,
	}
	if region.Allocation != nil {
		resp.Allocation = &AllocationResponse{
			Subnet:       region.Allocation.Subnet,
			Gateway:      region.Allocation.Gateway,
			ExternalPort: region.Allocation.ExternalPort,
		}
	}
	return resp
}
