// Package domain contains the core entities of the region orchestrator.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Region Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoAllocation      = errors.New("region has no network allocation")
)

// =============================================================================
// Region Status
// =============================================================================

// RegionStatus is the lifecycle state of a region.
type RegionStatus string

const (
	StatusProvisioning RegionStatus = "provisioning"
	StatusActive       RegionStatus = "active"
	StatusSuspended    RegionStatus = "suspended"
	StatusTerminated   RegionStatus = "terminated"
	StatusFailed       RegionStatus = "failed"
)

// =============================================================================
// Network Allocation
// =============================================================================

// NetworkAllocation is the scarce-resource record held by a region: a private
// /24 subnet and an external port, both derived from the region name and
// verified unique against the shared ledger.
type NetworkAllocation struct {
	RegionName   string `json:"region_name"`
	Subnet       string `json:"subnet"`        // e.g. "172.22.57.0/24"
	Gateway      string `json:"gateway"`       // e.g. "172.22.57.1"
	ExternalPort int    `json:"external_port"` // e.g. 8412
}

// =============================================================================
// Region
// =============================================================================

// Region wraps a RegionConfig with its network allocation and lifecycle state.
type Region struct {
	ID           string             `json:"id"`
	Config       RegionConfig       `json:"config"`
	Status       RegionStatus       `json:"status"`
	Allocation   *NetworkAllocation `json:"allocation,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
	ActivatedAt  *time.Time         `json:"activated_at,omitempty"`
	TerminatedAt *time.Time         `json:"terminated_at,omitempty"`
}

// NewRegion creates a region in provisioning state from a validated config.
func NewRegion(cfg RegionConfig) *Region {
	now := time.Now().UTC()
	return &Region{
		ID:        uuid.New().String(),
		Config:    cfg,
		Status:    StatusProvisioning,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition attempts to move the region to a new status.
func (r *Region) Transition(to RegionStatus) error {
	if err := ValidateTransition(r.Status, to); err != nil {
		return err
	}

	r.Status = to
	r.UpdatedAt = time.Now().UTC()

	switch to {
	case StatusProvisioning:
		r.ErrorMessage = ""
	case StatusActive:
		now := time.Now().UTC()
		r.ActivatedAt = &now
		r.ErrorMessage = ""
	case StatusTerminated:
		now := time.Now().UTC()
		r.TerminatedAt = &now
	}

	return nil
}

// TransitionToFailed parks the region in failed state with an error message.
// Only provisioning regions can fail; a failed region holds no allocation.
func (r *Region) TransitionToFailed(errorMessage string) error {
	if r.Status != StatusProvisioning {
		return ErrInvalidTransition
	}
	r.Status = StatusFailed
	r.ErrorMessage = errorMessage
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// HoldsAllocation reports whether the region's status entitles it to a ledger
// entry. Suspended regions keep theirs so they can resume without renumbering.
func (r *Region) HoldsAllocation() bool {
	return r.Status == StatusActive || r.Status == StatusSuspended
}

// =============================================================================
// State Machine
// =============================================================================

// validTransitions defines the allowed state transitions. A failed region may
// re-enter provisioning: apply failures are retryable and the owner resubmits
// under the same name.
var validTransitions = map[RegionStatus][]RegionStatus{
	StatusProvisioning: {StatusActive, StatusFailed},
	StatusActive:       {StatusSuspended, StatusTerminated},
	StatusSuspended:    {StatusActive, StatusTerminated},
	StatusFailed:       {StatusProvisioning, StatusTerminated},
	StatusTerminated:   {}, // Terminal state
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to RegionStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}
