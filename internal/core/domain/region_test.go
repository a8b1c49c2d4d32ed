package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() RegionConfig {
	return RegionConfig{
		Name:            "frontier-7",
		OwnerID:         "owner-1",
		Governance:      GovernanceAutocracy,
		Specialization:  SpecializationBalanced,
		StartingCredits: 1000,
		StartingShip:    "scout",
		MaxPlayers:      500,
		CPUCores:        4,
		MemoryGB:        8,
		DiskGB:          20,
	}
}

// =============================================================================
// NewRegion Tests
// =============================================================================

func TestNewRegion_StartsProvisioning(t *testing.T) {
	r := NewRegion(testConfig())

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, StatusProvisioning, r.Status)
	assert.Nil(t, r.Allocation)
	assert.Nil(t, r.ActivatedAt)
	assert.False(t, r.CreatedAt.IsZero())
}

// =============================================================================
// Transition Tests
// =============================================================================

func TestTransition_ProvisioningToActive(t *testing.T) {
	r := NewRegion(testConfig())

	err := r.Transition(StatusActive)

	require.NoError(t, err)
	assert.Equal(t, StatusActive, r.Status)
	assert.NotNil(t, r.ActivatedAt)
}

func TestTransition_ActiveSuspendResume(t *testing.T) {
	r := NewRegion(testConfig())
	require.NoError(t, r.Transition(StatusActive))

	require.NoError(t, r.Transition(StatusSuspended))
	assert.Equal(t, StatusSuspended, r.Status)

	require.NoError(t, r.Transition(StatusActive))
	assert.Equal(t, StatusActive, r.Status)
}

func TestTransition_TerminatedIsTerminal(t *testing.T) {
	r := NewRegion(testConfig())
	require.NoError(t, r.Transition(StatusActive))
	require.NoError(t, r.Transition(StatusTerminated))
	assert.NotNil(t, r.TerminatedAt)

	assert.ErrorIs(t, r.Transition(StatusActive), ErrInvalidTransition)
	assert.ErrorIs(t, r.Transition(StatusProvisioning), ErrInvalidTransition)
}

func TestTransition_ActiveClearsError(t *testing.T) {
	r := NewRegion(testConfig())
	r.ErrorMessage = "previous attempt failed"

	require.NoError(t, r.Transition(StatusActive))
	assert.Empty(t, r.ErrorMessage)
}

func TestTransitionToFailed_OnlyFromProvisioning(t *testing.T) {
	r := NewRegion(testConfig())

	require.NoError(t, r.TransitionToFailed("allocation exhausted"))
	assert.Equal(t, StatusFailed, r.Status)
	assert.Equal(t, "allocation exhausted", r.ErrorMessage)

	assert.ErrorIs(t, r.TransitionToFailed("again"), ErrInvalidTransition)
	require.NoError(t, r.Transition(StatusTerminated))
}

func TestTransition_FailedBackToProvisioning(t *testing.T) {
	r := NewRegion(testConfig())
	require.NoError(t, r.TransitionToFailed("engine unavailable"))

	// A resubmitted provision re-enters the lifecycle on the same region.
	require.NoError(t, r.Transition(StatusProvisioning))
	assert.Equal(t, StatusProvisioning, r.Status)
	assert.Empty(t, r.ErrorMessage)

	require.NoError(t, r.Transition(StatusActive))
	assert.Equal(t, StatusActive, r.Status)
}

func TestValidateTransition_TableDriven(t *testing.T) {
	tests := []struct {
		name    string
		from    RegionStatus
		to      RegionStatus
		wantErr bool
	}{
		{"provisioning-to-active", StatusProvisioning, StatusActive, false},
		{"provisioning-to-failed", StatusProvisioning, StatusFailed, false},
		{"provisioning-to-suspended", StatusProvisioning, StatusSuspended, true},
		{"active-to-suspended", StatusActive, StatusSuspended, false},
		{"active-to-terminated", StatusActive, StatusTerminated, false},
		{"active-to-failed", StatusActive, StatusFailed, true},
		{"suspended-to-active", StatusSuspended, StatusActive, false},
		{"suspended-to-terminated", StatusSuspended, StatusTerminated, false},
		{"failed-to-terminated", StatusFailed, StatusTerminated, false},
		{"failed-to-provisioning", StatusFailed, StatusProvisioning, false},
		{"failed-to-active", StatusFailed, StatusActive, true},
		{"terminated-to-anything", StatusTerminated, StatusActive, true},
		{"unknown-from", RegionStatus("bogus"), StatusActive, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// =============================================================================
// HoldsAllocation Tests
// =============================================================================

func TestHoldsAllocation(t *testing.T) {
	tests := []struct {
		status RegionStatus
		want   bool
	}{
		{StatusProvisioning, false},
		{StatusActive, true},
		{StatusSuspended, true},
		{StatusFailed, false},
		{StatusTerminated, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			r := &Region{Status: tt.status}
			assert.Equal(t, tt.want, r.HoldsAllocation())
		})
	}
}

// =============================================================================
// Enum Tests
// =============================================================================

func TestGovernanceType_Valid(t *testing.T) {
	for _, g := range GovernanceTypes() {
		assert.True(t, g.Valid(), string(g))
	}
	assert.False(t, GovernanceType("monarchy").Valid())
	assert.False(t, GovernanceType("").Valid())
}

func TestSpecialization_Valid(t *testing.T) {
	for _, s := range Specializations() {
		assert.True(t, s.Valid(), string(s))
	}
	assert.False(t, Specialization("piracy").Valid())
	assert.False(t, Specialization("").Valid())
}
