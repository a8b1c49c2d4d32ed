package resources

import (
	"testing"

	"github.com/artpar/regiond/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func config(cpu float64, memGB int) domain.RegionConfig {
	return domain.RegionConfig{
		Name:     "frontier-7",
		CPUCores: cpu,
		MemoryGB: memGB,
	}
}

// =============================================================================
// Weight Table Tests
// =============================================================================

// The worked example: 4 cores / 8 GiB.
func TestAllocate_ReferenceRegion(t *testing.T) {
	share := Allocate(config(4, 8))

	db := share.Roles[domain.RoleDatabase]
	assert.InDelta(t, 1.2, db.CPULimit, 0.001)
	assert.Equal(t, int64(8)*1024*1024*1024*30/100, db.MemoryLimit)

	app := share.Roles[domain.RoleApp]
	assert.InDelta(t, 4.0, app.CPULimit, 0.001)
	assert.InDelta(t, 2.8, app.CPUReservation, 0.001)
	assert.Equal(t, int64(8)*1024*1024*1024, app.MemoryLimit)

	worker := share.Roles[domain.RoleWorker]
	assert.InDelta(t, 1.2, worker.CPULimit, 0.001)

	cache := share.Roles[domain.RoleCache]
	assert.InDelta(t, 0.4, cache.CPULimit, 0.001) // 10% of 4, under the 0.5 cap
	assert.Zero(t, cache.CPUReservation)
	assert.Equal(t, int64(8)*1024*1024*1024*20/100, cache.MemoryLimit)

	storage := share.Roles[domain.RoleStorage]
	assert.InDelta(t, 0.25, storage.CPULimit, 0.001)
	assert.Equal(t, int64(256*1024*1024), storage.MemoryLimit)
}

func TestAllocate_CacheCPUCapped(t *testing.T) {
	share := Allocate(config(8, 16))
	assert.InDelta(t, 0.5, share.Roles[domain.RoleCache].CPULimit, 0.001)
}

func TestAllocate_AllRolesPresent(t *testing.T) {
	share := Allocate(config(1, 2))
	for _, role := range domain.ServiceRoles() {
		_, ok := share.Roles[role]
		assert.True(t, ok, "missing role %s", role)
	}
}

// =============================================================================
// Invariant Tests
// =============================================================================

// Reservation never exceeds the role's own limit, and the summed reservations
// stay within the declared budget, for every config in the policy range.
func TestAllocate_Conservation(t *testing.T) {
	cpus := []float64{1, 1.5, 2, 4, 6.5, 8}
	mems := []int{2, 3, 4, 8, 12, 16}

	for _, cpu := range cpus {
		for _, mem := range mems {
			share := Allocate(config(cpu, mem))

			var cpuRes float64
			var memRes int64
			for role, rs := range share.Roles {
				assert.LessOrEqual(t, rs.CPUReservation, rs.CPULimit,
					"cpu reservation > limit for %s at %.1f/%d", role, cpu, mem)
				assert.LessOrEqual(t, rs.MemoryReservation, rs.MemoryLimit,
					"memory reservation > limit for %s at %.1f/%d", role, cpu, mem)
				cpuRes += rs.CPUReservation
				memRes += rs.MemoryReservation
			}

			budget := int64(mem) * 1024 * 1024 * 1024
			assert.LessOrEqual(t, cpuRes, cpu, "cpu reservations exceed budget at %.1f/%d", cpu, mem)
			assert.LessOrEqual(t, memRes, budget, "memory reservations exceed budget at %.1f/%d", cpu, mem)
		}
	}
}

// Minimum-size region: fractional shares floor at 128 MiB instead of
// dropping the role.
func TestAllocate_MemoryFloor(t *testing.T) {
	share := Allocate(config(1, 2))

	cache := share.Roles[domain.RoleCache]
	require.GreaterOrEqual(t, cache.MemoryReservation, int64(MinMemoryBytes))
	for role, rs := range share.Roles {
		assert.GreaterOrEqual(t, rs.MemoryLimit, int64(MinMemoryBytes), string(role))
	}
}

// Identical inputs produce identical shares; the table is deterministic.
func TestAllocate_Deterministic(t *testing.T) {
	a := Allocate(config(4, 8))
	b := Allocate(config(4, 8))
	assert.Equal(t, a, b)
}

func TestTotalReserved(t *testing.T) {
	share := Allocate(config(4, 8))
	cpu, mem := share.TotalReserved()

	// 70% + 10% + 10% of 4 cores
	assert.InDelta(t, 3.6, cpu, 0.001)
	assert.Greater(t, mem, int64(0))
}
