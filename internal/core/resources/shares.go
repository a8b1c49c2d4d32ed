// Package resources partitions a region's declared CPU/memory budget across
// the fixed set of service roles using a fixed weight table.
// This is part of the Functional Core - all functions are pure with no I/O.
package resources

import (
	"github.com/artpar/regiond/internal/core/domain"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MinMemoryBytes is the floor applied to any computed memory value.
	// A role is never omitted; it is floored instead.
	MinMemoryBytes = 128 * 1024 * 1024

	// cacheCPUCap bounds the cache's CPU limit regardless of region size.
	cacheCPUCap = 0.5

	// storageCPUFloor and storageMemoryFloor size the storage sidecar. It is
	// a fixed minimal footprint, not scaled with the region budget.
	storageCPUFloor    = 0.25
	storageMemoryFloor = 256 * 1024 * 1024
)

const gib = 1024 * 1024 * 1024

// =============================================================================
// Types
// =============================================================================

// RoleShare is one service role's slice of the region budget. Limits are
// burst ceilings; reservations are the guaranteed, schedulable quantity.
type RoleShare struct {
	CPULimit          float64 `json:"cpu_limit"`
	CPUReservation    float64 `json:"cpu_reservation"`
	MemoryLimit       int64   `json:"memory_limit"`       // Bytes
	MemoryReservation int64   `json:"memory_reservation"` // Bytes
}

// Share maps every service role to its computed slice.
type Share struct {
	Roles map[domain.ServiceRole]RoleShare `json:"roles"`
}

// =============================================================================
// Allocation
// =============================================================================

// Allocate partitions the config's declared budget across the service roles.
//
// Weight table:
//   - database: 30% limit, 10% reservation (cpu and memory)
//   - app:      100% limit, 70% reservation (the primary consumer, sized at
//     the full declared request)
//   - worker:   30% limit, 10% reservation
//   - cache:    20% memory limit (5% reservation); CPU capped at min(10%, 0.5)
//     with no reservation
//   - storage:  fixed floor, not scaled
//
// Allocation is pure arithmetic over already-validated bounds and has no
// failure conditions. The sum of reservations never exceeds the declared
// budget (70+10+10 = 90% cpu, 70+10+10+5 = 95% memory before floors).
func Allocate(cfg domain.RegionConfig) Share {
	cpu := cfg.CPUCores
	mem := int64(cfg.MemoryGB) * gib

	return Share{
		Roles: map[domain.ServiceRole]RoleShare{
			domain.RoleDatabase: {
				CPULimit:          round2(cpu * 0.30),
				CPUReservation:    round2(cpu * 0.10),
				MemoryLimit:       floorMemory(fraction(mem, 0.30)),
				MemoryReservation: floorMemory(fraction(mem, 0.10)),
			},
			domain.RoleApp: {
				CPULimit:          cpu,
				CPUReservation:    round2(cpu * 0.70),
				MemoryLimit:       floorMemory(mem),
				MemoryReservation: floorMemory(fraction(mem, 0.70)),
			},
			domain.RoleWorker: {
				CPULimit:          round2(cpu * 0.30),
				CPUReservation:    round2(cpu * 0.10),
				MemoryLimit:       floorMemory(fraction(mem, 0.30)),
				MemoryReservation: floorMemory(fraction(mem, 0.10)),
			},
			domain.RoleCache: {
				CPULimit:          round2(min(cpu*0.10, cacheCPUCap)),
				CPUReservation:    0,
				MemoryLimit:       floorMemory(fraction(mem, 0.20)),
				MemoryReservation: floorMemory(fraction(mem, 0.05)),
			},
			domain.RoleStorage: {
				CPULimit:          storageCPUFloor,
				CPUReservation:    0,
				MemoryLimit:       storageMemoryFloor,
				MemoryReservation: 0,
			},
		},
	}
}

// TotalReserved returns the summed CPU and memory reservations across roles.
// Used by platform accounting, which counts active regions only.
func (s Share) TotalReserved() (cpu float64, memory int64) {
	for _, rs := range s.Roles {
		cpu += rs.CPUReservation
		memory += rs.MemoryReservation
	}
	return round2(cpu), memory
}

// =============================================================================
// Helpers
// =============================================================================

func fraction(bytes int64, f float64) int64 {
	return int64(float64(bytes) * f)
}

// floorMemory raises any computed memory value below the floor to the floor.
// A role whose share would round to zero gets the floor, not omission.
func floorMemory(bytes int64) int64 {
	if bytes < MinMemoryBytes {
		return MinMemoryBytes
	}
	return bytes
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
