// Package netalloc derives collision-free private subnets and external ports
// for regions. This is part of the Functional Core - all functions are pure
// with no I/O: candidates are derived by hashing the region name, and probing
// runs against a snapshot of held subnets and ports supplied by the caller.
// The shell ledger owns atomicity; this package owns the arithmetic.
package netalloc

import (
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/artpar/regiond/internal/core/domain"
)

// =============================================================================
// Errors
// =============================================================================

// ErrAllocationExhausted is returned when the probe budget is spent without
// finding a free subnet and port. Retrying with the same name hashes into the
// same neighborhood, so this is a capacity problem for an operator, not a
// transient error.
var ErrAllocationExhausted = errors.New("allocation exhausted: probe budget spent without finding free subnet/port")

// =============================================================================
// Policy
// =============================================================================

// Policy sets the subnet and port ranges candidates are derived into, and the
// probe budget. Choose ranges large enough that collision probability stays
// low for the expected fleet size.
type Policy struct {
	// SubnetBase is the /16 the per-region /24 blocks are carved from.
	// The third octet is the derived value. Default "172.22".
	SubnetBase string

	// OctetMin and OctetMax bound the derived third octet, inclusive.
	OctetMin int
	OctetMax int

	// PortBase is added to the derived port offset. Default 8100.
	PortBase int

	// PortRange is the number of distinct port offsets. Default 900,
	// i.e. ports 8100-8999.
	PortRange int

	// MaxProbes bounds the linear probe loop. Default 64.
	MaxProbes int
}

// DefaultPolicy returns the default derivation policy.
func DefaultPolicy() Policy {
	return Policy{
		SubnetBase: "172.22",
		OctetMin:   1,
		OctetMax:   250,
		PortBase:   8100,
		PortRange:  900,
		MaxProbes:  64,
	}
}

// Subnets returns the number of distinct subnets the policy can produce.
func (p Policy) Subnets() int {
	return p.OctetMax - p.OctetMin + 1
}

// =============================================================================
// Snapshot
// =============================================================================

// Held is a snapshot of allocations currently claimed by active or suspended
// regions. The ledger builds it under its lock before probing.
type Held struct {
	Subnets map[string]bool // subnet CIDR → held
	Ports   map[int]bool    // external port → held
}

// NewHeld builds a snapshot from existing allocations.
func NewHeld(allocs []domain.NetworkAllocation) Held {
	h := Held{
		Subnets: make(map[string]bool, len(allocs)),
		Ports:   make(map[int]bool, len(allocs)),
	}
	for _, a := range allocs {
		h.Subnets[a.Subnet] = true
		h.Ports[a.ExternalPort] = true
	}
	return h
}

// =============================================================================
// Derivation
// =============================================================================

// Candidate returns the deterministic subnet and port candidate for a region
// name at probe attempt k. Attempt 0 is the canonical hash of the bare name;
// later attempts salt the input with the probe counter, which gives operators
// a reproducible, debuggable mapping from name to network location.
func Candidate(name string, k int, policy Policy) (subnet, gateway string, port int) {
	input := name
	if k > 0 {
		input = fmt.Sprintf("%s:%d", name, k)
	}

	h := fnv.New64a()
	h.Write([]byte(input))
	sum := h.Sum64()

	octet := policy.OctetMin + int(sum%uint64(policy.Subnets()))
	offset := int((sum / uint64(policy.Subnets())) % uint64(policy.PortRange))

	subnet = fmt.Sprintf("%s.%d.0/24", policy.SubnetBase, octet)
	gateway = fmt.Sprintf("%s.%d.1", policy.SubnetBase, octet)
	port = policy.PortBase + offset
	return subnet, gateway, port
}

// Derive finds a free subnet/port pair for the region name by bounded linear
// probing against the held snapshot. Both values must be free on the same
// attempt; a collision on either perturbs the candidate and retries.
//
// Derive is pure: it never mutates held. The caller is responsible for
// claiming the result atomically with respect to concurrent allocations.
func Derive(name string, held Held, policy Policy) (domain.NetworkAllocation, error) {
	for k := 0; k < policy.MaxProbes; k++ {
		subnet, gateway, port := Candidate(name, k, policy)
		if held.Subnets[subnet] || held.Ports[port] {
			continue
		}
		return domain.NetworkAllocation{
			RegionName:   name,
			Subnet:       subnet,
			Gateway:      gateway,
			ExternalPort: port,
		}, nil
	}
	return domain.NetworkAllocation{}, fmt.Errorf("%w: region %s after %d probes", ErrAllocationExhausted, name, policy.MaxProbes)
}
