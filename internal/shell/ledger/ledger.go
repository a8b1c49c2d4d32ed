// Package ledger is the single source of truth for which subnets and external
// ports are claimed. It serializes allocation with a mutex: derivation runs
// against a snapshot taken under the lock, the claim is recorded in memory and
// persisted before the lock is released, so two concurrent provisions can
// never walk away with the same subnet or port.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/artpar/regiond/internal/core/domain"
	"github.com/artpar/regiond/internal/core/netalloc"
	"github.com/artpar/regiond/internal/shell/store"
)

// =============================================================================
// Ledger
// =============================================================================

// Ledger guards the network allocation space.
type Ledger struct {
	mu     sync.Mutex
	held   map[string]domain.NetworkAllocation // region name → allocation
	policy netalloc.Policy
	store  store.Store
}

// New creates a ledger backed by the given store, loading allocations
// persisted by a previous run.
func New(ctx context.Context, st store.Store, policy netalloc.Policy) (*Ledger, error) {
	allocs, err := st.ListAllocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load allocations: %w", err)
	}

	held := make(map[string]domain.NetworkAllocation, len(allocs))
	for _, a := range allocs {
		held[a.RegionName] = a
	}

	return &Ledger{
		held:   held,
		policy: policy,
		store:  st,
	}, nil
}

// Reserve derives and claims a subnet/port pair for the region name. The
// derivation, the in-memory claim, and the database write all happen under
// the lock.
func (l *Ledger) Reserve(ctx context.Context, regionName string) (*domain.NetworkAllocation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.held[regionName]; ok {
		// Idempotent: a region that already holds an allocation keeps it.
		alloc := existing
		return &alloc, nil
	}

	alloc, err := netalloc.Derive(regionName, l.snapshot(), l.policy)
	if err != nil {
		return nil, err
	}

	if err := l.store.SaveAllocation(ctx, &alloc); err != nil {
		return nil, fmt.Errorf("ledger: persist allocation for %s: %w", regionName, err)
	}

	l.held[regionName] = alloc
	return &alloc, nil
}

// Release returns a region's subnet and port to the pool. Releasing a region
// that holds nothing is a no-op, so terminate stays idempotent.
func (l *Ledger) Release(ctx context.Context, regionName string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[regionName]; !ok {
		return nil
	}

	if err := l.store.DeleteAllocation(ctx, regionName); err != nil {
		return fmt.Errorf("ledger: delete allocation for %s: %w", regionName, err)
	}

	delete(l.held, regionName)
	return nil
}

// Lookup returns the allocation held by a region, if any.
func (l *Ledger) Lookup(regionName string) (*domain.NetworkAllocation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	alloc, ok := l.held[regionName]
	if !ok {
		return nil, false
	}
	return &alloc, true
}

// Held returns the number of allocations currently claimed.
func (l *Ledger) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}

// Policy returns the derivation policy the ledger allocates against.
func (l *Ledger) Policy() netalloc.Policy {
	return l.policy
}

// snapshot builds the probe snapshot. Callers must hold the lock.
func (l *Ledger) snapshot() netalloc.Held {
	allocs := make([]domain.NetworkAllocation, 0, len(l.held))
	for _, a := range l.held {
		allocs = append(allocs, a)
	}
	return netalloc.NewHeld(allocs)
}
