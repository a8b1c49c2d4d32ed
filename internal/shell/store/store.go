package store

import (
	"context"

	"github.com/artpar/regiond/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for regiond entities.
type Store interface {
	// Region operations
	CreateRegion(ctx context.Context, region *domain.Region) error
	GetRegion(ctx context.Context, id string) (*domain.Region, error)
	GetRegionByName(ctx context.Context, name string) (*domain.Region, error)
	UpdateRegion(ctx context.Context, region *domain.Region) error
	ListRegions(ctx context.Context, opts ListOptions) ([]domain.Region, error)
	ListRegionsByStatus(ctx context.Context, status domain.RegionStatus, opts ListOptions) ([]domain.Region, error)

	// Name registry: names stay reserved after termination so host volume
	// paths are never reused.
	ListReservedNames(ctx context.Context) ([]string, error)

	// Allocation operations. The rows mirror the in-memory ledger; they are
	// its source of truth across restarts.
	SaveAllocation(ctx context.Context, alloc *domain.NetworkAllocation) error
	DeleteAllocation(ctx context.Context, regionName string) error
	ListAllocations(ctx context.Context) ([]domain.NetworkAllocation, error)

	// Secret operations (per-region database credentials, encrypted at rest)
	SaveRegionSecret(ctx context.Context, regionName, sealed string) error
	GetRegionSecret(ctx context.Context, regionName string) (string, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
