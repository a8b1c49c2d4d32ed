// Package runtime applies deployment manifests to a container engine. It is
// the only package that talks to Docker; everything above it works with
// manifests and region state.
package runtime

import (
	"context"

	"github.com/artpar/regiond/internal/core/manifest"
)

// =============================================================================
// Runtime Interface
// =============================================================================

// Runtime converges the container engine to a manifest and tears it down
// again. Implementations must be safe for concurrent use by the controller.
type Runtime interface {
	// Apply creates the region's network, volumes, and containers, and starts
	// the containers in manifest order. Apply cleans up after itself: on
	// failure no partial region is left behind.
	Apply(ctx context.Context, m *manifest.DeploymentManifest) error

	// Teardown stops and removes the region's containers and private network.
	// Volumes and their host directories are left in place. Idempotent:
	// tearing down a region that does not exist is not an error.
	Teardown(ctx context.Context, regionName string) error

	// Suspend stops the region's containers without removing anything.
	Suspend(ctx context.Context, regionName string) error

	// Resume restarts the stopped containers of a suspended region.
	Resume(ctx context.Context, regionName string) error

	// Ping checks the engine is reachable.
	Ping(ctx context.Context) error

	// Close releases the engine connection.
	Close() error
}
