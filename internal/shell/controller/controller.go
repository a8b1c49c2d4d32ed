// Package controller drives region lifecycles: provision, resize, suspend,
// resume, terminate. It owns the ordering between the functional core (config
// validation, resource shares, manifest rendering) and the shell (ledger,
// store, container runtime).
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/artpar/regiond/internal/core/crypto"
	"github.com/artpar/regiond/internal/core/domain"
	"github.com/artpar/regiond/internal/core/manifest"
	"github.com/artpar/regiond/internal/core/resources"
	"github.com/artpar/regiond/internal/core/validate"
	"github.com/artpar/regiond/internal/shell/events"
	"github.com/artpar/regiond/internal/shell/ledger"
	"github.com/artpar/regiond/internal/shell/runtime"
	"github.com/artpar/regiond/internal/shell/store"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrRegionNotFound is returned for operations on unknown regions.
	ErrRegionNotFound = errors.New("region not found")

	// ErrRegionNotActive is returned when an operation needs a running region.
	ErrRegionNotActive = errors.New("region is not active")

	// ErrRegionNotSuspended is returned when resume targets a region that is
	// not suspended.
	ErrRegionNotSuspended = errors.New("region is not suspended")
)

// =============================================================================
// Controller
// =============================================================================

// Config carries the controller's collaborators and settings.
type Config struct {
	Store     store.Store
	Ledger    *ledger.Ledger
	Runtime   runtime.Runtime
	Publisher events.Publisher
	Logger    *slog.Logger

	// EncryptionKey seals per-region database credentials at rest.
	EncryptionKey []byte

	// DataDir is the host directory region volumes live under.
	DataDir string

	// Policy bounds what a single region may request.
	Policy domain.HostPolicy
}

// Controller manages region lifecycles.
type Controller struct {
	store     store.Store
	ledger    *ledger.Ledger
	runtime   runtime.Runtime
	publisher events.Publisher
	logger    *slog.Logger
	key       []byte
	dataDir   string
	policy    domain.HostPolicy
}

// New creates a controller.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Controller{
		store:     cfg.Store,
		ledger:    cfg.Ledger,
		runtime:   cfg.Runtime,
		publisher: publisher,
		logger:    logger,
		key:       cfg.EncryptionKey,
		dataDir:   cfg.DataDir,
		policy:    cfg.Policy,
	}
}

// =============================================================================
// Provision
// =============================================================================

// Provision validates the config, reserves a network allocation, renders the
// deployment manifest, and applies it. On success the region is active. If
// anything fails after the region row exists, the region is parked in failed
// state with its allocation released, and the original error is returned.
//
// Apply failures are retryable: resubmitting the same name re-enters
// provisioning on the failed region's row, reusing its name registry entry.
func (c *Controller) Provision(ctx context.Context, cfg domain.RegionConfig) (*domain.Region, error) {
	cfg = validate.Normalize(cfg)

	knownNames, err := c.store.ListReservedNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("provision: load name registry: %w", err)
	}

	existing, err := c.store.GetRegionByName(ctx, cfg.Name)
	switch {
	case err == nil:
		if existing.Status == domain.StatusFailed && existing.Config.OwnerID == cfg.OwnerID {
			return c.reprovision(ctx, existing, cfg, knownNames)
		}
		// Any other live or terminated region holds the name; the
		// uniqueness check below reports it.
	case errors.Is(err, store.ErrNotFound):
		// Fresh name
	default:
		return nil, fmt.Errorf("provision: look up region: %w", err)
	}

	if err := validate.Validate(cfg, c.policy, knownNames); err != nil {
		return nil, err
	}

	region := domain.NewRegion(cfg)
	if err := c.store.CreateRegion(ctx, region); err != nil {
		return nil, fmt.Errorf("provision: persist region: %w", err)
	}
	c.logger.Info("provisioning region",
		"region", cfg.Name,
		"owner", cfg.OwnerID,
		"cpu_cores", cfg.CPUCores,
		"memory_gb", cfg.MemoryGB,
	)

	return c.activate(ctx, region)
}

// reprovision re-enters provisioning on a failed region's row with the
// resubmitted config. The name registry entry and region ID survive, so a
// transient apply failure never burns the name.
func (c *Controller) reprovision(ctx context.Context, region *domain.Region, cfg domain.RegionConfig, knownNames []string) (*domain.Region, error) {
	// The registry holds the region's own name; uniqueness is checked
	// against everyone else's.
	others := make([]string, 0, len(knownNames))
	for _, n := range knownNames {
		if n != cfg.Name {
			others = append(others, n)
		}
	}
	if err := validate.Validate(cfg, c.policy, others); err != nil {
		return nil, err
	}

	region.Config = cfg
	if err := c.transition(ctx, region, domain.StatusProvisioning, ""); err != nil {
		return nil, err
	}
	c.logger.Info("re-provisioning failed region",
		"region", cfg.Name,
		"owner", cfg.OwnerID,
	)

	return c.activate(ctx, region)
}

// activate runs the provisioning pipeline on a region already persisted in
// provisioning state: reserve allocation, issue credentials, render, apply.
func (c *Controller) activate(ctx context.Context, region *domain.Region) (*domain.Region, error) {
	name := region.Config.Name

	alloc, err := c.ledger.Reserve(ctx, name)
	if err != nil {
		return region, c.fail(ctx, region, false, fmt.Errorf("provision: reserve allocation: %w", err))
	}
	region.Allocation = alloc

	password, err := c.issueCredentials(ctx, name)
	if err != nil {
		return region, c.fail(ctx, region, true, fmt.Errorf("provision: issue credentials: %w", err))
	}

	m, err := c.render(region, password)
	if err != nil {
		return region, c.fail(ctx, region, true, err)
	}

	if err := c.runtime.Apply(ctx, m); err != nil {
		return region, c.fail(ctx, region, true, fmt.Errorf("provision: apply manifest: %w", err))
	}

	if err := c.transition(ctx, region, domain.StatusActive, ""); err != nil {
		return region, err
	}

	c.logger.Info("region active",
		"region", name,
		"subnet", alloc.Subnet,
		"external_port", alloc.ExternalPort,
	)
	return region, nil
}

// issueCredentials generates the per-region database password and stores the
// sealed form. The plaintext is returned for rendering and never persisted.
func (c *Controller) issueCredentials(ctx context.Context, regionName string) (string, error) {
	password, err := crypto.GeneratePassword(32)
	if err != nil {
		return "", err
	}
	sealed, err := crypto.Encrypt(password, c.key)
	if err != nil {
		return "", err
	}
	if err := c.store.SaveRegionSecret(ctx, regionName, sealed); err != nil {
		return "", err
	}
	return password, nil
}

// fail parks a provisioning region in failed state. The allocation is
// released if one was reserved; a failed region never holds one.
func (c *Controller) fail(ctx context.Context, region *domain.Region, releaseAlloc bool, cause error) error {
	c.logger.Error("provisioning failed",
		"region", region.Config.Name,
		"error", cause,
	)

	if releaseAlloc {
		if err := c.ledger.Release(ctx, region.Config.Name); err != nil {
			c.logger.Error("failed to release allocation", "region", region.Config.Name, "error", err)
		}
		region.Allocation = nil
	}

	from := region.Status
	if err := region.TransitionToFailed(cause.Error()); err != nil {
		c.logger.Error("failed-state transition rejected", "region", region.Config.Name, "error", err)
		return cause
	}
	if err := c.store.UpdateRegion(ctx, region); err != nil {
		c.logger.Error("failed to persist failed state", "region", region.Config.Name, "error", err)
	}
	c.publish(ctx, region, from, cause.Error())
	return cause
}

// =============================================================================
// Resize
// =============================================================================

// ResizeRequest carries the mutable budget fields of a region. Zero values
// keep the current setting.
type ResizeRequest struct {
	CPUCores   float64 `json:"cpu_cores,omitempty"`
	MemoryGB   int     `json:"memory_gb,omitempty"`
	DiskGB     int     `json:"disk_gb,omitempty"`
	MaxPlayers int     `json:"max_players,omitempty"`
}

// Resize changes an active region's resource budget. The allocation, name,
// and data directories are untouched; containers are recreated with the new
// shares.
func (c *Controller) Resize(ctx context.Context, name string, req ResizeRequest) (*domain.Region, error) {
	region, err := c.getByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if region.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrRegionNotActive, name, region.Status)
	}

	cfg := region.Config
	if req.CPUCores > 0 {
		cfg.CPUCores = req.CPUCores
	}
	if req.MemoryGB > 0 {
		cfg.MemoryGB = req.MemoryGB
	}
	if req.DiskGB > 0 {
		cfg.DiskGB = req.DiskGB
	}
	if req.MaxPlayers > 0 {
		cfg.MaxPlayers = req.MaxPlayers
	}

	// The name is unchanged, so validate against the registry minus itself.
	if err := validate.Validate(cfg, c.policy, nil); err != nil {
		return nil, err
	}

	password, err := c.regionPassword(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resize: load credentials: %w", err)
	}

	region.Config = cfg
	m, err := c.render(region, password)
	if err != nil {
		return nil, err
	}

	c.logger.Info("resizing region",
		"region", name,
		"cpu_cores", cfg.CPUCores,
		"memory_gb", cfg.MemoryGB,
	)

	// Recreate with new limits. The allocation is preserved, so the external
	// port and subnet survive the bounce.
	if err := c.runtime.Teardown(ctx, name); err != nil {
		return nil, fmt.Errorf("resize: teardown: %w", err)
	}
	if err := c.runtime.Apply(ctx, m); err != nil {
		return nil, fmt.Errorf("resize: apply: %w", err)
	}

	if err := c.store.UpdateRegion(ctx, region); err != nil {
		return nil, fmt.Errorf("resize: persist region: %w", err)
	}
	return region, nil
}

// =============================================================================
// Suspend / Resume
// =============================================================================

// Suspend stops an active region's containers. The allocation and all state
// are kept, so the region resumes at the same subnet and port.
func (c *Controller) Suspend(ctx context.Context, name string) (*domain.Region, error) {
	region, err := c.getByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if region.Status != domain.StatusActive {
		return nil, fmt.Errorf("%w: %s is %s", ErrRegionNotActive, name, region.Status)
	}

	if err := c.runtime.Suspend(ctx, name); err != nil {
		return nil, fmt.Errorf("suspend: %w", err)
	}
	if err := c.transition(ctx, region, domain.StatusSuspended, ""); err != nil {
		return nil, err
	}
	return region, nil
}

// Resume restarts a suspended region.
func (c *Controller) Resume(ctx context.Context, name string) (*domain.Region, error) {
	region, err := c.getByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if region.Status != domain.StatusSuspended {
		return nil, fmt.Errorf("%w: %s is %s", ErrRegionNotSuspended, name, region.Status)
	}

	if err := c.runtime.Resume(ctx, name); err != nil {
		return nil, fmt.Errorf("resume: %w", err)
	}
	if err := c.transition(ctx, region, domain.StatusActive, ""); err != nil {
		return nil, err
	}
	return region, nil
}

// =============================================================================
// Terminate
// =============================================================================

// Terminate tears down a region's containers and network, releases its
// allocation, and marks it terminated. The name stays reserved and host
// volume directories are kept per the retention policy. Terminating a region
// that is already terminated is a no-op.
func (c *Controller) Terminate(ctx context.Context, name string) (*domain.Region, error) {
	region, err := c.getByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if region.Status == domain.StatusTerminated {
		return region, nil
	}

	if err := c.runtime.Teardown(ctx, name); err != nil {
		return nil, fmt.Errorf("terminate: teardown: %w", err)
	}
	if err := c.ledger.Release(ctx, name); err != nil {
		return nil, fmt.Errorf("terminate: release allocation: %w", err)
	}
	region.Allocation = nil

	if err := c.transition(ctx, region, domain.StatusTerminated, ""); err != nil {
		return nil, err
	}

	c.logger.Info("region terminated", "region", name)
	return region, nil
}

// =============================================================================
// Queries
// =============================================================================

// Get returns a region by name.
func (c *Controller) Get(ctx context.Context, name string) (*domain.Region, error) {
	return c.getByName(ctx, name)
}

// List returns regions, newest first.
func (c *Controller) List(ctx context.Context, opts store.ListOptions) ([]domain.Region, error) {
	return c.store.ListRegions(ctx, opts)
}

// Summary aggregates fleet state: region counts per status, the resource
// budget reserved by active regions, and allocation pool usage.
type Summary struct {
	RegionsByStatus  map[string]int `json:"regions_by_status"`
	ActiveRegions    int            `json:"active_regions"`
	ReservedCPUCores float64        `json:"reserved_cpu_cores"`
	ReservedMemoryGB int            `json:"reserved_memory_gb"`
	HeldAllocations  int            `json:"held_allocations"`
	SubnetCapacity   int            `json:"subnet_capacity"`
	PortCapacity     int            `json:"port_capacity"`
}

// summaryPageSize is the page size Summarize walks the region table with.
const summaryPageSize = 500

// Summarize computes the fleet summary. Suspended regions keep their
// allocation but are excluded from the reserved resource totals.
func (c *Controller) Summarize(ctx context.Context) (*Summary, error) {
	s := &Summary{RegionsByStatus: make(map[string]int)}

	opts := store.ListOptions{Limit: summaryPageSize}
	for {
		regions, err := c.store.ListRegions(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("summarize: list regions: %w", err)
		}

		for i := range regions {
			region := &regions[i]
			s.RegionsByStatus[string(region.Status)]++
			if region.Status == domain.StatusActive {
				s.ActiveRegions++
				s.ReservedCPUCores += region.Config.CPUCores
				s.ReservedMemoryGB += region.Config.MemoryGB
			}
		}

		if len(regions) < summaryPageSize {
			break
		}
		opts.Offset += summaryPageSize
	}

	policy := c.ledger.Policy()
	s.HeldAllocations = c.ledger.Held()
	s.SubnetCapacity = policy.Subnets()
	s.PortCapacity = policy.PortRange
	return s, nil
}

// Manifest re-renders the deployment manifest for a region that holds an
// allocation. Rendering is deterministic, so the result matches what was
// applied.
func (c *Controller) Manifest(ctx context.Context, name string) (*manifest.DeploymentManifest, error) {
	region, err := c.getByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if region.Allocation == nil {
		return nil, fmt.Errorf("%w: %s holds no allocation", ErrRegionNotActive, name)
	}

	password, err := c.regionPassword(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("manifest: load credentials: %w", err)
	}
	return c.render(region, password)
}

// =============================================================================
// Helpers
// =============================================================================

func (c *Controller) getByName(ctx context.Context, name string) (*domain.Region, error) {
	region, err := c.store.GetRegionByName(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, name)
		}
		return nil, err
	}
	return region, nil
}

// render produces and verifies the region's manifest. The rendered compose
// document is reparsed through the compose loader before anything reaches
// the engine.
func (c *Controller) render(region *domain.Region, password string) (*manifest.DeploymentManifest, error) {
	m, err := manifest.Render(manifest.Input{
		Config:           region.Config,
		Share:            resources.Allocate(region.Config),
		Allocation:       *region.Allocation,
		DatabasePassword: password,
		DataDir:          c.dataDir,
	})
	if err != nil {
		return nil, err
	}

	out, err := manifest.Export(m)
	if err != nil {
		return nil, err
	}
	if err := manifest.VerifyExport(out); err != nil {
		return nil, err
	}
	return m, nil
}

// regionPassword opens the sealed per-region credential.
func (c *Controller) regionPassword(ctx context.Context, name string) (string, error) {
	sealed, err := c.store.GetRegionSecret(ctx, name)
	if err != nil {
		return "", err
	}
	return crypto.Decrypt(sealed, c.key)
}

// transition moves the region and persists it, then publishes the change.
func (c *Controller) transition(ctx context.Context, region *domain.Region, to domain.RegionStatus, message string) error {
	from := region.Status
	if err := region.Transition(to); err != nil {
		return fmt.Errorf("transition %s from %s to %s: %w", region.Config.Name, from, to, err)
	}
	if err := c.store.UpdateRegion(ctx, region); err != nil {
		return fmt.Errorf("persist %s transition to %s: %w", region.Config.Name, to, err)
	}
	c.publish(ctx, region, from, message)
	return nil
}

func (c *Controller) publish(ctx context.Context, region *domain.Region, from domain.RegionStatus, message string) {
	c.publisher.Publish(ctx, events.Event{
		RegionName: region.Config.Name,
		RegionID:   region.ID,
		From:       from,
		To:         region.Status,
		Message:    message,
		OccurredAt: region.UpdatedAt,
	})
}
