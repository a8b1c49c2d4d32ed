package manifest

import (
	"time"

	"github.com/artpar/regiond/internal/core/domain"
)

// =============================================================================
// Deployment Manifest Types
// =============================================================================

// DeploymentManifest is the complete declarative description of the services,
// networks, and volumes needed to run one region. Immutable once rendered;
// re-rendering from the same inputs is byte-identical.
type DeploymentManifest struct {
	RegionName string        `json:"region_name"`
	Services   []ServiceSpec `json:"services"` // Start order: dependencies first
	Volumes    []VolumeSpec  `json:"volumes"`
	Networks   []NetworkSpec `json:"networks"`
}

// ServiceSpec defines one container of a region.
type ServiceSpec struct {
	Name          string             `json:"name"`
	Role          domain.ServiceRole `json:"role"`
	Image         string             `json:"image"`
	Command       []string           `json:"command,omitempty"`
	Env           map[string]string  `json:"env,omitempty"`
	Mounts        []MountSpec        `json:"mounts,omitempty"`
	Networks      []string           `json:"networks"`
	Ports         []PortSpec         `json:"ports,omitempty"`
	Resources     ResourceSpec       `json:"resources"`
	HealthCheck   *HealthCheckSpec   `json:"healthcheck,omitempty"`
	RestartPolicy string             `json:"restart_policy"`
	Labels        map[string]string  `json:"labels"`
}

// MountSpec is a host path mounted into a container.
type MountSpec struct {
	Source   string `json:"source"` // Host path, namespaced under the region
	Target   string `json:"target"` // Container path
	ReadOnly bool   `json:"readonly,omitempty"`
}

// PortSpec is a host port binding. Only the app server exposes one.
type PortSpec struct {
	HostPort      int    `json:"host_port"`
	ContainerPort int    `json:"container_port"`
	Protocol      string `json:"protocol"`
}

// ResourceSpec carries the role's slice of the region budget.
type ResourceSpec struct {
	CPULimit          float64 `json:"cpu_limit"`
	CPUReservation    float64 `json:"cpu_reservation"`
	MemoryLimit       int64   `json:"memory_limit"`       // Bytes
	MemoryReservation int64   `json:"memory_reservation"` // Bytes
}

// HealthCheckSpec defines a container health check.
type HealthCheckSpec struct {
	Test     []string      `json:"test"`
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
	Retries  int           `json:"retries"`
}

// VolumeSpec is a named volume bound to a host path.
type VolumeSpec struct {
	Name     string `json:"name"`
	HostPath string `json:"host_path"`
}

// NetworkSpec is either the region's private bridge network (with a subnet
// from the NetworkAllocation) or a reference to the shared cross-region
// network.
type NetworkSpec struct {
	Name     string `json:"name"`
	Subnet   string `json:"subnet,omitempty"`
	Gateway  string `json:"gateway,omitempty"`
	External bool   `json:"external"` // Pre-existing, not created per region
}

// =============================================================================
// Labels
// =============================================================================

// Label keys attached to every rendered service for downstream
// observability and billing tooling.
const (
	LabelManaged        = "com.regiond.managed"
	LabelRegion         = "com.regiond.region"
	LabelOwner          = "com.regiond.owner"
	LabelRole           = "com.regiond.role"
	LabelGovernance     = "com.regiond.governance"
	LabelSpecialization = "com.regiond.specialization"
)
