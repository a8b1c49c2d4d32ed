// Package manifest renders the complete deployment manifest for a region.
// This is part of the Functional Core - rendering is a pure function of its
// inputs, and identical inputs always produce an identical manifest. The
// controller relies on this to diff desired against applied manifests.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/artpar/regiond/internal/core/domain"
	"github.com/artpar/regiond/internal/core/resources"
)

// =============================================================================
// Errors
// =============================================================================

// ErrRender indicates a validator/renderer contract mismatch: a required
// input was missing despite the config having passed validation. This is a
// defect, not a user-facing error, and is logged as such.
var ErrRender = errors.New("render error")

// =============================================================================
// Service Images
// =============================================================================

const (
	databaseImage = "postgres:15-alpine"
	cacheImage    = "redis:7-alpine"
	appImage      = "ghcr.io/artpar/regiond-server:stable"
	workerImage   = "ghcr.io/artpar/regiond-worker:stable"
	storageImage  = "minio/minio:RELEASE.2024-05-10T01-41-38Z"
)

// appContainerPort is the port the region server listens on inside its
// container; the allocation's external port is bound to it.
const appContainerPort = 8080

// =============================================================================
// Render Input
// =============================================================================

// Input carries everything rendering needs. All fields are required.
type Input struct {
	Config     domain.RegionConfig
	Share      resources.Share
	Allocation domain.NetworkAllocation

	// DatabasePassword is the generated per-region database credential.
	// It is injected into the database, app, and worker services.
	DatabasePassword string

	// DataDir is the host directory region volumes live under.
	DataDir string
}

func (in Input) validate() error {
	switch {
	case in.Config.Name == "":
		return fmt.Errorf("%w: config has no region name", ErrRender)
	case in.Allocation.Subnet == "" || in.Allocation.ExternalPort == 0:
		return fmt.Errorf("%w: incomplete network allocation for %s", ErrRender, in.Config.Name)
	case in.DatabasePassword == "":
		return fmt.Errorf("%w: no database password for %s", ErrRender, in.Config.Name)
	case in.DataDir == "":
		return fmt.Errorf("%w: no data directory for %s", ErrRender, in.Config.Name)
	case len(in.Share.Roles) == 0:
		return fmt.Errorf("%w: empty resource share for %s", ErrRender, in.Config.Name)
	}
	for _, role := range domain.ServiceRoles() {
		if _, ok := in.Share.Roles[role]; !ok {
			return fmt.Errorf("%w: resource share missing role %s for %s", ErrRender, role, in.Config.Name)
		}
	}
	return nil
}

// =============================================================================
// Rendering
// =============================================================================

// Render produces the deployment manifest for a region. Services are emitted
// in start order (dependencies first). Pure and deterministic.
func Render(in Input) (*DeploymentManifest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	region := in.Config.Name
	m := &DeploymentManifest{
		RegionName: region,
		Networks: []NetworkSpec{
			{
				Name:    NetworkName(region),
				Subnet:  in.Allocation.Subnet,
				Gateway: in.Allocation.Gateway,
			},
			{
				Name:     SharedNetworkName,
				External: true,
			},
		},
		Volumes: []VolumeSpec{
			{Name: VolumeName(region, "postgres"), HostPath: HostPath(in.DataDir, region, "postgres")},
			{Name: VolumeName(region, "redis"), HostPath: HostPath(in.DataDir, region, "redis")},
			{Name: VolumeName(region, "logs"), HostPath: HostPath(in.DataDir, region, "logs")},
			{Name: VolumeName(region, "assets"), HostPath: HostPath(in.DataDir, region, "assets")},
			{Name: VolumeName(region, "backups"), HostPath: HostPath(in.DataDir, region, "backups")},
		},
	}

	for _, role := range domain.ServiceRoles() {
		svc, err := renderService(in, role)
		if err != nil {
			return nil, err
		}
		m.Services = append(m.Services, svc)
	}

	return m, nil
}

func renderService(in Input, role domain.ServiceRole) (ServiceSpec, error) {
	region := in.Config.Name
	share := in.Share.Roles[role]

	svc := ServiceSpec{
		Name:     ContainerName(region, role),
		Role:     role,
		Networks: []string{NetworkName(region)},
		Resources: ResourceSpec{
			CPULimit:          share.CPULimit,
			CPUReservation:    share.CPUReservation,
			MemoryLimit:       share.MemoryLimit,
			MemoryReservation: share.MemoryReservation,
		},
		RestartPolicy: "unless-stopped",
		Labels: map[string]string{
			LabelManaged:        "true",
			LabelRegion:         region,
			LabelOwner:          in.Config.OwnerID,
			LabelRole:           string(role),
			LabelGovernance:     string(in.Config.Governance),
			LabelSpecialization: string(in.Config.Specialization),
		},
	}

	dbName := databaseName(region)
	dbUser := databaseUser(region)
	dbURL := fmt.Sprintf("postgresql://%s:%s@%s:5432/%s",
		dbUser, in.DatabasePassword, ContainerName(region, domain.RoleDatabase), dbName)
	redisURL := fmt.Sprintf("redis://%s:6379/0", ContainerName(region, domain.RoleCache))

	switch role {
	case domain.RoleDatabase:
		svc.Image = databaseImage
		svc.Env = map[string]string{
			"POSTGRES_DB":       dbName,
			"POSTGRES_USER":     dbUser,
			"POSTGRES_PASSWORD": in.DatabasePassword,
		}
		svc.Mounts = []MountSpec{
			{Source: HostPath(in.DataDir, region, "postgres"), Target: "/var/lib/postgresql/data"},
		}
		svc.HealthCheck = &HealthCheckSpec{
			Test:     []string{"CMD-SHELL", fmt.Sprintf("pg_isready -U %s -d %s", dbUser, dbName)},
			Interval: 10 * time.Second,
			Timeout:  5 * time.Second,
			Retries:  5,
		}

	case domain.RoleCache:
		svc.Image = cacheImage
		svc.Command = []string{"redis-server", "--appendonly", "yes"}
		svc.Mounts = []MountSpec{
			{Source: HostPath(in.DataDir, region, "redis"), Target: "/data"},
		}
		svc.HealthCheck = &HealthCheckSpec{
			Test:     []string{"CMD", "redis-cli", "ping"},
			Interval: 10 * time.Second,
			Timeout:  3 * time.Second,
			Retries:  5,
		}

	case domain.RoleStorage:
		svc.Image = storageImage
		svc.Command = []string{"server", "/data"}
		svc.Env = map[string]string{
			"MINIO_ROOT_USER":     dbUser,
			"MINIO_ROOT_PASSWORD": in.DatabasePassword,
		}
		svc.Mounts = []MountSpec{
			{Source: HostPath(in.DataDir, region, "assets"), Target: "/data"},
			{Source: HostPath(in.DataDir, region, "backups"), Target: "/backups"},
		}
		svc.HealthCheck = &HealthCheckSpec{
			Test:     []string{"CMD", "curl", "-f", "http://localhost:9000/minio/health/live"},
			Interval: 30 * time.Second,
			Timeout:  5 * time.Second,
			Retries:  3,
		}

	case domain.RoleApp:
		svc.Image = appImage
		env, err := gameEnv(in, dbURL, redisURL)
		if err != nil {
			return ServiceSpec{}, err
		}
		svc.Env = env
		svc.Mounts = []MountSpec{
			{Source: HostPath(in.DataDir, region, "logs"), Target: "/app/logs"},
			{Source: HostPath(in.DataDir, region, "assets"), Target: "/app/assets", ReadOnly: true},
		}
		// The app server is the only externally reachable service, and the
		// only one on the shared cross-region network.
		svc.Networks = append(svc.Networks, SharedNetworkName)
		svc.Ports = []PortSpec{
			{HostPort: in.Allocation.ExternalPort, ContainerPort: appContainerPort, Protocol: "tcp"},
		}
		svc.HealthCheck = &HealthCheckSpec{
			Test:     []string{"CMD", "wget", "-q", "--spider", fmt.Sprintf("http://localhost:%d/health", appContainerPort)},
			Interval: 15 * time.Second,
			Timeout:  5 * time.Second,
			Retries:  5,
		}

	case domain.RoleWorker:
		svc.Image = workerImage
		env, err := gameEnv(in, dbURL, redisURL)
		if err != nil {
			return ServiceSpec{}, err
		}
		env["WORKER_QUEUE"] = "default"
		svc.Env = env
		svc.Mounts = []MountSpec{
			{Source: HostPath(in.DataDir, region, "logs"), Target: "/app/logs"},
		}

	default:
		return ServiceSpec{}, fmt.Errorf("%w: unknown service role %s", ErrRender, role)
	}

	return svc, nil
}

// gameEnv builds the environment shared by the app server and worker.
func gameEnv(in Input, dbURL, redisURL string) (map[string]string, error) {
	env := map[string]string{
		"REGION_NAME":      in.Config.Name,
		"REGION_OWNER":     in.Config.OwnerID,
		"DATABASE_URL":     dbURL,
		"REDIS_URL":        redisURL,
		"GOVERNANCE":       string(in.Config.Governance),
		"SPECIALIZATION":   string(in.Config.Specialization),
		"MAX_PLAYERS":      fmt.Sprintf("%d", in.Config.MaxPlayers),
		"STARTING_CREDITS": fmt.Sprintf("%d", in.Config.StartingCredits),
		"STARTING_SHIP":    in.Config.StartingShip,
	}

	// Custom rule keys passed validation against the env allow-list pattern.
	for k, v := range in.Config.CustomRules {
		env["RULE_"+k] = v
	}

	// Optional maps are serialized as JSON values; encoding/json sorts map
	// keys, which keeps the rendered value deterministic.
	if len(in.Config.LanguagePack) > 0 {
		packed, err := json.Marshal(in.Config.LanguagePack)
		if err != nil {
			return nil, fmt.Errorf("%w: language pack not serializable: %v", ErrRender, err)
		}
		env["LANGUAGE_PACK"] = string(packed)
	}
	if len(in.Config.AestheticTheme) > 0 {
		packed, err := json.Marshal(in.Config.AestheticTheme)
		if err != nil {
			return nil, fmt.Errorf("%w: aesthetic theme not serializable: %v", ErrRender, err)
		}
		env["AESTHETIC_THEME"] = string(packed)
	}

	return env, nil
}

// databaseName and databaseUser derive per-region database identifiers.
// Hyphens are not valid in postgres identifiers.
func databaseName(region string) string {
	return "region_" + underscored(region)
}

func databaseUser(region string) string {
	return "region_" + underscored(region) + "_user"
}

func underscored(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '-' {
			out = append(out, '_')
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}
