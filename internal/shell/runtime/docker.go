package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/artpar/regiond/internal/core/domain"
	"github.com/artpar/regiond/internal/core/manifest"
)

// stopTimeout is how long containers get to exit cleanly before SIGKILL.
const stopTimeout = 10 * time.Second

// =============================================================================
// DockerRuntime
// =============================================================================

// DockerRuntime implements Runtime using the Docker SDK.
type DockerRuntime struct {
	cli    *client.Client
	logger *slog.Logger
}

// NewDockerRuntime creates a Docker-backed runtime.
// If host is empty, the default Docker host from the environment is used.
func NewDockerRuntime(host string, logger *slog.Logger) (*DockerRuntime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewRuntimeError("NewDockerRuntime", "", "failed to create client", ErrEngineUnavailable)
	}

	return &DockerRuntime{cli: cli, logger: logger}, nil
}

// Ping checks if the Docker daemon is reachable.
func (r *DockerRuntime) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		return NewRuntimeError("Ping", "", err.Error(), ErrEngineUnavailable)
	}
	return nil
}

// Close closes the Docker client connection.
func (r *DockerRuntime) Close() error {
	return r.cli.Close()
}

// =============================================================================
// Apply
// =============================================================================

// Apply converges the engine to the manifest: private network, host volume
// directories, then containers started in manifest order. On any failure the
// containers and network created so far are removed before returning.
func (r *DockerRuntime) Apply(ctx context.Context, m *manifest.DeploymentManifest) error {
	region := m.RegionName
	r.logger.Info("applying manifest",
		"region", region,
		"services", len(m.Services),
	)

	for _, net := range m.Networks {
		if err := r.ensureNetwork(ctx, region, net); err != nil {
			return NewRuntimeError("Apply", region, err.Error(), ErrApplyFailed)
		}
	}

	for _, vol := range m.Volumes {
		if err := os.MkdirAll(vol.HostPath, 0o755); err != nil {
			return NewRuntimeError("Apply", region, fmt.Sprintf("create volume dir %s: %v", vol.HostPath, err), ErrApplyFailed)
		}
		r.logger.Debug("ensured volume directory", "region", region, "path", vol.HostPath)
	}

	var started []string
	for _, svc := range m.Services {
		id, err := r.startService(ctx, m, svc)
		if err != nil {
			r.cleanupContainers(ctx, region, started)
			r.removePrivateNetwork(ctx, region)
			if strings.Contains(err.Error(), "port is already allocated") {
				return NewRuntimeError("Apply", region, err.Error(), ErrPortTaken)
			}
			return NewRuntimeError("Apply", region, err.Error(), ErrApplyFailed)
		}
		started = append(started, id)
		r.logger.Debug("started service", "region", region, "service", svc.Name, "container_id", shortID(id))
	}

	r.logger.Info("manifest applied", "region", region, "containers", len(started))
	return nil
}

// startService pulls the image if needed, creates the container, and starts it.
func (r *DockerRuntime) startService(ctx context.Context, m *manifest.DeploymentManifest, svc manifest.ServiceSpec) (string, error) {
	if err := r.ensureImage(ctx, svc.Image); err != nil {
		return "", err
	}

	config := &container.Config{
		Image:  svc.Image,
		Cmd:    svc.Command,
		Labels: svc.Labels,
	}
	for k, v := range svc.Env {
		config.Env = append(config.Env, fmt.Sprintf("%s=%s", k, v))
	}

	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyMode(svc.RestartPolicy),
		},
	}

	if len(svc.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}
		for _, p := range svc.Ports {
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			containerPort := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
			exposedPorts[containerPort] = struct{}{}
			portBindings[containerPort] = []nat.PortBinding{
				{HostPort: fmt.Sprintf("%d", p.HostPort)},
			}
		}
		config.ExposedPorts = exposedPorts
		hostConfig.PortBindings = portBindings
	}

	for _, v := range svc.Mounts {
		hostConfig.Mounts = append(hostConfig.Mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   v.Source,
			Target:   v.Target,
			ReadOnly: v.ReadOnly,
		})
	}

	if svc.Resources.CPULimit > 0 {
		hostConfig.NanoCPUs = int64(svc.Resources.CPULimit * 1e9)
	}
	if svc.Resources.MemoryLimit > 0 {
		hostConfig.Memory = svc.Resources.MemoryLimit
	}
	if svc.Resources.MemoryReservation > 0 {
		hostConfig.MemoryReservation = svc.Resources.MemoryReservation
	}
	if svc.Resources.CPUReservation > 0 {
		// Docker has no direct CPU reservation; CPUShares is the relative
		// weight equivalent (1024 per core).
		hostConfig.CPUShares = int64(svc.Resources.CPUReservation * 1024)
	}

	if svc.HealthCheck != nil {
		config.Healthcheck = &container.HealthConfig{
			Test:     svc.HealthCheck.Test,
			Interval: svc.HealthCheck.Interval,
			Timeout:  svc.HealthCheck.Timeout,
			Retries:  svc.HealthCheck.Retries,
		}
	}

	var networkConfig *network.NetworkingConfig
	if len(svc.Networks) > 0 {
		networkConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{},
		}
		for _, n := range svc.Networks {
			networkConfig.EndpointsConfig[n] = &network.EndpointSettings{}
		}
	}

	resp, err := r.cli.ContainerCreate(ctx, config, hostConfig, networkConfig, nil, svc.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", svc.Name, err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = r.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container %s: %w", svc.Name, err)
	}

	return resp.ID, nil
}

// ensureImage pulls the image if it is not present locally.
func (r *DockerRuntime) ensureImage(ctx context.Context, ref string) error {
	images, err := r.cli.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err == nil && len(images) > 0 {
		return nil
	}

	r.logger.Info("pulling image", "image", ref)
	reader, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", ref, err)
	}
	defer reader.Close()

	// Drain the progress stream; the pull completes when it closes.
	buf := make([]byte, 32*1024)
	for {
		if _, err := reader.Read(buf); err != nil {
			break
		}
	}
	return nil
}

// ensureNetwork creates the network if missing. External networks (the shared
// cross-region bridge) are created without IPAM config.
func (r *DockerRuntime) ensureNetwork(ctx context.Context, region string, spec manifest.NetworkSpec) error {
	existing, err := r.cli.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", spec.Name)),
	})
	if err != nil {
		return fmt.Errorf("list networks: %w", err)
	}
	for _, n := range existing {
		if n.Name == spec.Name {
			return nil
		}
	}

	opts := network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{
			manifest.LabelManaged: "true",
		},
	}
	if !spec.External {
		opts.Labels[manifest.LabelRegion] = region
		opts.IPAM = &network.IPAM{
			Config: []network.IPAMConfig{
				{Subnet: spec.Subnet, Gateway: spec.Gateway},
			},
		}
	}

	if _, err := r.cli.NetworkCreate(ctx, spec.Name, opts); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			return nil
		}
		return fmt.Errorf("create network %s: %w", spec.Name, err)
	}
	r.logger.Debug("created network", "region", region, "network", spec.Name)
	return nil
}

// =============================================================================
// Teardown
// =============================================================================

// Teardown stops and removes the region's containers, then its private
// network. Host volume directories are kept for the retention policy.
func (r *DockerRuntime) Teardown(ctx context.Context, regionName string) error {
	r.logger.Info("tearing down region", "region", regionName)

	containers, err := r.regionContainers(ctx, regionName)
	if err != nil {
		return NewRuntimeError("Teardown", regionName, err.Error(), ErrTeardownFailed)
	}

	seconds := int(stopTimeout.Seconds())
	for _, c := range containers {
		_ = r.cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &seconds})
		if err := r.cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Warn("failed to remove container", "container_id", shortID(c.ID), "error", err)
		}
	}

	r.removePrivateNetwork(ctx, regionName)

	r.logger.Info("region torn down", "region", regionName, "containers_removed", len(containers))
	return nil
}

// =============================================================================
// Suspend / Resume
// =============================================================================

// Suspend stops the region's containers. Network, containers, and volumes all
// stay in place so Resume is cheap.
func (r *DockerRuntime) Suspend(ctx context.Context, regionName string) error {
	containers, err := r.regionContainers(ctx, regionName)
	if err != nil {
		return NewRuntimeError("Suspend", regionName, err.Error(), ErrApplyFailed)
	}

	seconds := int(stopTimeout.Seconds())
	for _, c := range containers {
		if err := r.cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &seconds}); err != nil {
			if !strings.Contains(err.Error(), "is not running") {
				return NewRuntimeError("Suspend", regionName, fmt.Sprintf("stop %s: %v", shortID(c.ID), err), ErrApplyFailed)
			}
		}
	}

	r.logger.Info("region suspended", "region", regionName, "containers_stopped", len(containers))
	return nil
}

// Resume restarts the stopped containers of a suspended region in role start
// order (the dependency order they were created in).
func (r *DockerRuntime) Resume(ctx context.Context, regionName string) error {
	containers, err := r.regionContainers(ctx, regionName)
	if err != nil {
		return NewRuntimeError("Resume", regionName, err.Error(), ErrApplyFailed)
	}

	byRole := make(map[domain.ServiceRole]string, len(containers))
	for _, c := range containers {
		byRole[domain.ServiceRole(c.Labels[manifest.LabelRole])] = c.ID
	}

	for _, role := range domain.ServiceRoles() {
		id, ok := byRole[role]
		if !ok {
			continue
		}
		if err := r.cli.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
			if !strings.Contains(err.Error(), "already started") && !strings.Contains(err.Error(), "is already running") {
				return NewRuntimeError("Resume", regionName, fmt.Sprintf("start %s: %v", shortID(id), err), ErrApplyFailed)
			}
		}
	}

	r.logger.Info("region resumed", "region", regionName, "containers_started", len(containers))
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// regionContainers lists all containers labeled with the region name.
func (r *DockerRuntime) regionContainers(ctx context.Context, regionName string) ([]container.Summary, error) {
	return r.cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", manifest.LabelRegion, regionName)),
		),
	})
}

// cleanupContainers force-removes containers created during a failed Apply.
func (r *DockerRuntime) cleanupContainers(ctx context.Context, regionName string, ids []string) {
	seconds := int((5 * time.Second).Seconds())
	for _, id := range ids {
		_ = r.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &seconds})
		_ = r.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
		r.logger.Debug("cleaned up container", "region", regionName, "container_id", shortID(id))
	}
}

// removePrivateNetwork removes the region's own network. The shared network
// is never removed.
func (r *DockerRuntime) removePrivateNetwork(ctx context.Context, regionName string) {
	name := manifest.NetworkName(regionName)
	if err := r.cli.NetworkRemove(ctx, name); err != nil {
		if !client.IsErrNotFound(err) {
			r.logger.Warn("failed to remove network", "network", name, "error", err)
		}
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
