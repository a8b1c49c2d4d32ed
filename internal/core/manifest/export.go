package manifest

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Compose Export
// =============================================================================

// Export serializes the manifest as a Docker Compose document for operator
// display and deployment tooling. The node tree is built with explicit key
// order (services in start order, env and labels sorted), so identical
// manifests export to byte-identical YAML.
func Export(m *DeploymentManifest) ([]byte, error) {
	root := mapping()

	services := mapping()
	for _, svc := range m.Services {
		services.Content = append(services.Content, scalar(svc.Name), serviceNode(svc))
	}
	appendPair(root, "services", services)

	volumes := mapping()
	for _, vol := range m.Volumes {
		v := mapping()
		appendPair(v, "driver", scalar("local"))
		opts := mapping()
		appendPair(opts, "type", scalar("none"))
		appendPair(opts, "o", scalar("bind"))
		appendPair(opts, "device", scalar(vol.HostPath))
		appendPair(v, "driver_opts", opts)
		volumes.Content = append(volumes.Content, scalar(vol.Name), v)
	}
	appendPair(root, "volumes", volumes)

	networks := mapping()
	for _, net := range m.Networks {
		n := mapping()
		if net.External {
			appendPair(n, "external", boolScalar(true))
		} else {
			appendPair(n, "driver", scalar("bridge"))
			ipam := mapping()
			appendPair(ipam, "driver", scalar("default"))
			cfg := mapping()
			appendPair(cfg, "subnet", scalar(net.Subnet))
			appendPair(cfg, "gateway", scalar(net.Gateway))
			seq := &yaml.Node{Kind: yaml.SequenceNode, Content: []*yaml.Node{cfg}}
			appendPair(ipam, "config", seq)
			appendPair(n, "ipam", ipam)
		}
		networks.Content = append(networks.Content, scalar(net.Name), n)
	}
	appendPair(root, "networks", networks)

	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: compose export failed: %v", ErrRender, err)
	}
	return out, nil
}

func serviceNode(svc ServiceSpec) *yaml.Node {
	s := mapping()
	appendPair(s, "image", scalar(svc.Image))
	appendPair(s, "container_name", scalar(svc.Name))

	if len(svc.Command) > 0 {
		cmd := &yaml.Node{Kind: yaml.SequenceNode}
		for _, c := range svc.Command {
			cmd.Content = append(cmd.Content, scalar(c))
		}
		appendPair(s, "command", cmd)
	}

	if len(svc.Env) > 0 {
		env := &yaml.Node{Kind: yaml.SequenceNode}
		for _, k := range sortedKeys(svc.Env) {
			env.Content = append(env.Content, scalar(fmt.Sprintf("%s=%s", k, svc.Env[k])))
		}
		appendPair(s, "environment", env)
	}

	if len(svc.Ports) > 0 {
		ports := &yaml.Node{Kind: yaml.SequenceNode}
		for _, p := range svc.Ports {
			ports.Content = append(ports.Content, scalar(fmt.Sprintf("%d:%d/%s", p.HostPort, p.ContainerPort, p.Protocol)))
		}
		appendPair(s, "ports", ports)
	}

	if len(svc.Mounts) > 0 {
		vols := &yaml.Node{Kind: yaml.SequenceNode}
		for _, mnt := range svc.Mounts {
			entry := fmt.Sprintf("%s:%s", mnt.Source, mnt.Target)
			if mnt.ReadOnly {
				entry += ":ro"
			}
			vols.Content = append(vols.Content, scalar(entry))
		}
		appendPair(s, "volumes", vols)
	}

	nets := &yaml.Node{Kind: yaml.SequenceNode}
	for _, n := range svc.Networks {
		nets.Content = append(nets.Content, scalar(n))
	}
	appendPair(s, "networks", nets)

	appendPair(s, "restart", scalar(svc.RestartPolicy))

	if svc.HealthCheck != nil {
		hc := mapping()
		test := &yaml.Node{Kind: yaml.SequenceNode}
		for _, t := range svc.HealthCheck.Test {
			test.Content = append(test.Content, scalar(t))
		}
		appendPair(hc, "test", test)
		appendPair(hc, "interval", scalar(svc.HealthCheck.Interval.String()))
		appendPair(hc, "timeout", scalar(svc.HealthCheck.Timeout.String()))
		appendPair(hc, "retries", intScalar(svc.HealthCheck.Retries))
		appendPair(s, "healthcheck", hc)
	}

	deploy := mapping()
	limits := mapping()
	appendPair(limits, "cpus", scalar(trimFloat(svc.Resources.CPULimit)))
	appendPair(limits, "memory", scalar(fmt.Sprintf("%d", svc.Resources.MemoryLimit)))
	res := mapping()
	appendPair(res, "limits", limits)
	if svc.Resources.CPUReservation > 0 || svc.Resources.MemoryReservation > 0 {
		reservations := mapping()
		appendPair(reservations, "cpus", scalar(trimFloat(svc.Resources.CPUReservation)))
		appendPair(reservations, "memory", scalar(fmt.Sprintf("%d", svc.Resources.MemoryReservation)))
		appendPair(res, "reservations", reservations)
	}
	appendPair(deploy, "resources", res)
	appendPair(s, "deploy", deploy)

	labels := mapping()
	for _, k := range sortedKeys(svc.Labels) {
		appendPair(labels, k, scalar(svc.Labels[k]))
	}
	appendPair(s, "labels", labels)

	return s
}

// =============================================================================
// Node Helpers
// =============================================================================

func mapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func intScalar(v int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprintf("%d", v)}
}

func boolScalar(v bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprintf("%t", v)}
}

func appendPair(m *yaml.Node, key string, value *yaml.Node) {
	m.Content = append(m.Content, scalar(key), value)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// trimFloat renders a CPU value without trailing zeros, e.g. 1.2 not 1.20.
func trimFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" {
		return "0"
	}
	return s
}
