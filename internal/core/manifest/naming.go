package manifest

import (
	"fmt"
	"path"

	"github.com/artpar/regiond/internal/core/domain"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// SharedNetworkName is the pre-existing cross-region network the app server
// of every region joins for inter-region API calls.
const SharedNetworkName = "regiond_shared"

// NetworkName generates the private network name for a region.
// Pattern: regiond_{region}
//
// Example:
//
//	NetworkName("frontier-7") // returns "regiond_frontier-7"
func NetworkName(region string) string {
	return fmt.Sprintf("regiond_%s", region)
}

// ContainerName generates a container name for a service role in a region.
// Pattern: regiond_{region}_{role}
//
// Example:
//
//	ContainerName("frontier-7", domain.RoleDatabase) // returns "regiond_frontier-7_database"
func ContainerName(region string, role domain.ServiceRole) string {
	return fmt.Sprintf("regiond_%s_%s", region, role)
}

// VolumeName generates a volume name for a region.
// Pattern: regiond_{region}_{volume}
func VolumeName(region, volume string) string {
	return fmt.Sprintf("regiond_%s_%s", region, volume)
}

// HostPath returns the host directory backing a region volume. All paths live
// under dataDir/{region}; region names are permanently reserved so a path is
// never shared between tenants, even across terminate/create cycles.
func HostPath(dataDir, region, volume string) string {
	return path.Join(dataDir, region, volume)
}
