package manifest

import (
	"strings"
	"testing"

	"github.com/artpar/regiond/internal/core/domain"
	"github.com/artpar/regiond/internal/core/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderInput() Input {
	cfg := domain.RegionConfig{
		Name:            "frontier-7",
		OwnerID:         "550e8400-e29b-41d4-a716-446655440000",
		Governance:      domain.GovernanceDemocracy,
		Specialization:  domain.SpecializationCommerce,
		StartingCredits: 1000,
		StartingShip:    "scout",
		MaxPlayers:      500,
		CPUCores:        4,
		MemoryGB:        8,
		DiskGB:          20,
		CustomRules:     map[string]string{"COMBAT_MULTIPLIER": "2.0", "TRADE_TAX": "0.05"},
		LanguagePack:    map[string]string{"greeting": "bonjour"},
		AestheticTheme:  map[string]string{"palette": "nebula"},
	}
	return Input{
		Config: cfg,
		Share:  resources.Allocate(cfg),
		Allocation: domain.NetworkAllocation{
			RegionName:   "frontier-7",
			Subnet:       "172.22.57.0/24",
			Gateway:      "172.22.57.1",
			ExternalPort: 8412,
		},
		DatabasePassword: "s3cret-pw",
		DataDir:          "/var/lib/regiond/regions",
	}
}

// =============================================================================
// Render Tests
// =============================================================================

func TestRender_ServiceSetAndOrder(t *testing.T) {
	m, err := Render(renderInput())
	require.NoError(t, err)

	var roles []domain.ServiceRole
	for _, svc := range m.Services {
		roles = append(roles, svc.Role)
	}
	assert.Equal(t, domain.ServiceRoles(), roles)
}

func TestRender_NetworkMembership(t *testing.T) {
	m, err := Render(renderInput())
	require.NoError(t, err)

	for _, svc := range m.Services {
		assert.Contains(t, svc.Networks, "regiond_frontier-7", svc.Name)
		if svc.Role == domain.RoleApp {
			assert.Contains(t, svc.Networks, SharedNetworkName)
		} else {
			assert.NotContains(t, svc.Networks, SharedNetworkName, svc.Name)
		}
	}

	require.Len(t, m.Networks, 2)
	assert.Equal(t, "172.22.57.0/24", m.Networks[0].Subnet)
	assert.False(t, m.Networks[0].External)
	assert.True(t, m.Networks[1].External)
}

func TestRender_OnlyAppExposesPort(t *testing.T) {
	m, err := Render(renderInput())
	require.NoError(t, err)

	for _, svc := range m.Services {
		if svc.Role == domain.RoleApp {
			require.Len(t, svc.Ports, 1)
			assert.Equal(t, 8412, svc.Ports[0].HostPort)
			assert.Equal(t, appContainerPort, svc.Ports[0].ContainerPort)
		} else {
			assert.Empty(t, svc.Ports, svc.Name)
		}
	}
}

func TestRender_LabelsOnEveryService(t *testing.T) {
	m, err := Render(renderInput())
	require.NoError(t, err)

	for _, svc := range m.Services {
		assert.Equal(t, "true", svc.Labels[LabelManaged])
		assert.Equal(t, "frontier-7", svc.Labels[LabelRegion])
		assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", svc.Labels[LabelOwner])
		assert.Equal(t, string(svc.Role), svc.Labels[LabelRole])
		assert.Equal(t, "democracy", svc.Labels[LabelGovernance])
		assert.Equal(t, "commerce", svc.Labels[LabelSpecialization])
	}
}

func TestRender_GameEnvironment(t *testing.T) {
	m, err := Render(renderInput())
	require.NoError(t, err)

	var app ServiceSpec
	for _, svc := range m.Services {
		if svc.Role == domain.RoleApp {
			app = svc
		}
	}

	assert.Equal(t, "frontier-7", app.Env["REGION_NAME"])
	assert.Equal(t, "500", app.Env["MAX_PLAYERS"])
	assert.Equal(t, "2.0", app.Env["RULE_COMBAT_MULTIPLIER"])
	assert.Equal(t, "0.05", app.Env["RULE_TRADE_TAX"])
	assert.Contains(t, app.Env["DATABASE_URL"], "region_frontier_7")
	assert.Contains(t, app.Env["DATABASE_URL"], "s3cret-pw")
	assert.JSONEq(t, `{"greeting":"bonjour"}`, app.Env["LANGUAGE_PACK"])
	assert.JSONEq(t, `{"palette":"nebula"}`, app.Env["AESTHETIC_THEME"])
}

func TestRender_OptionalMapsAbsent(t *testing.T) {
	in := renderInput()
	in.Config.LanguagePack = nil
	in.Config.AestheticTheme = nil

	m, err := Render(in)
	require.NoError(t, err)

	for _, svc := range m.Services {
		_, hasLang := svc.Env["LANGUAGE_PACK"]
		_, hasTheme := svc.Env["AESTHETIC_THEME"]
		assert.False(t, hasLang, svc.Name)
		assert.False(t, hasTheme, svc.Name)
	}
}

func TestRender_VolumesNamespacedByRegion(t *testing.T) {
	m, err := Render(renderInput())
	require.NoError(t, err)

	require.Len(t, m.Volumes, 5)
	for _, vol := range m.Volumes {
		assert.True(t, strings.HasPrefix(vol.HostPath, "/var/lib/regiond/regions/frontier-7/"), vol.HostPath)
	}
}

func TestRender_ResourcesFromShare(t *testing.T) {
	in := renderInput()
	m, err := Render(in)
	require.NoError(t, err)

	for _, svc := range m.Services {
		want := in.Share.Roles[svc.Role]
		assert.Equal(t, want.CPULimit, svc.Resources.CPULimit, svc.Name)
		assert.Equal(t, want.MemoryLimit, svc.Resources.MemoryLimit, svc.Name)
	}
}

// =============================================================================
// Contract Violation Tests
// =============================================================================

func TestRender_ContractViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"no-region-name", func(in *Input) { in.Config.Name = "" }},
		{"no-allocation", func(in *Input) { in.Allocation = domain.NetworkAllocation{} }},
		{"no-password", func(in *Input) { in.DatabasePassword = "" }},
		{"no-data-dir", func(in *Input) { in.DataDir = "" }},
		{"empty-share", func(in *Input) { in.Share = resources.Share{} }},
		{"missing-role", func(in *Input) { delete(in.Share.Roles, domain.RoleCache) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := renderInput()
			tt.mutate(&in)
			_, err := Render(in)
			assert.ErrorIs(t, err, ErrRender)
		})
	}
}

// =============================================================================
// Determinism Tests
// =============================================================================

// Rendering twice from the same inputs yields byte-identical exports.
func TestRender_Deterministic(t *testing.T) {
	in := renderInput()

	m1, err := Render(in)
	require.NoError(t, err)
	m2, err := Render(in)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)

	y1, err := Export(m1)
	require.NoError(t, err)
	y2, err := Export(m2)
	require.NoError(t, err)
	assert.Equal(t, y1, y2, "export must be byte-identical")
}
