package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/artpar/regiond/internal/core/crypto"
	"github.com/artpar/regiond/internal/core/domain"
	"github.com/artpar/regiond/internal/core/manifest"
	"github.com/artpar/regiond/internal/core/netalloc"
	"github.com/artpar/regiond/internal/shell/controller"
	"github.com/artpar/regiond/internal/shell/ledger"
	"github.com/artpar/regiond/internal/shell/runtime"
	"github.com/artpar/regiond/internal/shell/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

type stubRuntime struct {
	pingErr error
}

var _ runtime.Runtime = (*stubRuntime)(nil)

func (s *stubRuntime) Apply(ctx context.Context, m *manifest.DeploymentManifest) error { return nil }
func (s *stubRuntime) Teardown(ctx context.Context, regionName string) error           { return nil }
func (s *stubRuntime) Suspend(ctx context.Context, regionName string) error            { return nil }
func (s *stubRuntime) Resume(ctx context.Context, regionName string) error             { return nil }
func (s *stubRuntime) Ping(ctx context.Context) error                                  { return s.pingErr }
func (s *stubRuntime) Close() error                                                    { return nil }

func setupServer(t *testing.T) (*httptest.Server, *stubRuntime) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		st.Close()
	})

	l, err := ledger.New(context.Background(), st, netalloc.DefaultPolicy())
	require.NoError(t, err)

	key, err := crypto.DeriveKey("api-test-master-secret-long-enough")
	require.NoError(t, err)

	rt := &stubRuntime{}
	ctrl := controller.New(controller.Config{
		Store:         st,
		Ledger:        l,
		Runtime:       rt,
		EncryptionKey: key,
		DataDir:       "/var/lib/regiond/regions",
		Policy:        domain.DefaultHostPolicy(),
	})

	server := httptest.NewServer(NewHandler(ctrl, rt, nil).Routes())
	t.Cleanup(server.Close)
	return server, rt
}

func createRegion(t *testing.T, server *httptest.Server, name string) RegionResponse {
	t.Helper()
	body := CreateRegionRequest{
		Name:            name,
		OwnerID:         "owner-123",
		StartingCredits: 1000,
		MaxPlayers:      100,
		CPUCores:        4,
		MemoryGB:        8,
		DiskGB:          50,
	}
	resp := doJSON(t, server, http.MethodPost, "/api/v1/regions", body)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var region RegionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&region))
	return region
}

func doJSON(t *testing.T, server *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// =============================================================================
// Region Endpoint Tests
// =============================================================================

func TestCreateRegion(t *testing.T) {
	server, _ := setupServer(t)

	region := createRegion(t, server, "frontier-7")
	assert.Equal(t, "frontier-7", region.Name)
	assert.Equal(t, "active", region.Status)
	require.NotNil(t, region.Allocation)
	assert.NotEmpty(t, region.Allocation.Subnet)
	// Defaults were applied.
	assert.Equal(t, "autocracy", region.Governance)
	assert.Equal(t, "scout", region.StartingShip)
}

func TestCreateRegion_ValidationErrors(t *testing.T) {
	server, _ := setupServer(t)

	resp := doJSON(t, server, http.MethodPost, "/api/v1/regions", CreateRegionRequest{
		Name:     "x",
		CPUCores: 64,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, "validation_error", errResp.Code)
	// All violations reported, not just the first.
	assert.Greater(t, len(errResp.Violations), 1)
}

func TestCreateRegion_InvalidJSON(t *testing.T) {
	server, _ := setupServer(t)

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/v1/regions", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRegion(t *testing.T) {
	server, _ := setupServer(t)
	createRegion(t, server, "frontier-7")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/regions/frontier-7", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var region RegionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&region))
	assert.Equal(t, "frontier-7", region.Name)
}

func TestGetRegion_NotFound(t *testing.T) {
	server, _ := setupServer(t)

	resp := doJSON(t, server, http.MethodGet, "/api/v1/regions/nowhere", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRegions(t *testing.T) {
	server, _ := setupServer(t)
	createRegion(t, server, "alpha")
	createRegion(t, server, "beta")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/regions", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list ListRegionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 2, list.Count)
}

// =============================================================================
// Lifecycle Endpoint Tests
// =============================================================================

func TestSuspendResumeRegion(t *testing.T) {
	server, _ := setupServer(t)
	createRegion(t, server, "frontier-7")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/regions/frontier-7/suspend", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var region RegionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&region))
	assert.Equal(t, "suspended", region.Status)

	resp = doJSON(t, server, http.MethodPost, "/api/v1/regions/frontier-7/resume", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&region))
	assert.Equal(t, "active", region.Status)
}

func TestSuspend_WrongStateConflict(t *testing.T) {
	server, _ := setupServer(t)
	createRegion(t, server, "frontier-7")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/regions/frontier-7/suspend", nil)
	resp.Body.Close()

	resp = doJSON(t, server, http.MethodPost, "/api/v1/regions/frontier-7/suspend", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResizeRegion(t *testing.T) {
	server, _ := setupServer(t)
	createRegion(t, server, "frontier-7")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/regions/frontier-7/resize", ResizeRegionRequest{
		CPUCores: 8,
		MemoryGB: 16,
	})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var region RegionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&region))
	assert.Equal(t, 8.0, region.CPUCores)
	assert.Equal(t, 16, region.MemoryGB)
}

func TestTerminateRegion(t *testing.T) {
	server, _ := setupServer(t)
	createRegion(t, server, "frontier-7")

	resp := doJSON(t, server, http.MethodDelete, "/api/v1/regions/frontier-7", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var region RegionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&region))
	assert.Equal(t, "terminated", region.Status)
	assert.Nil(t, region.Allocation)
}

// =============================================================================
// Manifest and Allocation Endpoint Tests
// =============================================================================

func TestGetManifest_JSON(t *testing.T) {
	server, _ := setupServer(t)
	createRegion(t, server, "frontier-7")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/regions/frontier-7/manifest", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var m manifest.DeploymentManifest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	assert.Equal(t, "frontier-7", m.RegionName)
	assert.Len(t, m.Services, 5)
}

func TestGetManifest_YAML(t *testing.T) {
	server, _ := setupServer(t)
	createRegion(t, server, "frontier-7")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/regions/frontier-7/manifest?format=yaml", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/yaml", resp.Header.Get("Content-Type"))
}

func TestGetAllocation(t *testing.T) {
	server, _ := setupServer(t)
	created := createRegion(t, server, "frontier-7")

	resp := doJSON(t, server, http.MethodGet, "/api/v1/regions/frontier-7/allocation", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var alloc AllocationResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&alloc))
	assert.Equal(t, created.Allocation.Subnet, alloc.Subnet)
	assert.Equal(t, created.Allocation.ExternalPort, alloc.ExternalPort)
}

// =============================================================================
// Platform Endpoint Tests
// =============================================================================

func TestPlatformSummary(t *testing.T) {
	server, _ := setupServer(t)
	createRegion(t, server, "alpha")
	createRegion(t, server, "beta")

	resp := doJSON(t, server, http.MethodPost, "/api/v1/regions/beta/suspend", nil)
	resp.Body.Close()

	resp = doJSON(t, server, http.MethodGet, "/api/v1/platform", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary controller.Summary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 1, summary.ActiveRegions)
	assert.Equal(t, 1, summary.RegionsByStatus["suspended"])
	// Suspended regions keep their allocation but do not count as reserved.
	assert.Equal(t, 2, summary.HeldAllocations)
	assert.Equal(t, 4.0, summary.ReservedCPUCores)
	assert.Equal(t, 8, summary.ReservedMemoryGB)
	assert.Equal(t, 250, summary.SubnetCapacity)
}

// =============================================================================
// Health Endpoint Tests
// =============================================================================

func TestHealth(t *testing.T) {
	server, _ := setupServer(t)

	resp := doJSON(t, server, http.MethodGet, "/health", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReady_EngineDown(t *testing.T) {
	server, rt := setupServer(t)

	rt.pingErr = assert.AnError
	resp := doJSON(t, server, http.MethodGet, "/ready", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestOpenAPISpec(t *testing.T) {
	server, _ := setupServer(t)

	resp := doJSON(t, server, http.MethodGet, "/openapi.json", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var spec map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&spec))
	assert.Equal(t, "3.0.3", spec["openapi"])

	paths, ok := spec["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/v1/regions")
	assert.Contains(t, paths, "/api/v1/regions/{name}/suspend")
	assert.Contains(t, paths, "/api/v1/regions/{name}/manifest")
}
