package store

import (
	"context"
	"testing"
	"time"

	"github.com/artpar/regiond/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

func testConfig(name string) domain.RegionConfig {
	return domain.RegionConfig{
		Name:            name,
		OwnerID:         "owner-123",
		Governance:      domain.GovernanceDemocracy,
		Specialization:  domain.SpecializationCommerce,
		StartingCredits: 1000,
		StartingShip:    "scout",
		MaxPlayers:      100,
		CPUCores:        4,
		MemoryGB:        8,
		DiskGB:          50,
		CustomRules:     map[string]string{"PVP_ENABLED": "true"},
		LanguagePack:    map[string]string{"welcome": "ahoy"},
	}
}

func createTestRegion(t *testing.T, store Store, name string) *domain.Region {
	t.Helper()
	region := domain.NewRegion(testConfig(name))
	require.NoError(t, store.CreateRegion(context.Background(), region))
	return region
}

// =============================================================================
// Region CRUD Tests
// =============================================================================

func TestCreateRegion_Success(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	region := domain.NewRegion(testConfig("frontier-7"))
	require.NoError(t, store.CreateRegion(ctx, region))

	retrieved, err := store.GetRegion(ctx, region.ID)
	require.NoError(t, err)
	assert.Equal(t, region.ID, retrieved.ID)
	assert.Equal(t, "frontier-7", retrieved.Config.Name)
	assert.Equal(t, domain.GovernanceDemocracy, retrieved.Config.Governance)
	assert.Equal(t, domain.StatusProvisioning, retrieved.Status)
	assert.Equal(t, map[string]string{"PVP_ENABLED": "true"}, retrieved.Config.CustomRules)
	assert.Nil(t, retrieved.Allocation)
	assert.Nil(t, retrieved.ActivatedAt)
}

func TestCreateRegion_DuplicateName(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestRegion(t, store, "frontier-7")

	duplicate := domain.NewRegion(testConfig("frontier-7"))
	err := store.CreateRegion(ctx, duplicate)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestCreateRegion_AtomicWithNameRegistry(t *testing.T) {
	st, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		st.Close()
	})
	ctx := context.Background()

	// An orphaned registry entry makes the second insert fail.
	_, err = st.db.ExecContext(ctx,
		`INSERT INTO region_names (name, region_id, reserved_at) VALUES (?, ?, ?)`,
		"frontier-7", "ghost-id", time.Now().UTC().Format(time.RFC3339))
	require.NoError(t, err)

	region := domain.NewRegion(testConfig("frontier-7"))
	err = st.CreateRegion(ctx, region)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateName)

	// The region row rolled back with the failed registry insert.
	_, err = st.GetRegionByName(ctx, "frontier-7")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRegion_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRegion(context.Background(), "missing-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRegionByName(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	region := createTestRegion(t, store, "frontier-7")

	retrieved, err := store.GetRegionByName(ctx, "frontier-7")
	require.NoError(t, err)
	assert.Equal(t, region.ID, retrieved.ID)

	_, err = store.GetRegionByName(ctx, "nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRegion_StatusAndTimestamps(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	region := createTestRegion(t, store, "frontier-7")
	require.NoError(t, region.Transition(domain.StatusActive))
	require.NoError(t, store.UpdateRegion(ctx, region))

	retrieved, err := store.GetRegion(ctx, region.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, retrieved.Status)
	require.NotNil(t, retrieved.ActivatedAt)
	assert.WithinDuration(t, *region.ActivatedAt, *retrieved.ActivatedAt, time.Second)
}

func TestUpdateRegion_NotFound(t *testing.T) {
	store := setupTestStore(t)

	region := domain.NewRegion(testConfig("never-created"))
	err := store.UpdateRegion(context.Background(), region)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRegions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestRegion(t, store, "alpha")
	createTestRegion(t, store, "beta")
	createTestRegion(t, store, "gamma")

	regions, err := store.ListRegions(ctx, DefaultListOptions())
	require.NoError(t, err)
	assert.Len(t, regions, 3)
}

func TestListRegionsByStatus(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestRegion(t, store, "alpha")
	active := createTestRegion(t, store, "beta")
	require.NoError(t, active.Transition(domain.StatusActive))
	require.NoError(t, store.UpdateRegion(ctx, active))

	provisioning, err := store.ListRegionsByStatus(ctx, domain.StatusProvisioning, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, provisioning, 1)
	assert.Equal(t, "alpha", provisioning[0].Config.Name)

	actives, err := store.ListRegionsByStatus(ctx, domain.StatusActive, DefaultListOptions())
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, "beta", actives[0].Config.Name)
}

// =============================================================================
// Name Registry Tests
// =============================================================================

func TestListReservedNames_SurvivesTermination(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	region := createTestRegion(t, store, "frontier-7")
	require.NoError(t, region.Transition(domain.StatusActive))
	require.NoError(t, region.Transition(domain.StatusTerminated))
	require.NoError(t, store.UpdateRegion(ctx, region))

	names, err := store.ListReservedNames(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "frontier-7")
}

// =============================================================================
// Allocation Tests
// =============================================================================

func TestSaveAllocation_AttachedToRegion(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	region := createTestRegion(t, store, "frontier-7")

	alloc := &domain.NetworkAllocation{
		RegionName:   "frontier-7",
		Subnet:       "172.22.57.0/24",
		Gateway:      "172.22.57.1",
		ExternalPort: 8412,
	}
	require.NoError(t, store.SaveAllocation(ctx, alloc))

	retrieved, err := store.GetRegion(ctx, region.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved.Allocation)
	assert.Equal(t, "172.22.57.0/24", retrieved.Allocation.Subnet)
	assert.Equal(t, 8412, retrieved.Allocation.ExternalPort)
}

func TestSaveAllocation_DuplicateSubnet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAllocation(ctx, &domain.NetworkAllocation{
		RegionName: "alpha", Subnet: "172.22.57.0/24", Gateway: "172.22.57.1", ExternalPort: 8412,
	}))

	err := store.SaveAllocation(ctx, &domain.NetworkAllocation{
		RegionName: "beta", Subnet: "172.22.57.0/24", Gateway: "172.22.57.1", ExternalPort: 8500,
	})
	assert.ErrorIs(t, err, ErrDuplicateAllocation)
}

func TestSaveAllocation_DuplicatePort(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAllocation(ctx, &domain.NetworkAllocation{
		RegionName: "alpha", Subnet: "172.22.57.0/24", Gateway: "172.22.57.1", ExternalPort: 8412,
	}))

	err := store.SaveAllocation(ctx, &domain.NetworkAllocation{
		RegionName: "beta", Subnet: "172.22.99.0/24", Gateway: "172.22.99.1", ExternalPort: 8412,
	})
	assert.ErrorIs(t, err, ErrDuplicateAllocation)
}

func TestDeleteAllocation(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAllocation(ctx, &domain.NetworkAllocation{
		RegionName: "alpha", Subnet: "172.22.57.0/24", Gateway: "172.22.57.1", ExternalPort: 8412,
	}))

	require.NoError(t, store.DeleteAllocation(ctx, "alpha"))

	allocs, err := store.ListAllocations(ctx)
	require.NoError(t, err)
	assert.Empty(t, allocs)

	assert.ErrorIs(t, store.DeleteAllocation(ctx, "alpha"), ErrNotFound)
}

func TestListAllocations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAllocation(ctx, &domain.NetworkAllocation{
		RegionName: "beta", Subnet: "172.22.99.0/24", Gateway: "172.22.99.1", ExternalPort: 8500,
	}))
	require.NoError(t, store.SaveAllocation(ctx, &domain.NetworkAllocation{
		RegionName: "alpha", Subnet: "172.22.57.0/24", Gateway: "172.22.57.1", ExternalPort: 8412,
	}))

	allocs, err := store.ListAllocations(ctx)
	require.NoError(t, err)
	require.Len(t, allocs, 2)
	assert.Equal(t, "alpha", allocs[0].RegionName)
	assert.Equal(t, "beta", allocs[1].RegionName)
}

// =============================================================================
// Secret Tests
// =============================================================================

func TestRegionSecret_SaveAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRegionSecret(ctx, "frontier-7", "sealed-blob-v1"))

	sealed, err := store.GetRegionSecret(ctx, "frontier-7")
	require.NoError(t, err)
	assert.Equal(t, "sealed-blob-v1", sealed)

	// Upsert replaces
	require.NoError(t, store.SaveRegionSecret(ctx, "frontier-7", "sealed-blob-v2"))
	sealed, err = store.GetRegionSecret(ctx, "frontier-7")
	require.NoError(t, err)
	assert.Equal(t, "sealed-blob-v2", sealed)
}

func TestGetRegionSecret_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRegionSecret(context.Background(), "nowhere")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Transaction Tests
// =============================================================================

func TestWithTx_RollbackOnError(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx Store) error {
		region := domain.NewRegion(testConfig("frontier-7"))
		if err := tx.CreateRegion(ctx, region); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	_, err = store.GetRegionByName(ctx, "frontier-7")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWithTx_Commit(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx Store) error {
		region := domain.NewRegion(testConfig("frontier-7"))
		if err := tx.CreateRegion(ctx, region); err != nil {
			return err
		}
		return tx.SaveAllocation(ctx, &domain.NetworkAllocation{
			RegionName: "frontier-7", Subnet: "172.22.57.0/24", Gateway: "172.22.57.1", ExternalPort: 8412,
		})
	})
	require.NoError(t, err)

	region, err := store.GetRegionByName(ctx, "frontier-7")
	require.NoError(t, err)
	require.NotNil(t, region.Allocation)
	assert.Equal(t, 8412, region.Allocation.ExternalPort)
}
