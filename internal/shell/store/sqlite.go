package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/regiond/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Region Operations
// =============================================================================

// regionRow represents a region row in the database.
type regionRow struct {
	ID              string  `db:"id"`
	Name            string  `db:"name"`
	OwnerID         string  `db:"owner_id"`
	Governance      string  `db:"governance"`
	Specialization  string  `db:"specialization"`
	StartingCredits int64   `db:"starting_credits"`
	StartingShip    string  `db:"starting_ship"`
	MaxPlayers      int     `db:"max_players"`
	CPUCores        float64 `db:"cpu_cores"`
	MemoryGB        int     `db:"memory_gb"`
	DiskGB          int     `db:"disk_gb"`
	CustomRules     *string `db:"custom_rules"`
	LanguagePack    *string `db:"language_pack"`
	AestheticTheme  *string `db:"aesthetic_theme"`
	Status          string  `db:"status"`
	ErrorMessage    string  `db:"error_message"`
	CreatedAt       string  `db:"created_at"`
	UpdatedAt       string  `db:"updated_at"`
	ActivatedAt     *string `db:"activated_at"`
	TerminatedAt    *string `db:"terminated_at"`
}

func (s *SQLiteStore) CreateRegion(ctx context.Context, region *domain.Region) error {
	// The region row and its permanent name registry entry land together.
	return s.WithTx(ctx, func(txS Store) error {
		return txS.CreateRegion(ctx, region)
	})
}

func (s *SQLiteStore) GetRegion(ctx context.Context, id string) (*domain.Region, error) {
	return getRegion(ctx, s.db, id)
}

func (s *SQLiteStore) GetRegionByName(ctx context.Context, name string) (*domain.Region, error) {
	return getRegionByName(ctx, s.db, name)
}

func (s *SQLiteStore) UpdateRegion(ctx context.Context, region *domain.Region) error {
	return updateRegion(ctx, s.db, region)
}

func (s *SQLiteStore) ListRegions(ctx context.Context, opts ListOptions) ([]domain.Region, error) {
	return listRegions(ctx, s.db, opts)
}

func (s *SQLiteStore) ListRegionsByStatus(ctx context.Context, status domain.RegionStatus, opts ListOptions) ([]domain.Region, error) {
	return listRegionsByStatus(ctx, s.db, status, opts)
}

func (s *SQLiteStore) ListReservedNames(ctx context.Context) ([]string, error) {
	return listReservedNames(ctx, s.db)
}

// =============================================================================
// Allocation Operations
// =============================================================================

// allocationRow represents an allocation row in the database.
type allocationRow struct {
	RegionName   string `db:"region_name"`
	Subnet       string `db:"subnet"`
	Gateway      string `db:"gateway"`
	ExternalPort int    `db:"external_port"`
}

func (s *SQLiteStore) SaveAllocation(ctx context.Context, alloc *domain.NetworkAllocation) error {
	return saveAllocation(ctx, s.db, alloc)
}

func (s *SQLiteStore) DeleteAllocation(ctx context.Context, regionName string) error {
	return deleteAllocation(ctx, s.db, regionName)
}

func (s *SQLiteStore) ListAllocations(ctx context.Context) ([]domain.NetworkAllocation, error) {
	return listAllocations(ctx, s.db)
}

// =============================================================================
// Secret Operations
// =============================================================================

func (s *SQLiteStore) SaveRegionSecret(ctx context.Context, regionName, sealed string) error {
	return saveRegionSecret(ctx, s.db, regionName, sealed)
}

func (s *SQLiteStore) GetRegionSecret(ctx context.Context, regionName string) (string, error) {
	return getRegionSecret(ctx, s.db, regionName)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreateRegion(ctx context.Context, region *domain.Region) error {
	return createRegion(ctx, s.tx, region)
}

func (s *txSQLiteStore) GetRegion(ctx context.Context, id string) (*domain.Region, error) {
	return getRegion(ctx, s.tx, id)
}

func (s *txSQLiteStore) GetRegionByName(ctx context.Context, name string) (*domain.Region, error) {
	return getRegionByName(ctx, s.tx, name)
}

func (s *txSQLiteStore) UpdateRegion(ctx context.Context, region *domain.Region) error {
	return updateRegion(ctx, s.tx, region)
}

func (s *txSQLiteStore) ListRegions(ctx context.Context, opts ListOptions) ([]domain.Region, error) {
	return listRegions(ctx, s.tx, opts)
}

func (s *txSQLiteStore) ListRegionsByStatus(ctx context.Context, status domain.RegionStatus, opts ListOptions) ([]domain.Region, error) {
	return listRegionsByStatus(ctx, s.tx, status, opts)
}

func (s *txSQLiteStore) ListReservedNames(ctx context.Context) ([]string, error) {
	return listReservedNames(ctx, s.tx)
}

func (s *txSQLiteStore) SaveAllocation(ctx context.Context, alloc *domain.NetworkAllocation) error {
	return saveAllocation(ctx, s.tx, alloc)
}

func (s *txSQLiteStore) DeleteAllocation(ctx context.Context, regionName string) error {
	return deleteAllocation(ctx, s.tx, regionName)
}

func (s *txSQLiteStore) ListAllocations(ctx context.Context) ([]domain.NetworkAllocation, error) {
	return listAllocations(ctx, s.tx)
}

func (s *txSQLiteStore) SaveRegionSecret(ctx context.Context, regionName, sealed string) error {
	return saveRegionSecret(ctx, s.tx, regionName, sealed)
}

func (s *txSQLiteStore) GetRegionSecret(ctx context.Context, regionName string) (string, error) {
	return getRegionSecret(ctx, s.tx, regionName)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func createRegion(ctx context.Context, exec executor, region *domain.Region) error {
	row, err := regionToRow(region)
	if err != nil {
		return NewStoreError("CreateRegion", "region", region.ID, "failed to serialize config maps", ErrInvalidData)
	}

	query := `
		INSERT INTO regions (
			id, name, owner_id, governance, specialization, starting_credits,
			starting_ship, max_players, cpu_cores, memory_gb, disk_gb,
			custom_rules, language_pack, aesthetic_theme,
			status, error_message, created_at, updated_at, activated_at, terminated_at
		) VALUES (
			:id, :name, :owner_id, :governance, :specialization, :starting_credits,
			:starting_ship, :max_players, :cpu_cores, :memory_gb, :disk_gb,
			:custom_rules, :language_pack, :aesthetic_theme,
			:status, :error_message, :created_at, :updated_at, :activated_at, :terminated_at
		)`

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: regions.name") {
			return NewStoreError("CreateRegion", "region", region.Config.Name, "region with this name already exists", ErrDuplicateName)
		}
		return NewStoreError("CreateRegion", "region", region.ID, err.Error(), err)
	}

	// Reserve the name forever. The registry row outlives the region.
	nameQuery := `INSERT INTO region_names (name, region_id, reserved_at) VALUES (?, ?, ?)`
	if _, err := exec.ExecContext(ctx, nameQuery, region.Config.Name, region.ID, region.CreatedAt.Format(time.RFC3339)); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateRegion", "region", region.Config.Name, "region name already reserved", ErrDuplicateName)
		}
		return NewStoreError("CreateRegion", "region_name", region.Config.Name, err.Error(), err)
	}

	return nil
}

func getRegion(ctx context.Context, exec executor, id string) (*domain.Region, error) {
	query := `SELECT * FROM regions WHERE id = ?`

	var row regionRow
	if err := exec.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRegion", "region", id, "region not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRegion", "region", id, err.Error(), err)
	}

	return rowToRegion(ctx, exec, &row)
}

func getRegionByName(ctx context.Context, exec executor, name string) (*domain.Region, error) {
	query := `SELECT * FROM regions WHERE name = ?`

	var row regionRow
	if err := exec.GetContext(ctx, &row, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRegionByName", "region", name, "region not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRegionByName", "region", name, err.Error(), err)
	}

	return rowToRegion(ctx, exec, &row)
}

func updateRegion(ctx context.Context, exec executor, region *domain.Region) error {
	row, err := regionToRow(region)
	if err != nil {
		return NewStoreError("UpdateRegion", "region", region.ID, "failed to serialize config maps", ErrInvalidData)
	}

	// Name, owner, and created_at are immutable.
	query := `
		UPDATE regions SET
			governance = :governance,
			specialization = :specialization,
			starting_credits = :starting_credits,
			starting_ship = :starting_ship,
			max_players = :max_players,
			cpu_cores = :cpu_cores,
			memory_gb = :memory_gb,
			disk_gb = :disk_gb,
			custom_rules = :custom_rules,
			language_pack = :language_pack,
			aesthetic_theme = :aesthetic_theme,
			status = :status,
			error_message = :error_message,
			updated_at = :updated_at,
			activated_at = :activated_at,
			terminated_at = :terminated_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateRegion", "region", region.ID, err.Error(), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("UpdateRegion", "region", region.ID, err.Error(), err)
	}
	if affected == 0 {
		return NewStoreError("UpdateRegion", "region", region.ID, "region not found", ErrNotFound)
	}

	return nil
}

func listRegions(ctx context.Context, exec executor, opts ListOptions) ([]domain.Region, error) {
	opts = opts.Normalize()
	// The id tiebreaker keeps offset paging stable when timestamps collide.
	query := `SELECT * FROM regions ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	var rows []regionRow
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListRegions", "region", "", err.Error(), err)
	}

	return rowsToRegions(ctx, exec, rows, "ListRegions")
}

func listRegionsByStatus(ctx context.Context, exec executor, status domain.RegionStatus, opts ListOptions) ([]domain.Region, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM regions WHERE status = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	var rows []regionRow
	if err := exec.SelectContext(ctx, &rows, query, string(status), opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListRegionsByStatus", "region", "", err.Error(), err)
	}

	return rowsToRegions(ctx, exec, rows, "ListRegionsByStatus")
}

func listReservedNames(ctx context.Context, exec executor) ([]string, error) {
	query := `SELECT name FROM region_names ORDER BY name`

	var names []string
	if err := exec.SelectContext(ctx, &names, query); err != nil {
		return nil, NewStoreError("ListReservedNames", "region_name", "", err.Error(), err)
	}

	return names, nil
}

func saveAllocation(ctx context.Context, exec executor, alloc *domain.NetworkAllocation) error {
	query := `
		INSERT INTO allocations (region_name, subnet, gateway, external_port)
		VALUES (:region_name, :subnet, :gateway, :external_port)`

	row := map[string]any{
		"region_name":   alloc.RegionName,
		"subnet":        alloc.Subnet,
		"gateway":       alloc.Gateway,
		"external_port": alloc.ExternalPort,
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("SaveAllocation", "allocation", alloc.RegionName, "subnet or port already persisted", ErrDuplicateAllocation)
		}
		return NewStoreError("SaveAllocation", "allocation", alloc.RegionName, err.Error(), err)
	}

	return nil
}

func deleteAllocation(ctx context.Context, exec executor, regionName string) error {
	query := `DELETE FROM allocations WHERE region_name = ?`

	result, err := exec.ExecContext(ctx, query, regionName)
	if err != nil {
		return NewStoreError("DeleteAllocation", "allocation", regionName, err.Error(), err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return NewStoreError("DeleteAllocation", "allocation", regionName, err.Error(), err)
	}
	if affected == 0 {
		return NewStoreError("DeleteAllocation", "allocation", regionName, "allocation not found", ErrNotFound)
	}

	return nil
}

func listAllocations(ctx context.Context, exec executor) ([]domain.NetworkAllocation, error) {
	query := `SELECT * FROM allocations ORDER BY region_name`

	var rows []allocationRow
	if err := exec.SelectContext(ctx, &rows, query); err != nil {
		return nil, NewStoreError("ListAllocations", "allocation", "", err.Error(), err)
	}

	allocs := make([]domain.NetworkAllocation, 0, len(rows))
	for _, row := range rows {
		allocs = append(allocs, domain.NetworkAllocation{
			RegionName:   row.RegionName,
			Subnet:       row.Subnet,
			Gateway:      row.Gateway,
			ExternalPort: row.ExternalPort,
		})
	}

	return allocs, nil
}

func saveRegionSecret(ctx context.Context, exec executor, regionName, sealed string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	query := `
		INSERT INTO region_secrets (region_name, sealed, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(region_name) DO UPDATE SET sealed = excluded.sealed, updated_at = excluded.updated_at`

	if _, err := exec.ExecContext(ctx, query, regionName, sealed, now, now); err != nil {
		return NewStoreError("SaveRegionSecret", "secret", regionName, err.Error(), err)
	}

	return nil
}

func getRegionSecret(ctx context.Context, exec executor, regionName string) (string, error) {
	query := `SELECT sealed FROM region_secrets WHERE region_name = ?`

	var sealed string
	if err := exec.GetContext(ctx, &sealed, query, regionName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", NewStoreError("GetRegionSecret", "secret", regionName, "secret not found", ErrNotFound)
		}
		return "", NewStoreError("GetRegionSecret", "secret", regionName, err.Error(), err)
	}

	return sealed, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func regionToRow(region *domain.Region) (map[string]any, error) {
	customRules, err := marshalMap(region.Config.CustomRules)
	if err != nil {
		return nil, err
	}
	languagePack, err := marshalMap(region.Config.LanguagePack)
	if err != nil {
		return nil, err
	}
	aestheticTheme, err := marshalMap(region.Config.AestheticTheme)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"id":               region.ID,
		"name":             region.Config.Name,
		"owner_id":         region.Config.OwnerID,
		"governance":       string(region.Config.Governance),
		"specialization":   string(region.Config.Specialization),
		"starting_credits": region.Config.StartingCredits,
		"starting_ship":    region.Config.StartingShip,
		"max_players":      region.Config.MaxPlayers,
		"cpu_cores":        region.Config.CPUCores,
		"memory_gb":        region.Config.MemoryGB,
		"disk_gb":          region.Config.DiskGB,
		"custom_rules":     customRules,
		"language_pack":    languagePack,
		"aesthetic_theme":  aestheticTheme,
		"status":           string(region.Status),
		"error_message":    region.ErrorMessage,
		"created_at":       region.CreatedAt.Format(time.RFC3339),
		"updated_at":       region.UpdatedAt.Format(time.RFC3339),
		"activated_at":     formatNullableTime(region.ActivatedAt),
		"terminated_at":    formatNullableTime(region.TerminatedAt),
	}, nil
}

func rowToRegion(ctx context.Context, exec executor, row *regionRow) (*domain.Region, error) {
	customRules, err := unmarshalMap(row.CustomRules)
	if err != nil {
		return nil, NewStoreError("rowToRegion", "region", row.ID, "invalid custom_rules JSON", ErrInvalidData)
	}
	languagePack, err := unmarshalMap(row.LanguagePack)
	if err != nil {
		return nil, NewStoreError("rowToRegion", "region", row.ID, "invalid language_pack JSON", ErrInvalidData)
	}
	aestheticTheme, err := unmarshalMap(row.AestheticTheme)
	if err != nil {
		return nil, NewStoreError("rowToRegion", "region", row.ID, "invalid aesthetic_theme JSON", ErrInvalidData)
	}

	createdAt, err := time.Parse(time.RFC3339, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToRegion", "region", row.ID, "invalid created_at timestamp", ErrInvalidData)
	}
	updatedAt, err := time.Parse(time.RFC3339, row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToRegion", "region", row.ID, "invalid updated_at timestamp", ErrInvalidData)
	}
	activatedAt, err := parseNullableTime(row.ActivatedAt)
	if err != nil {
		return nil, NewStoreError("rowToRegion", "region", row.ID, "invalid activated_at timestamp", ErrInvalidData)
	}
	terminatedAt, err := parseNullableTime(row.TerminatedAt)
	if err != nil {
		return nil, NewStoreError("rowToRegion", "region", row.ID, "invalid terminated_at timestamp", ErrInvalidData)
	}

	region := &domain.Region{
		ID: row.ID,
		Config: domain.RegionConfig{
			Name:            row.Name,
			OwnerID:         row.OwnerID,
			Governance:      domain.GovernanceType(row.Governance),
			Specialization:  domain.Specialization(row.Specialization),
			StartingCredits: row.StartingCredits,
			StartingShip:    row.StartingShip,
			MaxPlayers:      row.MaxPlayers,
			CPUCores:        row.CPUCores,
			MemoryGB:        row.MemoryGB,
			DiskGB:          row.DiskGB,
			CustomRules:     customRules,
			LanguagePack:    languagePack,
			AestheticTheme:  aestheticTheme,
		},
		Status:       domain.RegionStatus(row.Status),
		ErrorMessage: row.ErrorMessage,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		ActivatedAt:  activatedAt,
		TerminatedAt: terminatedAt,
	}

	// Attach the held allocation, if any.
	var allocRow allocationRow
	err = exec.GetContext(ctx, &allocRow, `SELECT * FROM allocations WHERE region_name = ?`, row.Name)
	switch {
	case err == nil:
		region.Allocation = &domain.NetworkAllocation{
			RegionName:   allocRow.RegionName,
			Subnet:       allocRow.Subnet,
			Gateway:      allocRow.Gateway,
			ExternalPort: allocRow.ExternalPort,
		}
	case errors.Is(err, sql.ErrNoRows):
		// Region holds no allocation
	default:
		return nil, NewStoreError("rowToRegion", "allocation", row.Name, err.Error(), err)
	}

	return region, nil
}

func rowsToRegions(ctx context.Context, exec executor, rows []regionRow, op string) ([]domain.Region, error) {
	regions := make([]domain.Region, 0, len(rows))
	for i := range rows {
		region, err := rowToRegion(ctx, exec, &rows[i])
		if err != nil {
			return nil, NewStoreError(op, "region", rows[i].ID, err.Error(), err)
		}
		regions = append(regions, *region)
	}
	return regions, nil
}

// marshalMap serializes a string map to JSON, mapping empty to NULL.
func marshalMap(m map[string]string) (*string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func unmarshalMap(s *string) (map[string]string, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(*s), &m); err != nil {
		return nil, err
	}
	return m, nil
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func parseNullableTime(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
