package db

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// A migrations root holds one directory per schema kind.
const (
	sharedMigrations = "shared"
	tenantMigrations = "tenant"
)

// Migration is one numbered SQL file, e.g. 003_bookings.sql.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrator applies the numbered SQL files of one directory to a schema and
// records them in <schema>._migrations.
type Migrator struct {
	pool Beginner
	dir  string
}

func NewMigrator(pool Beginner, dir string) *Migrator {
	return &Migrator{pool: pool, dir: dir}
}

// LoadMigrations returns the directory's migrations in version order.
// Files without a numeric prefix are ignored; two files sharing a version are
// an error.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory %s: %w", m.dir, err)
	}

	var out []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		version, ok := migrationVersion(entry)
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, entry.Name(), version)
		}
		seen[version] = entry.Name()

		body, err := os.ReadFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", entry.Name(), err)
		}
		out = append(out, Migration{Version: version, Name: entry.Name(), SQL: string(body)})
	}

	slices.SortFunc(out, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return out, nil
}

func migrationVersion(entry os.DirEntry) (int, bool) {
	if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
		return 0, false
	}
	prefix, _, found := strings.Cut(entry.Name(), "_")
	if !found {
		return 0, false
	}
	v, err := strconv.Atoi(prefix)
	return v, err == nil
}

// ledger creates schema and its _migrations table when missing and returns
// the applied versions with their timestamps.
func (m *Migrator) ledger(ctx context.Context, schema string) (map[int]time.Time, error) {
	ddl := fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %[1]s;
CREATE TABLE IF NOT EXISTS %[1]s._migrations (
    version INTEGER PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ DEFAULT NOW()
)`, schema)
	if _, err := m.pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("create _migrations table in %s: %w", schema, err)
	}

	rows, err := m.pool.Query(ctx, fmt.Sprintf(`SELECT version, applied_at FROM %s._migrations`, schema))
	if err != nil {
		return nil, fmt.Errorf("read _migrations in %s: %w", schema, err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			v  int
			at time.Time
		)
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan _migrations row: %w", err)
		}
		applied[v] = at
	}
	return applied, rows.Err()
}

// Up applies pending migrations to schema, each in its own transaction, and
// returns how many ran.
func (m *Migrator) Up(ctx context.Context, schema string) (int, error) {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	applied, err := m.ledger(ctx, schema)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migrations {
		if _, done := applied[mig.Version]; done {
			continue
		}
		if err := m.apply(ctx, schema, mig); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		count++
	}
	return count, nil
}

func (m *Migrator) apply(ctx context.Context, schema string, mig Migration) error {
	return RunInTx(ctx, m.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL search_path TO %s, %s, public", schema, SharedSchema)); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			return fmt.Errorf("execute SQL: %w", err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO _migrations (version, name) VALUES ($1, $2)", mig.Version, mig.Name); err != nil {
			return fmt.Errorf("record migration: %w", err)
		}
		return nil
	})
}

// Status lists every migration in the directory and whether schema has it.
func (m *Migrator) Status(ctx context.Context, schema string) ([]MigrationStatus, error) {
	migrations, err := m.LoadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.ledger(ctx, schema)
	if err != nil {
		return nil, err
	}

	out := make([]MigrationStatus, 0, len(migrations))
	for _, mig := range migrations {
		st := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			st.Applied = true
			st.AppliedAt = &at
		}
		out = append(out, st)
	}
	return out, nil
}

// SchemaMigrations is one schema's outcome from MigrateAll or StatusAll.
type SchemaMigrations struct {
	Schema   string
	Applied  int
	Statuses []MigrationStatus
}

// OrganizationLister names the organization schemas to visit. It runs once
// the shared schema has been handled, so it may read shared tables.
type OrganizationLister func(ctx context.Context) ([]uuid.UUID, error)

// MigrateShared brings the shared schema up to date from root/shared.
func MigrateShared(ctx context.Context, pool Beginner, root string) (int, error) {
	n, err := NewMigrator(pool, filepath.Join(root, sharedMigrations)).Up(ctx, SharedSchema)
	if err != nil {
		return n, fmt.Errorf("schema %s: %w", SharedSchema, err)
	}
	return n, nil
}

// TenantMigrationsDir is where organization schema migrations live under root.
func TenantMigrationsDir(root string) string {
	return filepath.Join(root, tenantMigrations)
}

// MigrateAll migrates the shared schema first, then each listed organization
// schema. It stops at the first failure and returns the schemas already done.
func MigrateAll(ctx context.Context, pool Beginner, root string, orgs OrganizationLister) ([]SchemaMigrations, error) {
	return eachSchema(ctx, pool, root, orgs, func(m *Migrator, schema string) (SchemaMigrations, error) {
		n, err := m.Up(ctx, schema)
		return SchemaMigrations{Schema: schema, Applied: n}, err
	})
}

// StatusAll reports the shared schema and each listed organization schema,
// in the same order MigrateAll would visit them.
func StatusAll(ctx context.Context, pool Beginner, root string, orgs OrganizationLister) ([]SchemaMigrations, error) {
	return eachSchema(ctx, pool, root, orgs, func(m *Migrator, schema string) (SchemaMigrations, error) {
		st, err := m.Status(ctx, schema)
		return SchemaMigrations{Schema: schema, Statuses: st}, err
	})
}

func eachSchema(ctx context.Context, pool Beginner, root string, orgs OrganizationLister,
	visit func(*Migrator, string) (SchemaMigrations, error)) ([]SchemaMigrations, error) {
	shared, err := visit(NewMigrator(pool, filepath.Join(root, sharedMigrations)), SharedSchema)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", SharedSchema, err)
	}
	out := []SchemaMigrations{shared}

	ids, err := orgs(ctx)
	if err != nil {
		return out, fmt.Errorf("list organizations: %w", err)
	}
	tenant := NewMigrator(pool, TenantMigrationsDir(root))
	for _, id := range ids {
		schema := SchemaName(id)
		res, err := visit(tenant, schema)
		if err != nil {
			return out, fmt.Errorf("schema %s: %w", schema, err)
		}
		out = append(out, res)
	}
	return out, nil
}
