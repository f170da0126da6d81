package ps

import (
	"context"
	stdsql "database/sql"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// execer is the subset of *sql.Conn the dialects use.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (stdsql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*stdsql.Rows, error)
}

// Dialect adapts the multiplexer to one embedded engine.
type Dialect interface {
	// Name is the engine name used in configuration.
	Name() string
	// Open opens the shared in-memory engine instance.
	Open() (*stdsql.DB, error)
	// FileExtension is appended to tenant names to build file paths.
	FileExtension() string
	// AttachedDatabases lists the schema names attached to a connection.
	AttachedDatabases(ctx context.Context, conn execer) ([]string, error)
	Attach(ctx context.Context, conn execer, path, alias string) error
	Detach(ctx context.Context, conn execer, alias string) error
	// EnforceForeignKeys turns referential integrity checking on for the
	// connection. It must be called outside a transaction.
	EnforceForeignKeys(ctx context.Context, conn execer) error
	// DeferForeignKeys postpones checks to commit time inside the open
	// transaction, or restores immediate checking when on is false.
	DeferForeignKeys(ctx context.Context, conn execer, on bool) error
	// Reserved reports whether name is a schema the engine owns.
	Reserved(name string) bool
	// SharedCatalog reports whether an attach on one connection is visible
	// on every connection of the instance.
	SharedCatalog() bool
}

// DialectByName returns the dialect registered under name.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return SQLite{}, nil
	case "duckdb":
		return DuckDB{}, nil
	default:
		return nil, errors.Errorf("unknown engine %q", name)
	}
}

// SQLite is the dialect for modernc.org/sqlite. Every pooled connection is
// its own in-memory database, so tenants are attached per connection.
type SQLite struct{}

func (SQLite) Name() string          { return "sqlite" }
func (SQLite) FileExtension() string { return ".db" }
func (SQLite) SharedCatalog() bool   { return false }

// Open gives every connection a private in-memory main database. Writers
// on different connections wait for each other's locks on a shared tenant
// file instead of failing at once.
func (SQLite) Open() (*stdsql.DB, error) {
	db, err := stdsql.Open("sqlite", "file::memory:?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	return db, nil
}

func (SQLite) AttachedDatabases(ctx context.Context, conn execer) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "PRAGMA database_list")
	if err != nil {
		return nil, errors.Wrap(err, "read database list")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var (
			seq  int64
			name string
			file stdsql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return nil, errors.Wrap(err, "scan database list")
		}
		names = append(names, name)
	}
	return names, errors.Wrap(rows.Err(), "read database list")
}

func (SQLite) Attach(ctx context.Context, conn execer, path, alias string) error {
	_, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS ?", path, alias)
	return errors.Wrapf(err, "attach %s", alias)
}

func (SQLite) Detach(ctx context.Context, conn execer, alias string) error {
	_, err := conn.ExecContext(ctx, "DETACH DATABASE ?", alias)
	return errors.Wrapf(err, "detach %s", alias)
}

func (SQLite) EnforceForeignKeys(ctx context.Context, conn execer) error {
	_, err := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON")
	return errors.Wrap(err, "enable foreign keys")
}

func (SQLite) DeferForeignKeys(ctx context.Context, conn execer, on bool) error {
	stmt := "PRAGMA defer_foreign_keys = OFF"
	if on {
		stmt = "PRAGMA defer_foreign_keys = ON"
	}
	_, err := conn.ExecContext(ctx, stmt)
	return errors.Wrap(err, "defer foreign keys")
}

func (SQLite) Reserved(name string) bool {
	return strings.EqualFold(name, "main") || strings.EqualFold(name, "temp")
}

// DuckDB is the dialect for duckdb-go. Attached databases are shared by every
// connection of the instance.
type DuckDB struct{}

func (DuckDB) Name() string          { return "duckdb" }
func (DuckDB) FileExtension() string { return ".duckdb" }
func (DuckDB) SharedCatalog() bool   { return true }

func (DuckDB) Open() (*stdsql.DB, error) {
	db, err := stdsql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, "open duckdb")
	}
	return db, nil
}

func (DuckDB) AttachedDatabases(ctx context.Context, conn execer) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "SELECT database_name FROM duckdb_databases()")
	if err != nil {
		return nil, errors.Wrap(err, "read database list")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan database list")
		}
		names = append(names, name)
	}
	return names, errors.Wrap(rows.Err(), "read database list")
}

// Attach tolerates a concurrent attach of the same tenant by another
// connection of the instance.
func (DuckDB) Attach(ctx context.Context, conn execer, path, alias string) error {
	_, err := conn.ExecContext(ctx, "ATTACH IF NOT EXISTS "+quoteLiteral(path)+" AS "+quoteIdent(alias))
	return errors.Wrapf(err, "attach %s", alias)
}

func (DuckDB) Detach(ctx context.Context, conn execer, alias string) error {
	_, err := conn.ExecContext(ctx, "DETACH DATABASE IF EXISTS "+quoteIdent(alias))
	return errors.Wrapf(err, "detach %s", alias)
}

// DuckDB always enforces declared constraints.
func (DuckDB) EnforceForeignKeys(context.Context, execer) error     { return nil }
func (DuckDB) DeferForeignKeys(context.Context, execer, bool) error { return nil }

func (DuckDB) Reserved(name string) bool {
	switch strings.ToLower(name) {
	case "memory", "system", "temp", "main":
		return true
	}
	return false
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
