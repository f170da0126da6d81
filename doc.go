// Package TenantDB is a multi-tenant embedded SQL connector.
//
// Every tenant is one database file, attached under the tenant's name as a
// schema of a shared in-memory SQLite or DuckDB instance. A bounded pool of
// connections serves units of work; each unit of work leases a connection,
// attaches its tenant on demand and runs in one transaction.
//
// # Quick Start
//
//	cfg := config.Default()
//	cfg.DatabasesPath = "/var/lib/tenantdb"
//	cfg.Datamodel.Path = "datamodel.json"
//
//	inst, err := TenantDB.Open(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close()
//
//	user := inst.Schema.Model("User")
//	nodes, err := inst.Resolver.GetNodes(ctx, user, sql.QueryArguments{}, user.ScalarFields())
//
// The datamodel's dbName is its default tenant. Instance.Tenant returns the
// same datamodel bound to any other tenant:
//
//	acme := inst.Tenant("acme").Model("User")
//	n, err := inst.Resolver.CountByModel(ctx, acme, sql.QueryArguments{})
//
// # Engines
//
//   - sqlite: modernc.org/sqlite, one in-memory database per connection
//   - duckdb: github.com/duckdb/duckdb-go, one shared in-memory instance
//
// # Seeding
//
// When a seed URL is configured, a tenant without a database file is
// copied from it before its first attach. The URL may be a local path or a
// file://, http(s):// or s3:// URL and may contain {tenant}.
package TenantDB
