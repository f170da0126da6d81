// Package ps is the persistence layer of TenantDB.
//
// A Persistence owns one shared in-memory engine instance (SQLite through
// modernc.org/sqlite, or DuckDB) and a fixed pool of connections to it.
// Tenant databases are files under a root directory, attached to a
// connection as a schema named after the tenant the first time a unit of
// work needs them.
//
// # Units of Work
//
//	p, err := ps.New(ctx, ps.Options{DatabasesPath: "/var/lib/tenantdb", ConnectionLimit: 4})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	n, err := ps.RunInTransaction(ctx, p, "t1", func(tx ps.Transaction) (int64, error) {
//	    return tx.Write(ctx, sql.DeleteNodes(model, filter))
//	})
//
// A unit of work commits only when its function returns nil. Errors and
// panics roll back.
//
// # Test Mode
//
// With Options.TestMode set, a tenant is detached from its connection when
// the lease ends, so every unit of work starts from a clean catalog. DuckDB
// shares one catalog between connections, so there the tenant is detached
// when its last open lease ends.
//
// # Seeding and Export
//
// A Seeder copies a template file into place before a tenant's first
// attach. Export copies a tenant file out. Both understand local paths,
// file:// and s3:// URLs; seeding also reads http(s):// URLs.
//
// # Datamodels
//
// LoadDatamodelFile and LoadDatamodelGit read the JSON datamodel describing
// models, fields and relations.
package ps
