package ps

import (
	"context"
	stdsql "database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/nickyhof/TenantDB/logging"
	"github.com/pkg/errors"
)

var ErrInvalidTenant = errors.New("invalid tenant name")

// Options configure a Persistence. They are fixed for its lifetime.
type Options struct {
	Dialect         Dialect
	DatabasesPath   string
	ConnectionLimit int
	AcquireTimeout  time.Duration
	// TestMode detaches the tenant from the connection when a lease ends.
	// On engines with a shared catalog the detach waits for the tenant's
	// last lease.
	TestMode           bool
	StatementCacheSize int
	Seeder             *Seeder
	S3                 *S3Config
}

// Persistence multiplexes file-backed tenant databases as attached schemas
// of one shared in-memory engine instance.
type Persistence struct {
	opts Options
	db   *stdsql.DB
	pool *pool

	// seedMu serializes seeding so two leases never race on one file.
	seedMu sync.Mutex

	// leaseMu guards leases, the open lease count per tenant. It is only
	// used in test mode on engines with a shared catalog.
	leaseMu sync.Mutex
	leases  map[string]int
}

// New opens the engine and its connection pool.
func New(ctx context.Context, opts Options) (*Persistence, error) {
	if opts.Dialect == nil {
		opts.Dialect = SQLite{}
	}
	if opts.DatabasesPath == "" {
		return nil, errors.New("databases path is required")
	}
	if opts.ConnectionLimit == 0 {
		opts.ConnectionLimit = 1
	}
	if err := os.MkdirAll(opts.DatabasesPath, 0755); err != nil {
		return nil, errors.Wrap(err, "create databases directory")
	}

	db, err := opts.Dialect.Open()
	if err != nil {
		return nil, err
	}
	pool, err := newPool(ctx, db, opts.ConnectionLimit, opts.AcquireTimeout, opts.StatementCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	logging.GetLogger().Debug("Connection pool opened",
		slog.String("engine", opts.Dialect.Name()),
		slog.Int("connections", opts.ConnectionLimit),
		slog.String("path", opts.DatabasesPath))

	return &Persistence{opts: opts, db: db, pool: pool, leases: make(map[string]int)}, nil
}

// Dialect returns the engine adapter.
func (p *Persistence) Dialect() Dialect {
	return p.opts.Dialect
}

// TenantPath is the backing file of a tenant.
func (p *Persistence) TenantPath(tenant string) string {
	return filepath.Join(p.opts.DatabasesPath, tenant+p.opts.Dialect.FileExtension())
}

// ValidateTenant rejects names that cannot be both a file name and a
// schema alias.
func (p *Persistence) ValidateTenant(tenant string) error {
	switch {
	case tenant == "", tenant == ".", tenant == "..":
	case strings.ContainsAny(tenant, `/\`+"\x00"):
	case p.opts.Dialect.Reserved(tenant):
	default:
		return nil
	}
	return errors.Wrapf(ErrInvalidTenant, "%q", tenant)
}

// Lease is a pooled connection with a tenant attached. It is owned by one
// unit of work until Release.
type Lease struct {
	p      *Persistence
	conn   *pooledConn
	tenant string
	done   bool
}

// Tenant is the schema alias attached for this lease.
func (l *Lease) Tenant() string {
	return l.tenant
}

// Acquire checks a connection out of the pool and makes sure the tenant is
// attached to it. Foreign key enforcement is switched back on for every
// lease.
func (p *Persistence) Acquire(ctx context.Context, tenant string) (*Lease, error) {
	if err := p.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	conn, err := p.pool.get(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.opts.Dialect.EnforceForeignKeys(ctx, conn.raw); err != nil {
		p.pool.put(conn)
		return nil, err
	}
	if err := p.attachCounted(ctx, conn, tenant); err != nil {
		p.pool.put(conn)
		return nil, err
	}
	return &Lease{p: p, conn: conn, tenant: tenant}, nil
}

func (p *Persistence) countsLeases() bool {
	return p.opts.TestMode && p.opts.Dialect.SharedCatalog()
}

// attachCounted attaches tenant and, when leases are counted, records the
// lease while holding leaseMu so a concurrent release cannot detach the
// tenant in between.
func (p *Persistence) attachCounted(ctx context.Context, conn *pooledConn, tenant string) error {
	if !p.countsLeases() {
		return p.attach(ctx, conn, tenant)
	}
	p.leaseMu.Lock()
	defer p.leaseMu.Unlock()
	if err := p.attach(ctx, conn, tenant); err != nil {
		return err
	}
	p.leases[tenant]++
	return nil
}

// detach drops the tenant from conn's catalog. With a shared catalog only
// the tenant's last lease detaches.
func (p *Persistence) detach(conn *pooledConn, tenant string) error {
	if p.countsLeases() {
		p.leaseMu.Lock()
		defer p.leaseMu.Unlock()
		p.leases[tenant]--
		if p.leases[tenant] > 0 {
			return nil
		}
		delete(p.leases, tenant)
	}
	if err := p.opts.Dialect.Detach(context.Background(), conn.raw, tenant); err != nil {
		return err
	}
	logging.WithTenant(tenant).Debug("Tenant detached")
	return nil
}

// attach is a no-op when the tenant is already in the connection's catalog.
func (p *Persistence) attach(ctx context.Context, conn *pooledConn, tenant string) error {
	names, err := p.opts.Dialect.AttachedDatabases(ctx, conn.raw)
	if err != nil {
		return err
	}
	if slices.Contains(names, tenant) {
		return nil
	}

	path := p.TenantPath(tenant)
	if err := p.seed(ctx, tenant, path); err != nil {
		return err
	}
	if err := p.opts.Dialect.Attach(ctx, conn.raw, path, tenant); err != nil {
		return err
	}
	logging.WithTenant(tenant).Debug("Tenant attached", slog.String("path", path))
	return nil
}

func (p *Persistence) seed(ctx context.Context, tenant, path string) error {
	if p.opts.Seeder == nil {
		return nil
	}
	p.seedMu.Lock()
	defer p.seedMu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "stat tenant file")
	}
	if err := p.opts.Seeder.Seed(ctx, tenant, path); err != nil {
		return err
	}
	logging.WithTenant(tenant).Debug("Tenant seeded", slog.String("source", p.opts.Seeder.Source(tenant)))
	return nil
}

// Release returns the connection to the pool. In test mode the tenant is
// detached first, after the lease's prepared statements are closed.
// Release is idempotent.
func (l *Lease) Release() error {
	if l.done {
		return nil
	}
	l.done = true

	var err error
	if l.p.opts.TestMode {
		l.conn.stmts.purge()
		err = l.p.detach(l.conn, l.tenant)
	}
	l.p.pool.put(l.conn)
	return err
}

// Export copies a tenant's file to a local path, a file:// URL or an s3://
// URL. The copy is taken while holding a lease so no unit of work on that
// connection runs concurrently.
func (p *Persistence) Export(ctx context.Context, tenant, url string) error {
	lease, err := p.Acquire(ctx, tenant)
	if err != nil {
		return err
	}
	defer lease.Release()
	return copyOut(ctx, p.TenantPath(tenant), url, p.opts.S3)
}

// Close closes every pooled connection and the engine.
func (p *Persistence) Close() error {
	err := p.pool.close()
	if cerr := p.db.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "close engine")
	}
	logging.GetLogger().Debug("Connection pool closed", slog.String("engine", p.opts.Dialect.Name()))
	return err
}
