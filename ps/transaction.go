package ps

import (
	"context"

	"github.com/google/uuid"
	"github.com/nickyhof/TenantDB/core"
	"github.com/nickyhof/TenantDB/logging"
	"github.com/nickyhof/TenantDB/sql"
	"github.com/pkg/errors"
)

// Transaction is the handle a unit of work receives. It is bound to one
// leased connection and must not be used after the unit of work returns.
type Transaction interface {
	// Write executes a non-returning statement and reports the number of
	// changed rows.
	Write(ctx context.Context, q sql.Query) (int64, error)
	// Filter executes a select and decodes every row against idents.
	Filter(ctx context.Context, s *sql.Select, idents []core.TypeIdentifier) ([]core.Row, error)
	// WithoutForeignKeyChecks relaxes referential integrity checks while fn
	// runs. Checks are restored when fn succeeds; when it fails the
	// transaction is expected to roll back.
	WithoutForeignKeyChecks(ctx context.Context, fn func() error) error
	Tenant() string
}

// Transactional runs units of work against tenants.
type Transactional interface {
	WithTransaction(ctx context.Context, tenant string, fn func(Transaction) error) error
}

// RunInTransaction runs fn in a unit of work and returns its result.
func RunInTransaction[T any](ctx context.Context, t Transactional, tenant string, fn func(Transaction) (T, error)) (T, error) {
	var result T
	err := t.WithTransaction(ctx, tenant, func(tx Transaction) error {
		var err error
		result, err = fn(tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// WithTransaction leases a connection for tenant, opens a transaction and
// runs fn. The transaction commits if and only if fn returns nil; every
// other exit, including a panic in fn, rolls back.
func (p *Persistence) WithTransaction(ctx context.Context, tenant string, fn func(Transaction) error) (err error) {
	lease, err := p.Acquire(ctx, tenant)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lease.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()

	unit := uuid.Must(uuid.NewV7()).String()
	log := logging.WithUnit(tenant, unit)
	conn := lease.conn.raw

	if _, err := conn.ExecContext(ctx, "BEGIN TRANSACTION"); err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	log.Debug("Transaction started")

	committed := false
	defer func() {
		if committed {
			return
		}
		// The caller's context may be done already; rollback must still run.
		if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr == nil {
			log.Debug("Transaction rolled back")
		}
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	tx := &transaction{lease: lease, dialect: p.opts.Dialect}
	if err := fn(tx); err != nil {
		return err
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	committed = true
	log.Debug("Transaction committed")
	return nil
}

type transaction struct {
	lease   *Lease
	dialect Dialect
}

func (t *transaction) Tenant() string {
	return t.lease.tenant
}

func (t *transaction) Write(ctx context.Context, q sql.Query) (int64, error) {
	text, params := sql.Build(q)
	stmt, err := t.lease.conn.stmts.prepare(ctx, text)
	if err != nil {
		return 0, err
	}
	res, err := stmt.ExecContext(ctx, params...)
	if err != nil {
		return 0, errors.Wrapf(err, "execute %q", text)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}

func (t *transaction) Filter(ctx context.Context, s *sql.Select, idents []core.TypeIdentifier) ([]core.Row, error) {
	text, params := sql.Build(s)
	stmt, err := t.lease.conn.stmts.prepare(ctx, text)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.QueryContext(ctx, params...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %q", text)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}
	if len(cols) != len(idents) {
		return nil, errors.Errorf("query projects %d columns but %d type identifiers were declared", len(cols), len(idents))
	}

	var result []core.Row
	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		row, err := core.DecodeRow(raw, idents)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read rows")
	}
	return result, nil
}

func (t *transaction) WithoutForeignKeyChecks(ctx context.Context, fn func() error) error {
	conn := t.lease.conn.raw
	if err := t.dialect.DeferForeignKeys(ctx, conn, true); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return t.dialect.DeferForeignKeys(ctx, conn, false)
}
