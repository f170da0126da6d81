package ps

import (
	"context"
	stdsql "database/sql"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

var (
	ErrPoolClosed  = errors.New("connection pool closed")
	ErrPoolTimeout = errors.New("timed out waiting for a pooled connection")
)

// DefaultAcquireTimeout is how long Acquire waits for a free connection.
const DefaultAcquireTimeout = 30 * time.Second

// pooledConn is a connection held by the pool for its whole lifetime.
type pooledConn struct {
	raw   *stdsql.Conn
	stmts *stmtCache
}

// pool is a fixed set of connections handed out one lease at a time.
type pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration

	mu     sync.Mutex
	idle   []*pooledConn
	all    []*pooledConn
	closed bool
}

func newPool(ctx context.Context, db *stdsql.DB, size int, timeout time.Duration, cacheSize int) (*pool, error) {
	if size < 1 {
		return nil, errors.Errorf("connection limit must be at least 1, got %d", size)
	}
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	db.SetMaxOpenConns(size)
	db.SetMaxIdleConns(size)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	p := &pool{sem: semaphore.NewWeighted(int64(size)), timeout: timeout}
	for i := 0; i < size; i++ {
		raw, err := db.Conn(ctx)
		if err != nil {
			p.close()
			return nil, errors.Wrap(err, "open pooled connection")
		}
		c := &pooledConn{raw: raw, stmts: newStmtCache(raw, cacheSize)}
		p.all = append(p.all, c)
		p.idle = append(p.idle, c)
	}
	return p, nil
}

func (p *pool) get(ctx context.Context) (*pooledConn, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrPoolTimeout
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.sem.Release(1)
		return nil, ErrPoolClosed
	}
	c := p.idle[len(p.idle)-1]
	p.idle = p.idle[:len(p.idle)-1]
	return c, nil
}

func (p *pool) put(c *pooledConn) {
	p.mu.Lock()
	p.idle = append(p.idle, c)
	p.mu.Unlock()
	p.sem.Release(1)
}

// close closes every connection. Connections still leased are closed too;
// their holders see errors on the next statement.
func (p *pool) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var first error
	for _, c := range p.all {
		c.stmts.purge()
		if err := c.raw.Close(); err != nil && first == nil {
			first = errors.Wrap(err, "close pooled connection")
		}
	}
	p.idle = nil
	return first
}
