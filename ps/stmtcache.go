package ps

import (
	"context"
	stdsql "database/sql"

	"github.com/golang/groupcache/lru"
	"github.com/pkg/errors"
)

// DefaultStatementCacheSize bounds the prepared statements kept per
// connection.
const DefaultStatementCacheSize = 65536

// stmtCache holds prepared statements of one connection keyed by text.
// It is used by one lease at a time and needs no locking.
type stmtCache struct {
	conn  *stdsql.Conn
	cache *lru.Cache
}

func newStmtCache(conn *stdsql.Conn, size int) *stmtCache {
	if size <= 0 {
		size = DefaultStatementCacheSize
	}
	cache := lru.New(size)
	cache.OnEvicted = func(_ lru.Key, value interface{}) {
		value.(*stdsql.Stmt).Close()
	}
	return &stmtCache{conn: conn, cache: cache}
}

func (c *stmtCache) prepare(ctx context.Context, text string) (*stdsql.Stmt, error) {
	if v, ok := c.cache.Get(text); ok {
		return v.(*stdsql.Stmt), nil
	}
	stmt, err := c.conn.PrepareContext(ctx, text)
	if err != nil {
		return nil, errors.Wrapf(err, "prepare %q", text)
	}
	c.cache.Add(text, stmt)
	return stmt, nil
}

// purge closes every cached statement.
func (c *stmtCache) purge() {
	c.cache.Clear()
}

func (c *stmtCache) len() int {
	return c.cache.Len()
}
