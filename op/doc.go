// Package op provides the read primitives units of work are built from.
//
// Every function runs inside an open ps.Transaction and composes sql
// builders with Transaction.Filter:
//
//	row, err := op.Find(ctx, tx, sel, idents)        // at most one row, or core.ErrNodeDoesNotExist
//	n, err := op.FindInt(ctx, tx, sql.CountByTable("t1", "User"))
//	id, err := op.FindID(ctx, tx, selector)          // *core.NodeNotFoundForWhereError when missing
//	ids, err := op.FilterIDs(ctx, tx, model, filter)
//	id, err := op.FindIDByParent(ctx, tx, field, parentID, &selector)
//	ids, err := op.FilterIDsByParents(ctx, tx, field, parentIDs, filter)
//
// FindIDByParent reports *core.NodesNotConnectedError when the parent has
// no matching child.
//
// # Architecture
//
//	Data Resolver (db/)
//	     ↓
//	Primitives (op/)     ← This package
//	     ↓
//	Persistence (ps/)
//	     ↓
//	SQLite / DuckDB
package op
