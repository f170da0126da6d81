package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/nickyhof/TenantDB/core"
	"github.com/nickyhof/TenantDB/op"
	"github.com/nickyhof/TenantDB/ps"
	"github.com/nickyhof/TenantDB/sql"
)

// Resolver reads and writes domain nodes. Every operation runs in one unit
// of work against the tenant named by the owning schema's DBName.
type Resolver struct {
	executor ps.Transactional
}

// NewResolver creates a resolver running units of work on executor.
func NewResolver(executor ps.Transactional) *Resolver {
	return &Resolver{executor: executor}
}

func tenantOf(model *core.Model) string {
	return model.Schema().DBName
}

func checkSelection(model *core.Model, fields core.SelectedFields) error {
	if len(fields) == 0 {
		return fmt.Errorf("read %s: %w", model.Name, core.ErrNoFieldsSelected)
	}
	return nil
}

// GetNodeByWhere returns the node a unique selector addresses, or nil when
// no node matches.
func (r *Resolver) GetNodeByWhere(ctx context.Context, selector sql.NodeSelector, fields core.SelectedFields) (*core.SingleNode, error) {
	if err := checkSelection(selector.Model(), fields); err != nil {
		return nil, err
	}
	sel := sql.GetNodeByWhere(selector, fields)
	return ps.RunInTransaction(ctx, r.executor, tenantOf(selector.Model()), func(tx ps.Transaction) (*core.SingleNode, error) {
		row, err := op.Find(ctx, tx, sel, fields.TypeIdentifiers())
		if errors.Is(err, core.ErrNodeDoesNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return core.NewSingleNode(core.NodeFromRow(row), fields.Names())
	})
}

// GetNodes returns a filtered and paged listing of a model.
func (r *Resolver) GetNodes(ctx context.Context, model *core.Model, args sql.QueryArguments, fields core.SelectedFields) (core.ManyNodes, error) {
	if err := checkSelection(model, fields); err != nil {
		return core.ManyNodes{}, err
	}
	sel := sql.GetNodes(model, args, fields)
	return ps.RunInTransaction(ctx, r.executor, tenantOf(model), func(tx ps.Transaction) (core.ManyNodes, error) {
		rows, err := tx.Filter(ctx, sel, fields.TypeIdentifiers())
		if err != nil {
			return core.ManyNodes{}, err
		}
		nodes := make([]core.Node, len(rows))
		for i, row := range rows {
			nodes[i] = core.NodeFromRow(row)
		}
		return core.ManyNodes{Nodes: nodes, FieldNames: fields.Names()}, nil
	})
}

// GetRelatedNodes returns the nodes reachable through field from any of
// parentIDs. Each node carries the id of the parent it was reached from.
func (r *Resolver) GetRelatedNodes(ctx context.Context, field *core.RelationField, parentIDs []core.GraphqlID, args sql.QueryArguments, fields core.SelectedFields) (core.ManyNodes, error) {
	if err := checkSelection(field.RelatedModel, fields); err != nil {
		return core.ManyNodes{}, err
	}
	rel := sql.GetRelatedNodes(field, parentIDs, args, fields)
	return ps.RunInTransaction(ctx, r.executor, tenantOf(field.RelatedModel), func(tx ps.Transaction) (core.ManyNodes, error) {
		rows, err := tx.Filter(ctx, rel.Select, rel.Idents)
		if err != nil {
			return core.ManyNodes{}, err
		}
		nodes := make([]core.Node, len(rows))
		for i, row := range rows {
			proj, err := rel.Project(row)
			if err != nil {
				return core.ManyNodes{}, err
			}
			node := core.Node{Values: proj.Values}
			node.AddParentID(proj.ParentID)
			nodes[i] = node
		}
		return core.ManyNodes{Nodes: nodes, FieldNames: fields.Names()}, nil
	})
}

// CountByModel counts the nodes of a model matching args.
func (r *Resolver) CountByModel(ctx context.Context, model *core.Model, args sql.QueryArguments) (int64, error) {
	sel := sql.CountByModel(model, args)
	return ps.RunInTransaction(ctx, r.executor, tenantOf(model), func(tx ps.Transaction) (int64, error) {
		return op.FindInt(ctx, tx, sel)
	})
}

// CountByTable counts the rows of any table of a tenant.
func (r *Resolver) CountByTable(ctx context.Context, tenant, table string) (int64, error) {
	sel := sql.CountByTable(tenant, table)
	return ps.RunInTransaction(ctx, r.executor, tenant, func(tx ps.Transaction) (int64, error) {
		return op.FindInt(ctx, tx, sel)
	})
}

// GetScalarListValuesByNodeIDs returns the values of a list field for each
// of nodeIDs that has any. Rows arrive ordered by owner, and each
// contiguous run of one owner becomes one entry.
func (r *Resolver) GetScalarListValuesByNodeIDs(ctx context.Context, field *core.ScalarField, nodeIDs []core.GraphqlID) ([]core.ScalarListValues, error) {
	sel := sql.GetScalarListValuesByNodeIDs(field, nodeIDs)
	idents := sql.ScalarListIdents(field)
	return ps.RunInTransaction(ctx, r.executor, tenantOf(field.Model()), func(tx ps.Transaction) ([]core.ScalarListValues, error) {
		rows, err := tx.Filter(ctx, sel, idents)
		if err != nil {
			return nil, err
		}
		elements := make([]core.ScalarListElement, len(rows))
		for i, row := range rows {
			id, err := core.ToGraphqlID(row.Values[0])
			if err != nil {
				return nil, err
			}
			elements[i] = core.ScalarListElement{NodeID: id, Value: row.Values[1]}
		}
		return core.GroupScalarListValues(elements), nil
	})
}
