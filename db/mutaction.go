package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nickyhof/TenantDB/core"
	"github.com/nickyhof/TenantDB/op"
	"github.com/nickyhof/TenantDB/ps"
	"github.com/nickyhof/TenantDB/sql"
)

// ListArg replaces the values of a list field.
type ListArg struct {
	Field  *core.ScalarField
	Values []core.Value
}

// NodeInput holds the scalar and list values of a create or update.
type NodeInput struct {
	Args  sql.Args
	Lists []ListArg
}

func (in NodeInput) value(field *core.ScalarField) (core.Value, bool) {
	for _, a := range in.Args {
		if a.Field == field {
			return a.Value, true
		}
	}
	return nil, false
}

// newID generates an id for a created node.
func newID(field *core.ScalarField) (core.GraphqlID, error) {
	switch field.Type {
	case core.UUIDType:
		return core.UUIDID(uuid.Must(uuid.NewV7())), nil
	case core.GraphQLIDType, core.StringType:
		return core.NewCUID(), nil
	default:
		return core.GraphqlID{}, fmt.Errorf("model %s requires an explicit %s", field.Model().Name, field.Name)
	}
}

// CreateNode inserts a node and its list values and returns its id. An id
// is generated when the input has none.
func (r *Resolver) CreateNode(ctx context.Context, model *core.Model, in NodeInput) (core.GraphqlID, error) {
	idField := model.ID()
	args := in.Args
	var id core.GraphqlID
	if v, ok := in.value(idField); ok && !core.IsNull(v) {
		gid, err := core.ToGraphqlID(v)
		if err != nil {
			return core.GraphqlID{}, err
		}
		id = gid
	} else {
		gid, err := newID(idField)
		if err != nil {
			return core.GraphqlID{}, err
		}
		id = gid
		args = append(sql.Args{{Field: idField, Value: core.IDValue(id)}}, args...)
	}

	err := r.executor.WithTransaction(ctx, tenantOf(model), func(tx ps.Transaction) error {
		if _, err := tx.Write(ctx, sql.CreateNode(model, args)); err != nil {
			return err
		}
		return writeLists(ctx, tx, id, in.Lists)
	})
	if err != nil {
		return core.GraphqlID{}, err
	}
	return id, nil
}

// UpdateNode applies in to the node a selector addresses and returns its id.
func (r *Resolver) UpdateNode(ctx context.Context, selector sql.NodeSelector, in NodeInput) (core.GraphqlID, error) {
	model := selector.Model()
	return ps.RunInTransaction(ctx, r.executor, tenantOf(model), func(tx ps.Transaction) (core.GraphqlID, error) {
		id, err := op.FindID(ctx, tx, selector)
		if err != nil {
			return core.GraphqlID{}, err
		}
		if len(in.Args) > 0 {
			where := sql.IDIn(model, []core.GraphqlID{id})
			if _, err := tx.Write(ctx, sql.UpdateNodes(model, in.Args, where)); err != nil {
				return core.GraphqlID{}, err
			}
		}
		if err := writeLists(ctx, tx, id, in.Lists); err != nil {
			return core.GraphqlID{}, err
		}
		return id, nil
	})
}

func writeLists(ctx context.Context, tx ps.Transaction, id core.GraphqlID, lists []ListArg) error {
	for _, l := range lists {
		for _, q := range sql.SetScalarList(l.Field, id, l.Values) {
			if _, err := tx.Write(ctx, q); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteNode removes the node a selector addresses and returns its scalar
// fields as they were before the delete.
func (r *Resolver) DeleteNode(ctx context.Context, selector sql.NodeSelector) (*core.SingleNode, error) {
	model := selector.Model()
	fields := model.ScalarFields()
	sel := sql.GetNodeByWhere(selector, fields)
	return ps.RunInTransaction(ctx, r.executor, tenantOf(model), func(tx ps.Transaction) (*core.SingleNode, error) {
		row, err := op.Find(ctx, tx, sel, fields.TypeIdentifiers())
		if errors.Is(err, core.ErrNodeDoesNotExist) {
			return nil, &core.NodeNotFoundForWhereError{Where: selector.Info()}
		}
		if err != nil {
			return nil, err
		}
		node, err := core.NewSingleNode(core.NodeFromRow(row), fields.Names())
		if err != nil {
			return nil, err
		}
		id, ok := node.ID(model.ID().Name)
		if !ok {
			return nil, fmt.Errorf("node of %s has no id", model.Name)
		}
		if _, err := deleteByIDs(ctx, tx, model, []core.GraphqlID{id}); err != nil {
			return nil, err
		}
		return node, nil
	})
}

// DeleteNodes removes every node of a model matching filter together with
// its relation rows and list values, and returns how many nodes were
// removed.
func (r *Resolver) DeleteNodes(ctx context.Context, model *core.Model, filter sql.Filter) (int64, error) {
	return ps.RunInTransaction(ctx, r.executor, tenantOf(model), func(tx ps.Transaction) (int64, error) {
		ids, err := op.FilterIDs(ctx, tx, model, filter)
		if err != nil {
			return 0, err
		}
		if len(ids) == 0 {
			return 0, nil
		}
		return deleteByIDs(ctx, tx, model, ids)
	})
}

func deleteByIDs(ctx context.Context, tx ps.Transaction, model *core.Model, ids []core.GraphqlID) (int64, error) {
	var deleted int64
	err := tx.WithoutForeignKeyChecks(ctx, func() error {
		for _, d := range sql.DeleteRelationsByNodes(model, ids) {
			if _, err := tx.Write(ctx, d); err != nil {
				return err
			}
		}
		for _, d := range sql.DeleteScalarLists(model, ids) {
			if _, err := tx.Write(ctx, d); err != nil {
				return err
			}
		}
		n, err := tx.Write(ctx, sql.DeleteNodes(model, sql.IDIn(model, ids)))
		deleted = n
		return err
	})
	return deleted, err
}

// Connect links the child a selector addresses to parentID through field.
func (r *Resolver) Connect(ctx context.Context, field *core.RelationField, parentID core.GraphqlID, child sql.NodeSelector) error {
	return r.executor.WithTransaction(ctx, tenantOf(field.Model()), func(tx ps.Transaction) error {
		parent := sql.NodeSelector{Field: field.Model().ID(), Value: core.IDValue(parentID)}
		if _, err := op.FindID(ctx, tx, parent); err != nil {
			return err
		}
		childID, err := op.FindID(ctx, tx, child)
		if err != nil {
			return err
		}
		_, err = tx.Write(ctx, sql.CreateRelation(field, parentID, childID))
		return err
	})
}

// Disconnect removes the link between parentID and the child a selector
// addresses. It fails with *core.NodesNotConnectedError when they are not
// linked.
func (r *Resolver) Disconnect(ctx context.Context, field *core.RelationField, parentID core.GraphqlID, child sql.NodeSelector) error {
	return r.executor.WithTransaction(ctx, tenantOf(field.Model()), func(tx ps.Transaction) error {
		childID, err := op.FindIDByParent(ctx, tx, field, parentID, &child)
		if err != nil {
			return err
		}
		_, err = tx.Write(ctx, sql.DeleteRelation(field, parentID, childID))
		return err
	})
}
