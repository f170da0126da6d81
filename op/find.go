package op

import (
	"context"
	"errors"

	"github.com/nickyhof/TenantDB/core"
	"github.com/nickyhof/TenantDB/ps"
	"github.com/nickyhof/TenantDB/sql"
)

// Find runs s limited to one row and returns it, or core.ErrNodeDoesNotExist.
func Find(ctx context.Context, tx ps.Transaction, s *sql.Select, idents []core.TypeIdentifier) (core.Row, error) {
	rows, err := tx.Filter(ctx, s.WithLimit(1), idents)
	if err != nil {
		return core.Row{}, err
	}
	if len(rows) == 0 {
		return core.Row{}, core.ErrNodeDoesNotExist
	}
	return rows[0], nil
}

// FindInt returns the first column of the single row of s as an integer.
// s must project at least one column.
func FindInt(ctx context.Context, tx ps.Transaction, s *sql.Select) (int64, error) {
	idents := make([]core.TypeIdentifier, len(s.Columns))
	for i := range idents {
		idents[i] = core.IntType
	}
	row, err := Find(ctx, tx, s, idents)
	if err != nil {
		return 0, err
	}
	return core.ToInt64(row.Values[0])
}

// FindID resolves a unique selector to the id of its node.
func FindID(ctx context.Context, tx ps.Transaction, selector sql.NodeSelector) (core.GraphqlID, error) {
	model := selector.Model()
	id := model.ID()
	s := sql.NewSelect(sql.TableOf(model), sql.ColumnOf(id))
	s.Where = selector.Filter()

	row, err := Find(ctx, tx, s, []core.TypeIdentifier{id.Type})
	if errors.Is(err, core.ErrNodeDoesNotExist) {
		return core.GraphqlID{}, &core.NodeNotFoundForWhereError{Where: selector.Info()}
	}
	if err != nil {
		return core.GraphqlID{}, err
	}
	return core.ToGraphqlID(row.Values[0])
}

// FilterIDs returns the ids of every node of model matching filter.
func FilterIDs(ctx context.Context, tx ps.Transaction, model *core.Model, filter sql.Filter) ([]core.GraphqlID, error) {
	id := model.ID()
	s := sql.NewSelect(sql.TableOf(model), sql.ColumnOf(id))
	s.Where = filter

	rows, err := tx.Filter(ctx, s, []core.TypeIdentifier{id.Type})
	if err != nil {
		return nil, err
	}
	ids := make([]core.GraphqlID, 0, len(rows))
	for _, row := range rows {
		gid, err := core.ToGraphqlID(row.Values[0])
		if err != nil {
			return nil, err
		}
		ids = append(ids, gid)
	}
	return ids, nil
}

// FindIDByParent resolves the one child reachable from parentID through
// field, optionally narrowed by selector. It fails with
// *core.NodesNotConnectedError when nothing matches.
func FindIDByParent(ctx context.Context, tx ps.Transaction, field *core.RelationField, parentID core.GraphqlID, selector *sql.NodeSelector) (core.GraphqlID, error) {
	var filter sql.Filter
	if selector != nil {
		filter = selector.Filter()
	}
	ids, err := FilterIDsByParents(ctx, tx, field, []core.GraphqlID{parentID}, filter)
	if err != nil {
		return core.GraphqlID{}, err
	}
	if len(ids) == 0 {
		notConnected := &core.NodesNotConnectedError{
			RelationName: field.Relation.Name,
			ParentName:   field.Model().Name,
			ChildName:    field.RelatedModel.Name,
		}
		if selector != nil {
			info := selector.Info()
			notConnected.ChildWhere = &info
		}
		return core.GraphqlID{}, notConnected
	}
	return ids[0], nil
}

// FilterIDsByParents returns the ids of related nodes reachable through
// field from any of parentIDs and matching filter.
func FilterIDsByParents(ctx context.Context, tx ps.Transaction, field *core.RelationField, parentIDs []core.GraphqlID, filter sql.Filter) ([]core.GraphqlID, error) {
	related := sql.RelatedIDFilter{
		Model:        field.RelatedModel,
		Relation:     field.Relation,
		ChildColumn:  field.Relation.ColumnForSide(field.Side.Opposite()),
		ParentColumn: field.Relation.ColumnForSide(field.Side),
		ParentIDs:    parentIDs,
	}
	return FilterIDs(ctx, tx, field.RelatedModel, sql.AndAll(related, filter))
}
