package sql

import (
	"fmt"

	"github.com/nickyhof/TenantDB/core"
)

// Reserved aliases of relation traversal metadata columns.
const (
	RelatedIDAlias = "__RelatedModel__"
	ParentIDAlias  = "__ParentModelId__"
	rowNumberAlias = "__RowNumber__"
	windowAlias    = "t"
)

// Scalar list table columns.
const (
	ListNodeIDColumn   = "nodeId"
	ListPositionColumn = "position"
	ListValueColumn    = "value"
)

// Arg assigns a value to a scalar field in a write.
type Arg struct {
	Field *core.ScalarField
	Value core.Value
}

// Args is an ordered list of field assignments.
type Args []Arg

func columns(fields core.SelectedFields) []Expr {
	cols := make([]Expr, len(fields))
	for i, f := range fields {
		cols[i] = ColumnOf(f)
	}
	return cols
}

func orderings(model *core.Model, order *OrderBy) []Ordering {
	id := ColumnOf(model.ID())
	if order == nil || order.Field == model.ID() {
		desc := order != nil && order.Desc
		return []Ordering{{Column: id, Desc: desc}}
	}
	// Ties are broken by id for a stable window.
	return []Ordering{{Column: ColumnOf(order.Field), Desc: order.Desc}, {Column: id}}
}

func rawIDs(ids []core.GraphqlID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id.Raw()
	}
	return out
}

// GetNodeByWhere selects fields of the node a unique selector addresses.
func GetNodeByWhere(selector NodeSelector, fields core.SelectedFields) *Select {
	s := NewSelect(TableOf(selector.Model()), columns(fields)...)
	s.Where = selector.Filter()
	return s
}

// GetNodes selects a filtered, ordered and paged listing of a model.
func GetNodes(model *core.Model, args QueryArguments, fields core.SelectedFields) *Select {
	s := NewSelect(TableOf(model), columns(fields)...)
	s.Where = args.Where
	s.OrderBy = orderings(model, args.OrderBy)
	s.Limit = args.First
	s.Offset = args.Skip
	return s
}

// RelatedSelect is a relation traversal together with the type identifiers
// of its projection.
type RelatedSelect struct {
	Select *Select
	Idents []core.TypeIdentifier
}

// Project splits a decoded traversal row into the related node's values and
// its join and parent identifiers, which the builder appends in that order.
func (r *RelatedSelect) Project(row core.Row) (core.RelationProjection, error) {
	n := len(row.Values)
	if n < 2 {
		return core.RelationProjection{}, fmt.Errorf("relation row has %d columns, need at least 2", n)
	}
	parentID, err := core.ToGraphqlID(row.Values[n-1])
	if err != nil {
		return core.RelationProjection{}, fmt.Errorf("parent id: %w", err)
	}
	joinID, err := core.ToGraphqlID(row.Values[n-2])
	if err != nil {
		return core.RelationProjection{}, fmt.Errorf("join id: %w", err)
	}
	return core.RelationProjection{Values: row.Values[:n-2], JoinID: joinID, ParentID: parentID}, nil
}

// GetRelatedNodes selects the nodes reachable through field from any of
// parentIDs. Skip and First apply per parent.
func GetRelatedNodes(field *core.RelationField, parentIDs []core.GraphqlID, args QueryArguments, fields core.SelectedFields) *RelatedSelect {
	model := field.RelatedModel
	relation := field.Relation
	relTable := Table{Schema: model.Schema().DBName, Name: relation.Table}
	childCol := Column{Table: relation.Table, Name: relation.ColumnForSide(field.Side.Opposite())}
	parentCol := Column{Table: relation.Table, Name: relation.ColumnForSide(field.Side)}

	cols := columns(fields)
	cols = append(cols,
		Column{Table: childCol.Table, Name: childCol.Name, Alias: RelatedIDAlias},
		Column{Table: parentCol.Table, Name: parentCol.Name, Alias: ParentIDAlias},
	)

	s := NewSelect(TableOf(model), cols...)
	s.Joins = []Join{{Table: relTable, Left: childCol, Right: ColumnOf(model.ID())}}
	s.Where = AndAll(columnIn{Column: parentCol, Values: rawIDs(parentIDs)}, args.Where)
	order := orderings(model, args.OrderBy)

	idents := append(fields.TypeIdentifiers(), core.GraphQLIDType, core.GraphQLIDType)
	if !args.IsPaged() {
		s.OrderBy = append([]Ordering{{Column: parentCol}}, order...)
		return &RelatedSelect{Select: s, Idents: idents}
	}

	s.Columns = append(s.Columns, RowNumber{PartitionBy: parentCol, OrderBy: order, Alias: rowNumberAlias})
	outer := make([]Expr, 0, len(fields)+2)
	for _, f := range fields {
		outer = append(outer, Column{Table: windowAlias, Name: f.Column})
	}
	outer = append(outer,
		Column{Table: windowAlias, Name: RelatedIDAlias},
		Column{Table: windowAlias, Name: ParentIDAlias},
	)
	rowNumber := Column{Table: windowAlias, Name: rowNumberAlias}
	window := rowRange{Column: rowNumber, From: args.Skip}
	if args.First != nil {
		to := args.Skip + *args.First
		window.To = &to
	}
	w := NewSelect(&Subquery{Select: s, Alias: windowAlias}, outer...)
	w.Where = window
	w.OrderBy = []Ordering{{Column: Column{Table: windowAlias, Name: ParentIDAlias}}, {Column: rowNumber}}
	return &RelatedSelect{Select: w, Idents: idents}
}

// rowRange keeps rows whose row number is in (From, To].
type rowRange struct {
	Column Column
	From   int
	To     *int
}

func (rowRange) isFilter() {}

// CountByModel counts the rows of a model matching args. Paged arguments
// count the window, not the whole table.
func CountByModel(model *core.Model, args QueryArguments) *Select {
	if !args.IsPaged() {
		s := NewSelect(TableOf(model), Count{})
		s.Where = args.Where
		return s
	}
	inner := GetNodes(model, args, core.SelectedFields{model.ID()})
	return NewSelect(&Subquery{Select: inner, Alias: "sub"}, Count{})
}

// CountByTable counts every row of a table in a tenant database.
func CountByTable(dbName, table string) *Select {
	return NewSelect(Table{Schema: dbName, Name: table}, Count{})
}

// GetScalarListValuesByNodeIDs selects (owner id, value) pairs of a list
// field. Rows are ordered by owner then position, which
// core.GroupScalarListValues relies on.
func GetScalarListValuesByNodeIDs(field *core.ScalarField, nodeIDs []core.GraphqlID) *Select {
	table := field.ListTable()
	s := NewSelect(Table{Schema: field.Model().Schema().DBName, Name: table},
		Column{Table: table, Name: ListNodeIDColumn},
		Column{Table: table, Name: ListValueColumn},
	)
	s.Where = columnIn{Column: Column{Table: table, Name: ListNodeIDColumn}, Values: rawIDs(nodeIDs)}
	s.OrderBy = []Ordering{
		{Column: Column{Table: table, Name: ListNodeIDColumn}},
		{Column: Column{Table: table, Name: ListPositionColumn}},
	}
	return s
}

// ScalarListIdents are the type identifiers of GetScalarListValuesByNodeIDs.
func ScalarListIdents(field *core.ScalarField) []core.TypeIdentifier {
	return []core.TypeIdentifier{field.Model().ID().Type, field.Type}
}

// CreateNode inserts one row.
func CreateNode(model *core.Model, args Args) *Insert {
	ins := &Insert{Table: TableOf(model)}
	row := make([]core.Value, 0, len(args))
	for _, a := range args {
		ins.Columns = append(ins.Columns, a.Field.Column)
		row = append(row, a.Value)
	}
	ins.Values = [][]core.Value{row}
	return ins
}

// UpdateNodes assigns args on every row matching where.
func UpdateNodes(model *core.Model, args Args, where Filter) *Update {
	u := &Update{Table: TableOf(model), Where: where}
	for _, a := range args {
		u.Set = append(u.Set, Assignment{Column: a.Field.Column, Value: a.Value})
	}
	return u
}

// DeleteNodes removes every row of a model matching where.
func DeleteNodes(model *core.Model, where Filter) *Delete {
	return &Delete{Table: TableOf(model), Where: where}
}

func relationTable(r *core.Relation) Table {
	return Table{Schema: r.ModelA.Schema().DBName, Name: r.Table}
}

// CreateRelation links a parent to a child through field.
func CreateRelation(field *core.RelationField, parentID, childID core.GraphqlID) *Insert {
	r := field.Relation
	a, b := parentID, childID
	if field.Side == core.SideB {
		a, b = childID, parentID
	}
	return &Insert{
		Table:   relationTable(r),
		Columns: []string{r.ColumnForSide(core.SideA), r.ColumnForSide(core.SideB)},
		Values:  [][]core.Value{{core.IDValue(a), core.IDValue(b)}},
	}
}

// DeleteRelation removes the link between a parent and a child.
func DeleteRelation(field *core.RelationField, parentID, childID core.GraphqlID) *Delete {
	r := field.Relation
	return &Delete{
		Table: relationTable(r),
		Where: And{
			columnIn{Column: Column{Table: r.Table, Name: r.ColumnForSide(field.Side)}, Values: []any{parentID.Raw()}},
			columnIn{Column: Column{Table: r.Table, Name: r.ColumnForSide(field.Side.Opposite())}, Values: []any{childID.Raw()}},
		},
	}
}

// DeleteRelationsByNodes removes every relation row referencing one of ids
// from any relation the model takes part in.
func DeleteRelationsByNodes(model *core.Model, ids []core.GraphqlID) []*Delete {
	var out []*Delete
	values := rawIDs(ids)
	for _, r := range model.Schema().Relations {
		var sides []core.RelationSide
		if r.ModelA == model {
			sides = append(sides, core.SideA)
		}
		if r.ModelB == model {
			sides = append(sides, core.SideB)
		}
		for _, side := range sides {
			out = append(out, &Delete{
				Table: relationTable(r),
				Where: columnIn{Column: Column{Table: r.Table, Name: r.ColumnForSide(side)}, Values: values},
			})
		}
	}
	return out
}

// SetScalarList replaces the values of a list field for one node.
func SetScalarList(field *core.ScalarField, nodeID core.GraphqlID, values []core.Value) []Query {
	table := Table{Schema: field.Model().Schema().DBName, Name: field.ListTable()}
	queries := []Query{&Delete{
		Table: table,
		Where: columnIn{Column: Column{Table: table.Name, Name: ListNodeIDColumn}, Values: []any{nodeID.Raw()}},
	}}
	if len(values) == 0 {
		return queries
	}
	ins := &Insert{Table: table, Columns: []string{ListNodeIDColumn, ListPositionColumn, ListValueColumn}}
	for i, v := range values {
		ins.Values = append(ins.Values, []core.Value{core.IDValue(nodeID), core.IntValue(i), v})
	}
	return append(queries, ins)
}

// DeleteScalarLists removes the list values of every list field of the
// given nodes.
func DeleteScalarLists(model *core.Model, ids []core.GraphqlID) []*Delete {
	var out []*Delete
	values := rawIDs(ids)
	for _, f := range model.ListFields() {
		table := f.ListTable()
		out = append(out, &Delete{
			Table: Table{Schema: model.Schema().DBName, Name: table},
			Where: columnIn{Column: Column{Table: table, Name: ListNodeIDColumn}, Values: values},
		})
	}
	return out
}
