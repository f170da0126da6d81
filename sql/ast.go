package sql

import "github.com/nickyhof/TenantDB/core"

// Query is any statement the visitor can render.
type Query interface {
	isQuery()
}

// Source is the FROM clause of a select.
type Source interface {
	isSource()
}

// Table is a schema-qualified table reference.
type Table struct {
	Schema string
	Name   string
}

// TableOf returns the table of a model, qualified by the model's database.
func TableOf(model *core.Model) Table {
	return Table{Schema: model.Schema().DBName, Name: model.Table}
}

// Subquery is a nested select used as a source.
type Subquery struct {
	Select *Select
	Alias  string
}

func (Table) isSource()     {}
func (*Subquery) isSource() {}

// Expr is a projected expression.
type Expr interface {
	isExpr()
}

// Column references a column, optionally qualified by a table name.
type Column struct {
	Table string
	Name  string
	Alias string
}

// ColumnOf returns the qualified column of a scalar field.
func ColumnOf(field *core.ScalarField) Column {
	return Column{Table: field.Model().Table, Name: field.Column}
}

// Count is COUNT(*).
type Count struct{}

// RowNumber is ROW_NUMBER() OVER (PARTITION BY ... ORDER BY ...).
type RowNumber struct {
	PartitionBy Column
	OrderBy     []Ordering
	Alias       string
}

func (Column) isExpr()    {}
func (Count) isExpr()     {}
func (RowNumber) isExpr() {}

// Join is an inner join against a table.
type Join struct {
	Table Table
	Left  Column
	Right Column
}

// Ordering is one ORDER BY term.
type Ordering struct {
	Column Column
	Desc   bool
}

// Select is a projecting statement.
type Select struct {
	From    Source
	Columns []Expr
	Joins   []Join
	Where   Filter
	OrderBy []Ordering
	Limit   *int
	Offset  int
}

// NewSelect starts a select from a table.
func NewSelect(from Source, columns ...Expr) *Select {
	return &Select{From: from, Columns: columns}
}

// WithLimit returns a copy of the select limited to n rows.
func (s *Select) WithLimit(n int) *Select {
	c := *s
	c.Limit = &n
	return &c
}

// Insert writes rows into a table.
type Insert struct {
	Table   Table
	Columns []string
	Values  [][]core.Value
}

// Assignment is one SET term of an update.
type Assignment struct {
	Column string
	Value  core.Value
}

// Update changes rows matching Where.
type Update struct {
	Table Table
	Set   []Assignment
	Where Filter
}

// Delete removes rows matching Where.
type Delete struct {
	Table Table
	Where Filter
}

// Raw is a statement given as text with positional parameters.
type Raw struct {
	SQL    string
	Params []any
}

func (*Select) isQuery() {}
func (*Insert) isQuery() {}
func (*Update) isQuery() {}
func (*Delete) isQuery() {}
func (Raw) isQuery()     {}
