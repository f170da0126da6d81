package sql

import (
	"fmt"

	"github.com/nickyhof/TenantDB/core"
)

// Filter is a predicate rendered into a WHERE clause.
type Filter interface {
	isFilter()
}

// Operator is a scalar comparison.
type Operator int

const (
	Equals Operator = iota
	NotEquals
	In
	NotIn
	LessThan
	LessThanOrEquals
	GreaterThan
	GreaterThanOrEquals
	Contains
	StartsWith
	EndsWith
)

var operatorNames = map[string]Operator{
	"equals":      Equals,
	"not":         NotEquals,
	"in":          In,
	"not_in":      NotIn,
	"lt":          LessThan,
	"lte":         LessThanOrEquals,
	"gt":          GreaterThan,
	"gte":         GreaterThanOrEquals,
	"contains":    Contains,
	"starts_with": StartsWith,
	"ends_with":   EndsWith,
}

// ParseOperator maps an operator name such as "gte" to its Operator.
func ParseOperator(name string) (Operator, error) {
	op, ok := operatorNames[name]
	if !ok {
		return 0, fmt.Errorf("unknown filter operator %q", name)
	}
	return op, nil
}

type (
	// And matches when every filter matches. An empty And matches all rows.
	And []Filter
	// Or matches when any filter matches. An empty Or matches no rows.
	Or []Filter
	// Not negates a filter.
	Not struct{ Filter Filter }
)

// ScalarCondition compares one field. In and NotIn use Values, every other
// operator uses Value.
type ScalarCondition struct {
	Field  *core.ScalarField
	Op     Operator
	Value  core.Value
	Values []core.Value
}

// RelatedIDFilter matches rows of Model whose id is reachable through the
// relation table from one of ParentIDs.
type RelatedIDFilter struct {
	Model        *core.Model
	Relation     *core.Relation
	ChildColumn  string
	ParentColumn string
	ParentIDs    []core.GraphqlID
}

// columnIn matches a raw column against a parameter list.
type columnIn struct {
	Column Column
	Values []any
}

func (And) isFilter()             {}
func (Or) isFilter()              {}
func (Not) isFilter()             {}
func (ScalarCondition) isFilter() {}
func (RelatedIDFilter) isFilter() {}
func (columnIn) isFilter()        {}

// Where returns an equality condition on a field.
func Where(field *core.ScalarField, value core.Value) ScalarCondition {
	return ScalarCondition{Field: field, Op: Equals, Value: value}
}

// IDIn matches rows of model whose id is one of ids.
func IDIn(model *core.Model, ids []core.GraphqlID) Filter {
	values := make([]core.Value, len(ids))
	for i, id := range ids {
		values[i] = core.IDValue(id)
	}
	return ScalarCondition{Field: model.ID(), Op: In, Values: values}
}

// AndAll combines filters, dropping nil ones.
func AndAll(filters ...Filter) Filter {
	var out And
	for _, f := range filters {
		if f != nil {
			out = append(out, f)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// NodeSelector addresses a single node through a unique field.
type NodeSelector struct {
	Field *core.ScalarField
	Value core.Value
}

// Model returns the model the selector addresses.
func (s NodeSelector) Model() *core.Model {
	return s.Field.Model()
}

// Filter returns the equality predicate of the selector.
func (s NodeSelector) Filter() Filter {
	return Where(s.Field, s.Value)
}

// Info describes the selector for error reporting.
func (s NodeSelector) Info() core.NodeSelectorInfo {
	value := "null"
	if s.Value != nil {
		value = s.Value.String()
	}
	return core.NodeSelectorInfo{Model: s.Model().Name, Field: s.Field.Name, Value: value}
}

// OrderBy orders results by one field.
type OrderBy struct {
	Field *core.ScalarField
	Desc  bool
}

// QueryArguments are the filtering and paging arguments of a listing.
type QueryArguments struct {
	Where   Filter
	Skip    int
	First   *int
	OrderBy *OrderBy
}

// IsPaged reports whether the arguments restrict the window of rows.
func (a QueryArguments) IsPaged() bool {
	return a.Skip > 0 || a.First != nil
}
