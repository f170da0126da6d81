package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeDoesNotExist is returned when a forced single-row read matched
	// no rows.
	ErrNodeDoesNotExist = errors.New("node does not exist")

	// ErrFieldCountMismatch is returned when a row and its field names
	// disagree in width.
	ErrFieldCountMismatch = errors.New("field name count does not match row width")

	// ErrNoFieldsSelected is returned by reads given an empty selection.
	ErrNoFieldsSelected = errors.New("no fields selected")
)

// NodeSelectorInfo describes the unique key a lookup searched by.
type NodeSelectorInfo struct {
	Model string `json:"model"`
	Field string `json:"field"`
	Value string `json:"value"`
}

func (i NodeSelectorInfo) String() string {
	return fmt.Sprintf("%s.%s = %s", i.Model, i.Field, i.Value)
}

// NodeNotFoundForWhereError is returned when a unique-key selector matched
// nothing.
type NodeNotFoundForWhereError struct {
	Where NodeSelectorInfo
}

func (e *NodeNotFoundForWhereError) Error() string {
	return fmt.Sprintf("no node found for where %s", e.Where)
}

// Is matches ErrNodeDoesNotExist so callers may test either form.
func (e *NodeNotFoundForWhereError) Is(target error) bool {
	return target == ErrNodeDoesNotExist
}

// NodesNotConnectedError is returned when a parent-to-child traversal
// matched nothing.
type NodesNotConnectedError struct {
	RelationName string
	ParentName   string
	ParentWhere  *NodeSelectorInfo
	ChildName    string
	ChildWhere   *NodeSelectorInfo
}

func (e *NodesNotConnectedError) Error() string {
	parent := e.ParentName
	if e.ParentWhere != nil {
		parent = fmt.Sprintf("%s (%s)", e.ParentName, e.ParentWhere)
	}
	child := e.ChildName
	if e.ChildWhere != nil {
		child = fmt.Sprintf("%s (%s)", e.ChildName, e.ChildWhere)
	}
	return fmt.Sprintf("the relation %s has no node for the model %s connected to a node for the model %s",
		e.RelationName, parent, child)
}

// DecodeError is returned when a raw column value cannot be converted to
// its declared type.
type DecodeError struct {
	Column int
	Type   TypeIdentifier
	Raw    any
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot decode column %d value %v (%T) as %s", e.Column, e.Raw, e.Raw, e.Type)
}
