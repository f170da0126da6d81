package core

// Node is a typed record. ParentID is set for nodes read through a relation.
type Node struct {
	Values   []Value
	ParentID *GraphqlID
}

// NodeFromRow wraps a decoded row.
func NodeFromRow(row Row) Node {
	return Node{Values: row.Values}
}

// AddParentID annotates the node with the parent it was reached from.
func (n *Node) AddParentID(id GraphqlID) {
	n.ParentID = &id
}

// SingleNode pairs a node with the field names that produced it.
type SingleNode struct {
	Node       Node
	FieldNames []string
}

// NewSingleNode validates that names and values have the same width.
func NewSingleNode(node Node, fieldNames []string) (*SingleNode, error) {
	if len(node.Values) != len(fieldNames) {
		return nil, ErrFieldCountMismatch
	}
	return &SingleNode{Node: node, FieldNames: fieldNames}, nil
}

// Get returns the value of the named field.
func (s *SingleNode) Get(name string) (Value, bool) {
	return getField(s.Node, s.FieldNames, name)
}

// ID returns the value of the id field, when it was selected.
func (s *SingleNode) ID(idField string) (GraphqlID, bool) {
	v, ok := s.Get(idField)
	if !ok {
		return GraphqlID{}, false
	}
	id, err := ToGraphqlID(v)
	return id, err == nil
}

// ManyNodes is an ordered node set sharing one field-name list.
type ManyNodes struct {
	Nodes      []Node
	FieldNames []string
}

// Get returns the named field of the i-th node.
func (m ManyNodes) Get(i int, name string) (Value, bool) {
	if i < 0 || i >= len(m.Nodes) {
		return nil, false
	}
	return getField(m.Nodes[i], m.FieldNames, name)
}

func getField(n Node, names []string, name string) (Value, bool) {
	for i, fn := range names {
		if fn == name && i < len(n.Values) {
			return n.Values[i], true
		}
	}
	return nil, false
}

// ScalarListElement is one (owner, value) pair read from a list table.
type ScalarListElement struct {
	NodeID GraphqlID
	Value  Value
}

// ScalarListValues holds the materialized values of a list field for one
// owning node.
type ScalarListValues struct {
	NodeID GraphqlID
	Values []Value
}

// GroupScalarListValues collapses contiguous runs of elements sharing an
// owner id. Elements must be ordered by owner: an owner whose elements are
// interleaved with another owner's yields one entry per run.
func GroupScalarListValues(elements []ScalarListElement) []ScalarListValues {
	var out []ScalarListValues
	for _, e := range elements {
		if n := len(out); n > 0 && out[n-1].NodeID == e.NodeID {
			out[n-1].Values = append(out[n-1].Values, e.Value)
			continue
		}
		out = append(out, ScalarListValues{NodeID: e.NodeID, Values: []Value{e.Value}})
	}
	return out
}
