// Package sql builds the statements TenantDB runs against tenant databases.
//
// Statements are small AST values (Select, Insert, Update, Delete, Raw)
// built from schema metadata by the builder functions and rendered by Build
// into text with positional "?" parameters. The rendering is accepted by
// both SQLite and DuckDB.
//
// # Usage
//
//	sel := sql.GetNodeByWhere(sql.NodeSelector{Field: email, Value: core.StringValue("a@b")}, fields)
//	text, params := sql.Build(sel)
//
// # Relation Traversals
//
// GetRelatedNodes appends the join id and the parent id after the selected
// fields. RelatedSelect.Project splits them off a decoded row so callers
// never depend on their position.
//
// # Scalar Lists
//
// A list field is stored in the table <Model>_<field> with the columns
// nodeId, position and value. GetScalarListValuesByNodeIDs orders rows by
// nodeId then position.
package sql
