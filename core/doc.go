// Package core provides the domain types used throughout TenantDB.
//
// The package defines the schema metadata (Schema, Model, ScalarField,
// RelationField, Relation), the typed values read from and written to tenant
// databases, and the row decoder turning raw engine rows into those values.
//
// # Type Identifiers
//
// Every projected column is declared with a TypeIdentifier:
//   - StringType, EnumType, JsonType: text values
//   - IntType, FloatType, BooleanType: numeric values
//   - DateTimeType: timestamps (time.Time, text or unix milliseconds)
//   - GraphQLIDType, UUIDType: node identifiers
//
// # Decoding
//
//	row, err := core.DecodeRow([]any{"u1", int64(30)}, []core.TypeIdentifier{core.GraphQLIDType, core.IntType})
//	node, err := core.NewSingleNode(core.NodeFromRow(row), []string{"id", "age"})
//
// # Scalar Lists
//
// List fields are read as (owner id, value) pairs ordered by owner and
// collapsed with GroupScalarListValues.
package core
