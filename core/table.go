package core

import "fmt"

// TypeIdentifier declares the semantic type of one projected column.
type TypeIdentifier int

const (
	StringType TypeIdentifier = iota
	FloatType
	BooleanType
	EnumType
	JsonType
	DateTimeType
	GraphQLIDType
	UUIDType
	IntType
	RelationType
)

var typeIdentifierNames = [...]string{
	StringType:    "String",
	FloatType:     "Float",
	BooleanType:   "Boolean",
	EnumType:      "Enum",
	JsonType:      "Json",
	DateTimeType:  "DateTime",
	GraphQLIDType: "GraphQLID",
	UUIDType:      "UUID",
	IntType:       "Int",
	RelationType:  "Relation",
}

func (t TypeIdentifier) String() string {
	if t < 0 || int(t) >= len(typeIdentifierNames) {
		return fmt.Sprintf("TypeIdentifier(%d)", int(t))
	}
	return typeIdentifierNames[t]
}

// ParseTypeIdentifier maps a datamodel type name to its identifier.
func ParseTypeIdentifier(name string) (TypeIdentifier, error) {
	for i, n := range typeIdentifierNames {
		if n == name {
			return TypeIdentifier(i), nil
		}
	}
	switch name {
	case "ID", "Id":
		return GraphQLIDType, nil
	case "Bool":
		return BooleanType, nil
	}
	return 0, fmt.Errorf("unknown type identifier %q", name)
}

// RelationSide is the side of a relation table a model occupies.
type RelationSide int

const (
	SideA RelationSide = iota
	SideB
)

func (s RelationSide) Opposite() RelationSide {
	if s == SideA {
		return SideB
	}
	return SideA
}

// Schema is the datamodel of one tenant database.
type Schema struct {
	DBName    string
	Models    []*Model
	Relations []*Relation
}

// Model returns the model with the given name, or nil.
func (s *Schema) Model(name string) *Model {
	for _, m := range s.Models {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// Relation returns the relation with the given name, or nil.
func (s *Schema) Relation(name string) *Relation {
	for _, r := range s.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// ForTenant returns a deep copy of the schema bound to another database
// name. Statements built from the copy address that tenant.
func (s *Schema) ForTenant(dbName string) *Schema {
	out := &Schema{DBName: dbName}
	models := make(map[*Model]*Model, len(s.Models))
	for _, m := range s.Models {
		c := &Model{Name: m.Name, Table: m.Table, schema: out}
		for _, f := range m.Fields {
			fc := *f
			fc.model = c
			c.Fields = append(c.Fields, &fc)
		}
		models[m] = c
		out.Models = append(out.Models, c)
	}

	relations := make(map[*Relation]*Relation, len(s.Relations))
	for _, r := range s.Relations {
		c := &Relation{Name: r.Name, Table: r.Table, ModelA: models[r.ModelA], ModelB: models[r.ModelB]}
		relations[r] = c
		out.Relations = append(out.Relations, c)
	}

	for _, m := range s.Models {
		c := models[m]
		for _, f := range m.RelationFields {
			c.RelationFields = append(c.RelationFields, &RelationField{
				Name:         f.Name,
				Relation:     relations[f.Relation],
				Side:         f.Side,
				RelatedModel: models[f.RelatedModel],
				model:        c,
			})
		}
	}
	return out
}

// Model maps a domain model onto one table.
type Model struct {
	Name           string
	Table          string
	Fields         []*ScalarField
	RelationFields []*RelationField

	schema *Schema
}

// Schema returns the schema owning the model.
func (m *Model) Schema() *Schema {
	return m.schema
}

// ID returns the identifier field of the model.
func (m *Model) ID() *ScalarField {
	for _, f := range m.Fields {
		if f.IsID {
			return f
		}
	}
	return nil
}

// Field returns the scalar field with the given name, or nil.
func (m *Model) Field(name string) *ScalarField {
	for _, f := range m.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// RelationField returns the relation field with the given name, or nil.
func (m *Model) RelationField(name string) *RelationField {
	for _, f := range m.RelationFields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// ScalarFields returns all non-list scalar fields in declaration order.
func (m *Model) ScalarFields() SelectedFields {
	fields := make(SelectedFields, 0, len(m.Fields))
	for _, f := range m.Fields {
		if !f.IsList {
			fields = append(fields, f)
		}
	}
	return fields
}

// ListFields returns the list-valued scalar fields.
func (m *Model) ListFields() []*ScalarField {
	var fields []*ScalarField
	for _, f := range m.Fields {
		if f.IsList {
			fields = append(fields, f)
		}
	}
	return fields
}

// ScalarField is a column of a model table, or a scalar list stored in its
// own table when IsList is set.
type ScalarField struct {
	Name     string
	Column   string
	Type     TypeIdentifier
	IsList   bool
	IsID     bool
	IsUnique bool

	model *Model
}

// Model returns the model owning the field.
func (f *ScalarField) Model() *Model {
	return f.model
}

// ListTable is the table holding the values of a list field.
func (f *ScalarField) ListTable() string {
	return f.model.Name + "_" + f.Name
}

// RelationField is one end of a relation as seen from a model.
type RelationField struct {
	Name         string
	Relation     *Relation
	Side         RelationSide
	RelatedModel *Model

	model *Model
}

// Model returns the model owning the field.
func (f *RelationField) Model() *Model {
	return f.model
}

// Relation is a many-to-many join table between two models. The table has
// columns A and B holding the identifiers of ModelA and ModelB.
type Relation struct {
	Name   string
	Table  string
	ModelA *Model
	ModelB *Model
}

// ColumnForSide returns the join column for the given side.
func (r *Relation) ColumnForSide(side RelationSide) string {
	if side == SideA {
		return "A"
	}
	return "B"
}

// SelectedFields is an ordered set of scalar fields requested by a caller.
type SelectedFields []*ScalarField

// Names returns the field names in order.
func (s SelectedFields) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// TypeIdentifiers returns the type tags in order.
func (s SelectedFields) TypeIdentifiers() []TypeIdentifier {
	idents := make([]TypeIdentifier, len(s))
	for i, f := range s {
		idents[i] = f.Type
	}
	return idents
}

// Select resolves field names against a model. An empty list selects every
// scalar field.
func Select(model *Model, names ...string) (SelectedFields, error) {
	if len(names) == 0 {
		return model.ScalarFields(), nil
	}
	fields := make(SelectedFields, 0, len(names))
	for _, name := range names {
		f := model.Field(name)
		if f == nil {
			return nil, fmt.Errorf("model %s has no field %s", model.Name, name)
		}
		if f.IsList {
			return nil, fmt.Errorf("field %s.%s is a list and cannot be selected", model.Name, name)
		}
		fields = append(fields, f)
	}
	return fields, nil
}
