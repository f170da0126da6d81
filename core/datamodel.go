package core

import (
	"encoding/json"
	"fmt"
)

type datamodelJSON struct {
	DBName    string         `json:"dbName"`
	Models    []modelJSON    `json:"models"`
	Relations []relationJSON `json:"relations"`
}

type modelJSON struct {
	Name           string              `json:"name"`
	Table          string              `json:"table,omitempty"`
	Fields         []fieldJSON         `json:"fields"`
	RelationFields []relationFieldJSON `json:"relationFields,omitempty"`
}

type fieldJSON struct {
	Name     string `json:"name"`
	Column   string `json:"column,omitempty"`
	Type     string `json:"type"`
	IsList   bool   `json:"isList,omitempty"`
	IsID     bool   `json:"isId,omitempty"`
	IsUnique bool   `json:"isUnique,omitempty"`
}

type relationFieldJSON struct {
	Name         string `json:"name"`
	Relation     string `json:"relation"`
	RelatedModel string `json:"relatedModel"`
	Side         string `json:"side,omitempty"`
}

type relationJSON struct {
	Name   string `json:"name"`
	Table  string `json:"table,omitempty"`
	ModelA string `json:"modelA"`
	ModelB string `json:"modelB"`
}

// ParseDatamodel reads a JSON datamodel and links its models and relations.
//
//	{
//	  "dbName": "shop",
//	  "models": [{"name": "User", "fields": [{"name": "id", "type": "GraphQLID", "isId": true}],
//	              "relationFields": [{"name": "posts", "relation": "UserPosts", "relatedModel": "Post"}]}],
//	  "relations": [{"name": "UserPosts", "modelA": "Post", "modelB": "User"}]
//	}
func ParseDatamodel(data []byte) (*Schema, error) {
	var dm datamodelJSON
	if err := json.Unmarshal(data, &dm); err != nil {
		return nil, fmt.Errorf("failed to parse datamodel: %w", err)
	}
	if dm.DBName == "" {
		return nil, fmt.Errorf("datamodel is missing dbName")
	}

	schema := &Schema{DBName: dm.DBName}
	for _, mj := range dm.Models {
		if schema.Model(mj.Name) != nil {
			return nil, fmt.Errorf("duplicate model %s", mj.Name)
		}
		m := &Model{Name: mj.Name, Table: mj.Table, schema: schema}
		if m.Table == "" {
			m.Table = m.Name
		}
		for _, fj := range mj.Fields {
			t, err := ParseTypeIdentifier(fj.Type)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", mj.Name, fj.Name, err)
			}
			f := &ScalarField{
				Name:     fj.Name,
				Column:   fj.Column,
				Type:     t,
				IsList:   fj.IsList,
				IsID:     fj.IsID,
				IsUnique: fj.IsUnique || fj.IsID,
				model:    m,
			}
			if f.Column == "" {
				f.Column = f.Name
			}
			m.Fields = append(m.Fields, f)
		}
		if m.ID() == nil {
			return nil, fmt.Errorf("model %s has no id field", m.Name)
		}
		schema.Models = append(schema.Models, m)
	}

	for _, rj := range dm.Relations {
		a, b := schema.Model(rj.ModelA), schema.Model(rj.ModelB)
		if a == nil || b == nil {
			return nil, fmt.Errorf("relation %s references unknown model", rj.Name)
		}
		r := &Relation{Name: rj.Name, Table: rj.Table, ModelA: a, ModelB: b}
		if r.Table == "" {
			r.Table = "_" + r.Name
		}
		schema.Relations = append(schema.Relations, r)
	}

	for _, mj := range dm.Models {
		m := schema.Model(mj.Name)
		for _, rfj := range mj.RelationFields {
			r := schema.Relation(rfj.Relation)
			if r == nil {
				return nil, fmt.Errorf("relation field %s.%s references unknown relation %s", m.Name, rfj.Name, rfj.Relation)
			}
			related := schema.Model(rfj.RelatedModel)
			if related == nil {
				return nil, fmt.Errorf("relation field %s.%s references unknown model %s", m.Name, rfj.Name, rfj.RelatedModel)
			}
			var side RelationSide
			switch {
			case rfj.Side == "A":
				side = SideA
			case rfj.Side == "B":
				side = SideB
			case r.ModelA == m:
				side = SideA
			case r.ModelB == m:
				side = SideB
			default:
				return nil, fmt.Errorf("model %s is not part of relation %s", m.Name, r.Name)
			}
			m.RelationFields = append(m.RelationFields, &RelationField{
				Name:         rfj.Name,
				Relation:     r,
				Side:         side,
				RelatedModel: related,
				model:        m,
			})
		}
	}

	return schema, nil
}
