package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nickyhof/TenantDB/core"
	"github.com/nickyhof/TenantDB/ps"
	"github.com/nickyhof/TenantDB/sql"
)

// Actions understood by Dispatcher.Execute.
const (
	ActionFindOne     = "findOne"
	ActionFindMany    = "findMany"
	ActionFindRelated = "findRelated"
	ActionCount       = "count"
	ActionCountTable  = "countTable"
	ActionScalarList  = "scalarList"
	ActionCreate      = "create"
	ActionUpdate      = "update"
	ActionDelete      = "delete"
	ActionDeleteMany  = "deleteMany"
	ActionConnect     = "connect"
	ActionDisconnect  = "disconnect"
)

// Error kinds reported in Response.Kind.
const (
	KindBadRequest    = "bad_request"
	KindNotFound      = "not_found"
	KindNotConnected  = "not_connected"
	KindDecode        = "decode"
	KindInvalidTenant = "invalid_tenant"
	KindUnavailable   = "unavailable"
	KindEngine        = "engine"
)

// Selector addresses one node through a unique field.
type Selector struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Condition is one scalar filter term. Op is an operator name such as
// "equals", "gte" or "in"; "in" and "not_in" take a list value.
type Condition struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// Order sorts a listing by one field.
type Order struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc,omitempty"`
}

// Request is one resolver operation in JSON form.
type Request struct {
	Action string `json:"action"`
	// Tenant overrides the datamodel's database name.
	Tenant    string         `json:"tenant,omitempty"`
	Model     string         `json:"model,omitempty"`
	Field     string         `json:"field,omitempty"`
	Table     string         `json:"table,omitempty"`
	Where     *Selector      `json:"where,omitempty"`
	Filter    []Condition    `json:"filter,omitempty"`
	Select    []string       `json:"select,omitempty"`
	Skip      int            `json:"skip,omitempty"`
	First     *int           `json:"first,omitempty"`
	OrderBy   *Order         `json:"orderBy,omitempty"`
	ParentID  any            `json:"parentId,omitempty"`
	ParentIDs []any          `json:"parentIds,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Response is the outcome of a Request. A point lookup that matches
// nothing succeeds with no result.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// badRequest marks errors caused by the request itself.
type badRequest struct{ error }

func badRequestf(format string, args ...any) error {
	return badRequest{fmt.Errorf(format, args...)}
}

// ErrorResponse classifies err into a failed Response.
func ErrorResponse(err error) Response {
	var (
		br           badRequest
		notConnected *core.NodesNotConnectedError
		decode       *core.DecodeError
	)
	kind := KindEngine
	switch {
	case errors.As(err, &br), errors.Is(err, core.ErrNoFieldsSelected):
		kind = KindBadRequest
	case errors.Is(err, core.ErrNodeDoesNotExist):
		kind = KindNotFound
	case errors.As(err, &notConnected):
		kind = KindNotConnected
	case errors.As(err, &decode):
		kind = KindDecode
	case errors.Is(err, ps.ErrInvalidTenant):
		kind = KindInvalidTenant
	case errors.Is(err, ps.ErrPoolTimeout), errors.Is(err, ps.ErrPoolClosed):
		kind = KindUnavailable
	}
	return Response{Success: false, Error: err.Error(), Kind: kind}
}

// Dispatcher executes JSON requests against one datamodel.
type Dispatcher struct {
	resolver *Resolver
	schema   *core.Schema

	mu      sync.Mutex
	tenants map[string]*core.Schema
}

// NewDispatcher creates a dispatcher for schema.
func NewDispatcher(resolver *Resolver, schema *core.Schema) *Dispatcher {
	return &Dispatcher{resolver: resolver, schema: schema, tenants: make(map[string]*core.Schema)}
}

// Resolver returns the resolver requests run on.
func (d *Dispatcher) Resolver() *Resolver {
	return d.resolver
}

// SchemaFor returns the datamodel bound to tenant. An empty tenant selects
// the datamodel's own database.
func (d *Dispatcher) SchemaFor(tenant string) *core.Schema {
	if tenant == "" || tenant == d.schema.DBName {
		return d.schema
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.tenants[tenant]
	if !ok {
		s = d.schema.ForTenant(tenant)
		d.tenants[tenant] = s
	}
	return s
}

// Execute runs one request.
func (d *Dispatcher) Execute(ctx context.Context, req Request) Response {
	result, err := d.execute(ctx, req)
	if err != nil {
		return ErrorResponse(err)
	}
	return Response{Success: true, Result: result}
}

func (d *Dispatcher) execute(ctx context.Context, req Request) (any, error) {
	schema := d.SchemaFor(req.Tenant)
	r := d.resolver

	if req.Action == ActionCountTable {
		if req.Table == "" {
			return nil, badRequestf("table is required")
		}
		n, err := r.CountByTable(ctx, schema.DBName, req.Table)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": n}, nil
	}

	model := schema.Model(req.Model)
	if model == nil {
		return nil, badRequestf("unknown model %q", req.Model)
	}

	switch req.Action {
	case ActionFindOne:
		selector, err := ParseSelector(model, req.Where)
		if err != nil {
			return nil, err
		}
		fields, err := selectFields(model, req.Select)
		if err != nil {
			return nil, err
		}
		node, err := r.GetNodeByWhere(ctx, selector, fields)
		if err != nil || node == nil {
			return nil, err
		}
		return nodeJSON(node.Node, node.FieldNames), nil

	case ActionFindMany:
		args, err := ParseArgs(model, req)
		if err != nil {
			return nil, err
		}
		fields, err := selectFields(model, req.Select)
		if err != nil {
			return nil, err
		}
		nodes, err := r.GetNodes(ctx, model, args, fields)
		if err != nil {
			return nil, err
		}
		return manyJSON(nodes), nil

	case ActionFindRelated:
		field := model.RelationField(req.Field)
		if field == nil {
			return nil, badRequestf("model %s has no relation field %q", model.Name, req.Field)
		}
		parentIDs, err := parseIDs(model.ID(), req.ParentIDs)
		if err != nil {
			return nil, err
		}
		args, err := ParseArgs(field.RelatedModel, req)
		if err != nil {
			return nil, err
		}
		fields, err := selectFields(field.RelatedModel, req.Select)
		if err != nil {
			return nil, err
		}
		nodes, err := r.GetRelatedNodes(ctx, field, parentIDs, args, fields)
		if err != nil {
			return nil, err
		}
		return manyJSON(nodes), nil

	case ActionCount:
		args, err := ParseArgs(model, req)
		if err != nil {
			return nil, err
		}
		n, err := r.CountByModel(ctx, model, args)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": n}, nil

	case ActionScalarList:
		field := model.Field(req.Field)
		if field == nil || !field.IsList {
			return nil, badRequestf("model %s has no list field %q", model.Name, req.Field)
		}
		ids, err := parseIDs(model.ID(), req.ParentIDs)
		if err != nil {
			return nil, err
		}
		lists, err := r.GetScalarListValuesByNodeIDs(ctx, field, ids)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(lists))
		for i, l := range lists {
			out[i] = map[string]any{"nodeId": l.NodeID, "values": core.ValueToJSON(core.ListValue(l.Values))}
		}
		return out, nil

	case ActionCreate:
		in, err := parseInput(model, req.Data)
		if err != nil {
			return nil, err
		}
		id, err := r.CreateNode(ctx, model, in)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil

	case ActionUpdate:
		selector, err := ParseSelector(model, req.Where)
		if err != nil {
			return nil, err
		}
		in, err := parseInput(model, req.Data)
		if err != nil {
			return nil, err
		}
		id, err := r.UpdateNode(ctx, selector, in)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id}, nil

	case ActionDelete:
		selector, err := ParseSelector(model, req.Where)
		if err != nil {
			return nil, err
		}
		node, err := r.DeleteNode(ctx, selector)
		if err != nil {
			return nil, err
		}
		return nodeJSON(node.Node, node.FieldNames), nil

	case ActionDeleteMany:
		filter, err := ParseFilter(model, req.Filter)
		if err != nil {
			return nil, err
		}
		n, err := r.DeleteNodes(ctx, model, filter)
		if err != nil {
			return nil, err
		}
		return map[string]any{"count": n}, nil

	case ActionConnect, ActionDisconnect:
		field := model.RelationField(req.Field)
		if field == nil {
			return nil, badRequestf("model %s has no relation field %q", model.Name, req.Field)
		}
		parentIDs, err := parseIDs(model.ID(), []any{req.ParentID})
		if err != nil {
			return nil, err
		}
		child, err := ParseSelector(field.RelatedModel, req.Where)
		if err != nil {
			return nil, err
		}
		if req.Action == ActionConnect {
			err = r.Connect(ctx, field, parentIDs[0], child)
		} else {
			err = r.Disconnect(ctx, field, parentIDs[0], child)
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{}, nil

	default:
		return nil, badRequestf("unknown action %q", req.Action)
	}
}

func selectFields(model *core.Model, names []string) (core.SelectedFields, error) {
	fields, err := core.Select(model, names...)
	if err != nil {
		return nil, badRequest{err}
	}
	return fields, nil
}

// ParseSelector resolves a JSON selector against model. The field must be
// unique.
func ParseSelector(model *core.Model, s *Selector) (sql.NodeSelector, error) {
	if s == nil {
		return sql.NodeSelector{}, badRequestf("where is required")
	}
	field := model.Field(s.Field)
	if field == nil || !field.IsUnique || field.IsList {
		return sql.NodeSelector{}, badRequestf("%s.%s is not a unique field", model.Name, s.Field)
	}
	value, err := core.ValueFromJSON(field.Type, s.Value)
	if err != nil {
		return sql.NodeSelector{}, badRequest{err}
	}
	return sql.NodeSelector{Field: field, Value: value}, nil
}

func parseIDs(idField *core.ScalarField, raw []any) ([]core.GraphqlID, error) {
	ids := make([]core.GraphqlID, 0, len(raw))
	for _, r := range raw {
		v, err := core.ValueFromJSON(idField.Type, r)
		if err != nil {
			return nil, badRequest{err}
		}
		id, err := core.ToGraphqlID(v)
		if err != nil {
			return nil, badRequest{err}
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseFilter combines conditions into one filter; nil when empty.
func ParseFilter(model *core.Model, conditions []Condition) (sql.Filter, error) {
	var filters []sql.Filter
	for _, c := range conditions {
		field := model.Field(c.Field)
		if field == nil || field.IsList {
			return nil, badRequestf("model %s has no scalar field %q", model.Name, c.Field)
		}
		opName := c.Op
		if opName == "" {
			opName = "equals"
		}
		op, err := sql.ParseOperator(opName)
		if err != nil {
			return nil, badRequest{err}
		}
		cond := sql.ScalarCondition{Field: field, Op: op}
		if op == sql.In || op == sql.NotIn {
			list, ok := c.Value.([]any)
			if !ok {
				return nil, badRequestf("operator %s needs a list value", opName)
			}
			for _, e := range list {
				v, err := core.ValueFromJSON(field.Type, e)
				if err != nil {
					return nil, badRequest{err}
				}
				cond.Values = append(cond.Values, v)
			}
		} else {
			v, err := core.ValueFromJSON(field.Type, c.Value)
			if err != nil {
				return nil, badRequest{err}
			}
			cond.Value = v
		}
		filters = append(filters, cond)
	}
	return sql.AndAll(filters...), nil
}

// ParseArgs reads the filter, paging and ordering of req.
func ParseArgs(model *core.Model, req Request) (sql.QueryArguments, error) {
	filter, err := ParseFilter(model, req.Filter)
	if err != nil {
		return sql.QueryArguments{}, err
	}
	if req.Skip < 0 || (req.First != nil && *req.First < 0) {
		return sql.QueryArguments{}, badRequestf("skip and first must not be negative")
	}
	args := sql.QueryArguments{Where: filter, Skip: req.Skip, First: req.First}
	if req.OrderBy != nil {
		field := model.Field(req.OrderBy.Field)
		if field == nil || field.IsList {
			return sql.QueryArguments{}, badRequestf("cannot order %s by %q", model.Name, req.OrderBy.Field)
		}
		args.OrderBy = &sql.OrderBy{Field: field, Desc: req.OrderBy.Desc}
	}
	return args, nil
}

// parseInput converts data in field declaration order so equal requests
// render equal statements.
func parseInput(model *core.Model, data map[string]any) (NodeInput, error) {
	var in NodeInput
	for name := range data {
		if model.Field(name) == nil {
			return NodeInput{}, badRequestf("model %s has no field %q", model.Name, name)
		}
	}
	for _, f := range model.Fields {
		raw, ok := data[f.Name]
		if !ok {
			continue
		}
		if f.IsList {
			list, ok := raw.([]any)
			if !ok && raw != nil {
				return NodeInput{}, badRequestf("field %s.%s needs a list value", model.Name, f.Name)
			}
			values := make([]core.Value, 0, len(list))
			for _, e := range list {
				v, err := core.ValueFromJSON(f.Type, e)
				if err != nil {
					return NodeInput{}, badRequest{err}
				}
				values = append(values, v)
			}
			in.Lists = append(in.Lists, ListArg{Field: f, Values: values})
			continue
		}
		v, err := core.ValueFromJSON(f.Type, raw)
		if err != nil {
			return NodeInput{}, badRequest{err}
		}
		in.Args = append(in.Args, sql.Arg{Field: f, Value: v})
	}
	return in, nil
}

func nodeJSON(n core.Node, names []string) map[string]any {
	out := make(map[string]any, len(names)+1)
	for i, name := range names {
		out[name] = core.ValueToJSON(n.Values[i])
	}
	if n.ParentID != nil {
		out["_parentId"] = *n.ParentID
	}
	return out
}

func manyJSON(nodes core.ManyNodes) []map[string]any {
	out := make([]map[string]any, len(nodes.Nodes))
	for i, n := range nodes.Nodes {
		out[i] = nodeJSON(n, nodes.FieldNames)
	}
	return out
}
