package sql

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nickyhof/TenantDB/core"
)

// Build renders a query into statement text with positional "?" parameters.
// The output is valid for both SQLite and DuckDB.
func Build(q Query) (string, []any) {
	v := &visitor{}
	v.query(q)
	return v.sb.String(), v.params
}

type visitor struct {
	sb     strings.Builder
	params []any
}

// Quote quotes an identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (v *visitor) write(parts ...string) {
	for _, p := range parts {
		v.sb.WriteString(p)
	}
}

func (v *visitor) param(p any) {
	v.params = append(v.params, p)
	v.sb.WriteByte('?')
}

func (v *visitor) query(q Query) {
	switch t := q.(type) {
	case *Select:
		v.selectStmt(t)
	case *Insert:
		v.insert(t)
	case *Update:
		v.update(t)
	case *Delete:
		v.delete(t)
	case Raw:
		v.write(t.SQL)
		v.params = append(v.params, t.Params...)
	default:
		panic(fmt.Sprintf("sql: unsupported query %T", q))
	}
}

func (v *visitor) table(t Table) {
	if t.Schema != "" {
		v.write(Quote(t.Schema), ".")
	}
	v.write(Quote(t.Name))
}

func (v *visitor) column(c Column) {
	if c.Table != "" {
		v.write(Quote(c.Table), ".")
	}
	v.write(Quote(c.Name))
}

func (v *visitor) expr(e Expr) {
	switch t := e.(type) {
	case Column:
		v.column(t)
		if t.Alias != "" {
			v.write(" AS ", Quote(t.Alias))
		}
	case Count:
		v.write("COUNT(*)")
	case RowNumber:
		v.write("ROW_NUMBER() OVER (PARTITION BY ")
		v.column(t.PartitionBy)
		if len(t.OrderBy) > 0 {
			v.write(" ")
			v.orderBy(t.OrderBy)
		}
		v.write(")")
		if t.Alias != "" {
			v.write(" AS ", Quote(t.Alias))
		}
	default:
		panic(fmt.Sprintf("sql: unsupported expression %T", e))
	}
}

func (v *visitor) orderBy(orderings []Ordering) {
	v.write("ORDER BY ")
	for i, o := range orderings {
		if i > 0 {
			v.write(", ")
		}
		v.column(o.Column)
		if o.Desc {
			v.write(" DESC")
		} else {
			v.write(" ASC")
		}
	}
}

func (v *visitor) selectStmt(s *Select) {
	v.write("SELECT ")
	for i, c := range s.Columns {
		if i > 0 {
			v.write(", ")
		}
		v.expr(c)
	}
	v.write(" FROM ")
	switch src := s.From.(type) {
	case Table:
		v.table(src)
	case *Subquery:
		v.write("(")
		v.selectStmt(src.Select)
		v.write(") AS ", Quote(src.Alias))
	default:
		panic(fmt.Sprintf("sql: unsupported source %T", s.From))
	}
	for _, j := range s.Joins {
		v.write(" INNER JOIN ")
		v.table(j.Table)
		v.write(" ON ")
		v.column(j.Left)
		v.write(" = ")
		v.column(j.Right)
	}
	v.where(s.Where)
	if len(s.OrderBy) > 0 {
		v.write(" ")
		v.orderBy(s.OrderBy)
	}
	if s.Limit != nil {
		v.write(" LIMIT ", strconv.Itoa(*s.Limit))
	} else if s.Offset > 0 {
		v.write(" LIMIT ", strconv.FormatInt(math.MaxInt64, 10))
	}
	if s.Offset > 0 {
		v.write(" OFFSET ", strconv.Itoa(s.Offset))
	}
}

func (v *visitor) insert(ins *Insert) {
	v.write("INSERT INTO ")
	v.table(ins.Table)
	v.write(" (")
	for i, c := range ins.Columns {
		if i > 0 {
			v.write(", ")
		}
		v.write(Quote(c))
	}
	v.write(") VALUES ")
	for i, row := range ins.Values {
		if i > 0 {
			v.write(", ")
		}
		v.write("(")
		for j, val := range row {
			if j > 0 {
				v.write(", ")
			}
			v.param(raw(val))
		}
		v.write(")")
	}
}

func (v *visitor) update(u *Update) {
	v.write("UPDATE ")
	v.table(u.Table)
	v.write(" SET ")
	for i, a := range u.Set {
		if i > 0 {
			v.write(", ")
		}
		v.write(Quote(a.Column), " = ")
		v.param(raw(a.Value))
	}
	v.where(u.Where)
}

func (v *visitor) delete(d *Delete) {
	v.write("DELETE FROM ")
	v.table(d.Table)
	v.where(d.Where)
}

func (v *visitor) where(f Filter) {
	if f == nil {
		return
	}
	v.write(" WHERE ")
	v.filter(f)
}

func (v *visitor) filter(f Filter) {
	switch t := f.(type) {
	case And:
		v.junction(t, " AND ", "1=1")
	case Or:
		v.junction(t, " OR ", "1=0")
	case Not:
		v.write("NOT (")
		v.filter(t.Filter)
		v.write(")")
	case ScalarCondition:
		v.scalar(t)
	case RelatedIDFilter:
		v.related(t)
	case columnIn:
		v.in(t.Column, t.Values, false)
	case rowRange:
		v.column(t.Column)
		v.write(" > ", strconv.Itoa(t.From))
		if t.To != nil {
			v.write(" AND ")
			v.column(t.Column)
			v.write(" <= ", strconv.Itoa(*t.To))
		}
	default:
		panic(fmt.Sprintf("sql: unsupported filter %T", f))
	}
}

func (v *visitor) junction(filters []Filter, sep, empty string) {
	if len(filters) == 0 {
		v.write(empty)
		return
	}
	v.write("(")
	for i, f := range filters {
		if i > 0 {
			v.write(sep)
		}
		v.filter(f)
	}
	v.write(")")
}

func (v *visitor) scalar(c ScalarCondition) {
	col := ColumnOf(c.Field)
	switch c.Op {
	case In, NotIn:
		values := make([]any, len(c.Values))
		for i, val := range c.Values {
			values[i] = raw(val)
		}
		v.in(col, values, c.Op == NotIn)
		return
	case Equals, NotEquals:
		if core.IsNull(c.Value) {
			v.column(col)
			if c.Op == Equals {
				v.write(" IS NULL")
			} else {
				v.write(" IS NOT NULL")
			}
			return
		}
	}

	v.column(col)
	switch c.Op {
	case Equals:
		v.write(" = ")
	case NotEquals:
		v.write(" <> ")
	case LessThan:
		v.write(" < ")
	case LessThanOrEquals:
		v.write(" <= ")
	case GreaterThan:
		v.write(" > ")
	case GreaterThanOrEquals:
		v.write(" >= ")
	case Contains, StartsWith, EndsWith:
		v.write(" LIKE ")
		v.param(likePattern(c.Op, c.Value.String()))
		v.write(` ESCAPE '\'`)
		return
	}
	v.param(raw(c.Value))
}

func (v *visitor) in(col Column, values []any, negate bool) {
	if len(values) == 0 {
		if negate {
			v.write("1=1")
		} else {
			v.write("1=0")
		}
		return
	}
	v.column(col)
	if negate {
		v.write(" NOT IN (")
	} else {
		v.write(" IN (")
	}
	for i, val := range values {
		if i > 0 {
			v.write(", ")
		}
		v.param(val)
	}
	v.write(")")
}

func (v *visitor) related(r RelatedIDFilter) {
	relTable := Table{Schema: r.Model.Schema().DBName, Name: r.Relation.Table}
	ids := make([]any, len(r.ParentIDs))
	for i, id := range r.ParentIDs {
		ids[i] = id.Raw()
	}
	v.column(ColumnOf(r.Model.ID()))
	v.write(" IN (")
	v.selectStmt(&Select{
		From:    relTable,
		Columns: []Expr{Column{Table: relTable.Name, Name: r.ChildColumn}},
		Where:   columnIn{Column: Column{Table: relTable.Name, Name: r.ParentColumn}, Values: ids},
	})
	v.write(")")
}

func raw(val core.Value) any {
	if val == nil {
		return nil
	}
	return val.Raw()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(op Operator, s string) string {
	s = likeEscaper.Replace(s)
	switch op {
	case StartsWith:
		return s + "%"
	case EndsWith:
		return "%" + s
	default:
		return "%" + s + "%"
	}
}
