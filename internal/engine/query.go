package engine

import (
	"fmt"
	"strings"

	"datagate/internal/compiler"
	"datagate/internal/filter"
	"datagate/internal/operators"
	"datagate/internal/store"
)

type QueryResult struct {
	SQL    string
	Params []any
}

type OrderClause struct {
	Field string
	Dir   string // ASC or DESC
}

// SelectOptions controls the parts of a SELECT that filters do not cover.
// A zero Limit means no LIMIT clause.
type SelectOptions struct {
	Sort   []OrderClause
	Limit  int
	Offset int
}

// renderer writes a compiled Result as SQL. All levels share one
// ParamBuilder; each subquery level gets its own alias namespace.
type renderer struct {
	dialect store.Dialect
	pb      store.ParamBuilder
	next    int
}

// Render returns the JOIN clauses and WHERE condition of res. The root
// table is referenced by its collection name.
func Render(res *compiler.Result, d store.Dialect, pb store.ParamBuilder) (joins, where string) {
	r := &renderer{dialect: d, pb: pb}
	return r.level(res, res.Collection, "")
}

func (r *renderer) level(res *compiler.Result, root, prefix string) (string, string) {
	var joins []string
	for _, j := range res.Joins {
		joins = append(joins, r.join(j, root, prefix))
	}
	where := r.condition(res.Condition, root, prefix)
	return strings.Join(joins, " "), where
}

func (r *renderer) join(j *compiler.Join, root, prefix string) string {
	alias := prefix + j.Alias
	parent := root
	if j.Parent != "" {
		parent = prefix + j.Parent
	}

	left := alias + "." + j.Column
	if j.CastColumn {
		left = r.dialect.CastText(left)
	}
	right := parent + "." + j.ParentColumn
	if j.CastParent {
		right = r.dialect.CastText(right)
	}
	on := []string{left + " = " + right}

	if j.Scope != nil {
		owner := alias
		if j.Scope.OnParent {
			owner = parent
		}
		on = append(on, fmt.Sprintf("%s.%s = %s", owner, j.Scope.Column, r.pb.Add(j.Scope.Value)))
	}
	if j.Restriction != nil {
		on = append(on, fmt.Sprintf("%s.%s IN (%s)", alias, j.Restriction.PrimaryKey,
			r.subselect(j.Restriction, func(sub string) string { return sub + "." + j.Restriction.PrimaryKey }, nil)))
	}
	return fmt.Sprintf("LEFT JOIN %s AS %s ON %s", j.Collection, alias, strings.Join(on, " AND "))
}

// subselect renders SELECT <selected> FROM <collection> AS sN ... with the
// optional link predicates prepended to the subquery's own condition.
func (r *renderer) subselect(res *compiler.Result, selected func(alias string) string, link func(alias string) []string) string {
	r.next++
	alias := fmt.Sprintf("s%d", r.next)

	var preds []string
	if link != nil {
		preds = append(preds, link(alias)...)
	}
	joins, where := r.level(res, alias, alias+"_")
	if !compiler.IsConstant(res.Condition, true) {
		preds = append(preds, where)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s AS %s", selected(alias), res.Collection, alias)
	if joins != "" {
		sql += " " + joins
	}
	if len(preds) > 0 {
		sql += " WHERE " + strings.Join(preds, " AND ")
	}
	return sql
}

func (r *renderer) condition(c compiler.Condition, root, prefix string) string {
	switch cond := c.(type) {
	case *compiler.Constant:
		if cond.Value {
			return "1=1"
		}
		return "1=0"

	case *compiler.Logical:
		sep := " AND "
		if cond.Op == filter.Or {
			sep = " OR "
		}
		parts := make([]string, len(cond.Children))
		for i, ch := range cond.Children {
			parts[i] = r.condition(ch, root, prefix)
		}
		out := "(" + strings.Join(parts, sep) + ")"
		if cond.Negate {
			return "NOT " + out
		}
		return out

	case *compiler.Compare:
		return operators.SQL(r.column(cond.Column, root, prefix), cond.Cmp, r.dialect, r.pb)

	case *compiler.In:
		parent := r.linkParent(cond.Link, root, prefix)
		sub := r.subselect(cond.Query,
			func(alias string) string { return alias + "." + cond.Link.Column },
			func(alias string) []string {
				preds := []string{alias + "." + cond.Link.Column + " IS NOT NULL"}
				return append(preds, r.scope(cond.Link, alias)...)
			})
		if cond.Negate {
			return fmt.Sprintf("%s NOT IN (%s)", parent, sub)
		}
		return fmt.Sprintf("%s IN (%s)", parent, sub)

	case *compiler.Exists:
		sub := r.subselect(cond.Query,
			func(string) string { return "1" },
			func(alias string) []string { return r.correlate(cond.Link, alias, root, prefix) })
		if cond.Negate {
			return "NOT EXISTS (" + sub + ")"
		}
		return "EXISTS (" + sub + ")"
	}
	return "1=1"
}

func (r *renderer) column(col compiler.Column, root, prefix string) string {
	if col.Count != nil {
		sub := r.subselect(col.Count.Query,
			func(string) string { return "COUNT(*)" },
			func(alias string) []string { return r.correlate(col.Count.Link, alias, root, prefix) })
		return "(" + sub + ")"
	}

	ref := r.ref(col.Alias, col.Field, root, prefix)
	if len(col.JSONPath) > 0 {
		return r.dialect.JSONExtract(ref, col.JSONPath, r.pb)
	}
	if col.Function != "" {
		return r.dialect.DatePart(col.Function, ref)
	}
	return ref
}

func (r *renderer) ref(alias, field, root, prefix string) string {
	if alias == "" {
		return root + "." + field
	}
	return prefix + alias + "." + field
}

func (r *renderer) linkParent(link compiler.Link, root, prefix string) string {
	parent := r.ref(link.Parent.Alias, link.Parent.Field, root, prefix)
	if link.CastParent {
		return r.dialect.CastText(parent)
	}
	return parent
}

func (r *renderer) correlate(link compiler.Link, alias, root, prefix string) []string {
	preds := []string{alias + "." + link.Column + " = " + r.linkParent(link, root, prefix)}
	return append(preds, r.scope(link, alias)...)
}

func (r *renderer) scope(link compiler.Link, alias string) []string {
	if link.ScopeColumn == "" {
		return nil
	}
	return []string{fmt.Sprintf("%s.%s = %s", alias, link.ScopeColumn, r.pb.Add(link.ScopeValue))}
}

// BuildSelectSQL builds a parameterized SELECT over the compiled filter.
func BuildSelectSQL(res *compiler.Result, fields []string, d store.Dialect, opts SelectOptions) QueryResult {
	pb := d.NewParamBuilder()
	root := res.Collection

	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = root + "." + f
	}

	joins, where := Render(res, d, pb)

	sql := "SELECT "
	if res.HasMultiRelational {
		sql += "DISTINCT "
	}
	sql += fmt.Sprintf("%s FROM %s", strings.Join(columns, ", "), root)
	if joins != "" {
		sql += " " + joins
	}
	if !compiler.IsConstant(res.Condition, true) {
		sql += " WHERE " + where
	}

	if len(opts.Sort) > 0 {
		var orderParts []string
		for _, s := range opts.Sort {
			orderParts = append(orderParts, fmt.Sprintf("%s.%s %s", root, s.Field, s.Dir))
		}
		sql += " ORDER BY " + strings.Join(orderParts, ", ")
	}

	if opts.Limit > 0 {
		limit := pb.Add(opts.Limit)
		offset := pb.Add(opts.Offset)
		sql += fmt.Sprintf(" LIMIT %s OFFSET %s", limit, offset)
	}

	return QueryResult{SQL: sql, Params: pb.Params()}
}

// BuildCountSQL builds a COUNT query with the same joins and filter as the
// select. Multi-row joins count distinct primary keys.
func BuildCountSQL(res *compiler.Result, d store.Dialect) QueryResult {
	pb := d.NewParamBuilder()
	root := res.Collection

	joins, where := Render(res, d, pb)

	count := "COUNT(*)"
	if res.HasMultiRelational {
		count = fmt.Sprintf("COUNT(DISTINCT %s.%s)", root, res.PrimaryKey)
	}
	sql := fmt.Sprintf("SELECT %s FROM %s", count, root)
	if joins != "" {
		sql += " " + joins
	}
	if !compiler.IsConstant(res.Condition, true) {
		sql += " WHERE " + where
	}

	return QueryResult{SQL: sql, Params: pb.Params()}
}
