// Package compiler turns a user filter and the caller's permission cases
// into a join plan and a condition tree over one root collection. The
// output carries no SQL; internal/engine renders it for a dialect.
package compiler

import (
	"datagate/internal/filter"
	"datagate/internal/operators"
)

// Result is a compiled query scope. Subqueries (EXISTS, IN, count and join
// restrictions) are nested Results over their own collection.
type Result struct {
	Collection         string
	PrimaryKey         string
	Joins              []*Join
	Condition          Condition
	HasMultiRelational bool
}

// Join is one LEFT JOIN of the plan. Parent is the alias of the joined-from
// table; an empty Parent is the scope's root table.
//
//	[CAST(]Parent.ParentColumn[)] = [CAST(]Alias.Column[)] [AND scope check]
type Join struct {
	Alias        string
	Path         string
	Collection   string
	Parent       string
	ParentColumn string
	Column       string
	CastParent   bool
	CastColumn   bool
	Scope        *ScopeCheck
	// Restriction limits the joined rows to those the caller may read.
	Restriction *Result
	Multi       bool
}

// ScopeCheck pins the collection column of a polymorphic relation.
type ScopeCheck struct {
	OnParent bool
	Column   string
	Value    string
}

// Condition is one of *Logical, *Compare, *In, *Exists or *Constant.
type Condition interface {
	condition()
}

type Logical struct {
	Op       filter.LogicalOp
	Children []Condition
	Negate   bool
}

// Column references a field of the scope root (empty Alias) or of a join.
type Column struct {
	Alias    string
	Field    string
	Function string
	JSONPath []string
	// Count replaces the column with a correlated row count.
	Count *Subquery
}

type Compare struct {
	Column Column
	Cmp    operators.Comparison
}

// Subquery is a correlated subquery over Query.Collection linked to the
// outer scope by Link.
type Subquery struct {
	Query *Result
	Link  Link
}

// Link correlates a subquery column with an outer column.
//
//	sub.Column = [CAST(]outer.Parent[)] [AND sub.ScopeColumn = ScopeValue]
type Link struct {
	Column      string
	Parent      Column
	CastParent  bool
	ScopeColumn string
	ScopeValue  string
}

// In tests Link.Parent against the non-null Link.Column values of the
// subquery rows.
type In struct {
	Subquery
	Negate bool
}

// Exists tests for at least one correlated subquery row.
type Exists struct {
	Subquery
	Negate bool
}

type Constant struct {
	Value bool
}

func (*Logical) condition()  {}
func (*Compare) condition()  {}
func (*In) condition()       {}
func (*Exists) condition()   {}
func (*Constant) condition() {}

// IsConstant reports whether c is the constant v.
func IsConstant(c Condition, v bool) bool {
	k, ok := c.(*Constant)
	return ok && k.Value == v
}

// fold combines children under op, dropping identities and absorbing
// annihilators. nil children are skipped conditions.
func fold(op filter.LogicalOp, children []Condition) Condition {
	out := make([]Condition, 0, len(children))
	for _, ch := range children {
		if ch == nil {
			continue
		}
		if k, ok := ch.(*Constant); ok {
			if op == filter.And && !k.Value {
				return &Constant{Value: false}
			}
			if op == filter.Or && k.Value {
				return &Constant{Value: true}
			}
			continue
		}
		out = append(out, ch)
	}
	switch len(out) {
	case 0:
		return &Constant{Value: op == filter.And}
	case 1:
		return out[0]
	}
	return &Logical{Op: op, Children: out}
}
