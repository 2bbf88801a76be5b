// Package filter defines the filter tree accepted by the compiler and the
// payload walker. A Node is one of *Logical, *Condition or *Quantified;
// the set is closed, so consumers switch on the concrete type.
package filter

import "strings"

type Node interface {
	node()
}

type LogicalOp string

const (
	And LogicalOp = "_and"
	Or  LogicalOp = "_or"
)

type Quantifier string

const (
	Some Quantifier = "_some"
	None Quantifier = "_none"
)

// Logical combines children. An And without children is always true and an
// Or without children is always false.
type Logical struct {
	Op       LogicalOp
	Children []Node
}

// Condition compares the value at Path using Operator. Value may be
// Undefined, in which case the condition is skipped.
type Condition struct {
	Path     []PathSegment
	Operator string
	Value    any
}

// Quantified applies Filter to the rows of the multi-row relation at Path.
type Quantified struct {
	Path       []PathSegment
	Quantifier Quantifier
	Filter     Node
}

func (*Logical) node()    {}
func (*Condition) node()  {}
func (*Quantified) node() {}

// PathSegment is one dotted step of a field path. Scope is set for
// polymorphic hops (item:circles); Function for function calls
// (year(date_created)).
type PathSegment struct {
	Name     string
	Scope    string
	Function string
}

func (s PathSegment) String() string {
	switch {
	case s.Function != "":
		return s.Function + "(" + s.Name + ")"
	case s.Scope != "":
		return s.Name + ":" + s.Scope
	default:
		return s.Name
	}
}

// PathString renders the canonical dotted form of a path.
func PathString(path []PathSegment) string {
	parts := make([]string, len(path))
	for i, s := range path {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Undefined marks an absent comparison value.
var Undefined any = undefined{}

func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

// True returns a filter that matches every row.
func True() *Logical { return &Logical{Op: And} }

// False returns a filter that matches no row.
func False() *Logical { return &Logical{Op: Or} }

// IsTrue reports whether n is the unconditional filter.
func IsTrue(n Node) bool {
	if n == nil {
		return true
	}
	l, ok := n.(*Logical)
	return ok && l.Op == And && len(l.Children) == 0
}

// IsFalse reports whether n is the empty disjunction.
func IsFalse(n Node) bool {
	l, ok := n.(*Logical)
	return ok && l.Op == Or && len(l.Children) == 0
}

func NewAnd(children ...Node) *Logical { return &Logical{Op: And, Children: children} }

func NewOr(children ...Node) *Logical { return &Logical{Op: Or, Children: children} }

// Field builds a condition from a dotted path, panicking on a malformed
// path. Intended for literals in code and tests.
func Field(path, operator string, value any) *Condition {
	segs, err := ParsePath(path)
	if err != nil {
		panic(err)
	}
	return &Condition{Path: segs, Operator: operator, Value: value}
}
