package permissions

import (
	"slices"
	"sort"

	"datagate/internal/filter"
)

type State int

const (
	// Denied means no rule grants the action.
	Denied State = iota
	// Restricted means the action is allowed on rows matching Filters.
	Restricted
	// Unrestricted means the action is allowed on every row.
	Unrestricted
)

func (s State) String() string {
	switch s {
	case Unrestricted:
		return "unrestricted"
	case Restricted:
		return "restricted"
	default:
		return "denied"
	}
}

// Access is the row access of one caller for one collection and action.
// The zero value denies everything.
type Access struct {
	State   State
	Filters []filter.Node
}

// BuildCases combines rules with OR semantics. No rules deny; a single
// unconditional rule makes every other rule irrelevant for rows.
func BuildCases(rules []*Rule) Access {
	if len(rules) == 0 {
		return Access{State: Denied}
	}
	filters := make([]filter.Node, 0, len(rules))
	for _, r := range rules {
		if r.Unconditional() {
			return Access{State: Unrestricted}
		}
		filters = append(filters, r.Filter)
	}
	return Access{State: Restricted, Filters: filters}
}

// Node renders the access as a filter.
func (a Access) Node() filter.Node {
	switch a.State {
	case Unrestricted:
		return filter.True()
	case Restricted:
		return filter.NewOr(a.Filters...)
	default:
		return filter.False()
	}
}

// FieldSet is the union of the fields granted by a set of rules.
type FieldSet struct {
	all    bool
	fields map[string]bool
}

func AllowedFields(rules []*Rule) FieldSet {
	fs := FieldSet{fields: make(map[string]bool)}
	for _, r := range rules {
		for _, f := range r.Fields {
			if f == "*" {
				fs.all = true
				continue
			}
			fs.fields[f] = true
		}
	}
	return fs
}

// FieldSetOf builds a FieldSet from a field list, as returned by item
// access checks.
func FieldSetOf(fields []string) FieldSet {
	return AllowedFields([]*Rule{{Fields: fields}})
}

func (fs FieldSet) All() bool { return fs.all }

func (fs FieldSet) Empty() bool { return !fs.all && len(fs.fields) == 0 }

func (fs FieldSet) Allows(field string) bool {
	return fs.all || fs.fields[field]
}

// List returns the sorted field names, or ["*"] for a wildcard set.
func (fs FieldSet) List() []string {
	if fs.all {
		return []string{"*"}
	}
	out := make([]string, 0, len(fs.fields))
	for f := range fs.fields {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Union merges two field sets.
func (fs FieldSet) Union(other FieldSet) FieldSet {
	out := FieldSet{all: fs.all || other.all, fields: make(map[string]bool)}
	for f := range fs.fields {
		out.fields[f] = true
	}
	for f := range other.fields {
		out.fields[f] = true
	}
	return out
}

// Equal compares two field sets by content.
func (fs FieldSet) Equal(other FieldSet) bool {
	return slices.Equal(fs.List(), other.List())
}
