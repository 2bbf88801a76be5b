// Package matcher evaluates filter trees against in-memory records. Filters
// are compiled to expr-lang programs and cached by shape, so two filters
// that differ only in their values share one program.
package matcher

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"datagate/internal/filter"
)

type Matcher struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func New() *Matcher {
	return &Matcher{cache: make(map[string]*vm.Program)}
}

// compiled holds the generated source and the nodes it refers to by index.
type compiled struct {
	source     string
	conditions []*filter.Condition
	quantified []*filter.Quantified
	strict     bool
}

// Match reports whether record satisfies n. A nil filter matches everything.
// A field missing from record compares as null.
func (m *Matcher) Match(n filter.Node, record map[string]any) (bool, error) {
	return m.match(n, record, false)
}

// MatchPresent is Match for partial records: a condition on a field missing
// from record never holds, negated or not.
func (m *Matcher) MatchPresent(n filter.Node, record map[string]any) (bool, error) {
	return m.match(n, record, true)
}

func (m *Matcher) match(n filter.Node, record map[string]any, strict bool) (bool, error) {
	if filter.IsTrue(n) {
		return true, nil
	}
	if filter.IsFalse(n) {
		return false, nil
	}

	c := &compiled{strict: strict}
	c.source = c.build(n, "record")

	prog, err := m.program(c.source)
	if err != nil {
		return false, err
	}

	result, err := expr.Run(prog, c.env(record))
	if err != nil {
		return false, errors.Wrap(err, "evaluate filter")
	}
	ok, isBool := result.(bool)
	if !isBool {
		return false, errors.New("filter did not return bool")
	}
	return ok, nil
}

func (m *Matcher) program(source string) (*vm.Program, error) {
	m.mu.RLock()
	prog, ok := m.cache[source]
	m.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := expr.Compile(source, expr.Env((&compiled{}).env(nil)), expr.AsBool())
	if err != nil {
		return nil, errors.Wrap(err, "compile filter")
	}

	m.mu.Lock()
	m.cache[source] = prog
	m.mu.Unlock()
	return prog, nil
}

func (c *compiled) build(n filter.Node, base string) string {
	switch node := n.(type) {
	case *filter.Logical:
		if len(node.Children) == 0 {
			if node.Op == filter.And {
				return "true"
			}
			return "false"
		}
		sep := " && "
		if node.Op == filter.Or {
			sep = " || "
		}
		parts := make([]string, len(node.Children))
		for i, child := range node.Children {
			parts[i] = c.build(child, base)
		}
		return "(" + strings.Join(parts, sep) + ")"

	case *filter.Condition:
		c.conditions = append(c.conditions, node)
		return fmt.Sprintf("cmp(%d, %s)", len(c.conditions)-1, base)

	case *filter.Quantified:
		c.quantified = append(c.quantified, node)
		fn := "any"
		if node.Quantifier == filter.None {
			fn = "none"
		}
		inner := c.build(node.Filter, "#")
		if filter.IsTrue(node.Filter) {
			inner = "true"
		}
		return fmt.Sprintf("%s(items(%d, %s), {%s})", fn, len(c.quantified)-1, base, inner)
	}
	return "true"
}

func (c *compiled) env(record map[string]any) map[string]any {
	return map[string]any{
		"record": record,
		"cmp": func(i int, base any) (bool, error) {
			return evaluateCondition(c.conditions[i], base, c.strict)
		},
		"items": func(i int, base any) []any {
			return collect(base, c.quantified[i].Path, c.strict)
		},
	}
}
