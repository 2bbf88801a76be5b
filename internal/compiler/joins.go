package compiler

import (
	"fmt"
	"sort"
	"strings"

	"datagate/internal/apperr"
	"datagate/internal/filter"
	"datagate/internal/metadata"
	"datagate/internal/permissions"
	"datagate/internal/relpath"
)

type joinRole int

const (
	joinHop joinRole = iota
	// joinJunction is the first half of a folded many-to-any hop.
	joinJunction
)

type joinSpec struct {
	hop    relpath.Hop
	role   joinRole
	parent string
	// user is set when the user filter needs the join; such joins are
	// restricted to rows the caller may read.
	user bool
}

// joinSet maps a canonical path prefix to the join it needs.
type joinSet map[string]*joinSpec

func (js joinSet) merge(other joinSet) {
	for path, spec := range other {
		if existing, ok := js[path]; ok {
			existing.user = existing.user || spec.user
			continue
		}
		js[path] = spec
	}
}

func (js joinSet) add(path string, spec *joinSpec) {
	if len(spec.hop.Path) == 0 {
		apperr.Invariant("join registered without a hop for path %q", path)
	}
	js.merge(joinSet{path: spec})
}

// junctionPath strips the scoped junction field from a folded hop's path:
// "children.item:circles" joins "children" first.
func junctionPath(hopPath string) string {
	if i := strings.LastIndexByte(hopPath, '.'); i >= 0 {
		return hopPath[:i]
	}
	return hopPath
}

// existsRoot reports whether a path starting with this hop is compiled to a
// correlated EXISTS rather than joined.
func existsRoot(hop relpath.Hop) bool {
	return hop.Kind == metadata.KindO2M || hop.Junction != nil
}

// discover walks n and collects the joins its conditions need.
func (c *compiler) discover(collection string, n filter.Node, user, isCases bool) (joinSet, error) {
	js := joinSet{}
	switch node := n.(type) {
	case *filter.Logical:
		children := node.Children
		if node.Op == filter.Or && hasTrueChild(children) {
			if !isCases || len(children) == 1 {
				return js, nil
			}
			children = nonTrue(children)
		}
		for _, child := range children {
			sub, err := c.discover(collection, child, user, false)
			if err != nil {
				return nil, err
			}
			js.merge(sub)
		}

	case *filter.Condition:
		res, err := c.paths.Resolve(collection, node.Path)
		if err != nil {
			return nil, err
		}
		if len(res.Chain) == 0 || existsRoot(res.Chain[0]) {
			return js, nil
		}
		parent := ""
		for _, hop := range res.Chain {
			if hop.Junction != nil {
				jp := junctionPath(hop.Path)
				js.add(jp, &joinSpec{hop: hop, role: joinJunction, parent: parent, user: user})
				parent = jp
			}
			js.add(hop.Path, &joinSpec{hop: hop, parent: parent, user: user})
			parent = hop.Path
		}
	}
	// Quantified nodes compile to subqueries and need no joins.
	return js, nil
}

func hasTrueChild(children []filter.Node) bool {
	for _, ch := range children {
		if filter.IsTrue(ch) {
			return true
		}
	}
	return false
}

func nonTrue(children []filter.Node) []filter.Node {
	out := make([]filter.Node, 0, len(children))
	for _, ch := range children {
		if !filter.IsTrue(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// plan orders the discovered joins by path and assigns aliases. Prefixes
// sort before their extensions, so every parent is joined first.
func (c *compiler) plan(js joinSet, restrict bool) ([]*Join, map[string]string, error) {
	paths := make([]string, 0, len(js))
	for p := range js {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	aliases := make(map[string]string, len(paths))
	joins := make([]*Join, 0, len(paths))
	for i, p := range paths {
		spec := js[p]
		alias := fmt.Sprintf("r%d", i+1)
		aliases[p] = alias

		j, err := c.buildJoin(spec, alias, p, aliases[spec.parent])
		if err != nil {
			return nil, nil, err
		}
		if restrict && spec.user {
			j.Restriction, err = c.restriction(j.Collection)
			if err != nil {
				return nil, nil, err
			}
		}
		joins = append(joins, j)
	}
	return joins, aliases, nil
}

func (c *compiler) buildJoin(spec *joinSpec, alias, path, parent string) (*Join, error) {
	hop := spec.hop
	j := &Join{Alias: alias, Path: path, Parent: parent}

	if spec.role == joinJunction {
		rel := hop.Junction
		j.Collection = rel.Collection
		j.ParentColumn = c.primaryKey(hop.Source)
		j.Column = rel.Field
		j.Multi = true
		return j, nil
	}

	rel := hop.Relation
	switch hop.Kind {
	case metadata.KindM2O:
		j.Collection = hop.Target
		j.ParentColumn = rel.Field
		j.Column = c.primaryKey(hop.Target)
	case metadata.KindA2O:
		j.Collection = hop.Target
		j.ParentColumn = rel.Field
		j.Column = c.primaryKey(hop.Target)
		j.CastColumn = true
		j.Scope = &ScopeCheck{OnParent: true, Column: rel.CollectionField(), Value: hop.Scope}
	case metadata.KindO2M:
		j.Collection = rel.Collection
		j.ParentColumn = c.primaryKey(hop.Source)
		j.Column = rel.Field
		j.Multi = true
	case metadata.KindO2A:
		j.Collection = rel.Collection
		j.ParentColumn = c.primaryKey(hop.Source)
		j.CastParent = true
		j.Column = rel.Field
		j.Scope = &ScopeCheck{Column: rel.CollectionField(), Value: hop.Source}
		j.Multi = true
	default:
		return nil, apperr.UsageError(fmt.Sprintf("Cannot join relation kind %q", hop.Kind))
	}
	return j, nil
}

// restriction compiles the caller's read cases for a joined collection.
// Cases are trusted, so the compiled cases carry no restrictions of their
// own.
func (c *compiler) restriction(collection string) (*Result, error) {
	access := c.readAccess(collection)
	switch access.State {
	case permissions.Unrestricted:
		return nil, nil
	case permissions.Denied:
		return &Result{Collection: collection, PrimaryKey: c.primaryKey(collection), Condition: &Constant{Value: false}}, nil
	}
	return c.compile(collection, nil, access, false)
}

func (c *compiler) primaryKey(collection string) string {
	if coll := c.schema.Collection(collection); coll != nil {
		return coll.PrimaryKey
	}
	return "id"
}
