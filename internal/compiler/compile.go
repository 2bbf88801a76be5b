package compiler

import (
	"fmt"

	"datagate/internal/apperr"
	"datagate/internal/filter"
	"datagate/internal/metadata"
	"datagate/internal/operators"
	"datagate/internal/permissions"
	"datagate/internal/relpath"
)

type compiler struct {
	schema *metadata.SchemaOverview
	paths  *relpath.Cache
	rules  permissions.Resolver
	fields map[string]permissions.FieldSet
	// denied skips field checks: the result is false whatever the filter
	// names.
	denied bool
}

// Compile compiles userFilter AND cases over collection. rules supplies the
// read permissions of related collections and the field permissions checked
// against the user filter; a nil Resolver skips both. Errors are returned
// before any output is produced.
func Compile(schema *metadata.SchemaOverview, collection string, userFilter filter.Node, cases permissions.Access, rules permissions.Resolver) (*Result, error) {
	c := &compiler{
		schema: schema,
		paths:  relpath.NewCache(schema),
		rules:  rules,
		fields: make(map[string]permissions.FieldSet),
		denied: cases.State == permissions.Denied,
	}
	return c.compile(collection, userFilter, cases, true)
}

// scope is one query level: the root collection and the aliases of its
// joins.
type scope struct {
	collection string
	aliases    map[string]string
	user       bool
}

func (c *compiler) compile(collection string, user filter.Node, cases permissions.Access, restrict bool) (*Result, error) {
	coll := c.schema.Collection(collection)
	if coll == nil {
		return nil, apperr.UnknownCollectionError(collection)
	}
	if user == nil {
		user = filter.True()
	}
	casesNode := cases.Node()

	js, err := c.discover(collection, user, true, false)
	if err != nil {
		return nil, err
	}
	if cases.State == permissions.Restricted {
		caseJoins, err := c.discover(collection, casesNode, false, true)
		if err != nil {
			return nil, err
		}
		js.merge(caseJoins)
	}

	joins, aliases, err := c.plan(js, restrict)
	if err != nil {
		return nil, err
	}
	res := &Result{Collection: collection, PrimaryKey: coll.PrimaryKey, Joins: joins}
	for _, j := range joins {
		if j.Multi {
			res.HasMultiRelational = true
		}
	}

	userCond, err := c.node(&scope{collection: collection, aliases: aliases, user: true}, user)
	if err != nil {
		return nil, err
	}

	switch cases.State {
	case permissions.Denied:
		// The user filter was still compiled so that invalid filters fail
		// the same way for every caller.
		res.Condition = &Constant{Value: false}
		res.Joins = nil
		res.HasMultiRelational = false
		return res, nil
	case permissions.Unrestricted:
		res.Condition = fold(filter.And, []Condition{userCond})
		return res, nil
	}

	caseCond, err := c.node(&scope{collection: collection, aliases: aliases}, casesNode)
	if err != nil {
		return nil, err
	}
	res.Condition = fold(filter.And, []Condition{userCond, caseCond})
	return res, nil
}

// node compiles one filter node. A nil Condition means every condition
// below n was skipped.
func (c *compiler) node(sc *scope, n filter.Node) (Condition, error) {
	switch node := n.(type) {
	case *filter.Logical:
		return c.logical(sc, node)
	case *filter.Condition:
		if rel := c.existsRelation(sc.collection, node.Path); rel != nil {
			return c.exists(sc, rel, node.Path[0], []*filter.Condition{node}, filter.And)
		}
		return c.compare(sc, node)
	case *filter.Quantified:
		return c.quantified(sc, node)
	case nil:
		return nil, nil
	}
	return nil, apperr.UsageError(fmt.Sprintf("Unsupported filter node %T", n))
}

type existsGroup struct {
	seg   filter.PathSegment
	rel   *metadata.Relation
	conds []*filter.Condition
}

func (c *compiler) logical(sc *scope, node *filter.Logical) (Condition, error) {
	if len(node.Children) == 0 {
		return &Constant{Value: node.Op == filter.And}, nil
	}
	if node.Op == filter.Or && hasTrueChild(node.Children) {
		return &Constant{Value: true}, nil
	}

	// Conditions through the same one-to-many root share one EXISTS, so
	// that they hold on the same related row.
	var groups []*existsGroup
	byRoot := make(map[string]*existsGroup)
	children := make([]Condition, 0, len(node.Children))
	for _, child := range node.Children {
		// A bare alias condition tests for related rows and gets its own
		// EXISTS.
		if cond, ok := child.(*filter.Condition); ok && len(cond.Path) > 1 {
			if rel := c.existsRelation(sc.collection, cond.Path); rel != nil {
				root := cond.Path[0].Name
				g, ok := byRoot[root]
				if !ok {
					g = &existsGroup{seg: cond.Path[0], rel: rel}
					byRoot[root] = g
					groups = append(groups, g)
				}
				g.conds = append(g.conds, cond)
				continue
			}
		}
		compiled, err := c.node(sc, child)
		if err != nil {
			return nil, err
		}
		children = append(children, compiled)
	}
	for _, g := range groups {
		compiled, err := c.exists(sc, g.rel, g.seg, g.conds, node.Op)
		if err != nil {
			return nil, err
		}
		children = append(children, compiled)
	}

	if allNil(children) {
		return nil, nil
	}
	return fold(node.Op, children), nil
}

func allNil(children []Condition) bool {
	for _, ch := range children {
		if ch != nil {
			return false
		}
	}
	return true
}

// existsRelation returns the one-to-many relation behind a path that runs
// through it, or nil.
func (c *compiler) existsRelation(collection string, path []filter.PathSegment) *metadata.Relation {
	if len(path) == 0 || path[0].Function != "" {
		return nil
	}
	rel, kind := c.schema.RelationInfo(collection, path[0].Name)
	if kind != metadata.KindO2M {
		return nil
	}
	return rel
}

func (c *compiler) compare(sc *scope, cond *filter.Condition) (Condition, error) {
	res, err := c.paths.Resolve(sc.collection, cond.Path)
	if err != nil {
		return nil, err
	}

	col := Column{Field: res.TerminalField, Function: res.Function, JSONPath: res.JSONPath}
	if len(res.Chain) > 0 {
		last := res.Chain[len(res.Chain)-1]
		alias, ok := sc.aliases[last.Path]
		if !ok {
			apperr.Invariant("no join planned for path %q", last.Path)
		}
		col.Alias = alias
	}

	fieldType := res.Field.Type
	switch {
	case len(res.JSONPath) > 0:
		fieldType = operators.TypeJSONValue
	case res.Function == "count":
		col.Count, err = c.countSubquery(sc, res, col.Alias)
		if err != nil {
			return nil, err
		}
	case res.Function != "" && !metadata.IsDateLike(res.Field.Type):
		return nil, apperr.ValidationError(fmt.Sprintf("Function %s() requires a date field, %s is %s",
			res.Function, res.TerminalField, res.Field.Type))
	}

	cmp, err := operators.Compare(fieldType, res.Function, cond.Operator, cond.Value)
	if err != nil {
		return nil, err
	}
	if cmp.Skip {
		return nil, nil
	}
	if res.Function != "" {
		err = operators.ValidateOperator(metadata.TypeInteger, nil, cmp.Op)
	} else {
		err = operators.ValidateOperator(fieldType, res.Field.Special, cmp.Op)
	}
	if err != nil {
		return nil, err
	}

	if sc.user {
		if err := c.checkPath(res); err != nil {
			return nil, err
		}
	}
	return &Compare{Column: col, Cmp: cmp}, nil
}

// exists compiles conditions that run through the one-to-many relation rel
// into one correlated EXISTS. A bare alias condition tests for related
// rows.
func (c *compiler) exists(sc *scope, rel *metadata.Relation, seg filter.PathSegment, conds []*filter.Condition, op filter.LogicalOp) (Condition, error) {
	if sc.user {
		if err := c.checkField(sc.collection, seg.Name); err != nil {
			return nil, err
		}
	}
	child := rel.Collection
	link := Link{Column: rel.Field, Parent: Column{Field: c.primaryKey(sc.collection)}}

	var negate bool
	subFilters := make([]filter.Node, 0, len(conds))
	for _, cond := range conds {
		if len(cond.Path) > 1 {
			subFilters = append(subFilters, &filter.Condition{Path: cond.Path[1:], Operator: cond.Operator, Value: cond.Value})
			continue
		}
		cmp, err := operators.Normalize(cond.Operator, cond.Value)
		if err != nil {
			return nil, err
		}
		if cmp.Skip {
			continue
		}
		if cmp.Op == operators.Null && len(conds) == 1 {
			// {comments: {_null: true}} holds when there are no comments.
			negate = !cmp.Negate
			continue
		}
		subFilters = append(subFilters, &filter.Condition{
			Path:     []filter.PathSegment{{Name: c.primaryKey(child)}},
			Operator: cond.Operator,
			Value:    cond.Value,
		})
	}
	if len(subFilters) == 0 && !isNullTest(conds) {
		return nil, nil
	}

	var subFilter filter.Node = filter.True()
	switch len(subFilters) {
	case 0:
	case 1:
		subFilter = subFilters[0]
	default:
		subFilter = &filter.Logical{Op: op, Children: subFilters}
	}

	sub, err := c.subquery(sc, child, subFilter)
	if err != nil {
		return nil, err
	}
	return &Exists{Subquery: Subquery{Query: sub, Link: link}, Negate: negate}, nil
}

func isNullTest(conds []*filter.Condition) bool {
	if len(conds) != 1 || len(conds[0].Path) != 1 {
		return false
	}
	cmp, err := operators.Normalize(conds[0].Operator, conds[0].Value)
	return err == nil && cmp.Op == operators.Null
}

// quantified compiles _some/_none on a top level one-to-many or one-to-any
// alias to pk [NOT] IN (SELECT fk ...).
func (c *compiler) quantified(sc *scope, q *filter.Quantified) (Condition, error) {
	usage := apperr.UsageError(fmt.Sprintf("%q can only be used with top level relational alias field", string(q.Quantifier)))
	if len(q.Path) != 1 || q.Path[0].Function != "" {
		return nil, usage
	}
	rel, kind := c.schema.RelationInfo(sc.collection, q.Path[0].Name)
	if kind != metadata.KindO2M && kind != metadata.KindO2A {
		return nil, usage
	}
	if sc.user {
		if err := c.checkField(sc.collection, q.Path[0].Name); err != nil {
			return nil, err
		}
	}

	sub, err := c.subquery(sc, rel.Collection, q.Filter)
	if err != nil {
		return nil, err
	}
	link := Link{Column: rel.Field, Parent: Column{Field: c.primaryKey(sc.collection)}}
	if kind == metadata.KindO2A {
		link.CastParent = true
		link.ScopeColumn = rel.CollectionField()
		link.ScopeValue = sc.collection
	}
	return &In{Subquery: Subquery{Query: sub, Link: link}, Negate: q.Quantifier == filter.None}, nil
}

// countSubquery builds count(alias) over a one-to-many or one-to-any alias.
func (c *compiler) countSubquery(sc *scope, res *relpath.Result, alias string) (*Subquery, error) {
	rel, kind := c.schema.RelationInfo(res.TargetCollection, res.TerminalField)
	if kind != metadata.KindO2M && kind != metadata.KindO2A {
		return nil, apperr.ValidationError(fmt.Sprintf("count() requires a one-to-many field, %s is not one", res.TerminalField))
	}
	sub, err := c.subquery(sc, rel.Collection, nil)
	if err != nil {
		return nil, err
	}
	link := Link{Column: rel.Field, Parent: Column{Alias: alias, Field: c.primaryKey(res.TargetCollection)}}
	if kind == metadata.KindO2A {
		link.CastParent = true
		link.ScopeColumn = rel.CollectionField()
		link.ScopeValue = res.TargetCollection
	}
	return &Subquery{Query: sub, Link: link}, nil
}

// subquery compiles n over a related collection. Under the user filter the
// related collection's own read cases apply; nodes from trusted cases are
// compiled as cases themselves.
func (c *compiler) subquery(sc *scope, collection string, n filter.Node) (*Result, error) {
	if sc.user {
		return c.compile(collection, n, c.readAccess(collection), true)
	}
	if n == nil || filter.IsTrue(n) {
		return c.compile(collection, nil, permissions.Access{State: permissions.Unrestricted}, false)
	}
	return c.compile(collection, nil, permissions.Access{State: permissions.Restricted, Filters: []filter.Node{n}}, false)
}

func (c *compiler) readAccess(collection string) permissions.Access {
	if c.rules == nil {
		return permissions.Access{State: permissions.Unrestricted}
	}
	return permissions.BuildCases(c.rules.RulesFor(collection, permissions.ActionRead))
}

// checkPath verifies read permission on every field the path touches.
func (c *compiler) checkPath(res *relpath.Result) error {
	for _, hop := range res.Chain {
		if err := c.checkField(hop.Source, hop.Field); err != nil {
			return err
		}
		if hop.Junction != nil {
			if err := c.checkField(hop.Junction.Collection, hop.Relation.Field); err != nil {
				return err
			}
		}
	}
	return c.checkField(res.TargetCollection, res.TerminalField)
}

func (c *compiler) checkField(collection, field string) error {
	if c.denied || c.rules == nil || c.rules.IsAdmin() {
		return nil
	}
	fs, ok := c.fields[collection]
	if !ok {
		fs = permissions.AllowedFields(c.rules.RulesFor(collection, permissions.ActionRead))
		c.fields[collection] = fs
	}
	if !fs.Allows(field) {
		return apperr.ForbiddenError(fmt.Sprintf("You don't have permission to access field %q in collection %q", field, collection))
	}
	return nil
}
