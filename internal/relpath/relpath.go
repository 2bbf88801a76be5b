// Package relpath resolves dotted filter paths against a schema snapshot.
package relpath

import (
	"datagate/internal/apperr"
	"datagate/internal/filter"
	"datagate/internal/metadata"
)

// Hop is one relation traversal. For a many-to-any hop the junction
// relation is folded in: Junction is the o2m relation into the junction
// collection and Relation is the junction's a2o relation.
type Hop struct {
	Relation *metadata.Relation
	Junction *metadata.Relation
	Kind     metadata.RelationKind
	Source   string
	Target   string
	Scope    string
	// Field is the segment name on Source that starts the hop.
	Field string
	// Path is the canonical path prefix ending with this hop.
	Path string
}

// Result describes a resolved path. Field is the terminal field of the
// target collection; for JSON sub-paths it is the json field and JSONPath
// holds the keys below it.
type Result struct {
	TargetCollection string
	TerminalField    string
	Field            *metadata.Field
	Chain            []Hop
	CollectionScope  string
	JSONPath         []string
	Function         string
}

// Resolve walks path from start, one relation per segment.
func Resolve(schema *metadata.SchemaOverview, start string, path []filter.PathSegment) (*Result, error) {
	current := schema.Collection(start)
	if current == nil {
		return nil, apperr.UnknownCollectionError(start)
	}
	if len(path) == 0 {
		return nil, apperr.ValidationError("Empty field path")
	}

	res := &Result{}
	for i := 0; i < len(path); i++ {
		seg := path[i]
		last := i == len(path)-1

		field := current.GetField(seg.Name)
		if field == nil {
			return nil, apperr.UnknownRelationError(current.Name, seg.Name)
		}

		rel, kind := schema.RelationInfo(current.Name, seg.Name)
		if rel == nil || (last && seg.Function != "") {
			if !last {
				if !field.IsJSON() {
					return nil, apperr.NotJSONFieldError(current.Name, seg.Name)
				}
				for _, rest := range path[i+1:] {
					res.JSONPath = append(res.JSONPath, rest.Name)
				}
			}
			res.TerminalField = seg.Name
			res.Function = seg.Function
			break
		}

		var hop Hop
		switch kind {
		case metadata.KindM2O:
			if last {
				// Comparing the foreign key itself needs no join.
				res.TerminalField = seg.Name
				break
			}
			hop = Hop{Relation: rel, Kind: kind, Source: current.Name, Target: rel.RelatedCollection}

		case metadata.KindA2O:
			if seg.Scope == "" {
				if last {
					res.TerminalField = seg.Name
					break
				}
				return nil, apperr.AmbiguousPolymorphicError(current.Name, seg.Name)
			}
			if !rel.Allows(seg.Scope) {
				return nil, apperr.DisallowedCollectionError(current.Name, seg.Name, seg.Scope)
			}
			hop = Hop{Relation: rel, Kind: kind, Source: current.Name, Target: seg.Scope, Scope: seg.Scope}

		case metadata.KindO2M:
			hop = Hop{Relation: rel, Kind: kind, Source: current.Name, Target: rel.Collection}
			junction := schema.RelationOn(rel.Collection, rel.JunctionField())
			if junction != nil && junction.IsPolymorphic() && !last && path[i+1].Name == junction.Field {
				next := path[i+1]
				if next.Scope == "" {
					return nil, apperr.AmbiguousPolymorphicError(rel.Collection, next.Name)
				}
				if !junction.Allows(next.Scope) {
					return nil, apperr.DisallowedCollectionError(rel.Collection, next.Name, next.Scope)
				}
				hop = Hop{
					Relation: junction,
					Junction: rel,
					Kind:     metadata.KindA2O,
					Source:   current.Name,
					Target:   next.Scope,
					Scope:    next.Scope,
				}
				i++
				last = i == len(path)-1
			}

		case metadata.KindO2A:
			hop = Hop{Relation: rel, Kind: kind, Source: current.Name, Target: rel.Collection}
		}

		if res.TerminalField != "" {
			break
		}

		hop.Field = seg.Name
		hop.Path = filter.PathString(path[:i+1])
		res.Chain = append(res.Chain, hop)
		if hop.Scope != "" {
			res.CollectionScope = hop.Scope
		}
		current = schema.Collection(hop.Target)
		if current == nil {
			return nil, apperr.UnknownCollectionError(hop.Target)
		}
		if last {
			res.TerminalField = current.PrimaryKey
		}
	}

	res.TargetCollection = current.Name
	res.Field = current.GetField(res.TerminalField)
	if res.Field == nil {
		return nil, apperr.UnknownRelationError(current.Name, res.TerminalField)
	}
	return res, nil
}

// Cache memoizes Resolve for the lifetime of one compile. It is not safe
// for concurrent use and must not outlive the schema snapshot it was built
// with.
type Cache struct {
	schema  *metadata.SchemaOverview
	entries map[string]*Result
}

func NewCache(schema *metadata.SchemaOverview) *Cache {
	return &Cache{schema: schema, entries: make(map[string]*Result)}
}

func (c *Cache) Schema() *metadata.SchemaOverview { return c.schema }

func (c *Cache) Resolve(collection string, path []filter.PathSegment) (*Result, error) {
	key := collection + "|" + filter.PathString(path)
	if res, ok := c.entries[key]; ok {
		return res, nil
	}
	res, err := Resolve(c.schema, collection, path)
	if err != nil {
		return nil, err
	}
	c.entries[key] = res
	return res, nil
}

// Len reports the number of cached paths.
func (c *Cache) Len() int { return len(c.entries) }
