package metadata

import (
	"fmt"
	"slices"
	"sort"
)

// SchemaOverview is an immutable snapshot of every collection, field and
// relation. Consumers must not mutate it after Normalize; a new snapshot
// replaces the old one on reload.
type SchemaOverview struct {
	Collections map[string]*Collection `json:"collections"`
	Relations   []*Relation            `json:"relations"`
}

// Normalize fills names from map keys so that hand-written schema files do
// not have to repeat them.
func (s *SchemaOverview) Normalize() {
	if s.Collections == nil {
		s.Collections = make(map[string]*Collection)
	}
	for name, c := range s.Collections {
		if c.Name == "" {
			c.Name = name
		}
		if c.PrimaryKey == "" {
			c.PrimaryKey = "id"
		}
		if c.Fields == nil {
			c.Fields = make(map[string]*Field)
		}
		for fname, f := range c.Fields {
			if f.Name == "" {
				f.Name = fname
			}
		}
	}
	sort.SliceStable(s.Relations, func(i, j int) bool {
		if s.Relations[i].Collection != s.Relations[j].Collection {
			return s.Relations[i].Collection < s.Relations[j].Collection
		}
		return s.Relations[i].Field < s.Relations[j].Field
	})
}

// Collection returns the collection with the given name, or nil.
func (s *SchemaOverview) Collection(name string) *Collection {
	return s.Collections[name]
}

// CollectionNames returns all collection names in sorted order.
func (s *SchemaOverview) CollectionNames() []string {
	names := make([]string, 0, len(s.Collections))
	for name := range s.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RelationInfo finds the relation behind collection.field and classifies it
// from collection's point of view. It returns (nil, "") for plain columns.
func (s *SchemaOverview) RelationInfo(collection, field string) (*Relation, RelationKind) {
	for _, rel := range s.Relations {
		if rel.Collection == collection && rel.Field == field {
			if rel.IsPolymorphic() {
				return rel, KindA2O
			}
			return rel, KindM2O
		}
	}
	for _, rel := range s.Relations {
		if rel.OneField() != field {
			continue
		}
		if rel.RelatedCollection == collection {
			return rel, KindO2M
		}
		if rel.IsPolymorphic() && rel.Allows(collection) {
			return rel, KindO2A
		}
	}
	return nil, ""
}

// RelationOn returns the relation whose foreign key is collection.field.
func (s *SchemaOverview) RelationOn(collection, field string) *Relation {
	for _, rel := range s.Relations {
		if rel.Collection == collection && rel.Field == field {
			return rel
		}
	}
	return nil
}

// Validate checks referential integrity of the snapshot.
func (s *SchemaOverview) Validate() error {
	for _, name := range s.CollectionNames() {
		c := s.Collections[name]
		if !c.HasField(c.PrimaryKey) {
			return fmt.Errorf("collection %s: primary key %q is not a field", name, c.PrimaryKey)
		}
	}
	for _, rel := range s.Relations {
		if s.Collection(rel.Collection) == nil {
			return fmt.Errorf("relation %s.%s: unknown collection", rel.Collection, rel.Field)
		}
		if rel.IsPolymorphic() {
			if len(rel.AllowedCollections()) == 0 {
				return fmt.Errorf("relation %s.%s: polymorphic relation has no allowed collections", rel.Collection, rel.Field)
			}
			if rel.CollectionField() == "" {
				return fmt.Errorf("relation %s.%s: polymorphic relation has no collection field", rel.Collection, rel.Field)
			}
			for _, allowed := range rel.AllowedCollections() {
				if s.Collection(allowed) == nil {
					return fmt.Errorf("relation %s.%s: allowed collection %q does not exist", rel.Collection, rel.Field, allowed)
				}
			}
			continue
		}
		if s.Collection(rel.RelatedCollection) == nil {
			return fmt.Errorf("relation %s.%s: unknown related collection %q", rel.Collection, rel.Field, rel.RelatedCollection)
		}
	}
	return nil
}

// Clone returns a deep copy, for callers that need to derive a modified snapshot.
func (s *SchemaOverview) Clone() *SchemaOverview {
	out := &SchemaOverview{Collections: make(map[string]*Collection, len(s.Collections))}
	for name, c := range s.Collections {
		cc := &Collection{Name: c.Name, PrimaryKey: c.PrimaryKey, Singleton: c.Singleton, Fields: make(map[string]*Field, len(c.Fields))}
		for fname, f := range c.Fields {
			ff := *f
			ff.Special = slices.Clone(f.Special)
			cc.Fields[fname] = &ff
		}
		out.Collections[name] = cc
	}
	for _, rel := range s.Relations {
		r := *rel
		if rel.Meta != nil {
			m := *rel.Meta
			m.OneAllowedCollections = slices.Clone(rel.Meta.OneAllowedCollections)
			r.Meta = &m
		}
		out.Relations = append(out.Relations, &r)
	}
	return out
}
