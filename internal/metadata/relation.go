package metadata

import "slices"

// RelationKind is the shape of a relation as seen from one side of it.
type RelationKind string

const (
	KindM2O RelationKind = "m2o"
	KindO2M RelationKind = "o2m"
	KindA2O RelationKind = "a2o"
	KindO2A RelationKind = "o2a"
)

// Relation is stored on the "many" side: Collection.Field holds the foreign
// key. RelatedCollection is empty for polymorphic (any-to-one) relations, in
// which case Meta.OneCollectionField names the column holding the target
// collection.
type Relation struct {
	Collection        string        `json:"collection"`
	Field             string        `json:"field"`
	RelatedCollection string        `json:"related_collection,omitempty"`
	Meta              *RelationMeta `json:"meta,omitempty"`
}

type RelationMeta struct {
	OneField              string   `json:"one_field,omitempty"`
	JunctionField         string   `json:"junction_field,omitempty"`
	OneCollectionField    string   `json:"one_collection_field,omitempty"`
	OneAllowedCollections []string `json:"one_allowed_collections,omitempty"`
	SortField             string   `json:"sort_field,omitempty"`
}

// IsPolymorphic returns true for any-to-one relations.
func (r *Relation) IsPolymorphic() bool {
	return r.RelatedCollection == ""
}

// OneField returns the alias field on the "one" side, if any.
func (r *Relation) OneField() string {
	if r.Meta == nil {
		return ""
	}
	return r.Meta.OneField
}

// JunctionField returns the sibling foreign key on a junction collection.
func (r *Relation) JunctionField() string {
	if r.Meta == nil {
		return ""
	}
	return r.Meta.JunctionField
}

// CollectionField returns the column holding the target collection of a
// polymorphic relation.
func (r *Relation) CollectionField() string {
	if r.Meta == nil {
		return ""
	}
	return r.Meta.OneCollectionField
}

// Allows reports whether a polymorphic relation may point at collection.
func (r *Relation) Allows(collection string) bool {
	if r.Meta == nil {
		return false
	}
	return slices.Contains(r.Meta.OneAllowedCollections, collection)
}

// AllowedCollections returns the permitted targets of a polymorphic relation.
func (r *Relation) AllowedCollections() []string {
	if r.Meta == nil {
		return nil
	}
	return r.Meta.OneAllowedCollections
}
