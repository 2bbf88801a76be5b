// Package metadatatest provides a shared schema for package tests.
package metadatatest

import "datagate/internal/metadata"

func fields(defs ...*metadata.Field) map[string]*metadata.Field {
	out := make(map[string]*metadata.Field, len(defs))
	for _, f := range defs {
		out[f.Name] = f
	}
	return out
}

func f(name, typ string, special ...string) *metadata.Field {
	return &metadata.Field{Name: name, Type: typ, Special: special, Nullable: true}
}

// Schema returns a fresh, normalized schema covering every relation kind:
//
//	articles.author        m2o  -> users
//	articles.comments      o2m  <- comments.article
//	articles.tags          m2m  via articles_tags
//	articles.notes         o2a  <- notes.parent
//	notes.parent           a2o  -> articles | users
//	shapes.children        m2a  via shapes_children.item -> circles | squares
func Schema() *metadata.SchemaOverview {
	s := &metadata.SchemaOverview{
		Collections: map[string]*metadata.Collection{
			"users": {
				PrimaryKey: "id",
				Fields: fields(
					f("id", metadata.TypeUUID),
					f("name", metadata.TypeString),
					f("email", metadata.TypeString),
					f("password", metadata.TypeHash, metadata.SpecialHash, metadata.SpecialConceal),
					f("status", metadata.TypeString),
					f("notes", metadata.TypeAlias, metadata.SpecialAlias, metadata.SpecialO2M),
				),
			},
			"articles": {
				PrimaryKey: "id",
				Fields: fields(
					f("id", metadata.TypeInteger),
					f("title", metadata.TypeString),
					f("body", metadata.TypeText),
					f("status", metadata.TypeString),
					f("rating", metadata.TypeFloat),
					f("price", metadata.TypeDecimal),
					f("views", metadata.TypeBigInteger),
					f("featured", metadata.TypeBoolean),
					f("published_on", metadata.TypeDate),
					f("date_created", metadata.TypeDateTime),
					f("metadata", metadata.TypeJSON),
					f("secret", metadata.TypeString, metadata.SpecialConceal),
					f("author", metadata.TypeUUID),
					f("comments", metadata.TypeAlias, metadata.SpecialAlias, metadata.SpecialO2M),
					f("tags", metadata.TypeAlias, metadata.SpecialAlias, metadata.SpecialM2M),
					f("notes", metadata.TypeAlias, metadata.SpecialAlias, metadata.SpecialO2M),
				),
			},
			"comments": {
				PrimaryKey: "id",
				Fields: fields(
					f("id", metadata.TypeInteger),
					f("article", metadata.TypeInteger),
					f("user", metadata.TypeUUID),
					f("body", metadata.TypeText),
					f("approved", metadata.TypeBoolean),
				),
			},
			"tags": {
				PrimaryKey: "id",
				Fields: fields(
					f("id", metadata.TypeInteger),
					f("name", metadata.TypeString),
				),
			},
			"articles_tags": {
				PrimaryKey: "id",
				Fields: fields(
					f("id", metadata.TypeInteger),
					f("articles_id", metadata.TypeInteger),
					f("tags_id", metadata.TypeInteger),
				),
			},
			"notes": {
				PrimaryKey: "id",
				Fields: fields(
					f("id", metadata.TypeInteger),
					f("body", metadata.TypeText),
					f("parent", metadata.TypeString),
					f("parent_collection", metadata.TypeString),
				),
			},
			"shapes": {
				PrimaryKey: "id",
				Fields: fields(
					f("id", metadata.TypeInteger),
					f("name", metadata.TypeString),
					f("children", metadata.TypeAlias, metadata.SpecialAlias, metadata.SpecialM2A),
				),
			},
			"shapes_children": {
				PrimaryKey: "id",
				Fields: fields(
					f("id", metadata.TypeInteger),
					f("shapes_id", metadata.TypeInteger),
					f("item", metadata.TypeString),
					f("collection", metadata.TypeString),
				),
			},
			"circles": {
				PrimaryKey: "id",
				Fields: fields(
					f("id", metadata.TypeInteger),
					f("radius", metadata.TypeFloat),
					f("metadata", metadata.TypeJSON),
				),
			},
			"squares": {
				PrimaryKey: "id",
				Fields: fields(
					f("id", metadata.TypeInteger),
					f("size", metadata.TypeFloat),
					f("metadata", metadata.TypeJSON),
				),
			},
		},
		Relations: []*metadata.Relation{
			{Collection: "articles", Field: "author", RelatedCollection: "users"},
			{Collection: "comments", Field: "article", RelatedCollection: "articles",
				Meta: &metadata.RelationMeta{OneField: "comments"}},
			{Collection: "comments", Field: "user", RelatedCollection: "users"},
			{Collection: "articles_tags", Field: "articles_id", RelatedCollection: "articles",
				Meta: &metadata.RelationMeta{OneField: "tags", JunctionField: "tags_id"}},
			{Collection: "articles_tags", Field: "tags_id", RelatedCollection: "tags",
				Meta: &metadata.RelationMeta{JunctionField: "articles_id"}},
			{Collection: "notes", Field: "parent",
				Meta: &metadata.RelationMeta{
					OneField:              "notes",
					OneCollectionField:    "parent_collection",
					OneAllowedCollections: []string{"articles", "users"},
				}},
			{Collection: "shapes_children", Field: "shapes_id", RelatedCollection: "shapes",
				Meta: &metadata.RelationMeta{OneField: "children", JunctionField: "item"}},
			{Collection: "shapes_children", Field: "item",
				Meta: &metadata.RelationMeta{
					JunctionField:         "shapes_id",
					OneCollectionField:    "collection",
					OneAllowedCollections: []string{"circles", "squares"},
				}},
		},
	}
	s.Normalize()
	return s
}
