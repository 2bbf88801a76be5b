package metadata_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datagate/internal/metadata"
	"datagate/internal/metadata/metadatatest"
)

func TestRegistry_LoadSkipsIdenticalSnapshot(t *testing.T) {
	reg := metadata.NewRegistry()
	empty := reg.Fingerprint()

	changed, err := reg.Load(metadatatest.Schema())
	require.NoError(t, err)
	assert.True(t, changed)
	first := reg.Snapshot()
	assert.NotEqual(t, empty, reg.Fingerprint())

	changed, err = reg.Load(metadatatest.Schema())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Same(t, first, reg.Snapshot())
}

func TestRegistry_LoadRejectsInvalidSchema(t *testing.T) {
	reg := metadata.NewRegistry()
	s := metadatatest.Schema()
	s.Relations = append(s.Relations, &metadata.Relation{Collection: "ghosts", Field: "x", RelatedCollection: "users"})

	_, err := reg.Load(s)
	require.Error(t, err)
	assert.Empty(t, reg.Snapshot().Collections)
}

func TestLoadFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
collections:
  posts:
    fields:
      id: {type: integer}
      title: {type: string}
      author: {type: uuid}
  people:
    fields:
      id: {type: uuid}
relations:
  - collection: posts
    field: author
    related_collection: people
`), 0o644))

	s, err := metadata.LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Validate())

	posts := s.Collection("posts")
	require.NotNil(t, posts)
	assert.Equal(t, "posts", posts.Name)
	assert.Equal(t, "id", posts.PrimaryKey)
	assert.Equal(t, "title", posts.GetField("title").Name)

	rel, kind := s.RelationInfo("posts", "author")
	require.NotNil(t, rel)
	assert.Equal(t, metadata.KindM2O, kind)
}

func TestAccountability_Admin(t *testing.T) {
	var nobody *metadata.Accountability
	assert.False(t, nobody.IsAdmin())
	assert.False(t, nobody.HasPolicy("editor"))

	acc := &metadata.Accountability{Roles: []string{"Admin"}}
	assert.True(t, acc.IsAdmin())

	acc = &metadata.Accountability{Policies: []string{"Editor"}}
	assert.False(t, acc.IsAdmin())
	assert.True(t, acc.HasPolicy("editor"))
}
