package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datagate/internal/metadata"
)

func TestResolveVariables(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	acc := &metadata.Accountability{
		User:     "u-1",
		Role:     "editor",
		Roles:    []string{"editor", "reviewer"},
		Policies: []string{"p-1"},
	}

	n := NewAnd(
		Field("author", "_eq", "$CURRENT_USER"),
		Field("role", "_in", []any{"$CURRENT_ROLES", "guest"}),
		Field("date_created", "_gte", "$NOW(-1 day)"),
		Field("date_updated", "_lte", "$NOW"),
		Field("title", "_eq", "$LITERAL"),
		&Quantified{
			Path:       []PathSegment{{Name: "comments"}},
			Quantifier: Some,
			Filter:     Field("user", "_eq", "$CURRENT_USER"),
		},
	)

	out := ResolveVariables(n, acc, now).(*Logical)
	require.Len(t, out.Children, 6)
	assert.Equal(t, "u-1", out.Children[0].(*Condition).Value)
	assert.Equal(t, []any{"editor", "reviewer", "guest"}, out.Children[1].(*Condition).Value)
	assert.Equal(t, now.AddDate(0, 0, -1), out.Children[2].(*Condition).Value)
	assert.Equal(t, now, out.Children[3].(*Condition).Value)
	assert.Equal(t, "$LITERAL", out.Children[4].(*Condition).Value)
	assert.Equal(t, "u-1", out.Children[5].(*Quantified).Filter.(*Condition).Value)

	// The input tree is not modified.
	assert.Equal(t, "$CURRENT_USER", n.Children[0].(*Condition).Value)
}

func TestResolveVariables_AnonymousUserIsNull(t *testing.T) {
	out := ResolveVariables(Field("author", "_eq", "$CURRENT_USER"), nil, time.Now())
	assert.Nil(t, out.(*Condition).Value)
}

func TestResolveVariables_NowUnits(t *testing.T) {
	now := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	cases := map[string]time.Time{
		"$NOW(+2 hours)":    now.Add(2 * time.Hour),
		"$NOW(1 year)":      now.AddDate(1, 0, 0),
		"$NOW(-3 weeks)":    now.AddDate(0, 0, -21),
		"$NOW(-30 minutes)": now.Add(-30 * time.Minute),
	}
	for in, want := range cases {
		got := ResolveVariables(Field("d", "_eq", in), nil, now).(*Condition).Value
		assert.Equal(t, want, got, in)
	}

	got := ResolveVariables(Field("d", "_eq", "$NOW(1 fortnight)"), nil, now).(*Condition).Value
	assert.Equal(t, "$NOW(1 fortnight)", got)
}
