package graph

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestGraphJSONRoundTrip(t *testing.T) {
	g := New()
	require.NoError(t, g.Add(Artifact{ID: "a", Description: "build a", Produces: []string{"a-out"}}))
	require.NoError(t, g.Add(Artifact{ID: "b", Description: "build b", Requires: []string{"a-out"}}))

	data, err := g.MarshalJSON()
	require.NoError(t, err)

	got, err := ParseJSON(data)
	require.NoError(t, err)
	require.Len(t, got.Artifacts(), 2)

	b, ok := got.Get("b")
	require.True(t, ok)
	require.Equal(t, []string{"a-out"}, b.Requires)

	want := g.Artifacts()
	gotArtifacts := got.Artifacts()
	sort.Slice(want, func(i, j int) bool { return want[i].ID < want[j].ID })
	sort.Slice(gotArtifacts, func(i, j int) bool { return gotArtifacts[i].ID < gotArtifacts[j].ID })
	if diff := cmp.Diff(want, gotArtifacts); diff != "" {
		t.Fatalf("round-tripped artifacts differ (-want +got):\n%s", diff)
	}
}

func TestParseJSONRejectsDuplicateID(t *testing.T) {
	_, err := ParseJSON([]byte(`{"artifacts":[{"id":"a"},{"id":"a"}]}`))
	require.Error(t, err)
}
