package assets

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/assetdb/fixtures"
	"github.com/ndlib/assetdb/rdb"
)

func TestMain(m *testing.M) {
	fixtures.SetupTestLogger("assets")
	rc := m.Run()
	fixtures.TeardownTestLogger()
	os.Exit(rc)
}

func TestSeedDefaults(t *testing.T) {
	b := rdb.NewBuilder()
	require.NoError(t, SeedDefaults(b))
	n := b.Len()
	r := Defaults()
	assert.Equal(t, len(r.MaterialIDs())+len(r.GeometryIDs())+len(r.ImageIDs()), n)

	// seeding twice changes nothing
	before, err := b.EntryBytes(MaterialKey("default"))
	require.NoError(t, err)
	require.NoError(t, SeedDefaults(b))
	assert.Equal(t, n, b.Len())
	after, err := b.EntryBytes(MaterialKey("default"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	m, err := rdb.Fetch[Material](b, MaterialKey("terrain/rock"))
	require.NoError(t, err)
	assert.Equal(t, "terrain/rock", m.Name)

	img, err := rdb.Fetch[Image](b, ImageKey("default/checker"))
	require.NoError(t, err)
	assert.Equal(t, 2*2*4, len(img.Pixels))
}

func TestDefaultsShared(t *testing.T) {
	assert.Same(t, Defaults(), Defaults())
	g, ok := Defaults().Geometry("default/cube")
	require.True(t, ok)
	assert.Len(t, g.Vertices, 24)
	assert.Len(t, g.Indices, 36)
	for _, idx := range g.Indices {
		assert.Less(t, int(idx), len(g.Vertices))
	}
	_, ok = Defaults().Material("no such material")
	assert.False(t, ok)
}

func TestGeometryBytes(t *testing.T) {
	g, _ := Defaults().Geometry("default/triangle")
	assert.Equal(t, 3*VertexSize, len(g.VertexBytes()))
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}, g.IndexBytes())
}

func modelStore(t *testing.T) *rdb.Builder {
	t.Helper()
	b := rdb.NewBuilder()
	require.NoError(t, SeedDefaults(b))
	require.NoError(t, b.Add(ModelKey("robot"), Model{
		Name: "robot",
		Parts: []Part{
			{Name: "arm", Parent: 2, Geometry: GeometryKey("default/quad"), Material: MaterialKey("terrain/rock"), Transform: Identity},
			{Name: "head", Parent: 2, Geometry: GeometryKey("default/triangle"), Transform: Identity},
			{Name: "body", Parent: -1, Geometry: GeometryKey("default/cube"), Material: MaterialKey("missing"), Transform: Identity},
		},
	}))
	return b
}

func TestAssembleHost(t *testing.T) {
	b := modelStore(t)
	a, err := Assemble[Geometry, Image](b, HostSource{Src: b}, ModelKey("robot"))
	require.NoError(t, err)
	require.Len(t, a.Parts, 3)

	assert.Equal(t, "body", a.Parts[0].Name)
	assert.Equal(t, -1, a.Parts[0].Parent)
	assert.True(t, a.Parts[0].HasBaseColor)
	assert.Equal(t, 2, a.Parts[0].BaseColor.Width)
	assert.Len(t, a.Parts[0].Geometry.Vertices, 24)

	assert.Equal(t, "arm", a.Parts[1].Name)
	assert.Equal(t, 0, a.Parts[1].Parent)
	assert.False(t, a.Parts[1].HasBaseColor)
	assert.Equal(t, "terrain/rock", a.Parts[1].Material.Name)

	// no material means the default one
	assert.Equal(t, "head", a.Parts[2].Name)
	assert.Equal(t, "default", a.Parts[2].Material.Name)
	assert.Equal(t, []string{ImageKey("default/checker"), ImageKey("default/white")}, a.Images)
}

func TestPartOrder(t *testing.T) {
	var table = []struct {
		parents []int
		want    []int
		bad     bool
	}{
		{[]int{-1}, []int{0}, false},
		{[]int{-1, 0, 0, 1}, []int{0, 1, 3, 2}, false},
		{[]int{2, 2, -1}, []int{2, 0, 1}, false},
		{[]int{-1, -1}, []int{0, 1}, false},
		{[]int{1, 0}, nil, true},
		{[]int{0}, nil, true},
		{[]int{5}, nil, true},
	}
	for _, tab := range table {
		parts := make([]Part, len(tab.parents))
		for i, p := range tab.parents {
			parts[i].Parent = p
		}
		got, err := partOrder(parts)
		if tab.bad {
			assert.Error(t, err, "parents %v", tab.parents)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tab.want, got, "parents %v", tab.parents)
	}
}
