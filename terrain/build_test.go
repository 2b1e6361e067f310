package terrain

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/facebookgo/stats"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndlib/assetdb/assets"
	"github.com/ndlib/assetdb/fixtures"
	"github.com/ndlib/assetdb/rdb"
)

func TestMain(m *testing.M) {
	fixtures.SetupTestLogger("terrain")
	rc := m.Run()
	fixtures.TeardownTestLogger()
	os.Exit(rc)
}

const project = "isle"

var (
	chunkA = ChunkCoord{X: 0, Y: 0}
	chunkB = ChunkCoord{X: 1, Y: 0}
)

func testSettings() ProjectSettings {
	return ProjectSettings{
		Name:          "Isle",
		Seed:          7,
		TileSize:      1,
		TilesPerChunk: 4,
		WorldBounds: Rect{
			Min: [2]float32{-16, -16},
			Max: [2]float32{16, 16},
		},
		LOD:                    LODPolicy{MaxLOD: 2},
		GeneratorGraphID:       "hills",
		ActiveGeneratorVersion: 1,
		ActiveMutationVersion:  1,
	}
}

func newProject(t *testing.T) *rdb.Builder {
	t.Helper()
	b := rdb.NewBuilder()
	require.NoError(t, SaveSettings(b, project, testSettings()))
	require.NoError(t, AddGenerator(b, project, DefaultGenerator(1)))
	require.NoError(t, AddMutationLayer(b, project, MutationLayer{LayerID: "base", Version: 1, Weight: 1}))
	return b
}

func artifact(t *testing.T, b *rdb.Builder, c ChunkCoord, lod uint8) ChunkArtifact {
	t.Helper()
	a, err := rdb.Fetch[ChunkArtifact](b, ChunkArtifactKey(project, c, lod))
	require.NoError(t, err)
	return a
}

func state(t *testing.T, b *rdb.Builder, c ChunkCoord) *ChunkState {
	t.Helper()
	st, err := rdb.Fetch[ChunkState](b, ChunkStateKey(project, c))
	require.NoError(t, err)
	return &st
}

func TestMemoization(t *testing.T) {
	b := newProject(t)
	req := []BuildRequest{{Coord: chunkA, LOD: 0}}

	report, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	assert.Equal(t, BuildReport{BuiltChunks: 1, UpdatedStates: 1}, report)
	first := artifact(t, b, chunkA, 0)
	assert.NotZero(t, first.ContentHash)
	assert.Len(t, first.Vertices, 25)
	assert.Len(t, first.Indices, 4*4*6)
	assert.Equal(t, MeshKey(project, chunkA, 0), first.MeshEntry)

	n := b.Len()
	report, err = BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	assert.Equal(t, 0, report.BuiltChunks)
	assert.Equal(t, 1, report.SkippedChunks)
	assert.Equal(t, n, b.Len())
	assert.Equal(t, first.ContentHash, artifact(t, b, chunkA, 0).ContentHash)

	st := state(t, b, chunkA)
	assert.False(t, st.IsDirty())
	h, ok := st.LastBuilt(0)
	assert.True(t, ok)
	assert.Equal(t, first.ContentHash, h)

	// the mesh entry is usable as plain geometry
	g, err := rdb.Fetch[assets.Geometry](b, first.MeshEntry)
	require.NoError(t, err)
	assert.Equal(t, first.Vertices, g.Vertices)
	assert.True(t, strings.HasPrefix(g.Material, "material/terrain/"), "material %q", g.Material)
}

func TestLevelsOfDetail(t *testing.T) {
	b := newProject(t)
	report, err := BuildTerrainChunks(b, project, []BuildRequest{
		{Coord: chunkA, LOD: 0},
		{Coord: chunkA, LOD: 1},
		{Coord: chunkA, LOD: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.BuiltChunks)
	assert.Len(t, artifact(t, b, chunkA, 0).Vertices, 25)
	assert.Len(t, artifact(t, b, chunkA, 1).Vertices, 9)
	assert.Len(t, artifact(t, b, chunkA, 5).Vertices, 4)
	assert.NotEqual(t, artifact(t, b, chunkA, 0).ContentHash, artifact(t, b, chunkA, 1).ContentHash)
	assert.Equal(t, []uint8{0, 1, 5}, state(t, b, chunkA).BuiltLODs())

	// the corners of every level line up
	lod0 := artifact(t, b, chunkA, 0)
	lod1 := artifact(t, b, chunkA, 1)
	assert.Equal(t, lod0.Vertices[0].Position, lod1.Vertices[0].Position)
	assert.Equal(t, lod0.Vertices[24].Position, lod1.Vertices[8].Position)
}

func TestScopedDirtying(t *testing.T) {
	b := newProject(t)
	bump := MutationOp{OpID: 1, EventID: 1, Enabled: true, Kind: SphereAdd, Center: [3]float32{2, 0, 2}, Radius: 2, Strength: 3}
	layer := MutationLayer{
		LayerID:        "scoped",
		Version:        1,
		Weight:         1,
		AffectedChunks: []ChunkCoord{chunkA},
		Ops:            []MutationOp{bump},
	}
	require.NoError(t, AddMutationLayer(b, project, layer))

	req := []BuildRequest{{Coord: chunkA}, {Coord: chunkB}}
	report, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	assert.Equal(t, 2, report.BuiltChunks)
	a1 := artifact(t, b, chunkA, 0).ContentHash
	b1 := artifact(t, b, chunkB, 0).ContentHash

	// a new version of the layer with another weight
	layer.Version = 2
	layer.Weight = 0.5
	require.NoError(t, AddMutationLayer(b, project, layer))
	s := testSettings()
	s.ActiveMutationVersion = 2
	require.NoError(t, SaveSettings(b, project, s))

	report, err = BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	assert.Equal(t, 1, report.BuiltChunks)
	assert.Equal(t, 1, report.SkippedChunks)
	assert.NotEqual(t, a1, artifact(t, b, chunkA, 0).ContentHash)
	assert.Equal(t, b1, artifact(t, b, chunkB, 0).ContentHash)
}

func TestSettingsVersionCountersNotHashed(t *testing.T) {
	s := testSettings()
	h1, err := SettingsHash(&s)
	require.NoError(t, err)
	s.ActiveGeneratorVersion = 9
	s.ActiveMutationVersion = 9
	s.Name = "renamed"
	h2, err := SettingsHash(&s)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	s.Seed++
	h3, err := SettingsHash(&s)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestGeneratorChangeRebuilds(t *testing.T) {
	b := newProject(t)
	req := []BuildRequest{{Coord: chunkA}}
	_, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	before := artifact(t, b, chunkA, 0).ContentHash

	g := DefaultGenerator(2)
	g.Amplitude = 64
	require.NoError(t, AddGenerator(b, project, g))
	assert.Error(t, AddGenerator(b, project, g), "versions are append only")
	s := testSettings()
	s.ActiveGeneratorVersion = 2
	require.NoError(t, SaveSettings(b, project, s))

	report, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	assert.Equal(t, 1, report.BuiltChunks)
	assert.NotEqual(t, before, artifact(t, b, chunkA, 0).ContentHash)
	assert.Equal(t, uint32(2), state(t, b, chunkA).GeneratorVersion)
}

func TestMissingInputsFailBatch(t *testing.T) {
	var table = []struct {
		name  string
		setup func(b *rdb.Builder)
		want  error
	}{
		{"no settings", func(b *rdb.Builder) {}, ErrLookup},
		{"no generator", func(b *rdb.Builder) {
			s := testSettings()
			s.ActiveGeneratorVersion = 9
			SaveSettings(b, project, s)
			AddGenerator(b, project, DefaultGenerator(1))
		}, ErrLookup},
		{"unknown algorithm", func(b *rdb.Builder) {
			SaveSettings(b, project, testSettings())
			g := DefaultGenerator(1)
			g.Algorithm = "mystery"
			AddGenerator(b, project, g)
		}, ErrUnknownAlgorithm},
	}
	for _, tab := range table {
		b := rdb.NewBuilder()
		tab.setup(b)
		n := b.Len()
		_, err := BuildTerrainChunks(b, project, []BuildRequest{{Coord: chunkA}, {Coord: chunkB}})
		assert.True(t, errors.Is(err, tab.want), "%s: got %v", tab.name, err)
		assert.Equal(t, n, b.Len(), "%s: store changed", tab.name)
	}

	b := rdb.NewBuilder()
	_, err := BuildTerrainChunks(b, project, nil)
	assert.True(t, errors.Is(err, rdb.ErrNotFound), "lookup errors unwrap to the store error")
}

func TestEditMarksChunksDirty(t *testing.T) {
	b := newProject(t)
	req := []BuildRequest{{Coord: chunkA}, {Coord: chunkB}}
	_, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	beforeA := artifact(t, b, chunkA, 0)
	beforeB := artifact(t, b, chunkB, 0)

	op, coords, err := AppendMutationOp(b, project, "base", MutationOp{
		Enabled:  true,
		Kind:     SphereAdd,
		Center:   [3]float32{2, 0, 2},
		Radius:   1,
		Strength: 5,
		Author:   "ann",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), op.OpID)
	assert.Equal(t, uint64(1), op.EventID)
	assert.Equal(t, BlendModeBlend, op.BlendMode)
	assert.NotZero(t, op.Timestamp)
	assert.Equal(t, []ChunkCoord{chunkA}, coords)
	assert.True(t, rdb.Has(b, MutationOpKey(project, "base", 1, 0, 1)))

	st := state(t, b, chunkA)
	assert.True(t, st.DirtyFlags&DirtyMutation != 0)
	assert.Contains(t, st.DirtyReasons, MutationChanged)
	assert.False(t, state(t, b, chunkB).IsDirty())

	// base covers every chunk, so its mutation hash changed for B as well
	report, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	assert.Equal(t, 2, report.BuiltChunks)
	assert.Equal(t, 0, report.SkippedChunks)
	afterA := artifact(t, b, chunkA, 0)
	assert.NotEqual(t, beforeA.ContentHash, afterA.ContentHash)
	assert.Equal(t, beforeB.Vertices, artifact(t, b, chunkB, 0).Vertices)
	assert.False(t, state(t, b, chunkA).IsDirty())

	// vertex 12 sits at the center of the sphere
	assert.Equal(t, [3]float32{2, afterA.Vertices[12].Position[1], 2}, afterA.Vertices[12].Position)
	assert.InDelta(t, beforeA.Vertices[12].Position[1]+5, afterA.Vertices[12].Position[1], 1e-3)

	// a second event gets the next ids
	op2, _, err := AppendMutationOp(b, project, "base", MutationOp{Enabled: true, Kind: Smooth, Radius: 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), op2.OpID)
	assert.Equal(t, uint64(2), op2.EventID)
}

func TestScopedEditLeavesOtherChunks(t *testing.T) {
	b := newProject(t)
	require.NoError(t, AddMutationLayer(b, project, MutationLayer{
		LayerID:        "cliffs",
		Version:        1,
		Order:          1,
		Weight:         1,
		AffectedChunks: []ChunkCoord{chunkA},
	}))
	req := []BuildRequest{{Coord: chunkA}, {Coord: chunkB}}
	_, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	beforeB := artifact(t, b, chunkB, 0)

	_, coords, err := AppendMutationOp(b, project, "cliffs", MutationOp{
		Enabled:  true,
		Kind:     SphereAdd,
		Center:   [3]float32{2, 0, 2},
		Radius:   1,
		Strength: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, []ChunkCoord{chunkA}, coords)
	assert.False(t, state(t, b, chunkB).IsDirty())

	report, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	assert.Equal(t, 1, report.BuiltChunks)
	assert.Equal(t, 1, report.SkippedChunks)
	assert.Equal(t, beforeB.ContentHash, artifact(t, b, chunkB, 0).ContentHash)
}

func TestOversizeChunkRejected(t *testing.T) {
	b := newProject(t)
	s := testSettings()
	s.TilesPerChunk = MaxTilesPerChunk + 1
	require.NoError(t, SaveSettings(b, project, s))
	n := b.Len()

	_, err := BuildTerrainChunks(b, project, []BuildRequest{{Coord: chunkA}})
	assert.True(t, errors.Is(err, ErrChunkSize), "got %v", err)
	assert.Equal(t, n, b.Len())
	assert.False(t, rdb.Has(b, ChunkArtifactKey(project, chunkA, 0)))

	s.TilesPerChunk = 1 << 31
	require.NoError(t, SaveSettings(b, project, s))
	_, err = BuildTerrainChunks(b, project, []BuildRequest{{Coord: chunkA}})
	assert.True(t, errors.Is(err, ErrChunkSize), "got %v", err)
	assert.Equal(t, n, b.Len())
}

func TestEditClampsToWorld(t *testing.T) {
	b := newProject(t)
	_, coords, err := AppendMutationOp(b, project, "base", MutationOp{
		Enabled: true,
		Kind:    CapsuleSubtract,
		Center:  [3]float32{14, 0, 14},
		End:     [3]float32{30, 0, 14},
		Radius:  1,
	})
	require.NoError(t, err)
	// chunks 3 in both axes, rows 3 only; nothing past x=16
	assert.Equal(t, []ChunkCoord{{X: 3, Y: 3}}, coords)

	_, coords, err = AppendMutationOp(b, project, "base", MutationOp{
		Enabled: true,
		Center:  [3]float32{100, 0, 100},
		Radius:  1,
	})
	require.NoError(t, err)
	assert.Empty(t, coords)

	_, _, err = AppendMutationOp(b, project, "nope", MutationOp{})
	assert.True(t, errors.Is(err, ErrLookup), "got %v", err)
}

func TestSetOpEnabled(t *testing.T) {
	b := newProject(t)
	req := []BuildRequest{{Coord: chunkA}}
	_, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	plain := artifact(t, b, chunkA, 0)

	op, _, err := AppendMutationOp(b, project, "base", MutationOp{
		Enabled: true, Kind: SphereAdd, Center: [3]float32{2, 0, 2}, Radius: 1, Strength: 5,
	})
	require.NoError(t, err)
	_, err = BuildTerrainChunks(b, project, req)
	require.NoError(t, err)

	off, coords, err := SetOpEnabled(b, project, "base", op.OpID, false)
	require.NoError(t, err)
	assert.Equal(t, op.OpID, off.OpID)
	assert.Equal(t, uint64(2), off.EventID)
	assert.False(t, off.Enabled)
	assert.Equal(t, op.Center, off.Center)
	assert.Equal(t, []ChunkCoord{chunkA}, coords)

	// the original event is still stored
	first, err := DecodeMutationOp(b, MutationOpKey(project, "base", 1, 0, 1))
	require.NoError(t, err)
	assert.True(t, first.Enabled)

	report, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	assert.Equal(t, 1, report.BuiltChunks)
	// with the op off the heights are the plain ones again
	assert.Equal(t, plain.Vertices, artifact(t, b, chunkA, 0).Vertices)

	_, _, err = SetOpEnabled(b, project, "base", 99, true)
	assert.True(t, errors.Is(err, ErrNoSuchOp), "got %v", err)
}

func TestStaleFlagsCleared(t *testing.T) {
	b := newProject(t)
	req := []BuildRequest{{Coord: chunkA}}
	_, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	hash := artifact(t, b, chunkA, 0).ContentHash

	require.NoError(t, MarkChunksDirty(b, project, []ChunkCoord{chunkA}, DirtyMutation, MutationChanged))
	require.True(t, state(t, b, chunkA).IsDirty())

	report, err := BuildTerrainChunks(b, project, req)
	require.NoError(t, err)
	assert.Equal(t, BuildReport{SkippedChunks: 1, UpdatedStates: 1}, report)
	assert.False(t, state(t, b, chunkA).IsDirty())
	assert.Equal(t, hash, artifact(t, b, chunkA, 0).ContentHash)
}

func TestMalformedOpSkipped(t *testing.T) {
	b := newProject(t)
	require.NoError(t, b.Add(MutationOpKey(project, "base", 1, 0, 50), "not an op"))
	report, err := BuildTerrainChunks(b, project, []BuildRequest{{Coord: chunkA}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.BuiltChunks)
}

type recorderFunc func(BuildReport)

func (f recorderFunc) RecordBuild(project string, report BuildReport, started time.Time, elapsed time.Duration) error {
	f(report)
	return nil
}

func TestPipelineStats(t *testing.T) {
	b := newProject(t)
	counts := make(map[string]float64)
	var recorded []BuildReport
	p := &Pipeline{
		Stats:   &stats.HookClient{BumpSumHook: func(key string, val float64) { counts[key] += val }},
		Journal: recorderFunc(func(r BuildReport) { recorded = append(recorded, r) }),
	}
	req := []BuildRequest{{Coord: chunkA}, {Coord: chunkB}}
	_, err := p.Build(b, project, req)
	require.NoError(t, err)
	_, err = p.Build(b, project, req)
	require.NoError(t, err)
	assert.Equal(t, float64(2), counts["terrain.built"])
	assert.Equal(t, float64(2), counts["terrain.skipped"])
	require.Len(t, recorded, 2)
	assert.Equal(t, 2, recorded[1].SkippedChunks)
}
