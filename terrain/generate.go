package terrain

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/assets"
)

// ErrUnknownAlgorithm means a generator names an algorithm this package
// does not implement.
var ErrUnknownAlgorithm = errors.New("terrain: unknown generator algorithm")

// ErrChunkSize means the settings give a chunk no tiles, or more than
// MaxTilesPerChunk on a side.
var ErrChunkSize = errors.New("terrain: bad chunk size")

// MaxTilesPerChunk bounds the grid of one chunk.
const MaxTilesPerChunk = 1024

// Algorithms understood by the generator. An empty name means ValueNoise.
const (
	ValueNoise = "value_noise"
	Ridged     = "ridged"
	Flat       = "flat"
)

// hash32 and hash2 give a stable lattice hash for noise. They must not
// change, or every stored content hash will stop matching its artifact.
func hash32(x uint32) uint32 {
	x ^= x >> 16
	x *= 0x7feb352d
	x ^= x >> 15
	x *= 0x846ca68b
	x ^= x >> 16
	return x
}

func hash2(seed uint32, x, z int32) uint32 {
	h := seed
	h ^= uint32(x) * 0x9e3779b1
	h ^= uint32(z) * 0x85ebca6b
	return hash32(h)
}

func smoothstep(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func clamp01(t float64) float64 {
	return math.Max(0, math.Min(1, t))
}

// valueNoise returns smoothly interpolated lattice noise in [0,1].
func valueNoise(seed uint32, x, z float64) float64 {
	fx, fz := math.Floor(x), math.Floor(z)
	ix, iz := int32(fx), int32(fz)
	tx, tz := smoothstep(x-fx), smoothstep(z-fz)
	corner := func(dx, dz int32) float64 {
		return float64(hash2(seed, ix+dx, iz+dz)) / math.MaxUint32
	}
	top := lerp(corner(0, 0), corner(1, 0), tx)
	bottom := lerp(corner(0, 1), corner(1, 1), tx)
	return lerp(top, bottom, tz)
}

type sampler struct {
	seed      uint32
	algorithm string
	frequency float64
	amplitude float64
	octaves   int
	biomeFreq float64
}

func newSampler(s *ProjectSettings, g *GeneratorDefinition) (*sampler, error) {
	switch g.Algorithm {
	case "", ValueNoise, Ridged, Flat:
	default:
		return nil, errors.Wrapf(ErrUnknownAlgorithm, "%q", g.Algorithm)
	}
	octaves := int(g.Octaves)
	if octaves < 1 {
		octaves = 1
	}
	return &sampler{
		seed:      uint32(s.Seed ^ s.Seed>>32),
		algorithm: g.Algorithm,
		frequency: float64(g.Frequency),
		amplitude: float64(g.Amplitude),
		octaves:   octaves,
		biomeFreq: float64(g.BiomeFrequency),
	}, nil
}

// height returns the base terrain height at world position x, z.
func (sm *sampler) height(x, z float64) float64 {
	if sm.algorithm == Flat {
		return 0
	}
	var sum, norm float64
	freq, amp := sm.frequency, 1.0
	for i := 0; i < sm.octaves; i++ {
		n := valueNoise(sm.seed+uint32(i)*0x632be5ab, x*freq, z*freq)
		if sm.algorithm == Ridged {
			n = 1 - math.Abs(2*n-1)
		}
		sum += n * amp
		norm += amp
		freq *= 2
		amp *= 0.5
	}
	h := sum / norm
	if sm.biomeFreq > 0 {
		biome := valueNoise(^sm.seed, x*sm.biomeFreq, z*sm.biomeFreq)
		h *= 0.5 + biome
	}
	return h * sm.amplitude
}

// falloff returns the weight of an op at distance d from its shape. Inside
// radius*(1-falloff) the weight is one; it fades to zero at radius.
func falloff(d, radius, fall float64) float64 {
	if radius <= 0 || d >= radius {
		return 0
	}
	if fall <= 0 {
		return 1
	}
	edge := radius * (1 - clamp01(fall))
	if d <= edge {
		return 1
	}
	return 1 - smoothstep((d-edge)/(radius-edge))
}

// distToSegment is the distance on the ground plane from p to segment ab.
func distToSegment(px, pz float64, a, b [3]float32) float64 {
	ax, az := float64(a[0]), float64(a[2])
	bx, bz := float64(b[0]), float64(b[2])
	dx, dz := bx-ax, bz-az
	t := 0.0
	if l := dx*dx + dz*dz; l > 0 {
		t = clamp01(((px-ax)*dx + (pz-az)*dz) / l)
	}
	cx, cz := ax+t*dx, az+t*dz
	return math.Hypot(px-cx, pz-cz)
}

// opWeight is how strongly op touches world position x, z.
func opWeight(op *MutationOp, x, z float64) float64 {
	var d float64
	switch op.Kind {
	case CapsuleAdd, CapsuleSubtract:
		d = distToSegment(x, z, op.Center, op.End)
	default:
		d = math.Hypot(x-float64(op.Center[0]), z-float64(op.Center[2]))
	}
	return falloff(d, float64(op.Radius), float64(op.Falloff))
}

// OpBounds returns the box on the ground plane an op can change.
func OpBounds(op *MutationOp) Rect {
	r := op.Radius
	minX, maxX := op.Center[0], op.Center[0]
	minZ, maxZ := op.Center[2], op.Center[2]
	if op.Kind == CapsuleAdd || op.Kind == CapsuleSubtract {
		minX = float32(math.Min(float64(minX), float64(op.End[0])))
		maxX = float32(math.Max(float64(maxX), float64(op.End[0])))
		minZ = float32(math.Min(float64(minZ), float64(op.End[2])))
		maxZ = float32(math.Max(float64(maxZ), float64(op.End[2])))
	}
	return Rect{
		Min: [2]float32{minX - r, minZ - r},
		Max: [2]float32{maxX + r, maxZ + r},
	}
}

// grid is a square heightfield with a one sample border on every side, so
// normals on the chunk edge match the neighboring chunk.
type grid struct {
	n      int // samples per side, border included
	step   float64
	x0, z0 float64 // world position of sample (0, 0)
	h      []float64
	matID  []uint32
	matW   []float64
}

// at returns the height at i, j with the indices clamped to the grid.
func (g *grid) at(i, j int) float64 {
	return g.h[idx(g, i, j)]
}

func (g *grid) world(i, j int) (float64, float64) {
	return g.x0 + float64(i)*g.step, g.z0 + float64(j)*g.step
}

// tilesAt returns the number of quads per chunk side at lod.
func tilesAt(s *ProjectSettings, lod uint8) int {
	tiles := int(s.TilesPerChunk >> lod)
	if tiles < 1 {
		tiles = 1
	}
	return tiles
}

// sortedLayers returns the layers which are not disabled by Order then LayerID, each with
// its enabled ops sorted for replay.
func sortedLayers(layers []*MutationLayer) []*MutationLayer {
	result := make([]*MutationLayer, 0, len(layers))
	for _, l := range layers {
		if l.Disabled {
			continue
		}
		cp := *l
		cp.Ops = nil
		for i := range l.Ops {
			if l.Ops[i].Enabled {
				cp.Ops = append(cp.Ops, l.Ops[i])
			}
		}
		sort.Slice(cp.Ops, func(i, j int) bool { return cp.Ops[i].Less(&cp.Ops[j]) })
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].LayerID < result[j].LayerID
	})
	return result
}

// GenerateChunk builds the mesh of chunk c at lod. layers must already be
// filtered to the ones which affect c.
func GenerateChunk(s *ProjectSettings, gen *GeneratorDefinition, layers []*MutationLayer, c ChunkCoord, lod uint8) (*ChunkArtifact, error) {
	sm, err := newSampler(s, gen)
	if err != nil {
		return nil, err
	}
	if s.TileSize <= 0 || s.TilesPerChunk == 0 || s.TilesPerChunk > MaxTilesPerChunk {
		return nil, errors.Wrapf(ErrChunkSize, "%v x %d", s.TileSize, s.TilesPerChunk)
	}
	tiles := tilesAt(s, lod)
	size := float64(s.ChunkSize())
	g := &grid{
		n:    tiles + 3,
		step: size / float64(tiles),
	}
	g.x0 = float64(c.X)*size - g.step
	g.z0 = float64(c.Y)*size - g.step
	g.h = make([]float64, g.n*g.n)
	for j := 0; j < g.n; j++ {
		for i := 0; i < g.n; i++ {
			x, z := g.world(i, j)
			g.h[j*g.n+i] = sm.height(x, z)
		}
	}

	ordered := sortedLayers(layers)
	painted := false
	for _, l := range ordered {
		for k := range l.Ops {
			if l.Ops[k].Kind == MaterialPaint {
				painted = true
			}
		}
	}
	if len(gen.MaterialRules) > 0 || painted {
		g.matID = make([]uint32, g.n*g.n)
		g.matW = make([]float64, g.n*g.n)
	}

	for _, l := range ordered {
		for k := range l.Ops {
			applyOp(g, &l.Ops[k], float64(l.Weight))
		}
	}
	// rules need the final slope, so paint goes on after the heights
	normals := computeNormals(g)
	if g.matID != nil {
		applyRules(g, gen.MaterialRules, normals)
		for _, l := range ordered {
			for k := range l.Ops {
				if l.Ops[k].Kind == MaterialPaint {
					applyPaint(g, &l.Ops[k], float64(l.Weight))
				}
			}
		}
	}
	return emit(g, normals, tiles, c, lod), nil
}

func applyOp(g *grid, op *MutationOp, weight float64) {
	switch op.Kind {
	case SphereAdd, SphereSubtract, CapsuleAdd, CapsuleSubtract:
		sign := 1.0
		if op.Kind == SphereSubtract || op.Kind == CapsuleSubtract {
			sign = -1
		}
		for j := 0; j < g.n; j++ {
			for i := 0; i < g.n; i++ {
				x, z := g.world(i, j)
				if w := opWeight(op, x, z); w > 0 {
					g.h[j*g.n+i] += sign * float64(op.Strength) * w * weight
				}
			}
		}
	case Smooth:
		src := make([]float64, len(g.h))
		copy(src, g.h)
		for j := 0; j < g.n; j++ {
			for i := 0; i < g.n; i++ {
				x, z := g.world(i, j)
				w := opWeight(op, x, z)
				if w == 0 {
					continue
				}
				t := clamp01(float64(op.Strength) * w * weight)
				avg := (src[idx(g, i-1, j)] + src[idx(g, i+1, j)] + src[idx(g, i, j-1)] + src[idx(g, i, j+1)]) / 4
				g.h[j*g.n+i] = lerp(src[j*g.n+i], avg, t)
			}
		}
	}
}

func idx(g *grid, i, j int) int {
	if i < 0 {
		i = 0
	}
	if j < 0 {
		j = 0
	}
	if i >= g.n {
		i = g.n - 1
	}
	if j >= g.n {
		j = g.n - 1
	}
	return j*g.n + i
}

func applyRules(g *grid, rules []MaterialRule, normals [][3]float32) {
	for k := range g.h {
		slope := 1 - float64(normals[k][1])
		h := g.h[k]
		for _, r := range rules {
			if h >= float64(r.MinHeight) && h <= float64(r.MaxHeight) &&
				slope >= float64(r.MinSlope) && slope <= float64(r.MaxSlope) {
				g.matID[k] = r.MaterialID
				g.matW[k] = 1
				break
			}
		}
	}
}

func applyPaint(g *grid, op *MutationOp, weight float64) {
	mode := op.BlendMode
	if mode == 0 {
		mode = BlendModeBlend
	}
	for j := 0; j < g.n; j++ {
		for i := 0; i < g.n; i++ {
			x, z := g.world(i, j)
			w := opWeight(op, x, z)
			if w == 0 {
				continue
			}
			p := clamp01(float64(op.Strength) * w * weight)
			k := j*g.n + i
			switch mode {
			case BlendModeReplace:
				g.matID[k], g.matW[k] = op.MaterialID, 1
			case BlendModeMax:
				if p > g.matW[k] {
					g.matID[k], g.matW[k] = op.MaterialID, p
				}
			default:
				if g.matID[k] == op.MaterialID {
					g.matW[k] += (1 - g.matW[k]) * p
				} else if old := g.matW[k] * (1 - p); old < p {
					g.matID[k], g.matW[k] = op.MaterialID, p
				} else {
					g.matW[k] = old
				}
			}
		}
	}
}

// computeNormals uses central differences over the bordered grid.
func computeNormals(g *grid) [][3]float32 {
	normals := make([][3]float32, len(g.h))
	for j := 0; j < g.n; j++ {
		for i := 0; i < g.n; i++ {
			dx := (g.at(i+1, j) - g.at(i-1, j)) / (2 * g.step)
			dz := (g.at(i, j+1) - g.at(i, j-1)) / (2 * g.step)
			l := math.Sqrt(dx*dx + 1 + dz*dz)
			normals[j*g.n+i] = [3]float32{float32(-dx / l), float32(1 / l), float32(-dz / l)}
		}
	}
	return normals
}

// emit copies the inner part of the grid into an artifact.
func emit(g *grid, normals [][3]float32, tiles int, c ChunkCoord, lod uint8) *ChunkArtifact {
	side := tiles + 1
	a := &ChunkArtifact{
		Coord:    c,
		LOD:      lod,
		Vertices: make([]assets.Vertex, 0, side*side),
		Indices:  make([]uint32, 0, tiles*tiles*6),
	}
	if g.matID != nil {
		a.MaterialIDs = make([]uint32, 0, side*side)
		a.MaterialWeights = make([]float32, 0, side*side)
	}
	for j := 0; j < side; j++ {
		for i := 0; i < side; i++ {
			k := (j+1)*g.n + (i + 1)
			x, z := g.world(i+1, j+1)
			p := [3]float32{float32(x), float32(g.h[k]), float32(z)}
			a.Vertices = append(a.Vertices, assets.Vertex{
				Position: p,
				Normal:   normals[k],
				UV:       [2]float32{float32(i) / float32(tiles), float32(j) / float32(tiles)},
			})
			if g.matID != nil {
				a.MaterialIDs = append(a.MaterialIDs, g.matID[k])
				a.MaterialWeights = append(a.MaterialWeights, float32(g.matW[k]))
			}
		}
	}
	a.Bounds = boundsOf(a.Vertices)
	for j := 0; j < tiles; j++ {
		for i := 0; i < tiles; i++ {
			v := uint32(j*side + i)
			next := v + uint32(side)
			a.Indices = append(a.Indices, v, next, v+1, v+1, next, next+1)
		}
	}
	return a
}

// Geometry returns the artifact's mesh as an asset record. Its material is
// the one rules give the most common material id, or empty (the default
// material) when no rule names that id.
func (a *ChunkArtifact) Geometry(rules []MaterialRule) assets.Geometry {
	g := assets.Geometry{
		Vertices:        a.Vertices,
		Indices:         a.Indices,
		MaterialIDs:     a.MaterialIDs,
		MaterialWeights: a.MaterialWeights,
	}
	id, ok := a.dominantMaterial()
	if !ok {
		return g
	}
	for _, r := range rules {
		if r.MaterialID == id {
			g.Material = r.Material
			break
		}
	}
	return g
}

// dominantMaterial returns the material id most vertices carry. Ties go to
// the lower id.
func (a *ChunkArtifact) dominantMaterial() (uint32, bool) {
	if len(a.MaterialIDs) == 0 {
		return 0, false
	}
	counts := make(map[uint32]int)
	for _, id := range a.MaterialIDs {
		counts[id]++
	}
	var best uint32
	n := -1
	for id, c := range counts {
		if c > n || (c == n && id < best) {
			best, n = id, c
		}
	}
	return best, true
}
