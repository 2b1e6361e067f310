package assets

import (
	"sort"
	"sync"

	"github.com/ndlib/assetdb/gpu"
	"github.com/ndlib/assetdb/rdb"
)

// Registry holds the built in assets every store starts with. It is built
// once from the tables below and never changes afterwards.
type Registry struct {
	materials map[string]Material
	geometry  map[string]Geometry
	images    map[string]Image
}

var (
	defaultsOnce sync.Once
	defaults     *Registry
)

// Defaults returns the registry of built in assets.
func Defaults() *Registry {
	defaultsOnce.Do(func() {
		defaults = newRegistry(defaultMaterials, defaultPrimitives, defaultImages)
	})
	return defaults
}

type primitiveDef struct {
	ID    string
	Build func() Geometry
}

type imageDef struct {
	ID     string
	Width  int
	Height int
	// Colors are RGBA8 pixels in row order. When there are fewer than
	// Width*Height the colors repeat.
	Colors [][4]byte
}

func newRegistry(materials []Material, primitives []primitiveDef, images []imageDef) *Registry {
	r := &Registry{
		materials: make(map[string]Material),
		geometry:  make(map[string]Geometry),
		images:    make(map[string]Image),
	}
	for _, m := range materials {
		r.materials[m.Name] = m
	}
	for _, p := range primitives {
		r.geometry[p.ID] = p.Build()
	}
	for _, def := range images {
		img := Image{Width: def.Width, Height: def.Height, Format: gpu.RGBA8}
		img.Pixels = make([]byte, 0, def.Width*def.Height*4)
		for i := 0; i < def.Width*def.Height; i++ {
			c := def.Colors[i%len(def.Colors)]
			img.Pixels = append(img.Pixels, c[:]...)
		}
		r.images[def.ID] = img
	}
	return r
}

// Material returns the default material with the given id.
func (r *Registry) Material(id string) (Material, bool) {
	m, ok := r.materials[id]
	return m, ok
}

// Geometry returns the default geometry with the given id. The slices are
// shared; callers must not modify them.
func (r *Registry) Geometry(id string) (Geometry, bool) {
	g, ok := r.geometry[id]
	return g, ok
}

// Image returns the default image with the given id.
func (r *Registry) Image(id string) (Image, bool) {
	img, ok := r.images[id]
	return img, ok
}

// MaterialIDs returns the ids of every default material, sorted.
func (r *Registry) MaterialIDs() []string { return sortedKeys(r.materials) }

// GeometryIDs returns the ids of every default geometry, sorted.
func (r *Registry) GeometryIDs() []string { return sortedKeys(r.geometry) }

// ImageIDs returns the ids of every default image, sorted.
func (r *Registry) ImageIDs() []string { return sortedKeys(r.images) }

func sortedKeys[V any](m map[string]V) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

// SeedDefaults upserts every default asset into b. Running it again leaves
// the store unchanged.
func (r *Registry) SeedDefaults(b *rdb.Builder) error {
	for _, id := range r.ImageIDs() {
		if err := b.Upsert(ImageKey(id), r.images[id]); err != nil {
			return err
		}
	}
	for _, id := range r.MaterialIDs() {
		if err := b.Upsert(MaterialKey(id), r.materials[id]); err != nil {
			return err
		}
	}
	for _, id := range r.GeometryIDs() {
		if err := b.Upsert(GeometryKey(id), r.geometry[id]); err != nil {
			return err
		}
	}
	return nil
}

// SeedDefaults upserts the built in assets into b.
func SeedDefaults(b *rdb.Builder) error {
	return Defaults().SeedDefaults(b)
}

var defaultImages = []imageDef{
	{ID: "default/white", Width: 1, Height: 1, Colors: [][4]byte{{255, 255, 255, 255}}},
	{ID: "default/black", Width: 1, Height: 1, Colors: [][4]byte{{0, 0, 0, 255}}},
	{ID: "default/normal", Width: 1, Height: 1, Colors: [][4]byte{{128, 128, 255, 255}}},
	{ID: "default/checker", Width: 2, Height: 2, Colors: [][4]byte{
		{255, 0, 255, 255}, {0, 0, 0, 255},
		{0, 0, 0, 255}, {255, 0, 255, 255},
	}},
}

var defaultMaterials = []Material{
	{
		Name:         "default",
		Shader:       "shader/standard",
		BaseColor:    [4]float32{1, 1, 1, 1},
		Roughness:    0.5,
		BaseColorMap: "image/default/white",
		NormalMap:    "image/default/normal",
	},
	{
		Name:         "missing",
		Shader:       "shader/unlit",
		BaseColor:    [4]float32{1, 0, 1, 1},
		Roughness:    1,
		BaseColorMap: "image/default/checker",
	},
	{Name: "terrain/grass", Shader: "shader/terrain", BaseColor: [4]float32{0.29, 0.47, 0.18, 1}, Roughness: 0.9},
	{Name: "terrain/dirt", Shader: "shader/terrain", BaseColor: [4]float32{0.41, 0.30, 0.20, 1}, Roughness: 0.95},
	{Name: "terrain/rock", Shader: "shader/terrain", BaseColor: [4]float32{0.45, 0.44, 0.42, 1}, Roughness: 0.8},
	{Name: "terrain/sand", Shader: "shader/terrain", BaseColor: [4]float32{0.76, 0.70, 0.50, 1}, Roughness: 0.95},
	{Name: "terrain/snow", Shader: "shader/terrain", BaseColor: [4]float32{0.95, 0.96, 0.98, 1}, Roughness: 0.6},
}

var defaultPrimitives = []primitiveDef{
	{ID: "default/quad", Build: quad},
	{ID: "default/cube", Build: cube},
	{ID: "default/triangle", Build: triangle},
}

func triangle() Geometry {
	return Geometry{
		Vertices: []Vertex{
			{Position: [3]float32{-0.5, -0.5, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{0, 0}},
			{Position: [3]float32{0.5, -0.5, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{1, 0}},
			{Position: [3]float32{0, 0.5, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{0.5, 1}},
		},
		Indices:  []uint32{0, 1, 2},
		Material: "material/default",
	}
}

func quad() Geometry {
	return Geometry{
		Vertices: []Vertex{
			{Position: [3]float32{-0.5, -0.5, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{0, 0}},
			{Position: [3]float32{0.5, -0.5, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{1, 0}},
			{Position: [3]float32{0.5, 0.5, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{1, 1}},
			{Position: [3]float32{-0.5, 0.5, 0}, Normal: [3]float32{0, 0, 1}, UV: [2]float32{0, 1}},
		},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
		Material: "material/default",
	}
}

// cubeFaces lists each face of the unit cube by normal and the two axes
// spanning it.
var cubeFaces = []struct {
	normal, u, v [3]float32
}{
	{[3]float32{1, 0, 0}, [3]float32{0, 0, -1}, [3]float32{0, 1, 0}},
	{[3]float32{-1, 0, 0}, [3]float32{0, 0, 1}, [3]float32{0, 1, 0}},
	{[3]float32{0, 1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, -1}},
	{[3]float32{0, -1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, 1}},
	{[3]float32{0, 0, 1}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
	{[3]float32{0, 0, -1}, [3]float32{-1, 0, 0}, [3]float32{0, 1, 0}},
}

func cube() Geometry {
	var g Geometry
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, f := range cubeFaces {
		base := uint32(len(g.Vertices))
		for _, c := range corners {
			var p [3]float32
			for k := 0; k < 3; k++ {
				p[k] = 0.5 * (f.normal[k] + c[0]*f.u[k] + c[1]*f.v[k])
			}
			g.Vertices = append(g.Vertices, Vertex{
				Position: p,
				Normal:   f.normal,
				UV:       [2]float32{(c[0] + 1) / 2, (c[1] + 1) / 2},
			})
		}
		g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	g.Material = "material/default"
	return g
}
