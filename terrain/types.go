// Package terrain turns versioned terrain parameters kept in a content store
// into per chunk mesh artifacts, and only rebuilds the chunks whose inputs
// changed.
//
// Every input is an entry in the store. A project has one settings record,
// an append-only list of generator definitions, and mutation layers whose
// ops form an append-only event log. Building a chunk hashes the inputs that
// affect it and compares them with the chunk's stored state; a chunk whose
// inputs hash the same as last time is skipped.
package terrain

import (
	"fmt"
	"math"

	"github.com/ndlib/assetdb/assets"
)

// ChunkCoord addresses one chunk in the project grid.
type ChunkCoord struct {
	X int32
	Y int32
}

func (c ChunkCoord) String() string {
	return fmt.Sprintf("%d_%d", c.X, c.Y)
}

// Rect is an axis aligned rectangle on the ground plane, in world units. Y in
// chunk coordinates corresponds to Z in world space.
type Rect struct {
	Min [2]float32
	Max [2]float32
}

// LODPolicy controls how many detail levels are built and where they are
// used.
type LODPolicy struct {
	MaxLOD uint8
	// Distances[i] is the view distance at which LOD i+1 takes over.
	Distances []float32
}

// ProjectSettings is the one settings record of a project.
type ProjectSettings struct {
	Name             string
	Seed             uint64
	TileSize         float32
	TilesPerChunk    uint32
	WorldBounds      Rect
	LOD              LODPolicy
	GeneratorGraphID string

	ActiveGeneratorVersion uint32
	ActiveMutationVersion  uint32
}

// ChunkSize is the width of a chunk in world units.
func (s *ProjectSettings) ChunkSize() float32 {
	return s.TileSize * float32(s.TilesPerChunk)
}

// ChunkRange returns the first and last chunk inside the world bounds.
func (s *ProjectSettings) ChunkRange() (min, max ChunkCoord) {
	size := s.ChunkSize()
	if size <= 0 {
		return ChunkCoord{}, ChunkCoord{}
	}
	min = ChunkCoord{
		X: int32(math.Floor(float64(s.WorldBounds.Min[0] / size))),
		Y: int32(math.Floor(float64(s.WorldBounds.Min[1] / size))),
	}
	max = ChunkCoord{
		X: int32(math.Ceil(float64(s.WorldBounds.Max[0]/size))) - 1,
		Y: int32(math.Ceil(float64(s.WorldBounds.Max[1]/size))) - 1,
	}
	if max.X < min.X {
		max.X = min.X
	}
	if max.Y < min.Y {
		max.Y = min.Y
	}
	return min, max
}

// MaterialRule picks a material for vertices whose height and slope fall in
// range. Slope is 0 for flat ground and 1 for a vertical wall.
type MaterialRule struct {
	MaterialID uint32
	Material   string // material entry name
	MinHeight  float32
	MaxHeight  float32
	MinSlope   float32
	MaxSlope   float32
}

// GeneratorDefinition describes the procedural base terrain. Definitions
// are never overwritten; a new version is added and selected through
// ProjectSettings.ActiveGeneratorVersion.
type GeneratorDefinition struct {
	Version        uint32
	Algorithm      string
	Frequency      float32
	Amplitude      float32
	Octaves        uint32
	BiomeFrequency float32
	MaterialRules  []MaterialRule
}

// OpKind is the kind of edit a mutation op makes.
type OpKind uint8

const (
	SphereAdd OpKind = iota
	SphereSubtract
	CapsuleAdd
	CapsuleSubtract
	Smooth
	MaterialPaint
)

var opKindNames = []string{"sphere_add", "sphere_subtract", "capsule_add", "capsule_subtract", "smooth", "material_paint"}

func (k OpKind) String() string {
	if int(k) < len(opKindNames) {
		return opKindNames[k]
	}
	return fmt.Sprintf("OpKind(%d)", int(k))
}

// ParseOpKind is the inverse of OpKind.String.
func ParseOpKind(s string) (OpKind, bool) {
	for i, name := range opKindNames {
		if name == s {
			return OpKind(i), true
		}
	}
	return 0, false
}

// BlendMode says how a material paint op combines with what is under it.
// The zero value means the record predates blend modes.
type BlendMode uint8

const (
	BlendModeBlend BlendMode = iota + 1
	BlendModeReplace
	BlendModeMax
)

var blendModeNames = map[BlendMode]string{
	BlendModeBlend:   "blend",
	BlendModeReplace: "replace",
	BlendModeMax:     "max",
}

func (b BlendMode) String() string {
	if s, ok := blendModeNames[b]; ok {
		return s
	}
	return fmt.Sprintf("BlendMode(%d)", int(b))
}

// ParseBlendMode is the inverse of BlendMode.String.
func ParseBlendMode(s string) (BlendMode, bool) {
	for b, name := range blendModeNames {
		if name == s {
			return b, true
		}
	}
	return 0, false
}

// MutationOp is one edit event. An op is never changed in place: a change
// is a new record with the same OpID and a higher EventID.
type MutationOp struct {
	OpID    uint64
	Order   uint32
	EventID uint64
	Enabled bool
	Kind    OpKind

	Center [3]float32
	End    [3]float32 // second endpoint, capsules only

	Radius   float32
	Strength float32
	Falloff  float32

	Timestamp int64 // unix nanoseconds
	Author    string

	BlendMode  BlendMode
	MaterialID uint32
}

// Less orders ops for replay: by Order, then by OpID.
func (op *MutationOp) Less(other *MutationOp) bool {
	if op.Order != other.Order {
		return op.Order < other.Order
	}
	return op.OpID < other.OpID
}

// MutationLayer is an ordered group of ops. A layer may restrict itself to a
// list of chunks; a nil AffectedChunks means every chunk.
type MutationLayer struct {
	LayerID        string
	Version        uint32
	Order          int32
	Weight         float32
	Disabled       bool
	AffectedChunks []ChunkCoord
	Ops            []MutationOp
}

// Affects returns true if the layer applies to chunk c.
func (l *MutationLayer) Affects(c ChunkCoord) bool {
	if l.AffectedChunks == nil {
		return true
	}
	for _, a := range l.AffectedChunks {
		if a == c {
			return true
		}
	}
	return false
}

// AABB is an axis aligned bounding box in world space.
type AABB struct {
	Min [3]float32
	Max [3]float32
}

// ChunkArtifact is the built mesh of one chunk at one level of detail.
type ChunkArtifact struct {
	Project         string
	Coord           ChunkCoord
	LOD             uint8
	Bounds          AABB
	Vertices        []assets.Vertex
	Indices         []uint32
	MaterialIDs     []uint32
	MaterialWeights []float32

	// ContentHash covers every input the artifact was built from.
	ContentHash uint64
	// MeshEntry is the name of the assets.Geometry entry holding the same
	// mesh for the runtime library.
	MeshEntry string
}

// BuildRequest asks for one chunk at one level of detail.
type BuildRequest struct {
	Coord ChunkCoord
	LOD   uint8
}

// BuildReport counts what a batch did.
type BuildReport struct {
	BuiltChunks   int
	SkippedChunks int
	UpdatedStates int
}
