// Package assets defines the records a renderer reads from a content store
// and the device side library that uploads them.
//
// Records refer to each other by full entry name, e.g. a Material's
// BaseColorMap is "image/rock". The Key helpers build those names.
package assets

import (
	"encoding/binary"
	"math"

	"github.com/ndlib/assetdb/gpu"
)

// Entry name prefixes for each record type.
const (
	GeometryPrefix = "geometry/"
	ImagePrefix    = "image/"
	MaterialPrefix = "material/"
	ModelPrefix    = "model/"
	ShaderPrefix   = "shader/"
)

// GeometryKey returns the entry name for the geometry called name.
func GeometryKey(name string) string { return GeometryPrefix + name }

// ImageKey returns the entry name for the image called name.
func ImageKey(name string) string { return ImagePrefix + name }

// MaterialKey returns the entry name for the material called name.
func MaterialKey(name string) string { return MaterialPrefix + name }

// ModelKey returns the entry name for the model called name.
func ModelKey(name string) string { return ModelPrefix + name }

// ShaderKey returns the entry name for the shader module called name.
func ShaderKey(name string) string { return ShaderPrefix + name }

// Vertex is one mesh vertex as laid out in a vertex buffer.
type Vertex struct {
	Position [3]float32
	Normal   [3]float32
	UV       [2]float32
}

// VertexSize is the size in bytes of one encoded Vertex.
const VertexSize = 8 * 4

// Geometry is an indexed triangle mesh.
type Geometry struct {
	Vertices []Vertex
	Indices  []uint32

	// Optional per vertex material ids and blend weights. Either empty or
	// the same length as Vertices.
	MaterialIDs     []uint32
	MaterialWeights []float32

	// Material is the entry name of the default material, if any.
	Material string
}

// VertexBytes encodes the vertices in the layout the device expects.
func (g *Geometry) VertexBytes() []byte {
	buf := make([]byte, len(g.Vertices)*VertexSize)
	for i, v := range g.Vertices {
		off := i * VertexSize
		floats := [8]float32{
			v.Position[0], v.Position[1], v.Position[2],
			v.Normal[0], v.Normal[1], v.Normal[2],
			v.UV[0], v.UV[1],
		}
		for j, f := range floats {
			binary.LittleEndian.PutUint32(buf[off+j*4:], math.Float32bits(f))
		}
	}
	return buf
}

// IndexBytes encodes the indices as little endian uint32s.
func (g *Geometry) IndexBytes() []byte {
	buf := make([]byte, len(g.Indices)*4)
	for i, idx := range g.Indices {
		binary.LittleEndian.PutUint32(buf[i*4:], idx)
	}
	return buf
}

// Image is decoded pixel data.
type Image struct {
	Width  int
	Height int
	Format gpu.Format
	Pixels []byte
}

// Material describes how a surface is shaded. Map fields hold image entry
// names and may be empty.
type Material struct {
	Name         string
	Shader       string
	BaseColor    [4]float32
	Roughness    float32
	Metallic     float32
	BaseColorMap string
	NormalMap    string
}

// Model is a tree of parts. Each part draws one geometry with one material.
type Model struct {
	Name  string
	Parts []Part
}

// Part is one node of a Model. Parent is the index of the parent part, or -1
// for a root.
type Part struct {
	Name      string
	Parent    int
	Geometry  string
	Material  string
	Transform [16]float32
}

// ShaderStage is the pipeline stage a shader module runs in.
type ShaderStage int

const (
	VertexStage ShaderStage = iota
	FragmentStage
	ComputeStage
)

// ShaderModule is compiled shader byte code. The compiler is outside this
// module; the code is stored as given.
type ShaderModule struct {
	Stage ShaderStage
	Entry string
	Code  []byte
}

// Identity is the identity transform.
var Identity = [16]float32{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}
