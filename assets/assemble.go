package assets

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/gpu"
	"github.com/ndlib/assetdb/rdb"
)

// A PartSource resolves the geometry and images a model refers to. G and I
// are whatever form the caller wants them in: decoded records on the host,
// or handles on a device.
type PartSource[G, I any] interface {
	Geometry(name string) (G, error)
	Image(name string) (I, error)
}

// AssembledPart is one part of an assembled model.
type AssembledPart[G, I any] struct {
	Name      string
	Parent    int // index into Assembled.Parts, or -1
	Transform [16]float32
	Geometry  G
	Material  Material

	// BaseColor is only valid when HasBaseColor is true.
	BaseColor    I
	HasBaseColor bool
}

// Assembled is a model with its parts resolved. Parts are listed in
// traversal order, so every part comes after its parent.
type Assembled[G, I any] struct {
	Model string
	Parts []AssembledPart[G, I]

	// names of every geometry and image resolved, in order
	Geometries []string
	Images     []string
}

var _ PartSource[Geometry, Image] = HostSource{}
var _ PartSource[*DeviceGeometry, gpu.Image] = &Library{}

// HostSource resolves parts by decoding them from a store.
type HostSource struct {
	Src rdb.Source
}

// Geometry decodes the geometry entry called name.
func (h HostSource) Geometry(name string) (Geometry, error) {
	return rdb.Fetch[Geometry](h.Src, name)
}

// Image decodes the image entry called name.
func (h HostSource) Image(name string) (Image, error) {
	return rdb.Fetch[Image](h.Src, name)
}

// Geometry acquires the geometry called name. It lets a Library be used as
// a PartSource.
func (lib *Library) Geometry(name string) (*DeviceGeometry, error) {
	return lib.AcquireGeometry(name)
}

// Image acquires the image called name.
func (lib *Library) Image(name string) (gpu.Image, error) {
	return lib.AcquireImage(name)
}

// Assemble reads the model entry called model from src and resolves each of
// its parts through parts. Materials are read from src; a part with no
// material uses the default one.
//
// On error the partial result is returned too, so a caller which counts
// references can release what was already resolved.
func Assemble[G, I any](src rdb.Source, parts PartSource[G, I], model string) (*Assembled[G, I], error) {
	m, err := rdb.Fetch[Model](src, model)
	if err != nil {
		return nil, err
	}
	order, err := partOrder(m.Parts)
	if err != nil {
		return nil, errors.Wrapf(err, "model %s", model)
	}
	result := &Assembled[G, I]{Model: model}
	newIndex := make([]int, len(m.Parts))
	for _, i := range order {
		p := m.Parts[i]
		ap := AssembledPart[G, I]{
			Name:      p.Name,
			Parent:    -1,
			Transform: p.Transform,
		}
		if p.Parent >= 0 {
			ap.Parent = newIndex[p.Parent]
		}
		ap.Material, err = partMaterial(src, p.Material)
		if err != nil {
			return result, errors.Wrapf(err, "model %s part %s", model, p.Name)
		}
		ap.Geometry, err = parts.Geometry(p.Geometry)
		if err != nil {
			return result, errors.Wrapf(err, "model %s part %s", model, p.Name)
		}
		result.Geometries = append(result.Geometries, p.Geometry)
		if ap.Material.BaseColorMap != "" {
			ap.BaseColor, err = parts.Image(ap.Material.BaseColorMap)
			if err != nil {
				return result, errors.Wrapf(err, "model %s part %s", model, p.Name)
			}
			ap.HasBaseColor = true
			result.Images = append(result.Images, ap.Material.BaseColorMap)
		}
		newIndex[i] = len(result.Parts)
		result.Parts = append(result.Parts, ap)
	}
	return result, nil
}

func partMaterial(src rdb.Source, name string) (Material, error) {
	if name == "" {
		m, _ := Defaults().Material("default")
		return m, nil
	}
	return rdb.Fetch[Material](src, name)
}

// partOrder returns the indices of parts so that each part comes after its
// parent. Siblings keep their stored order.
func partOrder(parts []Part) ([]int, error) {
	children := make(map[int][]int)
	var roots []int
	for i, p := range parts {
		switch {
		case p.Parent == -1:
			roots = append(roots, i)
		case p.Parent < 0 || p.Parent >= len(parts) || p.Parent == i:
			return nil, errors.Errorf("part %d has bad parent %d", i, p.Parent)
		default:
			children[p.Parent] = append(children[p.Parent], i)
		}
	}
	for _, c := range children {
		sort.Ints(c)
	}
	order := make([]int, 0, len(parts))
	var visit func(i int)
	visit = func(i int) {
		order = append(order, i)
		for _, c := range children[i] {
			visit(c)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	if len(order) != len(parts) {
		return nil, errors.New("model parts contain a cycle")
	}
	return order, nil
}

// AcquireModel assembles model on the device. Every resource it acquired is
// released again by ReleaseModel.
func (lib *Library) AcquireModel(model string) (*Assembled[*DeviceGeometry, gpu.Image], error) {
	a, err := Assemble[*DeviceGeometry, gpu.Image](lib.src, lib, model)
	if err != nil {
		if a != nil {
			lib.ReleaseModel(a)
		}
		return nil, err
	}
	return a, nil
}

// ReleaseModel releases every resource acquired for a.
func (lib *Library) ReleaseModel(a *Assembled[*DeviceGeometry, gpu.Image]) {
	for _, name := range a.Geometries {
		lib.ReleaseGeometry(name)
	}
	for _, name := range a.Images {
		lib.ReleaseImage(name)
	}
}
