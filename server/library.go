package server

import (
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/assets"
	"github.com/ndlib/assetdb/rdb"
)

// GeometryInfo describes one geometry loaded on the device.
type GeometryInfo struct {
	Name        string
	VertexBytes int
	IndexBytes  int
	IndexCount  int
	Material    string
}

// LibraryInfo counts the resources on the device.
type LibraryInfo struct {
	Geometry int
	Images   int
}

func geometryInfo(name string, g *assets.DeviceGeometry) GeometryInfo {
	return GeometryInfo{
		Name:        name,
		VertexBytes: g.Vertices.Size,
		IndexBytes:  g.Indices.Size,
		IndexCount:  g.IndexCount,
		Material:    g.Material,
	}
}

// libraryStatus maps library errors to an http status.
func libraryStatus(err error) int {
	switch {
	case errors.Is(err, rdb.ErrNotFound):
		return 404
	case errors.Is(err, rdb.ErrTypeMismatch):
		return 400
	}
	return 500
}

// GeometryHandler uploads the geometry entry to the device, if it is not
// loaded already, and describes it. The reference is released before
// returning, so the geometry stays loaded for the unload delay.
func (s *RESTServer) GeometryHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := strings.TrimPrefix(ps.ByName("name"), "/")
	v, err := s.uploads.Do(name, func() (interface{}, error) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		s.libmu.Lock()
		defer s.libmu.Unlock()
		g, err := s.lib.AcquireGeometry(name)
		if err != nil {
			return nil, err
		}
		info := geometryInfo(name, g)
		return info, s.lib.ReleaseGeometry(name)
	})
	if err != nil {
		writeError(w, libraryStatus(err), err)
		return
	}
	writeJSON(w, v)
}

// ModelInfo describes an assembled model.
type ModelInfo struct {
	Name   string
	Parts  []PartInfo
	Images []string
}

// PartInfo is one part of a ModelInfo.
type PartInfo struct {
	Name     string
	Parent   int
	Geometry GeometryInfo
	Material string
}

// ModelHandler assembles the model entry on the device and describes it.
func (s *RESTServer) ModelHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	name := strings.TrimPrefix(ps.ByName("name"), "/")
	s.mu.RLock()
	s.libmu.Lock()
	a, err := s.lib.AcquireModel(name)
	var info ModelInfo
	if err == nil {
		info = ModelInfo{Name: name, Images: a.Images}
		for i, p := range a.Parts {
			info.Parts = append(info.Parts, PartInfo{
				Name:     p.Name,
				Parent:   p.Parent,
				Geometry: geometryInfo(a.Geometries[i], p.Geometry),
				Material: p.Material.Name,
			})
		}
		s.lib.ReleaseModel(a)
	}
	s.libmu.Unlock()
	s.mu.RUnlock()
	if err != nil {
		writeError(w, libraryStatus(err), err)
		return
	}
	writeJSON(w, info)
}

// LibraryHandler reports how many resources are loaded.
func (s *RESTServer) LibraryHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s.mu.RLock()
	s.libmu.Lock()
	g, i := s.lib.Loaded()
	s.libmu.Unlock()
	s.mu.RUnlock()
	writeJSON(w, LibraryInfo{Geometry: g, Images: i})
}
