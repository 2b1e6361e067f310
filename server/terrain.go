package server

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"
	raven "github.com/getsentry/raven-go"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/rdb"
	"github.com/ndlib/assetdb/terrain"
)

// ArtifactInfo names one built chunk artifact.
type ArtifactInfo struct {
	Entry string
	X     int32
	Y     int32
	LOD   uint8
	Size  uint64
}

// ArtifactsHandler lists the chunk artifacts of a project.
func (s *RESTServer) ArtifactsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	project := ps.ByName("project")
	result := []ArtifactInfo{}
	s.withView(func(v *rdb.View) error {
		for _, e := range rdb.EntriesWithPrefix(v, terrain.ChunkArtifactPrefix(project)) {
			p, c, lod, err := terrain.ParseChunkArtifactKey(e.Name)
			if err != nil || p != project {
				continue
			}
			result = append(result, ArtifactInfo{Entry: e.Name, X: c.X, Y: c.Y, LOD: lod, Size: e.Len})
		}
		return nil
	})
	writeJSON(w, result)
}

// ChunkStateHandler returns the build state of one chunk. The coord is
// written "{x}_{y}".
func (s *RESTServer) ChunkStateHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	project := ps.ByName("project")
	c, err := terrain.ParseChunkCoord(ps.ByName("coord"))
	if err != nil {
		writeError(w, 400, err)
		return
	}
	var st terrain.ChunkState
	err = s.withView(func(v *rdb.View) error {
		st, err = rdb.Fetch[terrain.ChunkState](v, terrain.ChunkStateKey(project, c))
		return err
	})
	if errors.Is(err, rdb.ErrNotFound) {
		writeError(w, 404, err)
		return
	} else if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, st)
}

// JournalHandler returns the most recent build batches of a project. The
// query parameter "limit" defaults to 20.
func (s *RESTServer) JournalHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if s.Journal == nil {
		w.WriteHeader(http.StatusNotImplemented)
		fmt.Fprintln(w, "No journal")
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			writeError(w, 400, errors.Errorf("bad limit %q", l))
			return
		}
		limit = n
	}
	entries, err := s.Journal.Recent(ps.ByName("project"), limit)
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, entries)
}

// parseBuildRequests reads a build request body. It is either
//
//	{"chunks": [{"x": 0, "y": 0, "lod": 0}, ...]}
//
// or {"all": true, "lod": 1} for every chunk inside the world bounds.
func parseBuildRequests(body io.Reader, settings func() (*terrain.ProjectSettings, error)) ([]terrain.BuildRequest, error) {
	doc, err := jason.NewObjectFromReader(body)
	if err != nil {
		return nil, errors.Wrap(err, "reading build request")
	}
	if all, err := doc.GetBoolean("all"); err == nil && all {
		lod, _ := doc.GetInt64("lod")
		if lod < 0 || lod > 255 {
			return nil, errors.Errorf("lod %d out of range", lod)
		}
		s, err := settings()
		if err != nil {
			return nil, err
		}
		lo, hi := s.ChunkRange()
		var result []terrain.BuildRequest
		for y := lo.Y; y <= hi.Y; y++ {
			for x := lo.X; x <= hi.X; x++ {
				result = append(result, terrain.BuildRequest{
					Coord: terrain.ChunkCoord{X: x, Y: y},
					LOD:   uint8(lod),
				})
			}
		}
		return result, nil
	}
	chunks, err := doc.GetObjectArray("chunks")
	if err != nil {
		return nil, errors.Wrap(err, "build request has no chunks")
	}
	var result []terrain.BuildRequest
	for i, obj := range chunks {
		x, err1 := obj.GetInt64("x")
		y, err2 := obj.GetInt64("y")
		if err1 != nil || err2 != nil {
			return nil, errors.Errorf("chunk %d needs x and y", i)
		}
		lod, _ := obj.GetInt64("lod")
		if lod < 0 || lod > 255 {
			return nil, errors.Errorf("chunk %d has lod %d", i, lod)
		}
		result = append(result, terrain.BuildRequest{
			Coord: terrain.ChunkCoord{X: int32(x), Y: int32(y)},
			LOD:   uint8(lod),
		})
	}
	return result, nil
}

// requestKey is the singleflight key of a batch. Identical batches for the
// same project share one build.
func requestKey(project string, reqs []terrain.BuildRequest) string {
	parts := make([]string, len(reqs))
	for i, r := range reqs {
		parts[i] = fmt.Sprintf("%s/%d", r.Coord, r.LOD)
	}
	sort.Strings(parts)
	return project + ":" + strings.Join(parts, ",")
}

// BuildHandler runs a build batch for a project and returns its report.
func (s *RESTServer) BuildHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	project := ps.ByName("project")
	reqs, err := parseBuildRequests(r.Body, func() (*terrain.ProjectSettings, error) {
		var st terrain.ProjectSettings
		err := s.withView(func(v *rdb.View) error {
			var err error
			st, err = rdb.Fetch[terrain.ProjectSettings](v, terrain.SettingsKey(project))
			return err
		})
		return &st, err
	})
	if err != nil {
		writeError(w, 400, err)
		return
	}
	v, err := s.builds.Do(requestKey(project, reqs), func() (result interface{}, err error) {
		// Do must return for the key to be released
		defer func() {
			if r := recover(); r != nil {
				err = errors.Errorf("build of %s panicked: %v", project, r)
			}
		}()
		var report terrain.BuildReport
		err = s.modify(func(b *rdb.Builder) (bool, error) {
			p := &terrain.Pipeline{Log: s.log, Stats: s.Stats, Journal: s.Journal}
			var err error
			report, err = p.Build(b, project, reqs)
			return report.BuiltChunks+report.UpdatedStates > 0, err
		})
		return report, err
	})
	if errors.Is(err, terrain.ErrLookup) {
		writeError(w, 404, err)
		return
	} else if err != nil {
		raven.CaptureError(err, map[string]string{"project": project})
		writeError(w, 500, err)
		return
	}
	writeJSON(w, v)
}

// ImportOpsHandler appends the ops of an editor export to a project. The
// body has the format read by terrain.ImportOpsJSON.
func (s *RESTServer) ImportOpsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	project := ps.ByName("project")
	var report terrain.ImportReport
	err := s.modify(func(b *rdb.Builder) (bool, error) {
		var err error
		report, err = terrain.ImportOpsJSON(b, r.Body, project, s.log)
		return report.Imported > 0, err
	})
	if errors.Is(err, terrain.ErrLookup) {
		writeError(w, 404, err)
		return
	} else if err != nil {
		writeError(w, 400, err)
		return
	}
	writeJSON(w, report)
}
