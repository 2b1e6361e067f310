package terrain

import (
	"fmt"
	"sort"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/facebookgo/stats"
	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/rdb"
)

// ErrLookup means a required input entry is missing or unreadable.
var ErrLookup = errors.New("terrain: lookup failed")

// LookupError is returned when a required input cannot be read. It matches
// ErrLookup with errors.Is and unwraps to the store error.
type LookupError struct {
	Key string
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("terrain: lookup %s: %s", e.Key, e.Err)
}

// Is lets errors.Is match ErrLookup.
func (e *LookupError) Is(target error) bool { return target == ErrLookup }

// Unwrap returns the store error.
func (e *LookupError) Unwrap() error { return e.Err }

// A Recorder is told about every finished batch. The journal package
// provides one.
type Recorder interface {
	RecordBuild(project string, report BuildReport, started time.Time, elapsed time.Duration) error
}

// Pipeline builds terrain chunks. The zero value works; the fields add
// logging, metrics and a journal.
type Pipeline struct {
	Log     *logger.L
	Stats   stats.Client
	Journal Recorder
}

// BuildTerrainChunks builds the requested chunks of project with a default
// pipeline.
func BuildTerrainChunks(b *rdb.Builder, project string, requests []BuildRequest) (BuildReport, error) {
	var p Pipeline
	return p.Build(b, project, requests)
}

func (p *Pipeline) log() *logger.L {
	if p.Log == nil {
		p.Log = logger.New("terrain")
	}
	return p.Log
}

// inputs are the entries a batch is built from, resolved once.
type inputs struct {
	settings     *ProjectSettings
	generator    *GeneratorDefinition
	layers       []*MutationLayer
	settingsHash uint64
	genHash      uint64
}

// ResolveInputs reads the settings, the active generator and the active
// version of every mutation layer of project. Missing settings or generator
// give a LookupError.
func ResolveInputs(src rdb.Source, project string, log *logger.L) (*ProjectSettings, *GeneratorDefinition, []*MutationLayer, error) {
	key := SettingsKey(project)
	settings, err := rdb.Fetch[ProjectSettings](src, key)
	if err != nil {
		return nil, nil, nil, &LookupError{Key: key, Err: err}
	}
	key = GeneratorKey(project, settings.ActiveGeneratorVersion)
	gen, err := rdb.Fetch[GeneratorDefinition](src, key)
	if err != nil {
		return nil, nil, nil, &LookupError{Key: key, Err: err}
	}
	layers, err := resolveLayers(src, project, settings.ActiveMutationVersion, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return &settings, &gen, layers, nil
}

// resolveLayers finds, for each layer id, the highest version not above
// active and fills in its current ops.
func resolveLayers(src rdb.Source, project string, active uint32, log *logger.L) ([]*MutationLayer, error) {
	best := make(map[string]uint32)
	for _, e := range rdb.EntriesWithPrefix(src, MutationLayerPrefix(project)) {
		layer, version, err := ParseMutationLayerKey(project, e.Name)
		if err != nil {
			log.Warnf("skipping entry %s: %s", e.Name, err)
			continue
		}
		if version > active {
			continue
		}
		if v, ok := best[layer]; !ok || version > v {
			best[layer] = version
		}
	}
	ids := make([]string, 0, len(best))
	for id := range best {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var result []*MutationLayer
	for _, id := range ids {
		key := MutationLayerKey(project, id, best[id])
		layer, err := rdb.Fetch[MutationLayer](src, key)
		if err != nil {
			return nil, &LookupError{Key: key, Err: err}
		}
		layer.LayerID = id
		layer.Version = best[id]
		layer.Ops = currentOps(src, project, &layer, log)
		result = append(result, &layer)
	}
	return result, nil
}

// currentOps merges the ops stored in the layer record with the op events
// appended for it, keeping the highest EventID for each OpID. Events which
// cannot be decoded are skipped. The result is sorted by Order, then OpID.
func currentOps(src rdb.Source, project string, layer *MutationLayer, log *logger.L) []MutationOp {
	current := make(map[uint64]MutationOp)
	add := func(op MutationOp) {
		if op.BlendMode == 0 {
			op.BlendMode = BlendModeBlend
		}
		if old, ok := current[op.OpID]; !ok || op.EventID > old.EventID {
			current[op.OpID] = op
		}
	}
	for _, op := range layer.Ops {
		add(op)
	}
	for _, e := range rdb.EntriesWithPrefix(src, MutationOpPrefix(project, layer.LayerID, layer.Version)) {
		op, err := DecodeMutationOp(src, e.Name)
		if err != nil {
			log.Warnf("skipping malformed op %s: %s", e.Name, err)
			continue
		}
		add(op)
	}
	result := make([]MutationOp, 0, len(current))
	for _, op := range current {
		result = append(result, op)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Less(&result[j]) })
	return result
}

// layersFor returns the layers which apply to chunk c.
func layersFor(layers []*MutationLayer, c ChunkCoord) []*MutationLayer {
	var result []*MutationLayer
	for _, l := range layers {
		if l.Affects(c) {
			result = append(result, l)
		}
	}
	return result
}

type write struct {
	name  string
	value interface{}
}

// Build runs one batch. Chunks are handled in request order. Nothing is
// written unless every requested chunk was either skipped or generated, so
// a failed batch leaves the store unchanged.
func (p *Pipeline) Build(b *rdb.Builder, project string, requests []BuildRequest) (BuildReport, error) {
	var report BuildReport
	log := p.log()
	started := time.Now()
	defer stats.BumpTime(p.Stats, "terrain.batch").End()

	settings, gen, layers, err := ResolveInputs(b, project, log)
	if err != nil {
		log.Errorf("batch for %s: %s", project, err)
		return report, err
	}
	in := &inputs{settings: settings, generator: gen, layers: layers}
	if in.settingsHash, err = SettingsHash(settings); err != nil {
		return report, err
	}
	if in.genHash, err = GeneratorHash(gen); err != nil {
		return report, err
	}

	states := make(map[ChunkCoord]*ChunkState)
	changed := make(map[ChunkCoord]bool)
	var stateOrder []ChunkCoord
	var writes []write
	for _, req := range requests {
		st, ok := states[req.Coord]
		if !ok {
			st, err = loadState(b, project, req.Coord)
			if err != nil {
				return BuildReport{}, err
			}
			states[req.Coord] = st
			stateOrder = append(stateOrder, req.Coord)
		}
		w, built, cleaned, err := p.buildChunk(in, st, project, req)
		if err != nil {
			log.Errorf("chunk %s lod %d of %s: %s", req.Coord, req.LOD, project, err)
			return BuildReport{}, errors.Wrapf(err, "chunk %s lod %d", req.Coord, req.LOD)
		}
		writes = append(writes, w...)
		if built {
			report.BuiltChunks++
		} else {
			report.SkippedChunks++
		}
		if built || cleaned {
			report.UpdatedStates++
			changed[req.Coord] = true
		}
	}
	for _, c := range stateOrder {
		if changed[c] {
			writes = append(writes, write{ChunkStateKey(project, c), states[c]})
		}
	}
	for _, w := range writes {
		if err := rdb.CheckName(w.name); err != nil {
			return BuildReport{}, errors.Wrapf(err, "entry %q", w.name)
		}
	}
	for _, w := range writes {
		if err := b.Upsert(w.name, w.value); err != nil {
			return report, err
		}
	}

	stats.BumpSum(p.Stats, "terrain.built", float64(report.BuiltChunks))
	stats.BumpSum(p.Stats, "terrain.skipped", float64(report.SkippedChunks))
	log.Infof("batch for %s: built %d skipped %d", project, report.BuiltChunks, report.SkippedChunks)
	if p.Journal != nil {
		err := p.Journal.RecordBuild(project, report, started, time.Since(started))
		if err != nil {
			log.Errorf("journal: %s", err)
			raven.CaptureError(err, map[string]string{"project": project})
		}
	}
	return report, nil
}

func loadState(src rdb.Source, project string, c ChunkCoord) (*ChunkState, error) {
	st, err := rdb.Fetch[ChunkState](src, ChunkStateKey(project, c))
	if errors.Is(err, rdb.ErrNotFound) {
		return NewChunkState(project, c), nil
	}
	if err != nil {
		return nil, err
	}
	if st.LastBuiltHashes == nil {
		st.LastBuiltHashes = make(map[uint8]uint64)
	}
	return &st, nil
}

const (
	chunkSkipped = false
	chunkBuilt   = true
)

// buildChunk decides whether one request needs building and if so generates
// it. st is updated in place; cleaned is true when only stale flags were
// cleared from it.
func (p *Pipeline) buildChunk(in *inputs, st *ChunkState, project string, req BuildRequest) (writes []write, built bool, cleaned bool, err error) {
	layers := layersFor(in.layers, req.Coord)
	mutHash, err := MutationHash(layers)
	if err != nil {
		return nil, chunkSkipped, false, err
	}
	deps := DependencyHashes{
		Settings:  in.settingsHash,
		Generator: in.genHash,
		Mutation:  mutHash,
	}
	content := ContentHash(deps, req.Coord, req.LOD)

	if changed := st.Compare(deps); changed != 0 {
		st.MarkChanged(changed)
	} else if st.IsDirty() {
		// flags left by an edit which did not change this chunk's inputs
		p.log().Debugf("chunk %s: clearing stale flags %v", req.Coord, st.DirtyReasons)
		st.Clean()
		cleaned = true
	}

	if last, ok := st.LastBuilt(req.LOD); ok && last == content && !st.IsDirty() {
		p.log().Debugf("chunk %s lod %d: up to date", req.Coord, req.LOD)
		return nil, chunkSkipped, cleaned, nil
	}

	a, err := GenerateChunk(in.settings, in.generator, layers, req.Coord, req.LOD)
	if err != nil {
		return nil, chunkSkipped, false, err
	}
	a.Project = project
	a.ContentHash = content
	a.MeshEntry = MeshKey(project, req.Coord, req.LOD)

	st.SetLastBuilt(req.LOD, content, deps)
	st.GeneratorVersion = in.settings.ActiveGeneratorVersion
	st.MutationVersion = in.settings.ActiveMutationVersion
	st.Clean()
	p.log().Debugf("chunk %s lod %d: built %x", req.Coord, req.LOD, content)

	return []write{
		{ChunkArtifactKey(project, req.Coord, req.LOD), a},
		{a.MeshEntry, a.Geometry(in.generator.MaterialRules)},
	}, chunkBuilt, false, nil
}
