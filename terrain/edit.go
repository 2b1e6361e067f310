package terrain

import (
	"math"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/rdb"
)

var (
	// ErrExists means an append-only record with that version is already
	// stored.
	ErrExists = errors.New("terrain: version already exists")

	// ErrNoSuchOp means no current op has the given OpID.
	ErrNoSuchOp = errors.New("terrain: no such op")
)

// SaveSettings makes s the settings of project.
func SaveSettings(b *rdb.Builder, project string, s ProjectSettings) error {
	return b.Upsert(SettingsKey(project), s)
}

// AddGenerator stores a new generator version. Versions are never replaced.
func AddGenerator(b *rdb.Builder, project string, g GeneratorDefinition) error {
	key := GeneratorKey(project, g.Version)
	if rdb.Has(b, key) {
		return errors.Wrap(ErrExists, key)
	}
	return b.Add(key, g)
}

// AddMutationLayer stores a new layer version. Versions are never replaced.
func AddMutationLayer(b *rdb.Builder, project string, l MutationLayer) error {
	key := MutationLayerKey(project, l.LayerID, l.Version)
	if rdb.Has(b, key) {
		return errors.Wrap(ErrExists, key)
	}
	return b.Add(key, l)
}

// activeLayer finds the version of layer the settings select.
func activeLayer(src rdb.Source, project, layer string, s *ProjectSettings) (uint32, error) {
	found := false
	var best uint32
	for _, e := range rdb.EntriesWithPrefix(src, MutationLayerPrefix(project)) {
		id, version, err := ParseMutationLayerKey(project, e.Name)
		if err != nil || id != layer || version > s.ActiveMutationVersion {
			continue
		}
		if !found || version > best {
			best, found = version, true
		}
	}
	if !found {
		key := MutationLayerPrefix(project) + layer
		return 0, &LookupError{Key: key, Err: errors.Wrap(rdb.ErrNotFound, key)}
	}
	return best, nil
}

// AppendMutationOp records op as a new event of layer and marks the chunks
// under it dirty. The op gets a fresh EventID, and a fresh OpID if it has
// none. No stored record is changed. The op as stored is returned with the
// chunks which were marked.
func AppendMutationOp(b *rdb.Builder, project, layer string, op MutationOp) (MutationOp, []ChunkCoord, error) {
	settings, err := rdb.Fetch[ProjectSettings](b, SettingsKey(project))
	if err != nil {
		return op, nil, &LookupError{Key: SettingsKey(project), Err: err}
	}
	version, err := activeLayer(b, project, layer, &settings)
	if err != nil {
		return op, nil, err
	}
	l, err := rdb.Fetch[MutationLayer](b, MutationLayerKey(project, layer, version))
	if err != nil {
		return op, nil, &LookupError{Key: MutationLayerKey(project, layer, version), Err: err}
	}
	l.LayerID, l.Version = layer, version

	// ids are taken from every event, current or not
	var maxEvent, maxOp uint64
	note := func(o *MutationOp) {
		if o.EventID > maxEvent {
			maxEvent = o.EventID
		}
		if o.OpID > maxOp {
			maxOp = o.OpID
		}
	}
	for i := range l.Ops {
		note(&l.Ops[i])
	}
	for _, e := range rdb.EntriesWithPrefix(b, MutationOpPrefix(project, layer, version)) {
		if o, err := DecodeMutationOp(b, e.Name); err == nil {
			note(&o)
		}
	}
	op.EventID = maxEvent + 1
	if op.OpID == 0 {
		op.OpID = maxOp + 1
	}
	if op.Timestamp == 0 {
		op.Timestamp = time.Now().UnixNano()
	}
	if op.BlendMode == 0 {
		op.BlendMode = BlendModeBlend
	}
	if err := b.Add(MutationOpKey(project, layer, version, op.Order, op.EventID), op); err != nil {
		return op, nil, err
	}
	coords := ChunksInRect(&settings, OpBounds(&op))
	err = MarkChunksDirty(b, project, coords, DirtyMutation, MutationChanged)
	return op, coords, err
}

// SetOpEnabled appends an event which turns the op with the given id on or
// off. The op keeps every other field.
func SetOpEnabled(b *rdb.Builder, project, layer string, opID uint64, enabled bool) (MutationOp, []ChunkCoord, error) {
	settings, err := rdb.Fetch[ProjectSettings](b, SettingsKey(project))
	if err != nil {
		return MutationOp{}, nil, &LookupError{Key: SettingsKey(project), Err: err}
	}
	version, err := activeLayer(b, project, layer, &settings)
	if err != nil {
		return MutationOp{}, nil, err
	}
	key := MutationLayerKey(project, layer, version)
	l, err := rdb.Fetch[MutationLayer](b, key)
	if err != nil {
		return MutationOp{}, nil, &LookupError{Key: key, Err: err}
	}
	l.LayerID, l.Version = layer, version
	for _, op := range currentOps(b, project, &l, logger.New("terrain")) {
		if op.OpID == opID {
			op.Enabled = enabled
			op.Timestamp = 0
			return AppendMutationOp(b, project, layer, op)
		}
	}
	return MutationOp{}, nil, errors.Wrapf(ErrNoSuchOp, "op %d in layer %s", opID, layer)
}

// ChunksInRect returns the chunks overlapping r, limited to the world
// bounds, in row order.
func ChunksInRect(s *ProjectSettings, r Rect) []ChunkCoord {
	size := float64(s.ChunkSize())
	if size <= 0 {
		return nil
	}
	lo, hi := s.ChunkRange()
	x0 := int32(math.Floor(float64(r.Min[0]) / size))
	y0 := int32(math.Floor(float64(r.Min[1]) / size))
	x1 := int32(math.Floor(float64(r.Max[0]) / size))
	y1 := int32(math.Floor(float64(r.Max[1]) / size))
	if x0 < lo.X {
		x0 = lo.X
	}
	if y0 < lo.Y {
		y0 = lo.Y
	}
	if x1 > hi.X {
		x1 = hi.X
	}
	if y1 > hi.Y {
		y1 = hi.Y
	}
	var result []ChunkCoord
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			result = append(result, ChunkCoord{X: x, Y: y})
		}
	}
	return result
}

// MarkChunksDirty sets flags and reason on the state of each chunk, making
// a state for chunks which have none.
func MarkChunksDirty(b *rdb.Builder, project string, coords []ChunkCoord, flags DirtyFlags, reason DirtyReason) error {
	for _, c := range coords {
		st, err := loadState(b, project, c)
		if err != nil {
			return err
		}
		st.MarkDirty(flags, reason)
		if err := b.Upsert(ChunkStateKey(project, c), st); err != nil {
			return err
		}
	}
	return nil
}
