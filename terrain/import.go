package terrain

import (
	"io"

	"github.com/antonholmquist/jason"
	"github.com/bitmark-inc/logger"
	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/rdb"
)

// ImportReport counts what ImportOpsJSON did.
type ImportReport struct {
	Imported int
	Upgraded int // records with no blend mode, imported as BlendModeBlend
	Skipped  int
	Dirtied  int
}

// ImportOpsJSON appends the ops in an editor export to a layer. The export
// looks like
//
//	{"project": "p", "layer": "base", "ops": [
//	  {"op_id": 3, "order": 1, "enabled": true, "kind": "sphere_add",
//	   "center": [0, 0, 0], "radius": 4, "strength": 1, "falloff": 0.5,
//	   "author": "ann", "blend_mode": "blend", "material_id": 2}]}
//
// Older exports have no blend_mode; those ops get BlendModeBlend. An op
// which cannot be read is skipped with a warning and the rest are still
// imported. If project is not empty it overrides the one in the export.
func ImportOpsJSON(b *rdb.Builder, r io.Reader, project string, log *logger.L) (ImportReport, error) {
	var report ImportReport
	doc, err := jason.NewObjectFromReader(r)
	if err != nil {
		return report, errors.Wrap(err, "reading op export")
	}
	if project == "" {
		project, err = doc.GetString("project")
		if err != nil {
			return report, errors.Wrap(err, "op export has no project")
		}
	}
	layer, err := doc.GetString("layer")
	if err != nil {
		return report, errors.Wrap(err, "op export has no layer")
	}
	ops, err := doc.GetObjectArray("ops")
	if err != nil {
		return report, errors.Wrap(err, "op export has no ops")
	}
	dirtied := make(map[ChunkCoord]bool)
	for i, obj := range ops {
		op, upgraded, err := opFromJSON(obj)
		if err != nil {
			log.Warnf("import %s/%s: skipping op %d: %s", project, layer, i, err)
			report.Skipped++
			continue
		}
		_, coords, err := AppendMutationOp(b, project, layer, op)
		if err != nil {
			return report, err
		}
		report.Imported++
		if upgraded {
			report.Upgraded++
		}
		for _, c := range coords {
			dirtied[c] = true
		}
	}
	report.Dirtied = len(dirtied)
	log.Infof("import %s/%s: %d ops, %d upgraded, %d skipped", project, layer, report.Imported, report.Upgraded, report.Skipped)
	return report, nil
}

func opFromJSON(obj *jason.Object) (MutationOp, bool, error) {
	var op MutationOp
	kind, err := obj.GetString("kind")
	if err != nil {
		return op, false, err
	}
	var ok bool
	if op.Kind, ok = ParseOpKind(kind); !ok {
		return op, false, errors.Errorf("unknown kind %q", kind)
	}
	if op.Center, err = vec3(obj, "center"); err != nil {
		return op, false, err
	}
	if op.Kind == CapsuleAdd || op.Kind == CapsuleSubtract {
		if op.End, err = vec3(obj, "end"); err != nil {
			return op, false, err
		}
	}
	radius, err := obj.GetFloat64("radius")
	if err != nil {
		return op, false, err
	}
	op.Radius = float32(radius)

	// optional fields
	if id, err := obj.GetInt64("op_id"); err == nil && id > 0 {
		op.OpID = uint64(id)
	}
	if order, err := obj.GetInt64("order"); err == nil && order > 0 {
		op.Order = uint32(order)
	}
	op.Enabled = true
	if enabled, err := obj.GetBoolean("enabled"); err == nil {
		op.Enabled = enabled
	}
	if v, err := obj.GetFloat64("strength"); err == nil {
		op.Strength = float32(v)
	}
	if v, err := obj.GetFloat64("falloff"); err == nil {
		op.Falloff = float32(v)
	}
	if v, err := obj.GetInt64("timestamp"); err == nil {
		op.Timestamp = v
	}
	if v, err := obj.GetString("author"); err == nil {
		op.Author = v
	}
	if v, err := obj.GetInt64("material_id"); err == nil && v >= 0 {
		op.MaterialID = uint32(v)
	}
	upgraded := false
	mode, err := obj.GetString("blend_mode")
	switch {
	case err != nil:
		op.BlendMode = BlendModeBlend
		upgraded = true
	default:
		if op.BlendMode, ok = ParseBlendMode(mode); !ok {
			return op, false, errors.Errorf("unknown blend mode %q", mode)
		}
	}
	return op, upgraded, nil
}

func vec3(obj *jason.Object, key string) ([3]float32, error) {
	var v [3]float32
	list, err := obj.GetFloat64Array(key)
	if err != nil {
		return v, err
	}
	if len(list) != 3 {
		return v, errors.Errorf("%s has %d components, want 3", key, len(list))
	}
	for i := range v {
		v[i] = float32(list[i])
	}
	return v, nil
}
