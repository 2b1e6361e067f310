package terrain

import (
	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/rdb"
)

// LegacyMutationOp is the op record written before blend modes existed.
// Stores may still hold entries of this type; DecodeMutationOp upgrades
// them.
type LegacyMutationOp struct {
	OpID    uint64
	Order   uint32
	EventID uint64
	Enabled bool
	Kind    OpKind

	Center [3]float32
	End    [3]float32

	Radius   float32
	Strength float32
	Falloff  float32

	Timestamp int64
	Author    string

	MaterialID uint32
}

// Upgrade converts the record to the current schema. Legacy paint always
// blended, so the blend mode becomes BlendModeBlend.
func (l *LegacyMutationOp) Upgrade() MutationOp {
	return MutationOp{
		OpID:       l.OpID,
		Order:      l.Order,
		EventID:    l.EventID,
		Enabled:    l.Enabled,
		Kind:       l.Kind,
		Center:     l.Center,
		End:        l.End,
		Radius:     l.Radius,
		Strength:   l.Strength,
		Falloff:    l.Falloff,
		Timestamp:  l.Timestamp,
		Author:     l.Author,
		BlendMode:  BlendModeBlend,
		MaterialID: l.MaterialID,
	}
}

var (
	opTag       = rdb.TagFor(MutationOp{})
	legacyOpTag = rdb.TagFor(LegacyMutationOp{})
)

// DecodeMutationOp reads the op entry called name in either schema. A
// current op with no blend mode set is given BlendModeBlend.
func DecodeMutationOp(src rdb.Source, name string) (MutationOp, error) {
	var op MutationOp
	info, data, err := src.Lookup(name)
	if err != nil {
		return op, err
	}
	switch info.TypeTag {
	case opTag:
		if err := rdb.Unmarshal(data, &op); err != nil {
			return op, errors.Wrapf(err, "entry %s", name)
		}
	case legacyOpTag:
		var legacy LegacyMutationOp
		if err := rdb.Unmarshal(data, &legacy); err != nil {
			return op, errors.Wrapf(err, "entry %s", name)
		}
		op = legacy.Upgrade()
	default:
		return op, errors.Wrapf(rdb.ErrTypeMismatch, "%s: tag %08x is not a mutation op", name, info.TypeTag)
	}
	if op.BlendMode == 0 {
		op.BlendMode = BlendModeBlend
	}
	return op, nil
}
