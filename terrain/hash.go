package terrain

import (
	"encoding/binary"

	"github.com/ndlib/assetdb/rdb"
	"github.com/ndlib/assetdb/util"
)

// DependencyHashes are the hashes of the three input categories a chunk
// was last built from.
type DependencyHashes struct {
	Settings  uint64
	Generator uint64
	Mutation  uint64
}

// settingsSubset is the part of ProjectSettings that changes chunk output.
// Version counters are left out: moving the active version only matters
// through the generator and mutation hashes.
type settingsSubset struct {
	Seed             uint64
	TileSize         float32
	TilesPerChunk    uint32
	WorldBounds      Rect
	GeneratorGraphID string
}

// hashValue hashes the deterministic encoding of v.
func hashValue(v interface{}) (uint64, error) {
	data, err := rdb.Marshal(v)
	if err != nil {
		return 0, err
	}
	hw := util.NewHashWriterPlain()
	hw.Write(data)
	return hw.Sum64(), nil
}

// SettingsHash hashes the settings fields which affect chunk geometry.
func SettingsHash(s *ProjectSettings) (uint64, error) {
	return hashValue(settingsSubset{
		Seed:             s.Seed,
		TileSize:         s.TileSize,
		TilesPerChunk:    s.TilesPerChunk,
		WorldBounds:      s.WorldBounds,
		GeneratorGraphID: s.GeneratorGraphID,
	})
}

// GeneratorHash hashes the whole generator definition.
func GeneratorHash(g *GeneratorDefinition) (uint64, error) {
	return hashValue(g)
}

// MutationHash hashes the layers which apply to one chunk, in order, with
// their current ops. An empty list has a fixed hash.
func MutationHash(layers []*MutationLayer) (uint64, error) {
	list := make([]MutationLayer, len(layers))
	for i, l := range layers {
		list[i] = *l
	}
	return hashValue(list)
}

// ContentHash combines the dependency hashes with the chunk and LOD.
func ContentHash(deps DependencyHashes, c ChunkCoord, lod uint8) uint64 {
	var buf [8*3 + 4*2 + 1]byte
	binary.LittleEndian.PutUint64(buf[0:], deps.Settings)
	binary.LittleEndian.PutUint64(buf[8:], deps.Generator)
	binary.LittleEndian.PutUint64(buf[16:], deps.Mutation)
	binary.LittleEndian.PutUint32(buf[24:], uint32(c.X))
	binary.LittleEndian.PutUint32(buf[28:], uint32(c.Y))
	buf[32] = lod
	hw := util.NewHashWriterPlain()
	hw.Write(buf[:])
	return hw.Sum64()
}
