package terrain

import (
	"github.com/bitmark-inc/logger"

	"github.com/ndlib/assetdb/assets"
	"github.com/ndlib/assetdb/rdb"
)

// LegacyChunk is the record stored under "terrain/chunk_{x}_{y}" keys by old
// tools, before chunks had projects, levels of detail or build state.
type LegacyChunk struct {
	Vertices []assets.Vertex
	Indices  []uint32
}

// MigrateReport counts what MigrateLegacyChunks did.
type MigrateReport struct {
	Migrated int
	Skipped  int
}

// MigrateLegacyChunks moves every legacy chunk entry into project as a LOD 0
// artifact and removes the legacy entry. The build pipeline never reads
// legacy keys, so this must be run once on old stores.
//
// A migrated artifact has no content hash and its chunk is marked dirty, so
// the next build replaces it. Entries which cannot be decoded are left in
// place and counted as skipped.
func MigrateLegacyChunks(b *rdb.Builder, project string, log *logger.L) (MigrateReport, error) {
	var report MigrateReport
	type legacy struct {
		name  string
		coord ChunkCoord
	}
	var found []legacy
	for _, e := range rdb.EntriesWithPrefix(b, legacyChunkPrefix) {
		if c, ok := ParseLegacyChunkKey(e.Name); ok {
			found = append(found, legacy{e.Name, c})
		}
	}
	for _, l := range found {
		old, err := rdb.Fetch[LegacyChunk](b, l.name)
		if err != nil {
			log.Warnf("migrate %s: skipping: %s", l.name, err)
			report.Skipped++
			continue
		}
		a := &ChunkArtifact{
			Project:   project,
			Coord:     l.coord,
			Vertices:  old.Vertices,
			Indices:   old.Indices,
			Bounds:    boundsOf(old.Vertices),
			MeshEntry: MeshKey(project, l.coord, 0),
		}
		if !rdb.Has(b, ChunkArtifactKey(project, l.coord, 0)) {
			if err := b.Upsert(ChunkArtifactKey(project, l.coord, 0), a); err != nil {
				return report, err
			}
			if err := b.Upsert(a.MeshEntry, a.Geometry(nil)); err != nil {
				return report, err
			}
		} else {
			log.Infof("migrate %s: artifact already present, dropping legacy entry", l.name)
		}
		if err := MarkChunksDirty(b, project, []ChunkCoord{l.coord}, DirtyAll, NeverBuilt); err != nil {
			return report, err
		}
		b.Remove(l.name)
		report.Migrated++
	}
	log.Infof("migrate %s: %d legacy chunks moved, %d skipped", project, report.Migrated, report.Skipped)
	return report, nil
}

func boundsOf(vertices []assets.Vertex) AABB {
	var box AABB
	for i, v := range vertices {
		for d := 0; d < 3; d++ {
			if i == 0 || v.Position[d] < box.Min[d] {
				box.Min[d] = v.Position[d]
			}
			if i == 0 || v.Position[d] > box.Max[d] {
				box.Max[d] = v.Position[d]
			}
		}
	}
	return box
}
