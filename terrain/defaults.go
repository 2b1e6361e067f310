package terrain

import (
	"github.com/bitmark-inc/logger"

	"github.com/ndlib/assetdb/rdb"
)

// DefaultSettings are the settings editors use for a project with none.
func DefaultSettings(project string) ProjectSettings {
	return ProjectSettings{
		Name:          project,
		Seed:          1,
		TileSize:      1,
		TilesPerChunk: 32,
		WorldBounds: Rect{
			Min: [2]float32{-512, -512},
			Max: [2]float32{512, 512},
		},
		LOD: LODPolicy{
			MaxLOD:    3,
			Distances: []float32{64, 128, 256},
		},
		GeneratorGraphID:       "default",
		ActiveGeneratorVersion: 1,
		ActiveMutationVersion:  1,
	}
}

// DefaultGenerator is the generator editors use when the active version is
// missing.
func DefaultGenerator(version uint32) GeneratorDefinition {
	return GeneratorDefinition{
		Version:        version,
		Algorithm:      ValueNoise,
		Frequency:      0.01,
		Amplitude:      32,
		Octaves:        4,
		BiomeFrequency: 0.002,
		MaterialRules: []MaterialRule{
			{MaterialID: 0, Material: "material/terrain/sand", MinHeight: -1e9, MaxHeight: 2, MinSlope: 0, MaxSlope: 0.3},
			{MaterialID: 1, Material: "material/terrain/grass", MinHeight: 2, MaxHeight: 20, MinSlope: 0, MaxSlope: 0.3},
			{MaterialID: 2, Material: "material/terrain/rock", MinHeight: -1e9, MaxHeight: 1e9, MinSlope: 0.3, MaxSlope: 1},
			{MaterialID: 3, Material: "material/terrain/snow", MinHeight: 20, MaxHeight: 1e9, MinSlope: 0, MaxSlope: 0.3},
		},
	}
}

// SettingsOrDefault reads the settings of project. When they cannot be read
// the defaults are returned and the substitution is logged.
func SettingsOrDefault(src rdb.Source, project string, log *logger.L) ProjectSettings {
	s, err := rdb.Fetch[ProjectSettings](src, SettingsKey(project))
	if err != nil {
		log.Warnf("project %s: using default settings: %s", project, err)
		return DefaultSettings(project)
	}
	return s
}

// GeneratorOrDefault reads the active generator of s. When it cannot be read
// the default generator is returned and the substitution is logged.
func GeneratorOrDefault(src rdb.Source, project string, s *ProjectSettings, log *logger.L) GeneratorDefinition {
	g, err := rdb.Fetch[GeneratorDefinition](src, GeneratorKey(project, s.ActiveGeneratorVersion))
	if err != nil {
		log.Warnf("project %s: using default generator v%d: %s", project, s.ActiveGeneratorVersion, err)
		return DefaultGenerator(s.ActiveGeneratorVersion)
	}
	return g
}

// MutationLayersOrDefault reads the active mutation layers of s. When they
// cannot be read an empty list is returned and the substitution is logged.
func MutationLayersOrDefault(src rdb.Source, project string, s *ProjectSettings, log *logger.L) []*MutationLayer {
	layers, err := resolveLayers(src, project, s.ActiveMutationVersion, log)
	if err != nil {
		log.Warnf("project %s: using no mutation layers: %s", project, err)
		return nil
	}
	return layers
}

// InitProject writes default settings and generator for project, and an
// empty base layer, if they are not already stored. It returns true if
// anything was written.
func InitProject(b *rdb.Builder, project string) (bool, error) {
	wrote := false
	s := DefaultSettings(project)
	if !rdb.Has(b, SettingsKey(project)) {
		if err := SaveSettings(b, project, s); err != nil {
			return false, err
		}
		wrote = true
	} else {
		s = SettingsOrDefault(b, project, logger.New("terrain"))
	}
	if !rdb.Has(b, GeneratorKey(project, s.ActiveGeneratorVersion)) {
		if err := AddGenerator(b, project, DefaultGenerator(s.ActiveGeneratorVersion)); err != nil {
			return wrote, err
		}
		wrote = true
	}
	base := MutationLayer{LayerID: "base", Version: s.ActiveMutationVersion, Weight: 1}
	if !rdb.Has(b, MutationLayerKey(project, base.LayerID, base.Version)) {
		if err := AddMutationLayer(b, project, base); err != nil {
			return wrote, err
		}
		wrote = true
	}
	return wrote, nil
}
