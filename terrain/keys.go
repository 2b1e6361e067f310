package terrain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ndlib/assetdb/assets"
)

// SettingsKey is the entry name of a project's settings.
func SettingsKey(project string) string {
	return "terrain/project/" + project + "/settings"
}

// GeneratorPrefix is the prefix shared by every generator version of a
// project.
func GeneratorPrefix(project string) string {
	return "terrain/generator/" + project + "/"
}

// GeneratorKey is the entry name of one generator version.
func GeneratorKey(project string, version uint32) string {
	return fmt.Sprintf("terrain/generator/%s/v%d", project, version)
}

// MutationLayerPrefix is the prefix shared by every layer of a project.
func MutationLayerPrefix(project string) string {
	return "terrain/mutation_layer/" + project + "/"
}

// MutationLayerKey is the entry name of one layer version.
func MutationLayerKey(project, layer string, version uint32) string {
	return fmt.Sprintf("terrain/mutation_layer/%s/%s/v%d", project, layer, version)
}

// MutationOpPrefix is the prefix shared by every op event of one layer
// version.
func MutationOpPrefix(project, layer string, version uint32) string {
	return fmt.Sprintf("terrain/mutation_op/%s/%s/v%d/", project, layer, version)
}

// MutationOpKey is the entry name of one op event.
func MutationOpKey(project, layer string, version uint32, order uint32, event uint64) string {
	return fmt.Sprintf("%so%d/e%d", MutationOpPrefix(project, layer, version), order, event)
}

// ChunkArtifactKey is the entry name of a chunk's artifact at one LOD.
func ChunkArtifactKey(project string, c ChunkCoord, lod uint8) string {
	return fmt.Sprintf("terrain/chunk_artifact/%s/%s/lod%d", project, c, lod)
}

// ChunkArtifactPrefix is the prefix shared by every artifact of a project.
func ChunkArtifactPrefix(project string) string {
	return "terrain/chunk_artifact/" + project + "/"
}

// ChunkStateKey is the entry name of a chunk's build state.
func ChunkStateKey(project string, c ChunkCoord) string {
	return fmt.Sprintf("terrain/chunk_state/%s/%s", project, c)
}

// MeshKey is the entry name of the geometry built for a chunk at one LOD.
func MeshKey(project string, c ChunkCoord, lod uint8) string {
	return assets.GeometryKey(fmt.Sprintf("terrain/%s/%s/lod%d", project, c, lod))
}

// parseVersion reads "v{n}".
func parseVersion(s string) (uint32, error) {
	if !strings.HasPrefix(s, "v") {
		return 0, errors.Errorf("bad version %q", s)
	}
	n, err := strconv.ParseUint(s[1:], 10, 32)
	if err != nil {
		return 0, errors.Errorf("bad version %q", s)
	}
	return uint32(n), nil
}

// ParseChunkCoord reads "{x}_{y}".
func ParseChunkCoord(s string) (ChunkCoord, error) {
	i := strings.LastIndex(s, "_")
	if i <= 0 {
		return ChunkCoord{}, errors.Errorf("bad chunk coordinate %q", s)
	}
	x, err := strconv.ParseInt(s[:i], 10, 32)
	if err != nil {
		return ChunkCoord{}, errors.Errorf("bad chunk coordinate %q", s)
	}
	y, err := strconv.ParseInt(s[i+1:], 10, 32)
	if err != nil {
		return ChunkCoord{}, errors.Errorf("bad chunk coordinate %q", s)
	}
	return ChunkCoord{X: int32(x), Y: int32(y)}, nil
}

// ParseGeneratorKey returns the project and version of a generator entry
// name.
func ParseGeneratorKey(name string) (project string, version uint32, err error) {
	rest := strings.TrimPrefix(name, "terrain/generator/")
	i := strings.LastIndex(rest, "/")
	if rest == name || i <= 0 {
		return "", 0, errors.Errorf("not a generator key %q", name)
	}
	version, err = parseVersion(rest[i+1:])
	return rest[:i], version, err
}

// ParseMutationLayerKey returns the parts of a layer entry name relative to
// a project.
func ParseMutationLayerKey(project, name string) (layer string, version uint32, err error) {
	prefix := MutationLayerPrefix(project)
	if !strings.HasPrefix(name, prefix) {
		return "", 0, errors.Errorf("not a layer key for %s: %q", project, name)
	}
	rest := name[len(prefix):]
	i := strings.LastIndex(rest, "/")
	if i <= 0 {
		return "", 0, errors.Errorf("bad layer key %q", name)
	}
	version, err = parseVersion(rest[i+1:])
	return rest[:i], version, err
}

// ParseChunkArtifactKey returns the parts of an artifact entry name.
func ParseChunkArtifactKey(name string) (project string, c ChunkCoord, lod uint8, err error) {
	rest := strings.TrimPrefix(name, "terrain/chunk_artifact/")
	parts := strings.Split(rest, "/")
	if rest == name || len(parts) != 3 || !strings.HasPrefix(parts[2], "lod") {
		return "", c, 0, errors.Errorf("not an artifact key %q", name)
	}
	c, err = ParseChunkCoord(parts[1])
	if err != nil {
		return "", c, 0, err
	}
	n, err := strconv.ParseUint(parts[2][3:], 10, 8)
	if err != nil {
		return "", c, 0, errors.Errorf("bad lod in %q", name)
	}
	return parts[0], c, uint8(n), nil
}

// legacyChunkPrefix is the unversioned key format used before projects and
// levels of detail existed: "terrain/chunk_{x}_{y}".
const legacyChunkPrefix = "terrain/chunk_"

// ParseLegacyChunkKey reads a legacy "terrain/chunk_{x}_{y}" name.
func ParseLegacyChunkKey(name string) (ChunkCoord, bool) {
	if !strings.HasPrefix(name, legacyChunkPrefix) {
		return ChunkCoord{}, false
	}
	rest := name[len(legacyChunkPrefix):]
	// "terrain/chunk_artifact/..." and "terrain/chunk_state/..." share the prefix
	if strings.Contains(rest, "/") {
		return ChunkCoord{}, false
	}
	c, err := ParseChunkCoord(rest)
	if err != nil {
		return ChunkCoord{}, false
	}
	return c, true
}
