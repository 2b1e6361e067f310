package terrain

import (
	"sort"
)

// DirtyFlags is a bit set of the input categories which changed since a
// chunk was last built.
type DirtyFlags uint32

const (
	DirtySettings DirtyFlags = 1 << iota
	DirtyGenerator
	DirtyMutation

	DirtyAll = DirtySettings | DirtyGenerator | DirtyMutation
)

// DirtyReason records why a chunk was marked dirty.
type DirtyReason string

const (
	SettingsChanged  DirtyReason = "SettingsChanged"
	GeneratorChanged DirtyReason = "GeneratorChanged"
	MutationChanged  DirtyReason = "MutationChanged"
	NeverBuilt       DirtyReason = "NeverBuilt"
)

// flagReason maps a single flag to the reason recorded for it.
var flagReason = []struct {
	flag   DirtyFlags
	reason DirtyReason
}{
	{DirtySettings, SettingsChanged},
	{DirtyGenerator, GeneratorChanged},
	{DirtyMutation, MutationChanged},
}

// ChunkState is the build bookkeeping for one chunk.
type ChunkState struct {
	Project      string
	Coord        ChunkCoord
	DirtyFlags   DirtyFlags
	DirtyReasons []DirtyReason

	GeneratorVersion uint32
	MutationVersion  uint32

	// LastBuiltHashes maps a LOD to the content hash of its artifact.
	LastBuiltHashes map[uint8]uint64
	Dependencies    DependencyHashes
}

// NewChunkState returns the state of a chunk which was never built. Every
// flag is set.
func NewChunkState(project string, c ChunkCoord) *ChunkState {
	s := &ChunkState{
		Project:         project,
		Coord:           c,
		LastBuiltHashes: make(map[uint8]uint64),
	}
	s.MarkDirty(DirtyAll, NeverBuilt)
	return s
}

// MarkDirty sets flags and records reason. A reason already recorded is not
// added again.
func (s *ChunkState) MarkDirty(flags DirtyFlags, reason DirtyReason) {
	s.DirtyFlags |= flags
	for _, r := range s.DirtyReasons {
		if r == reason {
			return
		}
	}
	s.DirtyReasons = append(s.DirtyReasons, reason)
}

// IsDirty returns true if any flag is set.
func (s *ChunkState) IsDirty() bool {
	return s.DirtyFlags != 0
}

// Compare returns the flags for each category whose hash differs from the
// hashes the chunk was last built with.
func (s *ChunkState) Compare(deps DependencyHashes) DirtyFlags {
	var changed DirtyFlags
	if s.Dependencies.Settings != deps.Settings {
		changed |= DirtySettings
	}
	if s.Dependencies.Generator != deps.Generator {
		changed |= DirtyGenerator
	}
	if s.Dependencies.Mutation != deps.Mutation {
		changed |= DirtyMutation
	}
	return changed
}

// MarkChanged sets the flag and reason for each category in changed.
func (s *ChunkState) MarkChanged(changed DirtyFlags) {
	for _, fr := range flagReason {
		if changed&fr.flag != 0 {
			s.MarkDirty(fr.flag, fr.reason)
		}
	}
}

// LastBuilt returns the content hash last built for lod.
func (s *ChunkState) LastBuilt(lod uint8) (uint64, bool) {
	h, ok := s.LastBuiltHashes[lod]
	return h, ok
}

// SetLastBuilt records a successful build of lod from deps.
func (s *ChunkState) SetLastBuilt(lod uint8, content uint64, deps DependencyHashes) {
	if s.LastBuiltHashes == nil {
		s.LastBuiltHashes = make(map[uint8]uint64)
	}
	s.LastBuiltHashes[lod] = content
	s.Dependencies = deps
}

// Clean clears every flag and reason.
func (s *ChunkState) Clean() {
	s.DirtyFlags = 0
	s.DirtyReasons = nil
}

// BuiltLODs returns the levels of detail with a recorded build, ascending.
func (s *ChunkState) BuiltLODs() []uint8 {
	result := make([]uint8, 0, len(s.LastBuiltHashes))
	for lod := range s.LastBuiltHashes {
		result = append(result, lod)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}
