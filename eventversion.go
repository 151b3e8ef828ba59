package stateres

import (
	"sync"

	"gopkg.in/yaml.v2"
)

// RoomVersion refers to the room version for a specific room.
type RoomVersion string

// StateResAlgorithm refers to a version of the state resolution algorithm.
type StateResAlgorithm int

// State resolution constants
const (
	StateResV1 StateResAlgorithm = iota + 1
	StateResV2
)

// Room version constants. These are strings because the version grammar
// allows for future expansion.
// https://matrix.org/docs/spec/#room-version-grammar
const (
	RoomVersionV1      RoomVersion = "1"
	RoomVersionV2      RoomVersion = "2"
	RoomVersionV3      RoomVersion = "3"
	RoomVersionV4      RoomVersion = "4"
	RoomVersionV5      RoomVersion = "5"
	RoomVersionV6      RoomVersion = "6"
	RoomVersionV7      RoomVersion = "7"
	RoomVersionV8      RoomVersion = "8"
	RoomVersionV9      RoomVersion = "9"
	RoomVersionV10     RoomVersion = "10"
	RoomVersionV11     RoomVersion = "11"
	RoomVersionHydra11 RoomVersion = "org.matrix.hydra.11"
)

// StateResV2Rules selects the algorithm variants to apply when resolving
// state in a given room version.
type StateResV2Rules struct {
	// BeginWithEmptyState is true if the first iterative auth checks pass
	// starts from an empty state map rather than from the unconflicted state.
	BeginWithEmptyState bool
	// ConsiderConflictedSubgraph is true if the full conflicted set should be
	// expanded with the conflicted state subgraph.
	ConsiderConflictedSubgraph bool
}

type roomVersionMeta struct {
	stateResAlgorithm StateResAlgorithm
	stateResV2Rules   StateResV2Rules
}

var roomVersionsMu sync.RWMutex
var roomVersions = map[RoomVersion]roomVersionMeta{
	RoomVersionV1:  {stateResAlgorithm: StateResV1},
	RoomVersionV2:  {stateResAlgorithm: StateResV2},
	RoomVersionV3:  {stateResAlgorithm: StateResV2},
	RoomVersionV4:  {stateResAlgorithm: StateResV2},
	RoomVersionV5:  {stateResAlgorithm: StateResV2},
	RoomVersionV6:  {stateResAlgorithm: StateResV2},
	RoomVersionV7:  {stateResAlgorithm: StateResV2},
	RoomVersionV8:  {stateResAlgorithm: StateResV2},
	RoomVersionV9:  {stateResAlgorithm: StateResV2},
	RoomVersionV10: {stateResAlgorithm: StateResV2},
	RoomVersionV11: {stateResAlgorithm: StateResV2},
	RoomVersionHydra11: {
		stateResAlgorithm: StateResV2,
		stateResV2Rules: StateResV2Rules{
			BeginWithEmptyState:        true,
			ConsiderConflictedSubgraph: true,
		},
	},
}

// StateResAlgorithm returns the state resolution algorithm for the given
// room version, or an UnsupportedRoomVersionError if the version is unknown.
func (v RoomVersion) StateResAlgorithm() (StateResAlgorithm, error) {
	roomVersionsMu.RLock()
	defer roomVersionsMu.RUnlock()
	if meta, ok := roomVersions[v]; ok {
		return meta.stateResAlgorithm, nil
	}
	return 0, UnsupportedRoomVersionError{Version: v}
}

// StateResV2Rules returns the variant flags of the state resolution algorithm
// for the given room version, or an UnsupportedRoomVersionError if the
// version is unknown.
func (v RoomVersion) StateResV2Rules() (StateResV2Rules, error) {
	roomVersionsMu.RLock()
	defer roomVersionsMu.RUnlock()
	if meta, ok := roomVersions[v]; ok {
		return meta.stateResV2Rules, nil
	}
	return StateResV2Rules{}, UnsupportedRoomVersionError{Version: v}
}

// A RoomVersionDescriptor describes a room version so that deployments can
// register experimental versions, e.g. to backport the conflicted subgraph
// behaviour into an otherwise stable room version.
type RoomVersionDescriptor struct {
	// StateResolution is the state resolution algorithm number, either 1 or 2.
	StateResolution int `yaml:"state_resolution"`
	// BeginWithEmptyState seeds the first iterative auth checks pass with an
	// empty state map. Only meaningful for state resolution version 2.
	BeginWithEmptyState bool `yaml:"begin_with_empty_state"`
	// ConflictedSubgraph enables conflicted state subgraph discovery. Only
	// meaningful for state resolution version 2.
	ConflictedSubgraph bool `yaml:"conflicted_subgraph"`
}

// RoomVersionsFromYAML parses a YAML document mapping room version strings to
// descriptors. The result can be passed entry by entry to RegisterRoomVersion.
func RoomVersionsFromYAML(data []byte) (map[RoomVersion]RoomVersionDescriptor, error) {
	versions := map[RoomVersion]RoomVersionDescriptor{}
	if err := yaml.Unmarshal(data, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// RegisterRoomVersion adds or replaces a room version in the version table.
// Returns an UnsupportedRoomVersionError if the descriptor names a state
// resolution algorithm that doesn't exist.
func RegisterRoomVersion(version RoomVersion, desc RoomVersionDescriptor) error {
	var algorithm StateResAlgorithm
	switch desc.StateResolution {
	case 1:
		algorithm = StateResV1
	case 2:
		algorithm = StateResV2
	default:
		return UnsupportedRoomVersionError{Version: version}
	}
	roomVersionsMu.Lock()
	defer roomVersionsMu.Unlock()
	roomVersions[version] = roomVersionMeta{
		stateResAlgorithm: algorithm,
		stateResV2Rules: StateResV2Rules{
			BeginWithEmptyState:        desc.BeginWithEmptyState,
			ConsiderConflictedSubgraph: desc.ConflictedSubgraph,
		},
	}
	return nil
}
