package stateres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateResAlgorithms(t *testing.T) {
	algorithm, err := RoomVersionV1.StateResAlgorithm()
	require.NoError(t, err)
	assert.Equal(t, StateResV1, algorithm)

	for _, version := range []RoomVersion{
		RoomVersionV2, RoomVersionV6, RoomVersionV10, RoomVersionV11, RoomVersionHydra11,
	} {
		algorithm, err := version.StateResAlgorithm()
		require.NoError(t, err, "version %q", version)
		assert.Equal(t, StateResV2, algorithm, "version %q", version)
	}

	_, err = RoomVersion("nonsense").StateResAlgorithm()
	var unsupported UnsupportedRoomVersionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, RoomVersion("nonsense"), unsupported.Version)
}

func TestStateResV2Rules(t *testing.T) {
	rules, err := RoomVersionV11.StateResV2Rules()
	require.NoError(t, err)
	assert.False(t, rules.BeginWithEmptyState)
	assert.False(t, rules.ConsiderConflictedSubgraph)

	rules, err = RoomVersionHydra11.StateResV2Rules()
	require.NoError(t, err)
	assert.True(t, rules.BeginWithEmptyState)
	assert.True(t, rules.ConsiderConflictedSubgraph)

	_, err = RoomVersion("nonsense").StateResV2Rules()
	assert.Error(t, err)
}

func TestRegisterRoomVersionFromYAML(t *testing.T) {
	versions, err := RoomVersionsFromYAML([]byte(`
org.example.custom:
  state_resolution: 2
  begin_with_empty_state: true
  conflicted_subgraph: true
org.example.classic:
  state_resolution: 2
`))
	require.NoError(t, err)
	require.Len(t, versions, 2)

	for version, desc := range versions {
		require.NoError(t, RegisterRoomVersion(version, desc))
	}

	rules, err := RoomVersion("org.example.custom").StateResV2Rules()
	require.NoError(t, err)
	assert.True(t, rules.BeginWithEmptyState)
	assert.True(t, rules.ConsiderConflictedSubgraph)

	rules, err = RoomVersion("org.example.classic").StateResV2Rules()
	require.NoError(t, err)
	assert.False(t, rules.BeginWithEmptyState)
	assert.False(t, rules.ConsiderConflictedSubgraph)
}

func TestRegisterRoomVersionBadAlgorithm(t *testing.T) {
	err := RegisterRoomVersion("org.example.broken", RoomVersionDescriptor{
		StateResolution: 3,
	})
	var unsupported UnsupportedRoomVersionError
	require.ErrorAs(t, err, &unsupported)
	assert.Equal(t, RoomVersion("org.example.broken"), unsupported.Version)
}

func TestRoomVersionsFromYAMLInvalid(t *testing.T) {
	_, err := RoomVersionsFromYAML([]byte(`[not, a, mapping]`))
	assert.Error(t, err)
}
