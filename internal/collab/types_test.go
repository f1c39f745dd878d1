package collab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/duet/internal/collab"
)

func TestProfileSet(t *testing.T) {
	s := collab.ProfileA2DP | collab.ProfileHFP

	assert.True(t, s.Has(collab.ProfileA2DP))
	assert.False(t, s.Has(collab.ProfileA2DP|collab.ProfileAVRCP))
	assert.Equal(t, []collab.ProfileSet{collab.ProfileA2DP, collab.ProfileHFP}, s.Members())
	assert.Equal(t, "a2dp|hfp", s.String())
	assert.Equal(t, "none", s.Without(s).String())

	parsed, err := collab.ParseProfiles([]string{"hfp", "a2dp"})
	require.NoError(t, err)
	assert.Equal(t, s, parsed)

	_, err = collab.ParseProfiles([]string{"sbc"})
	assert.ErrorContains(t, err, `unknown profile "sbc"`)
}

func TestRole_RoundTrip(t *testing.T) {
	for _, r := range []collab.Role{collab.RoleNoPeer, collab.RoleActingPrimary, collab.RolePrimary, collab.RoleSecondary} {
		parsed, err := collab.ParseRole(r.String())
		require.NoError(t, err)
		assert.Equal(t, r, parsed)
	}
	_, err := collab.ParseRole("leader")
	assert.Error(t, err)
}
