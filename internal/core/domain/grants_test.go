package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultGrants(t *testing.T) {
	g := NewGrants()

	assert.True(t, g.Granted(RoleUnregisteredUser, "playback.play-pause"))
	assert.True(t, g.Granted(RoleUnregisteredUser, "manage-queue.add"))
	assert.True(t, g.Granted(RoleUnregisteredUser, "chat"))
	assert.True(t, g.Granted(RoleUnregisteredUser, "configure-room.set-auto-skip"))
	assert.False(t, g.Granted(RoleUnregisteredUser, "manage-users.promote-trusted-user"))

	assert.True(t, g.Granted(RoleModerator, "manage-users.promote-trusted-user"))
	assert.True(t, g.Granted(RoleModerator, "manage-users.demote-trusted-user"))

	assert.True(t, g.Granted(RoleAdministrator, "manage-users.promote-admin"))
	assert.True(t, g.Granted(RoleOwner, "manage-users.promote-admin"))
}

// Every role's effective mask must contain the mask of every role below it.
func TestGrantsInheritanceIsCumulative(t *testing.T) {
	g := NewGrants()
	require.NoError(t, g.SetRoleGrantNames(RoleRegisteredUser, []string{"playback"}))
	require.NoError(t, g.SetRoleGrantNames(RoleTrustedUser, []string{"manage-queue"}))

	for role := RoleRegisteredUser; role <= RoleAdministrator; role++ {
		lower := g.GetMask(role - 1)
		assert.Equal(t, lower, g.GetMask(role)&lower,
			"role %v must inherit all of role %v", role, role-1)
	}
}

func TestGrantsAdminAndOwnerAlwaysWildcard(t *testing.T) {
	wildcard := ParseIntoGrantMask([]string{"*"})

	g := NewGrants()
	require.NoError(t, g.SetRoleGrants(RoleAdministrator, 0))
	assert.Equal(t, wildcard, g.GetMask(RoleAdministrator))
	assert.Equal(t, wildcard, g.GetMask(RoleOwner))

	require.NoError(t, g.SetRoleGrants(RoleOwner, 0))
	assert.Equal(t, wildcard, g.GetMask(RoleOwner))
}

func TestGrantsValidationMaskStripsTooLowRoles(t *testing.T) {
	g := NewGrants()
	// promote-admin requires at least Administrator; granting it to
	// unregistered users must be silently dropped.
	require.NoError(t, g.SetRoleGrantNames(RoleUnregisteredUser, []string{
		"playback",
		"manage-users.promote-admin",
	}))
	assert.True(t, g.Granted(RoleUnregisteredUser, "playback.skip"))
	assert.False(t, g.Granted(RoleUnregisteredUser, "manage-users.promote-admin"))
}

func TestGrantsInvalidRole(t *testing.T) {
	g := NewGrants()
	err := g.SetRoleGrants(Role(5), 1)
	var invalid *InvalidRoleError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, Role(5), invalid.Role)

	err = g.SetRoleGrants(Role(-2), 1)
	require.ErrorAs(t, err, &invalid)
}

func TestGrantsCheck(t *testing.T) {
	g := NewGrants()
	assert.NoError(t, g.Check(RoleUnregisteredUser, "chat"))

	err := g.Check(RoleUnregisteredUser, "manage-users.promote-admin")
	var denied *PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "manage-users.promote-admin", denied.Permission)
}

func TestGrantsSerializeRoundTrip(t *testing.T) {
	g := NewGrants()
	require.NoError(t, g.SetRoleGrantNames(RoleRegisteredUser, []string{"playback.speed"}))

	serialized, err := g.Serialize()
	require.NoError(t, err)

	restored := &Grants{}
	require.NoError(t, restored.Deserialize(serialized))

	for _, role := range g.Roles() {
		assert.Equal(t, g.GetMask(role), restored.GetMask(role), "role %v", role)
	}
}

// Deserializing grants that try to restrict the owner must still leave the
// owner with everything.
func TestGrantsDeserializeRepinsOwner(t *testing.T) {
	g := &Grants{}
	require.NoError(t, g.Deserialize(`[[-1,0],[0,128]]`))
	assert.Equal(t, ParseIntoGrantMask([]string{"*"}), g.GetMask(RoleOwner))
	assert.True(t, g.Granted(RoleUnregisteredUser, "chat"))
}

func TestGrantsFilterRoles(t *testing.T) {
	g := NewGrants()
	g.FilterRoles([]Role{RoleUnregisteredUser, RoleRegisteredUser})
	assert.Equal(t, []Role{RoleUnregisteredUser, RoleRegisteredUser}, g.Roles())
	assert.False(t, g.IsEmpty())

	g.DeleteRole(RoleUnregisteredUser)
	g.DeleteRole(RoleRegisteredUser)
	assert.True(t, g.IsEmpty())
}

func TestParseIntoGrantMaskPrefixes(t *testing.T) {
	playback := ParseIntoGrantMask([]string{"playback"})
	assert.Equal(t, GrantMask(1<<0|1<<1|1<<2|1<<23), playback)

	exact := ParseIntoGrantMask([]string{"playback.seek"})
	assert.Equal(t, GrantMask(1<<2), exact)

	assert.Equal(t, GrantMask(0), ParseIntoGrantMask([]string{"no-such-permission"}))

	wildcard := ParseIntoGrantMask([]string{"*"})
	for _, p := range Permissions {
		assert.Equal(t, p.Mask, wildcard&p.Mask, "wildcard must cover %s", p.Name)
	}
}
