package domain

import "strings"

// GrantMask is a bitmask over the permission bits.
type GrantMask uint32

// Permission is a single grantable capability. MinRole bounds which role may
// be granted the permission, not which role may hold it through inheritance.
type Permission struct {
	Name    string
	Mask    GrantMask
	MinRole Role
}

// Permissions is the full table of grantable capabilities. The bit positions
// are part of the persisted format and must never be reordered.
var Permissions = []Permission{
	{Name: "playback.play-pause", Mask: 1 << 0, MinRole: RoleUnregisteredUser},
	{Name: "playback.skip", Mask: 1 << 1, MinRole: RoleUnregisteredUser},
	{Name: "playback.seek", Mask: 1 << 2, MinRole: RoleUnregisteredUser},
	{Name: "manage-queue.add", Mask: 1 << 3, MinRole: RoleUnregisteredUser},
	{Name: "manage-queue.remove", Mask: 1 << 4, MinRole: RoleUnregisteredUser},
	{Name: "manage-queue.order", Mask: 1 << 5, MinRole: RoleUnregisteredUser},
	{Name: "manage-queue.vote", Mask: 1 << 6, MinRole: RoleUnregisteredUser},
	{Name: "chat", Mask: 1 << 7, MinRole: RoleUnregisteredUser},
	{Name: "configure-room.set-title", Mask: 1 << 8, MinRole: RoleUnregisteredUser},
	{Name: "configure-room.set-description", Mask: 1 << 9, MinRole: RoleUnregisteredUser},
	{Name: "configure-room.set-visibility", Mask: 1 << 10, MinRole: RoleUnregisteredUser},
	{Name: "configure-room.set-queue-mode", Mask: 1 << 11, MinRole: RoleUnregisteredUser},
	{Name: "configure-room.set-permissions.for-moderator", Mask: 1 << 12, MinRole: RoleAdministrator},
	{Name: "configure-room.set-permissions.for-trusted-users", Mask: 1 << 13, MinRole: RoleModerator},
	{Name: "configure-room.set-permissions.for-all-registered-users", Mask: 1 << 14, MinRole: RoleTrustedUser},
	{Name: "configure-room.set-permissions.for-all-unregistered-users", Mask: 1 << 15, MinRole: RoleRegisteredUser},
	// Permission to promote a user TO the named role.
	{Name: "manage-users.promote-admin", Mask: 1 << 16, MinRole: RoleAdministrator},
	// Permission to demote a user FROM the named role.
	{Name: "manage-users.demote-admin", Mask: 1 << 17, MinRole: RoleAdministrator},
	{Name: "manage-users.promote-moderator", Mask: 1 << 18, MinRole: RoleModerator},
	{Name: "manage-users.demote-moderator", Mask: 1 << 19, MinRole: RoleModerator},
	{Name: "manage-users.promote-trusted-user", Mask: 1 << 20, MinRole: RoleTrustedUser},
	{Name: "manage-users.demote-trusted-user", Mask: 1 << 21, MinRole: RoleTrustedUser},
	{Name: "configure-room.set-auto-skip", Mask: 1 << 22, MinRole: RoleUnregisteredUser},
	{Name: "playback.speed", Mask: 1 << 23, MinRole: RoleUnregisteredUser},
	{Name: "manage-queue.restore", Mask: 1 << 24, MinRole: RoleUnregisteredUser},
}

// ParseIntoGrantMask builds a deterministic mask from string form permissions.
// Each entry matches every permission whose name it prefixes; "*" matches all.
func ParseIntoGrantMask(perms []string) GrantMask {
	var mask GrantMask
	for _, perm := range perms {
		for _, p := range Permissions {
			if perm == "*" || strings.HasPrefix(p.Name, perm) {
				mask |= p.Mask
			}
		}
	}
	return mask
}

// getValidationMask returns the mask of permissions the given role is allowed
// to be granted, based on each permission's MinRole. If nothing qualifies it
// falls back to the wildcard mask.
func getValidationMask(role Role) GrantMask {
	var mask GrantMask
	for _, p := range Permissions {
		if role >= p.MinRole {
			mask |= p.Mask
		}
	}
	if mask == 0 {
		return ParseIntoGrantMask([]string{"*"})
	}
	return mask
}
