package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Grants maps roles to effective grant masks, handling permission inheritance
// and serialization. Masks are cumulative upward: every role's effective mask
// is a superset of the masks of the roles below it. Administrator and Owner
// are always forced to the wildcard mask; any attempt to restrict them is
// silently discarded. That is deliberate, not a bug.
type Grants struct {
	masks map[Role]GrantMask
}

// NewGrants returns grants populated with the default permissions.
func NewGrants() *Grants {
	g := &Grants{masks: make(map[Role]GrantMask)}
	g.masks[RoleUnregisteredUser] = ParseIntoGrantMask([]string{
		"playback",
		"manage-queue",
		"chat",
		"configure-room.set-title",
		"configure-room.set-description",
		"configure-room.set-visibility",
		"configure-room.set-queue-mode",
		"configure-room.set-auto-skip",
	})
	g.masks[RoleRegisteredUser] = 0
	g.masks[RoleTrustedUser] = 0
	g.masks[RoleModerator] = ParseIntoGrantMask([]string{
		"manage-users.promote-trusted-user",
		"manage-users.demote-trusted-user",
	})
	g.masks[RoleAdministrator] = ParseIntoGrantMask([]string{"*"})
	g.masks[RoleOwner] = ParseIntoGrantMask([]string{"*"})
	g.processInheritance()
	return g
}

// GrantsFromPairs builds grants from serialized [role, mask] pairs.
func GrantsFromPairs(pairs [][2]int64) (*Grants, error) {
	g := &Grants{masks: make(map[Role]GrantMask)}
	if err := g.SetAllGrants(pairs); err != nil {
		return nil, err
	}
	return g, nil
}

// GetMask returns the effective mask for the role.
func (g *Grants) GetMask(role Role) GrantMask {
	return g.masks[role]
}

// SetAllGrants clears all masks and replaces them with the given pairs.
func (g *Grants) SetAllGrants(pairs [][2]int64) error {
	g.masks = make(map[Role]GrantMask)
	// apply in role order so inheritance recomputation is deterministic
	sorted := make([][2]int64, len(pairs))
	copy(sorted, pairs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i][0] < sorted[j][0] })
	for _, pair := range sorted {
		if err := g.SetRoleGrants(Role(pair[0]), GrantMask(pair[1])); err != nil {
			return err
		}
	}
	return nil
}

// SetRoleGrants sets the explicit mask for a role. Permissions the role is not
// allowed to hold (per MinRole) are silently stripped, then inheritance is
// recomputed for all roles.
func (g *Grants) SetRoleGrants(role Role, mask GrantMask) error {
	if !role.Valid() {
		return &InvalidRoleError{Role: role}
	}
	g.masks[role] = mask & getValidationMask(role)
	g.processInheritance()
	return nil
}

// SetRoleGrantNames is SetRoleGrants with string form permissions.
func (g *Grants) SetRoleGrantNames(role Role, perms []string) error {
	return g.SetRoleGrants(role, ParseIntoGrantMask(perms))
}

// processInheritance folds each role's explicit mask into a running OR from
// UnregisteredUser up through Administrator, then re-pins Administrator and
// Owner to the wildcard mask.
func (g *Grants) processInheritance() {
	var fullmask GrantMask
	for role := RoleUnregisteredUser; role <= RoleAdministrator; role++ {
		fullmask |= g.masks[role]
		g.masks[role] = fullmask
	}
	wildcard := ParseIntoGrantMask([]string{"*"})
	g.masks[RoleAdministrator] = wildcard
	g.masks[RoleOwner] = wildcard
}

// Granted reports whether the role holds the named permission.
func (g *Grants) Granted(role Role, permission string) bool {
	checkmask := ParseIntoGrantMask([]string{permission})
	if checkmask == 0 {
		return false
	}
	return g.GrantedMask(role, checkmask)
}

// GrantedMask reports whether every bit of checkmask is present in the role's
// effective mask.
func (g *Grants) GrantedMask(role Role, checkmask GrantMask) bool {
	return g.masks[role]&checkmask == checkmask
}

// Check returns a PermissionDeniedError if the role does not hold the named
// permission.
func (g *Grants) Check(role Role, permission string) error {
	if !g.Granted(role, permission) {
		return &PermissionDeniedError{Permission: permission}
	}
	return nil
}

// Roles returns the roles that currently have a mask, lowest rank first.
func (g *Grants) Roles() []Role {
	roles := make([]Role, 0, len(g.masks))
	for role := range g.masks {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// DeleteRole removes the mask for a role.
func (g *Grants) DeleteRole(role Role) {
	delete(g.masks, role)
}

// FilterRoles keeps only the given roles, deleting every other mask. Used to
// trim the always-wildcard Administrator and Owner masks before persistence.
func (g *Grants) FilterRoles(roles []Role) {
	keep := make(map[Role]bool, len(roles))
	for _, role := range roles {
		keep[role] = true
	}
	for role := range g.masks {
		if !keep[role] {
			delete(g.masks, role)
		}
	}
}

// IsEmpty reports whether no role has a mask.
func (g *Grants) IsEmpty() bool {
	return len(g.masks) == 0
}

// Pairs returns the masks as ordered [role, mask] pairs.
func (g *Grants) Pairs() [][2]int64 {
	pairs := make([][2]int64, 0, len(g.masks))
	for _, role := range g.Roles() {
		pairs = append(pairs, [2]int64{int64(role), int64(g.masks[role])})
	}
	return pairs
}

// Serialize encodes the grants as a JSON list of [role, mask] pairs, the
// format used for database storage.
func (g *Grants) Serialize() (string, error) {
	data, err := json.Marshal(g.Pairs())
	if err != nil {
		return "", fmt.Errorf("failed to serialize grants: %w", err)
	}
	return string(data), nil
}

// Deserialize replaces the grants with the serialized pairs. Owner and
// Administrator are re-pinned to wildcard afterward regardless of the input.
func (g *Grants) Deserialize(value string) error {
	var pairs [][2]int64
	if err := json.Unmarshal([]byte(value), &pairs); err != nil {
		return fmt.Errorf("failed to deserialize grants: %w", err)
	}
	if err := g.SetAllGrants(pairs); err != nil {
		return err
	}
	// HACK: force owner to always have all permissions
	return g.SetRoleGrants(RoleOwner, ParseIntoGrantMask([]string{"*"}))
}

// MarshalJSON implements json.Marshaler using the [role, mask] pair format.
func (g *Grants) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Pairs())
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *Grants) UnmarshalJSON(data []byte) error {
	var pairs [][2]int64
	if err := json.Unmarshal(data, &pairs); err != nil {
		return err
	}
	if g.masks == nil {
		g.masks = make(map[Role]GrantMask)
	}
	if err := g.SetAllGrants(pairs); err != nil {
		return err
	}
	return g.SetRoleGrants(RoleOwner, ParseIntoGrantMask([]string{"*"}))
}
