package domain

import "fmt"

// Role is the rank a user holds within a room. Higher values carry more
// privilege, except Owner which is a sentinel that always outranks everything.
type Role int

const (
	RoleOwner            Role = -1
	RoleUnregisteredUser Role = 0
	RoleRegisteredUser   Role = 1
	RoleTrustedUser      Role = 2
	RoleModerator        Role = 3
	RoleAdministrator    Role = 4
)

var roleNames = map[Role]string{
	RoleOwner:            "owner",
	RoleUnregisteredUser: "unregistered",
	RoleRegisteredUser:   "registered",
	RoleTrustedUser:      "trusted",
	RoleModerator:        "mod",
	RoleAdministrator:    "admin",
}

var roleDisplayNames = map[Role]string{
	RoleOwner:            "Owner",
	RoleUnregisteredUser: "Unregistered User",
	RoleRegisteredUser:   "Registered User",
	RoleTrustedUser:      "Trusted User",
	RoleModerator:        "Moderator",
	RoleAdministrator:    "Administrator",
}

// Valid reports whether the role is within the accepted range.
func (r Role) Valid() bool {
	return r >= RoleOwner && r <= RoleAdministrator
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// DisplayName returns the human-facing name of the role.
func (r Role) DisplayName() string {
	if name, ok := roleDisplayNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Role %d", int(r))
}
