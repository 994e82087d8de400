package roles

import "fmt"

// Role is the authorization level carried by an account.
type Role uint8

// Roles ordered from least to most privileged. RoleUnknown is never granted anything.
const (
	RoleUnknown Role = iota
	RoleAuthor
	RoleAdministrator
	RoleSuperUser
)

// Storage and wire names. These match the users.role column values.
const (
	nameSuperUser     = "Super_User"
	nameAdministrator = "Administrator"
	nameAuthor        = "Author"
)

// All returns every assignable role, most privileged first.
func All() []Role {
	return []Role{RoleSuperUser, RoleAdministrator, RoleAuthor}
}

// Parse converts a stored role name into a Role. Unknown names yield RoleUnknown.
func Parse(name string) Role {
	switch name {
	case nameSuperUser:
		return RoleSuperUser
	case nameAdministrator:
		return RoleAdministrator
	case nameAuthor:
		return RoleAuthor
	default:
		return RoleUnknown
	}
}

// String returns the storage name of the role.
func (r Role) String() string {
	switch r {
	case RoleSuperUser:
		return nameSuperUser
	case RoleAdministrator:
		return nameAdministrator
	case RoleAuthor:
		return nameAuthor
	default:
		return ""
	}
}

// DisplayName returns the label shown to end users.
func (r Role) DisplayName() string {
	switch r {
	case RoleSuperUser:
		return "Super User"
	case RoleAdministrator:
		return "Administrator"
	case RoleAuthor:
		return "Author"
	default:
		return "Unknown"
	}
}

// Valid reports whether r is one of the assignable roles.
func (r Role) Valid() bool {
	_, ok := hierarchy[r]
	return ok
}

// MarshalText encodes the role using its storage name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("roles: cannot encode role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a storage name. Unknown names fail so a tampered
// session payload never yields a usable role.
func (r *Role) UnmarshalText(text []byte) error {
	parsed := Parse(string(text))
	if parsed == RoleUnknown {
		return fmt.Errorf("roles: unknown role %q", string(text))
	}
	*r = parsed
	return nil
}
