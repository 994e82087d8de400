package roles

// hierarchy maps each role to the set of roles it may act as. The sets form a
// strict superset chain and are never modified after package init. A new role
// must be inserted at its rank with every higher role's set extended.
var hierarchy = map[Role]map[Role]struct{}{
	RoleSuperUser: {
		RoleSuperUser:     {},
		RoleAdministrator: {},
		RoleAuthor:        {},
	},
	RoleAdministrator: {
		RoleAdministrator: {},
		RoleAuthor:        {},
	},
	RoleAuthor: {
		RoleAuthor: {},
	},
}

// Authorize reports whether an actor holding role actor may act as required.
// Unknown actor roles and unknown required roles are always denied.
func Authorize(actor, required Role) bool {
	granted, ok := hierarchy[actor]
	if !ok {
		return false
	}
	_, ok = granted[required]
	return ok
}

// Outranks reports whether actor may manage accounts holding role target:
// the actor must act as target and hold a strictly higher role.
func Outranks(actor, target Role) bool {
	return actor != target && Authorize(actor, target)
}

// Grants returns the roles actor may act as, most privileged first.
func Grants(actor Role) []Role {
	var out []Role
	for _, r := range All() {
		if Authorize(actor, r) {
			out = append(out, r)
		}
	}
	return out
}

// Manageable returns the roles whose accounts actor may create or remove.
func Manageable(actor Role) []Role {
	var out []Role
	for _, r := range All() {
		if Outranks(actor, r) {
			out = append(out, r)
		}
	}
	return out
}
