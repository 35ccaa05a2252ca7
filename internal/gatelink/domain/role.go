package domain

import "strings"

// Role is the closed set of staff roles.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleManager     Role = "manager"
	RoleTelephonist Role = "telephonist"
	RoleAccountant  Role = "accountant"
)

var Roles = []Role{RoleAdmin, RoleManager, RoleTelephonist, RoleAccountant}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleTelephonist, RoleAccountant:
		return true
	default:
		return false
	}
}

// ParseRole accepts only canonical values, ignoring case and surrounding
// whitespace.
func ParseRole(raw string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

var legacyRoles = map[string]Role{
	"admin":         RoleAdmin,
	"administrator": RoleAdmin,
	"manager":       RoleManager,
	"telephonist":   RoleTelephonist,
	"telefonist":    RoleTelephonist,
	"mitarbeiter":   RoleTelephonist,
	"uploader":      RoleTelephonist,
	"accountant":    RoleAccountant,
	"buchhalter":    RoleAccountant,
	"buchhaltung":   RoleAccountant,
}

// NormalizeRole maps free-text role values written by older releases onto
// the enum. Unknown values fall back to telephonist with known=false.
func NormalizeRole(raw string) (role Role, known bool) {
	role, known = legacyRoles[strings.ToLower(strings.TrimSpace(raw))]
	if !known {
		return RoleTelephonist, false
	}
	return role, true
}
