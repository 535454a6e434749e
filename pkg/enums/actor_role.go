package enums

import "slices"

// ActorRole is the platform role carried in access tokens.
type ActorRole string

const (
	ActorRoleStudent  ActorRole = "student"
	ActorRoleLandlord ActorRole = "landlord"
	ActorRoleAdmin    ActorRole = "admin"
)

var validActorRoles = []ActorRole{
	ActorRoleStudent,
	ActorRoleLandlord,
	ActorRoleAdmin,
}

// String implements fmt.Stringer.
func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the role is recognized.
func (r ActorRole) IsValid() bool {
	return slices.Contains(validActorRoles, r)
}

// ParseActorRole converts raw input into an ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	return parse(validActorRoles, value, "actor role")
}
