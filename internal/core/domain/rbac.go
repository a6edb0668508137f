package domain

// RoleName identifies one of the fixed hospital roles.
type RoleName string

const (
	RoleAdmin   RoleName = "admin"
	RoleDoctor  RoleName = "doctor"
	RolePatient RoleName = "patient"
)

// Capability names a discrete permission granted to a role.
type Capability string

const (
	CapAuditRead    Capability = "audit:read"
	CapUserManage   Capability = "user:manage"
	CapVisitRead    Capability = "visit:read"
	CapVisitWrite   Capability = "visit:write"
	CapVisitReadOwn Capability = "visit:read-own"
)

// CapabilitySet is resolved once per principal at login and tested by
// membership rather than by comparing role strings at each call site.
type CapabilitySet map[Capability]struct{}

// Has reports whether the set grants the capability.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// List returns the capabilities in the set as strings.
func (s CapabilitySet) List() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, string(c))
	}
	return out
}

var roleGrants = map[RoleName][]Capability{
	RoleAdmin:   {CapAuditRead, CapUserManage, CapVisitRead, CapVisitWrite},
	RoleDoctor:  {CapVisitRead, CapVisitWrite},
	RolePatient: {CapVisitReadOwn},
}

// CapabilitiesFor resolves the capability set granted to a role. Unknown
// roles resolve to an empty set.
func CapabilitiesFor(role RoleName) CapabilitySet {
	grants := roleGrants[role]
	set := make(CapabilitySet, len(grants))
	for _, c := range grants {
		set[c] = struct{}{}
	}
	return set
}
