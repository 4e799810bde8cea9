package model

// Role identifies which side of a sublet a participant is on.
type Role string

const (
	// RoleTenant is the listing-owner side (the host subletting out).
	RoleTenant Role = "tenant"
	// RoleSubtenant is the requesting side. The default for everyone who is
	// not the listing owner.
	RoleSubtenant Role = "subtenant"
)

// AssignRole computes a participant's role. Every conversation creation and
// listing-reassignment path goes through this one function.
//
// When a listing is attached (listingOwnerID non-empty), the listing owner is
// the tenant and everyone else a subtenant. Without a listing the role falls
// back to defaultTenantID: the contacted user for direct conversations, the
// creator for groups.
func AssignRole(listingOwnerID, userID, defaultTenantID string) Role {
	if listingOwnerID != "" {
		if userID == listingOwnerID {
			return RoleTenant
		}
		return RoleSubtenant
	}
	if userID == defaultTenantID {
		return RoleTenant
	}
	return RoleSubtenant
}
