package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssignRole(t *testing.T) {
	tests := []struct {
		name            string
		listingOwnerID  string
		userID          string
		defaultTenantID string
		want            Role
	}{
		{"listing owner is tenant", "bob", "bob", "carol", RoleTenant},
		{"non-owner is subtenant despite default", "bob", "carol", "carol", RoleSubtenant},
		{"no listing, default tenant wins", "", "carol", "carol", RoleTenant},
		{"no listing, everyone else subtenant", "", "alice", "carol", RoleSubtenant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AssignRole(tt.listingOwnerID, tt.userID, tt.defaultTenantID))
		})
	}
}

// Group with members A and B, initiator C, listing owned by B: B is the
// tenant, A and C are subtenants.
func TestAssignRoleGroupWithListing(t *testing.T) {
	owner := "B"
	creator := "C"

	assert.Equal(t, RoleSubtenant, AssignRole(owner, "A", creator))
	assert.Equal(t, RoleTenant, AssignRole(owner, "B", creator))
	assert.Equal(t, RoleSubtenant, AssignRole(owner, "C", creator))
}
