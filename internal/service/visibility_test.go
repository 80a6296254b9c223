package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-kit/helpdesk/internal/domain"
)

func TestScopeForAdminLike(t *testing.T) {
	for _, role := range domain.AdminLikeRoles() {
		filter := ScopeFor([]domain.Role{role}, "u-1", false)
		assert.Nil(t, filter.Category, string(role))
		assert.Nil(t, filter.AssignedTo, string(role))
		assert.Nil(t, filter.CreatedBy, string(role))
		assert.False(t, filter.IncludeArchived, string(role))
	}

	filter := ScopeFor([]domain.Role{domain.RoleAdmin}, "u-1", true)
	assert.True(t, filter.IncludeArchived)
}

func TestScopeForSupport(t *testing.T) {
	filter := ScopeFor([]domain.Role{domain.RoleSupport}, "u-2", true)
	require.NotNil(t, filter.Category)
	assert.Equal(t, domain.CategorySystems, *filter.Category)
	require.NotNil(t, filter.AssignedTo)
	assert.Equal(t, "u-2", *filter.AssignedTo)
	// Non-privileged callers never see archived tickets.
	assert.False(t, filter.IncludeArchived)
}

func TestScopeForMaintenance(t *testing.T) {
	filter := ScopeFor([]domain.Role{domain.RoleMaintenance}, "u-3", false)
	require.NotNil(t, filter.Category)
	assert.Equal(t, domain.CategoryMaintenance, *filter.Category)
	require.NotNil(t, filter.AssignedTo)
	assert.Equal(t, "u-3", *filter.AssignedTo)
}

func TestScopeForStaffFallsBackToOwnTickets(t *testing.T) {
	filter := ScopeFor([]domain.Role{domain.RoleStaff}, "u-4", true)
	require.NotNil(t, filter.CreatedBy)
	assert.Equal(t, "u-4", *filter.CreatedBy)
	assert.Nil(t, filter.Category)
	assert.False(t, filter.IncludeArchived)
}

func TestScopeForMixedRolesPrefersWidestGrant(t *testing.T) {
	// Admin plus support resolves to the unrestricted admin scope.
	filter := ScopeFor([]domain.Role{domain.RoleSupport, domain.RoleAdmin}, "u-5", false)
	assert.Nil(t, filter.Category)
	assert.Nil(t, filter.AssignedTo)
	assert.Nil(t, filter.CreatedBy)
}
