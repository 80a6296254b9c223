package service

import (
	"github.com/campus-kit/helpdesk/internal/domain"
	"github.com/campus-kit/helpdesk/internal/repository"
)

// ScopeFor computes the listing filter a caller's role set implies over
// the ticket collection. Pure; invoked before every listing operation.
//
//   - admin/principal/vice-principal/finance: unrestricted.
//   - support: systems tickets assigned to the caller.
//   - maintenance: maintenance tickets assigned to the caller.
//   - anyone else: tickets they created.
//
// Archived tickets are excluded unless a privileged caller asks for them.
func ScopeFor(roles []domain.Role, callerID string, includeArchived bool) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if domain.IsAdminLike(roles) {
		filter.IncludeArchived = includeArchived
		return filter
	}

	switch {
	case domain.HasRole(roles, domain.RoleSupport):
		category := domain.CategorySystems
		caller := callerID
		filter.Category = &category
		filter.AssignedTo = &caller
	case domain.HasRole(roles, domain.RoleMaintenance):
		category := domain.CategoryMaintenance
		caller := callerID
		filter.Category = &category
		filter.AssignedTo = &caller
	default:
		caller := callerID
		filter.CreatedBy = &caller
	}
	return filter
}
