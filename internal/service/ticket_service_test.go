package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campus-kit/helpdesk/internal/domain"
	"github.com/campus-kit/helpdesk/internal/events"
	"github.com/campus-kit/helpdesk/internal/repository"
	apperrors "github.com/campus-kit/helpdesk/pkg/util"
)

func errorCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return apperrors.ToDomainError(err).Code
}

func TestCreateIssuesFolioAndSeedsEmptyHistory(t *testing.T) {
	env := newTicketEnv()

	ticket, err := env.svc.Create(context.Background(), testStaff.ID, labTicketInput())
	require.NoError(t, err)

	assert.Equal(t, "SYS-2026-000001", ticket.Folio)
	assert.Equal(t, domain.StatusOpen, ticket.Status)
	assert.Equal(t, domain.PriorityUnset, ticket.Priority)
	assert.Empty(t, ticket.History)
	assert.NotNil(t, ticket.History)

	created := env.dispatcher.ofType(events.EventTicketCreated)
	require.Len(t, created, 1)
	payload, ok := created[0].Payload.(events.TicketCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, testStaff.ID, payload.CreatedBy)
}

func TestCreateCountersArePerCategory(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	first, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)
	second, err := env.svc.Create(ctx, testStaff.ID, maintenanceTicketInput())
	require.NoError(t, err)
	third, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	assert.Equal(t, "SYS-2026-000001", first.Folio)
	assert.Equal(t, "MNT-2026-000001", second.Folio)
	assert.Equal(t, "SYS-2026-000002", third.Folio)
}

func TestCreateConcurrentFoliosAreDistinctAndContiguous(t *testing.T) {
	env := newTicketEnv()
	const n = 32

	var wg sync.WaitGroup
	folios := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ticket, err := env.svc.Create(context.Background(), testStaff.ID, labTicketInput())
			if err == nil {
				folios <- ticket.Folio
			}
		}()
	}
	wg.Wait()
	close(folios)

	seen := map[string]bool{}
	for folio := range folios {
		assert.False(t, seen[folio], "duplicate folio %s", folio)
		seen[folio] = true
	}
	require.Len(t, seen, n)
	for seq := 1; seq <= n; seq++ {
		assert.True(t, seen[fmt.Sprintf("SYS-2026-%06d", seq)])
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	cases := map[string]TicketCreateInput{
		"lab incident without lab": {
			Category: domain.CategorySystems, Subcategory: domain.SubcategoryLab,
			FaultType: "pc", Description: "dead pc", Equipment: "PC-1",
		},
		"lab incident without equipment": {
			Category: domain.CategorySystems, Subcategory: domain.SubcategoryLab,
			FaultType: "pc", Description: "dead pc", Lab: "lab-1",
		},
		"out-of-lab incident without location": {
			Category: domain.CategorySystems, Subcategory: domain.SubcategoryOther,
			FaultType: "wifi", Description: "no signal",
		},
		"maintenance without room": {
			Category: domain.CategoryMaintenance, FaultType: "electric", Description: "broken outlet",
		},
		"unknown category": {
			Category: "grounds", FaultType: "x", Description: "y",
		},
		"missing description": {
			Category: domain.CategoryMaintenance, FaultType: "electric", Room: "A-1",
		},
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.svc.Create(ctx, testStaff.ID, input)
			assert.Equal(t, "VALIDATION_FAILED", errorCode(t, err))
		})
	}
	assert.Empty(t, env.dispatcher.ofType(events.EventTicketCreated))
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	env := newTicketEnv()
	ticket, err := env.svc.Create(context.Background(), testStaff.ID, labTicketInput())
	require.NoError(t, err)

	_, err = env.svc.Transition(context.Background(), testTech.ID, ticket.ID, "FROZEN", TransitionInput{})
	assert.Equal(t, "INVALID_TRANSITION", errorCode(t, err))
}

func TestTransitionToSameStatusIsNoOp(t *testing.T) {
	env := newTicketEnv()
	ticket, err := env.svc.Create(context.Background(), testStaff.ID, labTicketInput())
	require.NoError(t, err)

	got, err := env.svc.Transition(context.Background(), testTech.ID, ticket.ID, domain.StatusOpen, TransitionInput{})
	require.NoError(t, err)
	assert.Empty(t, got.History)
	assert.Empty(t, env.dispatcher.ofType(events.EventTicketStatusChanged))
}

func TestAwaitingMaterialRequiresMaterialDescription(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	_, err = env.svc.Transition(ctx, testTech.ID, ticket.ID, domain.StatusAwaitingMaterial, TransitionInput{})
	assert.Equal(t, "GUARD_FAILED", errorCode(t, err))

	// The failed guard must leave no trace.
	stored, err := env.svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOpen, stored.Status)
	assert.Empty(t, stored.History)
	assert.Nil(t, stored.PausedAt)
}

func TestLifecycleRecordsTimestampsAndResolutionMinutes(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	env.clock.Advance(10 * time.Minute)
	_, err = env.svc.Transition(ctx, testTech.ID, ticket.ID, domain.StatusInProgress, TransitionInput{})
	require.NoError(t, err)

	env.clock.Advance(20 * time.Minute)
	_, err = env.svc.Transition(ctx, testTech.ID, ticket.ID, domain.StatusAwaitingMaterial, TransitionInput{
		MaterialNeeded: "HDMI cable",
	})
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	_, err = env.svc.Transition(ctx, testTech.ID, ticket.ID, domain.StatusInProgress, TransitionInput{})
	require.NoError(t, err)

	env.clock.Advance(45 * time.Minute)
	resolved, err := env.svc.Transition(ctx, testTech.ID, ticket.ID, domain.StatusResolved, TransitionInput{
		Resolution: "cable replaced",
	})
	require.NoError(t, err)

	require.Len(t, resolved.History, 4)
	assert.Equal(t, "HDMI cable", resolved.MaterialNeeded)
	assert.Equal(t, "cable replaced", resolved.ResolutionNote)
	require.NotNil(t, resolved.StartedAt)
	require.NotNil(t, resolved.PausedAt)
	require.NotNil(t, resolved.ResumedAt)
	require.NotNil(t, resolved.ClosedAt)
	assert.True(t, resolved.ResumedAt.After(*resolved.PausedAt))

	// Resolution time counts from the resume point, not from creation.
	last := resolved.History[len(resolved.History)-1]
	require.NotNil(t, last.ResolutionMinutes)
	assert.EqualValues(t, 45, *last.ResolutionMinutes)
	assert.Equal(t, "cable replaced", last.Resolution)

	// Actor names are snapshotted into the entries.
	assert.Equal(t, testTech.Name, last.ActorName)

	resolvedEvents := env.dispatcher.ofType(events.EventTicketResolved)
	require.Len(t, resolvedEvents, 1)
	payload, ok := resolvedEvents[0].Payload.(events.ResolvedPayload)
	require.True(t, ok)
	require.NotNil(t, payload.ResolutionMinutes)
	assert.EqualValues(t, 45, *payload.ResolutionMinutes)
}

func TestReopenClearsLifecycleTimestamps(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	env.clock.Advance(5 * time.Minute)
	_, err = env.svc.Transition(ctx, testTech.ID, ticket.ID, domain.StatusInProgress, TransitionInput{})
	require.NoError(t, err)
	env.clock.Advance(5 * time.Minute)
	_, err = env.svc.Transition(ctx, testTech.ID, ticket.ID, domain.StatusResolved, TransitionInput{})
	require.NoError(t, err)

	env.clock.Advance(5 * time.Minute)
	reopened, err := env.svc.Transition(ctx, testAdmin.ID, ticket.ID, domain.StatusOpen, TransitionInput{
		Comment: "issue came back",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusOpen, reopened.Status)
	assert.Nil(t, reopened.StartedAt)
	assert.Nil(t, reopened.PausedAt)
	assert.Nil(t, reopened.ResumedAt)
	assert.Nil(t, reopened.OverdueAt)
	assert.Nil(t, reopened.ClosedAt)

	// The trail keeps the full journey including the reopen.
	require.Len(t, reopened.History, 3)
	assert.Equal(t, domain.StatusResolved, reopened.History[2].From)
	assert.Equal(t, domain.StatusOpen, reopened.History[2].To)
}

func TestOverdueStampsOverdueAt(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, maintenanceTicketInput())
	require.NoError(t, err)

	env.clock.Advance(72 * time.Hour)
	got, err := env.svc.Transition(ctx, testAdmin.ID, ticket.ID, domain.StatusOverdue, TransitionInput{})
	require.NoError(t, err)
	require.NotNil(t, got.OverdueAt)
	assert.Equal(t, env.clock.Now(), *got.OverdueAt)
}

func TestRejectRequiresCommentAndForcesArchive(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	_, err = env.svc.Reject(ctx, testAdmin.ID, ticket.ID, "   ")
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, err))

	rejected, err := env.svc.Reject(ctx, testAdmin.ID, ticket.ID, "duplicate of SYS-2026-000001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, rejected.Status)
	assert.True(t, rejected.Archived)
	require.NotNil(t, rejected.ArchivedBy)
	assert.Equal(t, testAdmin.ID, *rejected.ArchivedBy)

	require.Len(t, env.dispatcher.ofType(events.EventTicketRejected), 1)
}

func TestUpdatePriority(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	_, err = env.svc.UpdatePriority(ctx, testAdmin.ID, ticket.ID, "URGENT")
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, err))

	got, err := env.svc.UpdatePriority(ctx, testAdmin.ID, ticket.ID, domain.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	require.Len(t, got.History, 1)
	assert.Equal(t, got.History[0].From, got.History[0].To)

	// Re-saving the same priority changes nothing.
	again, err := env.svc.UpdatePriority(ctx, testAdmin.ID, ticket.ID, domain.PriorityHigh)
	require.NoError(t, err)
	require.Len(t, again.History, 1)
	require.Len(t, env.dispatcher.ofType(events.EventTicketPriorityChanged), 1)
}

func TestAssignRoles(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	// Plain staff can neither self-assign nor assign others.
	_, err = env.svc.Assign(ctx, testStaff.ID, ticket.ID, "", true)
	assert.Equal(t, "FORBIDDEN", errorCode(t, err))
	_, err = env.svc.Assign(ctx, testStaff.ID, ticket.ID, testTech.ID, false)
	assert.Equal(t, "FORBIDDEN", errorCode(t, err))

	// Support can pick the ticket up.
	got, err := env.svc.Assign(ctx, testTech.ID, ticket.ID, "", true)
	require.NoError(t, err)
	require.NotNil(t, got.AssignedTo)
	assert.Equal(t, testTech.ID, *got.AssignedTo)

	// Repeating the assignment is a no-op without a second event.
	again, err := env.svc.Assign(ctx, testTech.ID, ticket.ID, "", true)
	require.NoError(t, err)
	require.Len(t, again.History, 1)
	require.Len(t, env.dispatcher.ofType(events.EventTicketAssigned), 1)

	// Admin can hand it to someone else.
	handed, err := env.svc.Assign(ctx, testAdmin.ID, ticket.ID, testMaint.ID, false)
	require.NoError(t, err)
	assert.Equal(t, testMaint.ID, *handed.AssignedTo)
	require.Len(t, env.dispatcher.ofType(events.EventTicketAssigned), 2)
}

func TestAssignUnknownAssignee(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	_, err = env.svc.Assign(ctx, testAdmin.ID, ticket.ID, "ghost", false)
	assert.Equal(t, "NOT_FOUND", errorCode(t, err))
}

func TestSelfAssignBlockedOnTerminalTicket(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)
	_, err = env.svc.Transition(ctx, testAdmin.ID, ticket.ID, domain.StatusResolved, TransitionInput{})
	require.NoError(t, err)

	_, err = env.svc.Assign(ctx, testTech.ID, ticket.ID, "", true)
	assert.Equal(t, "GUARD_FAILED", errorCode(t, err))
}

func TestAddCommentAppendsCommentOnlyEntry(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	_, err = env.svc.AddComment(ctx, testStaff.ID, ticket.ID, "  ")
	assert.Equal(t, "VALIDATION_FAILED", errorCode(t, err))

	got, err := env.svc.AddComment(ctx, testStaff.ID, ticket.ID, "still broken after restart")
	require.NoError(t, err)
	require.Len(t, got.History, 1)
	entry := got.History[0]
	assert.Equal(t, entry.From, entry.To)
	assert.Equal(t, "still broken after restart", entry.Comment)
	assert.Nil(t, entry.ResolutionMinutes)
}

func TestAdminCommentsRequirePrivilegedActor(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	_, err = env.svc.AddAdminComment(ctx, testTech.ID, ticket.ID, "budget approved")
	assert.Equal(t, "FORBIDDEN", errorCode(t, err))

	_, err = env.svc.AddAdminComment(ctx, testAdmin.ID, ticket.ID, "budget approved")
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	_, err = env.svc.AddAdminComment(ctx, testAdmin.ID, ticket.ID, "vendor contacted")
	require.NoError(t, err)

	comments, err := env.svc.ListAdminComments(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "vendor contacted", comments[0].Text)

	// Privileged notes never leak into the audit trail.
	stored, err := env.svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.History)
}

func TestArchiveIsIdempotentAndPrivileged(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	_, err = env.svc.Archive(ctx, testTech.ID, ticket.ID)
	assert.Equal(t, "FORBIDDEN", errorCode(t, err))

	got, err := env.svc.Archive(ctx, testAdmin.ID, ticket.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)

	again, err := env.svc.Archive(ctx, testAdmin.ID, ticket.ID)
	require.NoError(t, err)
	assert.True(t, again.Archived)
	require.Len(t, again.History, 1)
	require.Len(t, env.dispatcher.ofType(events.EventTicketArchived), 1)
}

func TestUpdateMaterialAndResolutionRequireWorker(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	_, err = env.svc.UpdateMaterial(ctx, testStaff.ID, ticket.ID, "new fuse")
	assert.Equal(t, "FORBIDDEN", errorCode(t, err))

	got, err := env.svc.UpdateMaterial(ctx, testMaint.ID, ticket.ID, "new fuse")
	require.NoError(t, err)
	assert.Equal(t, "new fuse", got.MaterialNeeded)

	got, err = env.svc.UpdateResolution(ctx, testTech.ID, ticket.ID, "fuse swapped")
	require.NoError(t, err)
	assert.Equal(t, "fuse swapped", got.ResolutionNote)
	require.Len(t, got.History, 2)
}

func TestGetUnknownTicket(t *testing.T) {
	env := newTicketEnv()
	_, err := env.svc.Get(context.Background(), "missing")
	assert.Equal(t, "NOT_FOUND", errorCode(t, err))
}

func TestGetByFolio(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	got, err := env.svc.GetByFolio(ctx, ticket.Folio)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, got.ID)

	_, err = env.svc.GetByFolio(ctx, "SYS-2026-999999")
	assert.Equal(t, "NOT_FOUND", errorCode(t, err))
}

func TestHistoryIsChronological(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	_, err = env.svc.Transition(ctx, testTech.ID, ticket.ID, domain.StatusInProgress, TransitionInput{})
	require.NoError(t, err)
	env.clock.Advance(time.Minute)
	_, err = env.svc.AddComment(ctx, testTech.ID, ticket.ID, "diagnosing")
	require.NoError(t, err)

	entries, err := env.svc.History(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].At.Before(entries[1].At))
}

func TestListVisibleAndAssignable(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	mine, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)
	other, err := env.svc.Create(ctx, testAdmin.ID, maintenanceTicketInput())
	require.NoError(t, err)
	_, err = env.svc.Assign(ctx, testTech.ID, mine.ID, "", true)
	require.NoError(t, err)

	// Staff sees only what they raised.
	visible, err := env.svc.ListVisible(ctx, testStaff.Roles, testStaff.ID, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, mine.ID, visible[0].ID)

	// Support sees their assigned systems tickets.
	visible, err = env.svc.ListVisible(ctx, testTech.Roles, testTech.ID, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, mine.ID, visible[0].ID)

	// Admin sees everything; archived only on request.
	_, err = env.svc.Archive(ctx, testAdmin.ID, other.ID)
	require.NoError(t, err)
	visible, err = env.svc.ListVisible(ctx, testAdmin.Roles, testAdmin.ID, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	visible, err = env.svc.ListVisible(ctx, testAdmin.Roles, testAdmin.ID, true)
	require.NoError(t, err)
	require.Len(t, visible, 2)

	// Only the unassigned open ticket is offered for assignment.
	assignable, err := env.svc.ListAssignable(ctx)
	require.NoError(t, err)
	assert.Empty(t, assignable)

	fresh, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)
	assignable, err = env.svc.ListAssignable(ctx)
	require.NoError(t, err)
	require.Len(t, assignable, 1)
	assert.Equal(t, fresh.ID, assignable[0].ID)
}

// conflictingTicketRepo fails Update with a version conflict a set number
// of times before delegating to the real fake.
type conflictingTicketRepo struct {
	*fakeTicketRepo
	conflicts int
	updates   int
}

func (r *conflictingTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.updates++
	if r.conflicts > 0 {
		r.conflicts--
		return repository.ErrVersionConflict
	}
	return r.fakeTicketRepo.Update(ctx, ticket)
}

func newConflictEnv(conflicts int) (*ticketEnv, *conflictingTicketRepo) {
	env := newTicketEnv()
	repo := &conflictingTicketRepo{fakeTicketRepo: env.tickets, conflicts: conflicts}
	env.svc.tickets = repo
	return env, repo
}

func TestMutationRetriesOnceAfterVersionConflict(t *testing.T) {
	env, repo := newConflictEnv(0)
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	repo.conflicts = 1
	repo.updates = 0
	got, err := env.svc.UpdatePriority(ctx, testAdmin.ID, ticket.ID, domain.PriorityHigh)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	assert.Equal(t, 2, repo.updates)

	// The retried write carries exactly one audit entry, not a duplicate
	// from the failed attempt.
	stored, err := env.svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, stored.Priority)
	require.Len(t, stored.History, 1)
	require.Len(t, env.dispatcher.ofType(events.EventTicketPriorityChanged), 1)
}

func TestMutationSurfacesConflictAfterSecondFailure(t *testing.T) {
	env, repo := newConflictEnv(0)
	ctx := context.Background()
	ticket, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)

	repo.conflicts = 2
	repo.updates = 0
	_, err = env.svc.UpdatePriority(ctx, testAdmin.ID, ticket.ID, domain.PriorityHigh)
	assert.Equal(t, "CONFLICT", errorCode(t, err))
	assert.Equal(t, 2, repo.updates)

	// No partial state and no audit entry survive the failed mutation.
	stored, err := env.svc.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityUnset, stored.Priority)
	assert.Empty(t, stored.History)
	assert.Empty(t, env.dispatcher.ofType(events.EventTicketPriorityChanged))
}

// flakyCounterRepo fails Next a set number of times before delegating.
type flakyCounterRepo struct {
	*fakeCounterRepo
	failures int
	calls    int
}

func (r *flakyCounterRepo) Next(ctx context.Context, key string) (int64, error) {
	r.calls++
	if r.failures > 0 {
		r.failures--
		return 0, errors.New("deadlock detected")
	}
	return r.fakeCounterRepo.Next(ctx, key)
}

func TestCreateRetriesCounterOnce(t *testing.T) {
	env := newTicketEnv()
	counters := &flakyCounterRepo{fakeCounterRepo: env.counters, failures: 1}
	env.svc.counters = counters

	ticket, err := env.svc.Create(context.Background(), testStaff.ID, labTicketInput())
	require.NoError(t, err)
	assert.Equal(t, "SYS-2026-000001", ticket.Folio)
	assert.Equal(t, 2, counters.calls)
}

func TestCreateSurfacesConflictWhenCounterKeepsFailing(t *testing.T) {
	env := newTicketEnv()
	counters := &flakyCounterRepo{fakeCounterRepo: env.counters, failures: 2}
	env.svc.counters = counters

	_, err := env.svc.Create(context.Background(), testStaff.ID, labTicketInput())
	assert.Equal(t, "CONFLICT", errorCode(t, err))
	assert.Equal(t, 2, counters.calls)

	// No ticket and no event leak out of a failed issuance.
	tickets, err := env.tickets.ListWithFilter(context.Background(), repository.TicketFilter{})
	require.NoError(t, err)
	assert.Empty(t, tickets)
	assert.Empty(t, env.dispatcher.ofType(events.EventTicketCreated))
}

func TestListClosedReportIncludesArchivedFinishedTickets(t *testing.T) {
	env := newTicketEnv()
	ctx := context.Background()

	open, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)
	done, err := env.svc.Create(ctx, testStaff.ID, labTicketInput())
	require.NoError(t, err)
	rejected, err := env.svc.Create(ctx, testStaff.ID, maintenanceTicketInput())
	require.NoError(t, err)

	_, err = env.svc.Transition(ctx, testTech.ID, done.ID, domain.StatusResolved, TransitionInput{})
	require.NoError(t, err)
	_, err = env.svc.Reject(ctx, testAdmin.ID, rejected.ID, "not an actual fault")
	require.NoError(t, err)
	// Archival must not hide resolved work from the report.
	_, err = env.svc.Archive(ctx, testAdmin.ID, done.ID)
	require.NoError(t, err)

	report, err := env.svc.ListClosedReport(ctx)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, done.ID, report[0].ID)
	for _, item := range report {
		assert.NotEqual(t, open.ID, item.ID)
	}
}
