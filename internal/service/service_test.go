package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campus-kit/helpdesk/internal/domain"
	"github.com/campus-kit/helpdesk/internal/events"
	"github.com/campus-kit/helpdesk/internal/repository"
)

// In-memory collaborators shared by the service tests.

type fakeTicketRepo struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

func newFakeTicketRepo() *fakeTicketRepo {
	return &fakeTicketRepo{tickets: map[string]*domain.Ticket{}}
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	clone := *t
	clone.History = append([]domain.HistoryEntry{}, t.History...)
	clone.AdminComments = append([]domain.AdminComment{}, t.AdminComments...)
	clone.Evidence = append([]domain.EvidenceRef{}, t.Evidence...)
	return &clone
}

func (r *fakeTicketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (r *fakeTicketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != ticket.Version {
		return repository.ErrVersionConflict
	}
	ticket.Version++
	r.tickets[ticket.ID] = copyTicket(ticket)
	return nil
}

func (r *fakeTicketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return copyTicket(stored), nil
}

func (r *fakeTicketRepo) GetByFolio(ctx context.Context, folio string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stored := range r.tickets {
		if stored.Folio == folio {
			return copyTicket(stored), nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeTicketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Ticket
	for _, stored := range r.tickets {
		if stored.Archived && !filter.IncludeArchived {
			continue
		}
		if filter.Category != nil && stored.Category != *filter.Category {
			continue
		}
		if filter.CreatedBy != nil && stored.CreatedBy != *filter.CreatedBy {
			continue
		}
		if filter.AssignedTo != nil {
			if stored.AssignedTo == nil || *stored.AssignedTo != *filter.AssignedTo {
				continue
			}
		}
		if filter.Unassigned && stored.AssignedTo != nil {
			continue
		}
		if len(filter.Statuses) > 0 {
			match := false
			for _, s := range filter.Statuses {
				if stored.Status == s {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, *copyTicket(stored))
	}
	return out, nil
}

type fakeCounterRepo struct {
	mu   sync.Mutex
	seqs map[string]int64
}

func newFakeCounterRepo() *fakeCounterRepo {
	return &fakeCounterRepo{seqs: map[string]int64{}}
}

func (r *fakeCounterRepo) Next(ctx context.Context, key string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs[key]++
	return r.seqs[key], nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo(users ...*domain.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: map[string]*domain.User{}}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *fakeUserRepo) ListByRoles(ctx context.Context, roles []domain.Role) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.User
	for _, user := range r.users {
		if !user.Active {
			continue
		}
		for _, role := range roles {
			if domain.HasRole(user.Roles, role) {
				out = append(out, *user)
				break
			}
		}
	}
	return out, nil
}

type fakeNotificationRepo struct {
	mu    sync.Mutex
	items []domain.Notification
}

func (r *fakeNotificationRepo) Create(ctx context.Context, notification *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, *notification)
	return nil
}

func (r *fakeNotificationRepo) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].RecipientID == recipientID {
			out = append(out, r.items[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeNotificationRepo) MarkAllRead(ctx context.Context, recipientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.items {
		if r.items[i].RecipientID == recipientID {
			r.items[i].Read = true
		}
	}
	return nil
}

func (r *fakeNotificationRepo) forRecipient(recipientID string) []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Notification
	for _, n := range r.items {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *recordingDispatcher) ofType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []events.Event
	for _, e := range d.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// clock is an adjustable time source for services under test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(start time.Time) *clock {
	return &clock{now: start}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type ticketEnv struct {
	svc        *TicketService
	tickets    *fakeTicketRepo
	counters   *fakeCounterRepo
	users      *fakeUserRepo
	dispatcher *recordingDispatcher
	clock      *clock
}

var (
	testAdmin = &domain.User{ID: "admin-1", Name: "Dana Prieto", Email: "dana@school.test", Roles: []domain.Role{domain.RoleAdmin}, Active: true}
	testTech  = &domain.User{ID: "tech-1", Name: "Luis Ortega", Email: "luis@school.test", Roles: []domain.Role{domain.RoleSupport}, Active: true}
	testMaint = &domain.User{ID: "maint-1", Name: "Rosa Vega", Email: "rosa@school.test", Roles: []domain.Role{domain.RoleMaintenance}, Active: true}
	testStaff = &domain.User{ID: "staff-1", Name: "Pablo Ruiz", Email: "pablo@school.test", Roles: []domain.Role{domain.RoleStaff}, Active: true}
)

func newTicketEnv() *ticketEnv {
	env := &ticketEnv{
		tickets:    newFakeTicketRepo(),
		counters:   newFakeCounterRepo(),
		users:      newFakeUserRepo(testAdmin, testTech, testMaint, testStaff),
		dispatcher: &recordingDispatcher{},
		clock:      newClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
	}
	env.svc = NewTicketService(TicketDependencies{
		TicketRepo:  env.tickets,
		CounterRepo: env.counters,
		UserRepo:    env.users,
		Dispatcher:  env.dispatcher,
	})
	env.svc.now = env.clock.Now
	return env
}

func labTicketInput() TicketCreateInput {
	return TicketCreateInput{
		Category:    domain.CategorySystems,
		Subcategory: domain.SubcategoryLab,
		FaultType:   "projector",
		Description: "projector will not power on",
		Lab:         "lab-2",
		Equipment:   "PRJ-014",
	}
}

func maintenanceTicketInput() TicketCreateInput {
	return TicketCreateInput{
		Category:    domain.CategoryMaintenance,
		FaultType:   "plumbing",
		Description: "leaking sink in staff room",
		Room:        "B-104",
	}
}
