package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherInvokesMatchingHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var created, assigned int
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		created++
		return nil
	})
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		created++
		return nil
	})
	d.Subscribe(EventTicketAssigned, func(ctx context.Context, e Event) error {
		assigned++
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
	assert.Equal(t, 2, created)
	assert.Equal(t, 0, assigned)
}

func TestDispatcherSwallowsHandlerErrors(t *testing.T) {
	d := NewInMemoryDispatcher()

	var reached bool
	d.Subscribe(EventTicketResolved, func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	d.Subscribe(EventTicketResolved, func(ctx context.Context, e Event) error {
		reached = true
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketResolved}))
	assert.True(t, reached)
}

func TestDispatcherNoSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketArchived}))
}
