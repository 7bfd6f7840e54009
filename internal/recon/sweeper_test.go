package recon_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ms-registration/internal/logger"
	"ms-registration/internal/models"
	"ms-registration/internal/recon"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLock struct {
	mu       sync.Mutex
	grant    bool
	acquires int
	releases int
}

func (l *fakeLock) TryAcquire(context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquires++
	return l.grant, nil
}

func (l *fakeLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return nil
}

func (l *fakeLock) stats() (acquires, releases int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquires, l.releases
}

func TestSweeperExpiresStaleTickets(t *testing.T) {
	f := newEngineFixture(t)
	stale, _ := f.seedStaleTicket(t, 2*time.Hour)

	lock := &fakeLock{grant: true}
	sweeper := recon.NewSweeper(f.engine, lock, 5*time.Millisecond, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		ticket, err := f.store.GetTicket(context.Background(), stale.TicketID)
		return err == nil && ticket.Status == models.TicketExpired
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	acquires, releases := lock.stats()
	assert.Equal(t, acquires, releases, "every acquired lease must be released")
}

func TestSweeperSkipsWhenLockHeldElsewhere(t *testing.T) {
	f := newEngineFixture(t)
	stale, _ := f.seedStaleTicket(t, 2*time.Hour)

	lock := &fakeLock{grant: false}
	sweeper := recon.NewSweeper(f.engine, lock, 5*time.Millisecond, logger.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		acquires, _ := lock.stats()
		return acquires >= 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done

	ticket, err := f.store.GetTicket(context.Background(), stale.TicketID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketPending, ticket.Status, "replica without the lease must not sweep")
	_, releases := lock.stats()
	assert.Zero(t, releases)
}
