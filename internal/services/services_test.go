package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"raffle/internal/models"
	"raffle/internal/random"
	"raffle/internal/storage"

	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// tickingClock advances one second every time it is read, so events that
// happen in sequence get strictly increasing timestamps.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store *storage.Store
	svc   *Services
}

func newFixture(t *testing.T, source random.Source, sealer *SeedSealer) *fixture {
	t.Helper()
	store, err := storage.Open(storage.DriverSQLite, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc := New(store, source, nil, sealer, nil)
	svc.SetClock((&tickingClock{now: baseTime}).Now)
	return &fixture{store: store, svc: svc}
}

func fixedSource(t *testing.T, samples ...float64) *random.Fixed {
	t.Helper()
	src, err := random.NewFixed(samples...)
	require.NoError(t, err)
	return src
}

type purchase struct {
	user     string
	quantity int
	status   models.PaymentStatus
}

// newRaffle creates a raffle and buys the given purchases in order, settling
// each one with its payment status.
func (f *fixture) newRaffle(t *testing.T, total int, purchases ...purchase) *models.Raffle {
	t.Helper()
	ctx := context.Background()
	r, err := f.svc.Raffles.CreateRaffle(ctx, "Spring raffle", total, baseTime.Add(24*time.Hour))
	require.NoError(t, err)
	for _, p := range purchases {
		e, err := f.svc.Raffles.PurchaseTickets(ctx, r.ID, p.user, p.quantity)
		require.NoError(t, err)
		if p.status != models.PaymentPending {
			_, err = f.svc.Raffles.ConfirmPayment(ctx, e.ID, p.status)
			require.NoError(t, err)
		}
	}
	return r
}

// abcRaffle is A with tickets 1-5, B with 6-8 and C with 9-10, all paid.
func (f *fixture) abcRaffle(t *testing.T) *models.Raffle {
	return f.newRaffle(t, 10,
		purchase{"A", 5, models.PaymentCompleted},
		purchase{"B", 3, models.PaymentCompleted},
		purchase{"C", 2, models.PaymentCompleted},
	)
}

func (f *fixture) raffle(t *testing.T, id string) *models.Raffle {
	t.Helper()
	r, err := f.store.Reader(context.Background()).GetRaffle(id)
	require.NoError(t, err)
	return r
}

func (f *fixture) audits(t *testing.T, raffleID string) []models.DrawAudit {
	t.Helper()
	audits, err := f.store.Reader(context.Background()).ListDrawAudits(raffleID)
	require.NoError(t, err)
	return audits
}

func (f *fixture) events(t *testing.T, raffleID string) []models.ComplianceEventType {
	t.Helper()
	entries, err := f.store.Reader(context.Background()).ListComplianceLog(raffleID)
	require.NoError(t, err)
	var types []models.ComplianceEventType
	for _, e := range entries {
		types = append(types, e.EventType)
	}
	return types
}
