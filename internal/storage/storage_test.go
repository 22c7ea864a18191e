package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"raffle/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRaffle(t *testing.T, s *Store, id string, total int) {
	t.Helper()
	require.NoError(t, s.Reader(context.Background()).CreateRaffle(&models.Raffle{
		ID:           id,
		Title:        "Test raffle",
		Status:       models.RaffleActive,
		TotalTickets: total,
		EndTime:      time.Now().Add(time.Hour),
	}))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}

func TestGetRaffle_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Reader(context.Background()).GetRaffle("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReserveTickets(t *testing.T) {
	s := openTestStore(t)
	seedRaffle(t, s, "r1", 10)
	tx := s.Reader(context.Background())

	require.NoError(t, tx.ReserveTickets("r1", 0, 4))

	t.Run("stale counter", func(t *testing.T) {
		assert.ErrorIs(t, tx.ReserveTickets("r1", 0, 1), ErrConflict)
	})

	t.Run("over capacity", func(t *testing.T) {
		assert.ErrorIs(t, tx.ReserveTickets("r1", 4, 7), ErrConflict)
	})

	require.NoError(t, tx.ReserveTickets("r1", 4, 6))
	r, err := tx.GetRaffle("r1")
	require.NoError(t, err)
	assert.Equal(t, 10, r.SoldTickets)
}

func TestMarkRaffleDrawn_OnlyOnce(t *testing.T) {
	s := openTestStore(t)
	seedRaffle(t, s, "r1", 10)
	tx := s.Reader(context.Background())

	require.NoError(t, tx.MarkRaffleDrawn("r1", "user-a", 3))
	assert.ErrorIs(t, tx.MarkRaffleDrawn("r1", "user-b", 5), ErrConflict)

	r, err := tx.GetRaffle("r1")
	require.NoError(t, err)
	assert.Equal(t, models.RaffleEnded, r.Status)
	require.NotNil(t, r.WinnerID)
	assert.Equal(t, "user-a", *r.WinnerID)
	assert.Equal(t, 3, *r.WinningTicketNumber)
}

func TestTransaction_RollsBack(t *testing.T) {
	s := openTestStore(t)
	seedRaffle(t, s, "r1", 10)
	boom := errors.New("boom")

	err := s.Transaction(context.Background(), func(tx *Tx) error {
		if err := tx.MarkRaffleDrawn("r1", "user-a", 1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	r, err := s.Reader(context.Background()).GetRaffle("r1")
	require.NoError(t, err)
	assert.Equal(t, models.RaffleActive, r.Status)
	assert.Nil(t, r.WinnerID)
}

func TestCompletedEntries_OrderedAndFiltered(t *testing.T) {
	s := openTestStore(t)
	seedRaffle(t, s, "r1", 10)
	tx := s.Reader(context.Background())

	for _, e := range []models.Entry{
		{ID: "e3", RaffleID: "r1", UserID: "c", Quantity: 2, FirstTicket: 9, PaymentStatus: models.PaymentCompleted},
		{ID: "e1", RaffleID: "r1", UserID: "a", Quantity: 5, FirstTicket: 1, PaymentStatus: models.PaymentCompleted},
		{ID: "e2", RaffleID: "r1", UserID: "b", Quantity: 3, FirstTicket: 6, PaymentStatus: models.PaymentFailed},
	} {
		e := e
		require.NoError(t, tx.CreateEntry(&e))
	}

	entries, err := tx.CompletedEntries("r1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, "e3", entries[1].ID)
	assert.Equal(t, []int{9, 10}, entries[1].TicketNumbers())
}

func TestSettlePayment_OnlyFromPending(t *testing.T) {
	s := openTestStore(t)
	seedRaffle(t, s, "r1", 10)
	tx := s.Reader(context.Background())
	require.NoError(t, tx.CreateEntry(&models.Entry{ID: "e1", RaffleID: "r1", UserID: "a", Quantity: 1, FirstTicket: 1, PaymentStatus: models.PaymentPending}))

	require.NoError(t, tx.SettlePayment("e1", models.PaymentCompleted))
	assert.ErrorIs(t, tx.SettlePayment("e1", models.PaymentFailed), ErrConflict)
}

func TestAudits(t *testing.T) {
	s := openTestStore(t)
	tx := s.Reader(context.Background())
	now := time.Now().UTC()
	hash := "abc"

	require.NoError(t, tx.CreateDrawAudit(&models.DrawAudit{
		ID: "c1", RaffleID: "r1", DrawMethod: models.MethodPreCommitted,
		RandomSeed: "0.1|1|r1", SeedHash: &hash, Timestamp: now.Add(-time.Minute),
	}))
	require.NoError(t, tx.CreateDrawAudit(&models.DrawAudit{
		ID: "c2", RaffleID: "r1", DrawMethod: models.MethodPreCommitted,
		RandomSeed: "0.2|1|r1", SeedHash: &hash, Timestamp: now,
	}))

	c, err := tx.LatestCommitment("r1")
	require.NoError(t, err)
	assert.Equal(t, "c2", c.ID)

	_, err = tx.LatestCommitment("r2")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, tx.MarkAuditVerified("c1", now))
	assert.ErrorIs(t, tx.MarkAuditVerified("c1", now), ErrConflict)

	audits, err := tx.ListDrawAudits("r1")
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.True(t, audits[0].IsVerified)
	assert.NotNil(t, audits[0].VerifiedAt)
}

func TestComplianceLog(t *testing.T) {
	s := openTestStore(t)
	tx := s.Reader(context.Background())

	require.NoError(t, tx.AppendComplianceLog(&models.ComplianceLogEntry{
		ID: "l1", CreatedAt: time.Now(), RaffleID: "r1", Actor: "system",
		EventType: models.EventDrawConducted, ResourceID: "a1",
		Details: map[string]any{"winningTicket": 7},
	}))

	entries, err := tx.ListComplianceLog("r1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.EventDrawConducted, entries[0].EventType)
	// JSONMap decodes numbers as json.Number when read back.
	assert.Equal(t, json.Number("7"), entries[0].Details["winningTicket"])
}

func TestTransaction_SerializationFailureIsConflict(t *testing.T) {
	s := openTestStore(t)
	seedRaffle(t, s, "r1", 10)

	err := s.Transaction(context.Background(), func(tx *Tx) error {
		return fmt.Errorf("reserve: %w", &pgconn.PgError{Code: "40001", Message: "could not serialize access"})
	})
	assert.ErrorIs(t, err, ErrConflict)

	err = s.Transaction(context.Background(), func(tx *Tx) error {
		return &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	})
	assert.NotErrorIs(t, err, ErrConflict)
}
