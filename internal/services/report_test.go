package services

import (
	"context"
	"testing"
	"time"

	"raffle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateComplianceReport(t *testing.T) {
	f := newFixture(t, fixedSource(t, 0.65), nil)
	ctx := context.Background()

	_, err := f.svc.Reports.GenerateComplianceReport(ctx, "missing")
	assert.ErrorIs(t, err, ErrRaffleNotFound)

	r := f.abcRaffle(t)

	t.Run("no audits yet", func(t *testing.T) {
		report, err := f.svc.Reports.GenerateComplianceReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RaffleActive, report.RaffleStatus)
		assert.Zero(t, report.TotalAudits)
		assert.Equal(t, TransparencyPendingVerification, report.TransparencyStatus)
	})

	c, err := f.svc.Commitments.PublishSeedCommitment(ctx, r.ID, baseTime.Add(time.Hour))
	require.NoError(t, err)

	t.Run("commitment only", func(t *testing.T) {
		report, err := f.svc.Reports.GenerateComplianceReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, report.TotalAudits)
		assert.Zero(t, report.TotalDraws)
		assert.Equal(t, TransparencyPendingVerification, report.TransparencyStatus)
		require.Len(t, report.Audits, 1)
		assert.Equal(t, "commitment", report.Audits[0].Kind)
		assert.Equal(t, c.CommitmentHash, report.Audits[0].CommitmentHash)
	})

	res, err := f.svc.Draws.DrawWinner(ctx, r.ID, DrawOptions{})
	require.NoError(t, err)

	t.Run("drawn but unverified", func(t *testing.T) {
		report, err := f.svc.Reports.GenerateComplianceReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RaffleEnded, report.RaffleStatus)
		assert.Equal(t, 2, report.TotalAudits)
		assert.Equal(t, 1, report.TotalDraws)
		assert.Zero(t, report.VerifiedDraws)
		assert.Equal(t, TransparencyPendingVerification, report.TransparencyStatus)
	})

	ok, err := f.svc.Verifier.VerifyDrawWithCommitment(ctx, r.ID, res.AuditID)
	require.NoError(t, err)
	require.True(t, ok)

	t.Run("fully verified", func(t *testing.T) {
		report, err := f.svc.Reports.GenerateComplianceReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, report.VerifiedDraws)
		assert.Equal(t, TransparencyFullyVerified, report.TransparencyStatus)

		draw := report.Audits[1]
		assert.Equal(t, "draw", draw.Kind)
		assert.Equal(t, 7, draw.WinningTicketNumber)
		assert.Equal(t, "B", draw.WinnerUserID)
		assert.True(t, draw.IsVerified)
		assert.NotNil(t, draw.VerifiedAt)
		assert.Len(t, report.Events, 3)
	})

	t.Run("survives a purged raffle", func(t *testing.T) {
		require.NoError(t, f.store.DB().Where("id = ?", r.ID).Delete(&models.Raffle{}).Error)
		report, err := f.svc.Reports.GenerateComplianceReport(ctx, r.ID)
		require.NoError(t, err)
		assert.Empty(t, report.RaffleStatus)
		assert.Equal(t, TransparencyFullyVerified, report.TransparencyStatus)
	})
}

func TestActorFromContext(t *testing.T) {
	assert.Equal(t, "system", ActorFromContext(context.Background()))
	assert.Equal(t, "system", ActorFromContext(WithActor(context.Background(), "")))
	assert.Equal(t, "ops", ActorFromContext(WithActor(context.Background(), "ops")))
}
