package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffle/internal/metrics"
	"raffle/internal/models"
	"raffle/internal/proof"
	"raffle/internal/random"
	"raffle/internal/storage"

	"github.com/google/logger"
	"github.com/google/uuid"
)

// Commitment is the public side of a published seed commitment.
type Commitment struct {
	AuditID           string    `json:"auditId"`
	RaffleID          string    `json:"raffleId"`
	CommitmentHash    string    `json:"commitmentHash"`
	ScheduledDrawTime time.Time `json:"scheduledDrawTime"`
	PublishedAt       time.Time `json:"publishedAt"`
}

// CommitmentManager fixes a draw seed ahead of time and publishes its hash.
type CommitmentManager struct {
	store      *storage.Store
	source     random.Source
	sealer     *SeedSealer
	compliance *ComplianceLogger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewCommitmentManager(store *storage.Store, source random.Source, sealer *SeedSealer, compliance *ComplianceLogger, m *metrics.Metrics) *CommitmentManager {
	return &CommitmentManager{
		store:      store,
		source:     source,
		sealer:     sealer,
		compliance: compliance,
		metrics:    m,
		now:        time.Now,
	}
}

// PublishSeedCommitment draws the seed for a future draw and stores a
// PRE_COMMITTED audit row holding the seed and its SHA-256 hash. Only the
// hash is returned; the seed is revealed by the draw itself. A raffle holds
// at most one open commitment, so a published seed can never be replaced
// by a more favourable one.
func (m *CommitmentManager) PublishSeedCommitment(ctx context.Context, raffleID string, scheduledDrawTime time.Time) (*Commitment, error) {
	now := m.now().UTC()
	if !scheduledDrawTime.After(now) {
		return nil, ErrInvalidCommitment
	}
	audit := &models.DrawAudit{
		ID:         uuid.NewString(),
		RaffleID:   raffleID,
		DrawMethod: models.MethodPreCommitted,
		Timestamp:  now,
	}
	var hash string

	err := m.store.Transaction(ctx, func(tx *storage.Tx) error {
		raffle, err := tx.GetRaffle(raffleID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRaffleNotFound
		}
		if err != nil {
			return err
		}
		if raffle.Status == models.RaffleEnded {
			return ErrRaffleAlreadyDrawn
		}
		switch open, err := tx.LatestCommitment(raffleID); {
		case err == nil:
			return fmt.Errorf("%w: %s", ErrCommitmentExists, open.ID)
		case !errors.Is(err, storage.ErrNotFound):
			return err
		}

		sample, err := m.source.Uniform()
		if err != nil {
			return fmt.Errorf("commitment seed: %w", err)
		}
		seed := committedSeed(sample, scheduledDrawTime, raffleID)
		hash = proof.HashSeed(seed)
		stored, err := m.sealer.Seal(seed)
		if err != nil {
			return err
		}

		drawTime := scheduledDrawTime.UTC()
		audit.RandomSeed = stored
		audit.SeedHash = &hash
		audit.ScheduledDrawTime = &drawTime
		return tx.CreateDrawAudit(audit)
	})
	if err != nil {
		logger.Warningf("commitment for raffle %s not published: %v", raffleID, err)
		return nil, err
	}

	m.metrics.Commitments.Inc()
	m.compliance.LogEvent(ctx, raffleID, models.EventCommitmentPublished, audit.ID, map[string]any{
		"auditId":           audit.ID,
		"commitmentHash":    hash,
		"scheduledDrawTime": scheduledDrawTime.UTC().Format(time.RFC3339),
		"sealed":            m.sealer != nil,
	})
	logger.Infof("published seed commitment %s for raffle %s", hash, raffleID)

	return &Commitment{
		AuditID:           audit.ID,
		RaffleID:          raffleID,
		CommitmentHash:    hash,
		ScheduledDrawTime: scheduledDrawTime.UTC(),
		PublishedAt:       now,
	}, nil
}
