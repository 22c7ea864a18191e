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

// DrawOptions carries the optional attestations of a draw.
type DrawOptions struct {
	WitnessEmail   string `json:"witnessEmail"`
	VideoRecording string `json:"videoRecording"`
	BlockchainHash string `json:"blockchainHash"`
}

// DrawResult is what a completed draw returns to the operator.
type DrawResult struct {
	Winner              string `json:"winner"`
	WinningTicketNumber int    `json:"winningTicketNumber"`
	DrawProof           string `json:"drawProof"`
	AuditID             string `json:"auditId"`
	WitnessSignature    string `json:"witnessSignature,omitempty"`
	CommitmentHash      string `json:"commitmentHash,omitempty"`
}

// PoolTicket is one slot of the draw pool.
type PoolTicket struct {
	TicketNumber int
	UserID       string
}

// BuildPool flattens completed entries into ticket-ordered slots and counts
// the distinct participants.
func BuildPool(entries []models.Entry) ([]PoolTicket, int) {
	var pool []PoolTicket
	users := make(map[string]struct{})
	for i := range entries {
		e := &entries[i]
		if e.PaymentStatus != models.PaymentCompleted {
			continue
		}
		users[e.UserID] = struct{}{}
		for _, n := range e.TicketNumbers() {
			pool = append(pool, PoolTicket{TicketNumber: n, UserID: e.UserID})
		}
	}
	return pool, len(users)
}

// DrawEngine selects raffle winners.
type DrawEngine struct {
	store      *storage.Store
	source     random.Source
	proofs     *proof.Generator
	sealer     *SeedSealer
	compliance *ComplianceLogger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewDrawEngine(store *storage.Store, source random.Source, proofs *proof.Generator, sealer *SeedSealer, compliance *ComplianceLogger, m *metrics.Metrics) *DrawEngine {
	return &DrawEngine{
		store:      store,
		source:     source,
		proofs:     proofs,
		sealer:     sealer,
		compliance: compliance,
		metrics:    m,
		now:        time.Now,
	}
}

// DrawWinner picks one ticket uniformly from the completed entries and ends
// the raffle. Loading the pool, picking the ticket, ending the raffle and
// writing the audit happen in one transaction: either all of it is stored
// or none of it. A raffle that has ended can never be drawn again.
//
// If a seed commitment was published for the raffle, its seed decides the
// draw and is revealed in the audit; otherwise a fresh sample is taken.
func (e *DrawEngine) DrawWinner(ctx context.Context, raffleID string, opts DrawOptions) (*DrawResult, error) {
	start := time.Now()
	var (
		result *DrawResult
		audit  *models.DrawAudit
	)

	err := e.store.Transaction(ctx, func(tx *storage.Tx) error {
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

		entries, err := tx.CompletedEntries(raffleID)
		if err != nil {
			return err
		}
		pool, participants := BuildPool(entries)
		if len(pool) == 0 {
			return ErrNoEligibleEntries
		}

		seed, commitment, err := e.drawSeed(tx, raffleID)
		if err != nil {
			return err
		}
		idx, err := random.Index(seed.Sample, len(pool))
		if err != nil {
			return err
		}
		winner := pool[idx]

		now := e.now().UTC()
		meta := proof.DrawMetadata{
			RaffleID:          raffleID,
			TotalTickets:      len(pool),
			TotalParticipants: participants,
			Timestamp:         now,
			RandomSeed:        seed.Raw,
			BlockchainHash:    opts.BlockchainHash,
		}
		audit = &models.DrawAudit{
			ID:                  uuid.NewString(),
			RaffleID:            raffleID,
			DrawMethod:          models.MethodCryptoSecure,
			RandomSeed:          seed.Raw,
			WinningTicketNumber: &winner.TicketNumber,
			WinnerUserID:        &winner.UserID,
			TotalTickets:        len(pool),
			TotalParticipants:   participants,
			WitnessEmail:        optional(opts.WitnessEmail),
			VideoRecording:      optional(opts.VideoRecording),
			BlockchainHash:      optional(opts.BlockchainHash),
			Timestamp:           now,
		}
		if commitment != nil {
			meta.SeedHash = *commitment.SeedHash
			audit.SeedHash = commitment.SeedHash
			audit.CommitmentAuditID = &commitment.ID
			audit.ScheduledDrawTime = commitment.ScheduledDrawTime
		}

		blob, err := e.proofs.GenerateProof(meta, winner.TicketNumber, winner.UserID)
		if err != nil {
			return err
		}
		audit.DrawProof = blob

		result = &DrawResult{
			Winner:              winner.UserID,
			WinningTicketNumber: winner.TicketNumber,
			DrawProof:           blob,
			AuditID:             audit.ID,
			CommitmentHash:      meta.SeedHash,
		}

		if opts.WitnessEmail != "" {
			sig, err := e.proofs.GenerateWitnessSignature(proof.Witness{
				DrawMetadata: meta,
				WitnessEmail: opts.WitnessEmail,
				SignedAt:     now,
			})
			if err != nil {
				return err
			}
			audit.DrawMethod = models.MethodCryptoSecureWitnessed
			audit.WitnessSignature = &sig
			result.WitnessSignature = sig
		}

		if err := tx.MarkRaffleDrawn(raffleID, winner.UserID, winner.TicketNumber); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return ErrRaffleAlreadyDrawn
			}
			return err
		}
		return tx.CreateDrawAudit(audit)
	})
	e.metrics.DrawDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		err = e.classify(ctx, raffleID, err)
		e.metrics.DrawFailures.WithLabelValues(failureReason(err)).Inc()
		logger.Warningf("draw for raffle %s aborted: %v", raffleID, err)
		return nil, err
	}

	e.metrics.Draws.WithLabelValues(string(audit.DrawMethod)).Inc()
	e.compliance.LogEvent(ctx, raffleID, models.EventDrawConducted, audit.ID, map[string]any{
		"auditId":           audit.ID,
		"drawMethod":        string(audit.DrawMethod),
		"winningTicket":     result.WinningTicketNumber,
		"winnerUserId":      result.Winner,
		"totalTickets":      audit.TotalTickets,
		"totalParticipants": audit.TotalParticipants,
		"preCommitted":      audit.SeedHash != nil,
		"witnessed":         audit.WitnessSignature != nil,
		"drawnAt":           audit.Timestamp.Format(time.RFC3339Nano),
	})
	logger.Infof("raffle %s drawn: ticket #%d won by %s (audit %s)", raffleID, result.WinningTicketNumber, result.Winner, audit.ID)
	return result, nil
}

// drawSeed reveals the raffle's open commitment or takes a fresh sample.
func (e *DrawEngine) drawSeed(tx *storage.Tx, raffleID string) (Seed, *models.DrawAudit, error) {
	commitment, err := tx.LatestCommitment(raffleID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		sample, err := e.source.Uniform()
		if err != nil {
			return Seed{}, nil, err
		}
		return Seed{Raw: FormatSample(sample), Sample: sample}, nil, nil
	case err != nil:
		return Seed{}, nil, err
	}

	raw, err := e.sealer.Open(commitment.RandomSeed)
	if err != nil {
		return Seed{}, nil, err
	}
	seed, err := ParseSeed(raw)
	if err != nil || seed.RaffleID != raffleID || commitment.SeedHash == nil || proof.HashSeed(raw) != *commitment.SeedHash {
		return Seed{}, nil, fmt.Errorf("%w: commitment %s", ErrCommitmentMalformed, commitment.ID)
	}
	return seed, commitment, nil
}

// classify turns a failed commit into ErrRaffleAlreadyDrawn when a
// concurrent draw won the race, e.g. a postgres serialization failure.
func (e *DrawEngine) classify(ctx context.Context, raffleID string, err error) error {
	if errors.Is(err, ErrRaffleNotFound) || errors.Is(err, ErrNoEligibleEntries) ||
		errors.Is(err, ErrRaffleAlreadyDrawn) || errors.Is(err, ErrEntropyUnavailable) {
		return err
	}
	if raffle, gerr := e.store.Reader(ctx).GetRaffle(raffleID); gerr == nil && raffle.Status == models.RaffleEnded {
		return fmt.Errorf("%w: %v", ErrRaffleAlreadyDrawn, err)
	}
	return err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
