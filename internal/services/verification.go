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
)

// VerificationResult explains the outcome of a verification.
type VerificationResult struct {
	AuditID        string   `json:"auditId"`
	RaffleID       string   `json:"raffleId"`
	Verified       bool     `json:"verified"`
	PreCommitted   bool     `json:"preCommitted"`
	ExpectedTicket int      `json:"expectedTicket,omitempty"`
	RecordedTicket int      `json:"recordedTicket,omitempty"`
	Discrepancies  []string `json:"discrepancies,omitempty"`
}

// VerificationService replays recorded draws from their revealed seeds.
type VerificationService struct {
	store      *storage.Store
	compliance *ComplianceLogger
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewVerificationService(store *storage.Store, compliance *ComplianceLogger, m *metrics.Metrics) *VerificationService {
	return &VerificationService{store: store, compliance: compliance, metrics: m, now: time.Now}
}

// VerifyDrawWithCommitment reports whether the audit's draw reproduces from
// its seed and, when one was published, matches its commitment.
func (v *VerificationService) VerifyDrawWithCommitment(ctx context.Context, raffleID, auditID string) (bool, error) {
	res, err := v.Verify(ctx, raffleID, auditID)
	if err != nil {
		return false, err
	}
	return res.Verified, nil
}

// Verify runs every check and returns the details. A successful check marks
// the audit verified; a failing one leaves it untouched and is logged to the
// compliance trail.
func (v *VerificationService) Verify(ctx context.Context, raffleID, auditID string) (*VerificationResult, error) {
	reader := v.store.Reader(ctx)
	audit, err := reader.GetDrawAudit(auditID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrAuditNotFound
	}
	if err != nil {
		return nil, err
	}
	if audit.RaffleID != raffleID {
		return nil, ErrAuditRaffleMismatch
	}

	res := &VerificationResult{
		AuditID:      audit.ID,
		RaffleID:     raffleID,
		PreCommitted: audit.SeedHash != nil,
	}
	if audit.WinningTicketNumber == nil {
		// A commitment with no draw yet has nothing to replay.
		res.Discrepancies = []string{"draw not conducted yet"}
		return res, nil
	}
	res.RecordedTicket = *audit.WinningTicketNumber

	entries, err := reader.CompletedEntries(raffleID)
	if err != nil {
		return nil, err
	}
	pool, _ := BuildPool(entries)

	var commitment *models.DrawAudit
	if audit.CommitmentAuditID != nil {
		commitment, err = reader.GetDrawAudit(*audit.CommitmentAuditID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}

	res.Discrepancies = checkDraw(audit, commitment, pool, &res.ExpectedTicket)
	if audit.CommitmentAuditID != nil && commitment == nil {
		res.Discrepancies = append(res.Discrepancies, "referenced commitment audit is missing")
	}
	res.Verified = len(res.Discrepancies) == 0

	if !res.Verified {
		v.metrics.Verifications.WithLabelValues("mismatch").Inc()
		logger.Warningf("verification of audit %s (raffle %s) failed: %v", audit.ID, raffleID, res.Discrepancies)
		v.compliance.LogEvent(ctx, raffleID, models.EventVerificationFailed, audit.ID, map[string]any{
			"auditId":        audit.ID,
			"discrepancies":  res.Discrepancies,
			"recordedTicket": res.RecordedTicket,
			"expectedTicket": res.ExpectedTicket,
		})
		return res, nil
	}

	v.metrics.Verifications.WithLabelValues("verified").Inc()
	if audit.IsVerified {
		return res, nil
	}
	verifiedAt := v.now().UTC()
	if err := reader.MarkAuditVerified(audit.ID, verifiedAt); err != nil && !errors.Is(err, storage.ErrConflict) {
		return nil, err
	}
	v.compliance.LogEvent(ctx, raffleID, models.EventDrawVerified, audit.ID, map[string]any{
		"auditId":       audit.ID,
		"winningTicket": res.RecordedTicket,
		"preCommitted":  res.PreCommitted,
		"verifiedAt":    verifiedAt.Format(time.RFC3339Nano),
	})
	return res, nil
}

// checkDraw lists everything about the audit that does not reproduce.
func checkDraw(audit, commitment *models.DrawAudit, pool []PoolTicket, expected *int) []string {
	var problems []string

	seed, err := ParseSeed(audit.RandomSeed)
	if err != nil {
		return []string{fmt.Sprintf("seed unreadable: %v", err)}
	}

	if audit.SeedHash != nil {
		if proof.HashSeed(audit.RandomSeed) != *audit.SeedHash {
			problems = append(problems, "revealed seed does not match commitment hash")
		}
		if seed.RaffleID != audit.RaffleID {
			problems = append(problems, "seed is bound to a different raffle")
		}
		if commitment != nil && (commitment.SeedHash == nil || *commitment.SeedHash != *audit.SeedHash) {
			problems = append(problems, "commitment hash differs from the published commitment")
		}
		if commitment != nil && !commitment.Timestamp.Before(audit.Timestamp) {
			problems = append(problems, "commitment was not published before the draw")
		}
	}

	idx, err := random.Index(seed.Sample, audit.TotalTickets)
	if err != nil {
		return append(problems, fmt.Sprintf("winning index not computable: %v", err))
	}
	*expected = idx + 1
	switch {
	case len(pool) == 0:
		// Entries are gone; fall back to the 1..N numbering convention.
	case len(pool) != audit.TotalTickets:
		problems = append(problems, fmt.Sprintf("pool holds %d tickets, audit recorded %d", len(pool), audit.TotalTickets))
	default:
		*expected = pool[idx].TicketNumber
		if audit.WinnerUserID == nil || *audit.WinnerUserID != pool[idx].UserID {
			problems = append(problems, "recorded winner does not own the winning ticket")
		}
	}
	if *expected != *audit.WinningTicketNumber {
		problems = append(problems, fmt.Sprintf("seed selects ticket %d, audit recorded %d", *expected, *audit.WinningTicketNumber))
	}

	problems = append(problems, checkProof(audit)...)
	return problems
}

func checkProof(audit *models.DrawAudit) []string {
	bundle, ok, err := proof.VerifyBlob(audit.DrawProof)
	if err != nil {
		return []string{fmt.Sprintf("draw proof unreadable: %v", err)}
	}
	var problems []string
	if !ok {
		problems = append(problems, "draw proof hash does not match its fields")
	}
	p := bundle.Proof
	if p.DrawMetadata.RandomSeed != audit.RandomSeed {
		problems = append(problems, "draw proof seed differs from audit seed")
	}
	if p.WinningTicket != *audit.WinningTicketNumber {
		problems = append(problems, "draw proof ticket differs from audit ticket")
	}
	if p.DrawMetadata.TotalTickets != audit.TotalTickets {
		problems = append(problems, "draw proof pool size differs from audit pool size")
	}
	if audit.WitnessSignature != nil {
		valid, err := proof.VerifyWitnessSignature(proof.Witness{
			DrawMetadata: p.DrawMetadata,
			WitnessEmail: deref(audit.WitnessEmail),
			SignedAt:     p.DrawMetadata.Timestamp,
		}, *audit.WitnessSignature)
		if err != nil || !valid {
			problems = append(problems, "witness signature does not match the draw")
		}
	}
	return problems
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
