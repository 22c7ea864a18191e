package services

import (
	"context"
	"errors"
	"time"

	"raffle/internal/models"
	"raffle/internal/storage"
)

const (
	TransparencyFullyVerified       = "FULLY_VERIFIED"
	TransparencyPendingVerification = "PENDING_VERIFICATION"
)

// AuditSummary is one row of a compliance report.
type AuditSummary struct {
	AuditID             string     `json:"auditId"              csv:"audit_id"`
	DrawMethod          string     `json:"drawMethod"           csv:"draw_method"`
	Kind                string     `json:"kind"                 csv:"kind"`
	CommitmentHash      string     `json:"commitmentHash"       csv:"commitment_hash"`
	WinningTicketNumber int        `json:"winningTicketNumber"  csv:"winning_ticket"`
	WinnerUserID        string     `json:"winnerUserId"         csv:"winner_user_id"`
	TotalTickets        int        `json:"totalTickets"         csv:"total_tickets"`
	TotalParticipants   int        `json:"totalParticipants"    csv:"total_participants"`
	Witnessed           bool       `json:"witnessed"            csv:"witnessed"`
	BlockchainHash      string     `json:"blockchainHash"       csv:"blockchain_hash"`
	IsVerified          bool       `json:"isVerified"           csv:"verified"`
	Timestamp           time.Time  `json:"timestamp"            csv:"timestamp"`
	VerifiedAt          *time.Time `json:"verifiedAt,omitempty" csv:"-"`
}

// ComplianceReport summarizes every audit of one raffle.
type ComplianceReport struct {
	RaffleID           string                      `json:"raffleId"`
	RaffleStatus       models.RaffleStatus         `json:"raffleStatus,omitempty"`
	GeneratedAt        time.Time                   `json:"generatedAt"`
	TotalAudits        int                         `json:"totalAudits"`
	TotalDraws         int                         `json:"totalDraws"`
	VerifiedDraws      int                         `json:"verifiedDraws"`
	TransparencyStatus string                      `json:"transparencyStatus"`
	Audits             []AuditSummary              `json:"audits"`
	Events             []models.ComplianceLogEntry `json:"events"`
}

type ReportService struct {
	store *storage.Store
	now   func() time.Time
}

func NewReportService(store *storage.Store) *ReportService {
	return &ReportService{store: store, now: time.Now}
}

// GenerateComplianceReport works from the audit rows alone, so a purged
// raffle still reports as long as its audits exist.
func (r *ReportService) GenerateComplianceReport(ctx context.Context, raffleID string) (*ComplianceReport, error) {
	reader := r.store.Reader(ctx)

	report := &ComplianceReport{
		RaffleID:    raffleID,
		GeneratedAt: r.now().UTC(),
		Audits:      []AuditSummary{},
	}
	raffle, err := reader.GetRaffle(raffleID)
	switch {
	case err == nil:
		report.RaffleStatus = raffle.Status
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	audits, err := reader.ListDrawAudits(raffleID)
	if err != nil {
		return nil, err
	}
	if raffle == nil && len(audits) == 0 {
		return nil, ErrRaffleNotFound
	}

	for i := range audits {
		a := &audits[i]
		s := AuditSummary{
			AuditID:           a.ID,
			DrawMethod:        string(a.DrawMethod),
			Kind:              "draw",
			CommitmentHash:    deref(a.SeedHash),
			WinnerUserID:      deref(a.WinnerUserID),
			TotalTickets:      a.TotalTickets,
			TotalParticipants: a.TotalParticipants,
			Witnessed:         a.WitnessSignature != nil,
			BlockchainHash:    deref(a.BlockchainHash),
			IsVerified:        a.IsVerified,
			Timestamp:         a.Timestamp,
			VerifiedAt:        a.VerifiedAt,
		}
		if a.WinningTicketNumber == nil {
			s.Kind = "commitment"
		} else {
			s.WinningTicketNumber = *a.WinningTicketNumber
			report.TotalDraws++
			if a.IsVerified {
				report.VerifiedDraws++
			}
		}
		report.Audits = append(report.Audits, s)
	}
	report.TotalAudits = len(audits)

	report.TransparencyStatus = TransparencyPendingVerification
	if report.TotalDraws > 0 && report.VerifiedDraws == report.TotalDraws {
		report.TransparencyStatus = TransparencyFullyVerified
	}

	events, err := reader.ListComplianceLog(raffleID)
	if err != nil {
		return nil, err
	}
	report.Events = events
	return report, nil
}
