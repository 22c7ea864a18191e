package services

import (
	"time"

	"raffle/internal/metrics"
	"raffle/internal/proof"
	"raffle/internal/random"
	"raffle/internal/storage"
)

// Services wires the engine's components over one store.
type Services struct {
	Raffles     *RaffleService
	Commitments *CommitmentManager
	Draws       *DrawEngine
	Verifier    *VerificationService
	Reports     *ReportService
	Compliance  *ComplianceLogger
}

// New builds the component graph. A nil source uses crypto/rand, a nil
// sealer stores commitment seeds in plaintext and nil metrics are kept
// unregistered.
func New(store *storage.Store, source random.Source, proofs *proof.Generator, sealer *SeedSealer, m *metrics.Metrics) *Services {
	if source == nil {
		source = random.NewCryptoSource()
	}
	if proofs == nil {
		proofs = proof.NewGenerator()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	compliance := NewComplianceLogger(store, m)
	return &Services{
		Raffles:     NewRaffleService(store),
		Commitments: NewCommitmentManager(store, source, sealer, compliance, m),
		Draws:       NewDrawEngine(store, source, proofs, sealer, compliance, m),
		Verifier:    NewVerificationService(store, compliance, m),
		Reports:     NewReportService(store),
		Compliance:  compliance,
	}
}

// SetClock replaces the time source of every component.
func (s *Services) SetClock(now func() time.Time) {
	s.Raffles.now = now
	s.Commitments.now = now
	s.Draws.now = now
	s.Verifier.now = now
	s.Reports.now = now
	s.Compliance.now = now
}
