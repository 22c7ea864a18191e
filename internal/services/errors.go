package services

import (
	"errors"

	"raffle/internal/random"
)

var (
	ErrRaffleNotFound      = errors.New("raffle not found")
	ErrNoEligibleEntries   = errors.New("raffle has no completed entries")
	ErrRaffleAlreadyDrawn  = errors.New("raffle already drawn")
	ErrEntropyUnavailable  = random.ErrEntropyUnavailable
	ErrAuditNotFound       = errors.New("draw audit not found")
	ErrAuditRaffleMismatch = errors.New("draw audit belongs to another raffle")

	ErrInvalidRaffle       = errors.New("invalid raffle")
	ErrRaffleNotOpen       = errors.New("raffle is not open for sales")
	ErrSoldOut             = errors.New("not enough tickets left")
	ErrTicketConflict      = errors.New("ticket allocation raced with another purchase")
	ErrEntryNotFound       = errors.New("entry not found")
	ErrPaymentSettled      = errors.New("entry payment already settled")
	ErrInvalidPayment      = errors.New("payment status must be completed or failed")
	ErrInvalidCommitment   = errors.New("scheduled draw time must be in the future")
	ErrCommitmentExists    = errors.New("raffle already has an open seed commitment")
	ErrCommitmentMalformed = errors.New("stored commitment seed is malformed")
)

// failureReason labels a draw error for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrRaffleNotFound):
		return "raffle_not_found"
	case errors.Is(err, ErrNoEligibleEntries):
		return "no_eligible_entries"
	case errors.Is(err, ErrRaffleAlreadyDrawn):
		return "already_drawn"
	case errors.Is(err, ErrEntropyUnavailable):
		return "entropy_unavailable"
	default:
		return "internal"
	}
}
