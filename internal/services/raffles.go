package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffle/internal/models"
	"raffle/internal/storage"

	"github.com/google/logger"
	"github.com/google/uuid"
)

// purchaseAttempts bounds retries when two purchases race for the counter.
const purchaseAttempts = 3

// RaffleService owns raffle creation and ticket sales, the write path that
// feeds the draw pool.
type RaffleService struct {
	store *storage.Store
	now   func() time.Time
}

func NewRaffleService(store *storage.Store) *RaffleService {
	return &RaffleService{store: store, now: time.Now}
}

// CreateRaffle opens a raffle for sales.
func (s *RaffleService) CreateRaffle(ctx context.Context, title string, totalTickets int, endTime time.Time) (*models.Raffle, error) {
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidRaffle)
	}
	if totalTickets <= 0 {
		return nil, fmt.Errorf("%w: total tickets must be positive", ErrInvalidRaffle)
	}
	if !endTime.After(s.now()) {
		return nil, fmt.Errorf("%w: end time must be in the future", ErrInvalidRaffle)
	}
	r := &models.Raffle{
		ID:           uuid.NewString(),
		Title:        title,
		Status:       models.RaffleActive,
		TotalTickets: totalTickets,
		EndTime:      endTime.UTC(),
	}
	if err := s.store.Reader(ctx).CreateRaffle(r); err != nil {
		return nil, err
	}
	logger.Infof("created raffle %s (%q, %d tickets)", r.ID, title, totalTickets)
	return r, nil
}

func (s *RaffleService) GetRaffle(ctx context.Context, id string) (*models.Raffle, error) {
	r, err := s.store.Reader(ctx).GetRaffle(id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRaffleNotFound
	}
	return r, err
}

// PurchaseTickets assigns the next quantity ticket numbers to userID. The
// entry starts pending until the payment collaborator settles it.
func (s *RaffleService) PurchaseTickets(ctx context.Context, raffleID, userID string, quantity int) (*models.Entry, error) {
	if userID == "" || quantity <= 0 {
		return nil, fmt.Errorf("%w: user and a positive quantity are required", ErrInvalidRaffle)
	}
	var lastErr error
	for attempt := 0; attempt < purchaseAttempts; attempt++ {
		entry, err := s.purchaseOnce(ctx, raffleID, userID, quantity)
		if !errors.Is(err, storage.ErrConflict) {
			return entry, err
		}
		lastErr = err
		logger.Warningf("ticket allocation for raffle %s raced, retrying (%d/%d)", raffleID, attempt+1, purchaseAttempts)
	}
	return nil, fmt.Errorf("%w: %v", ErrTicketConflict, lastErr)
}

func (s *RaffleService) purchaseOnce(ctx context.Context, raffleID, userID string, quantity int) (*models.Entry, error) {
	var entry *models.Entry
	err := s.store.Transaction(ctx, func(tx *storage.Tx) error {
		raffle, err := tx.GetRaffle(raffleID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRaffleNotFound
		}
		if err != nil {
			return err
		}
		if raffle.Status != models.RaffleActive || !s.now().Before(raffle.EndTime) {
			return ErrRaffleNotOpen
		}
		if raffle.SoldTickets+quantity > raffle.TotalTickets {
			return fmt.Errorf("%w: %d left", ErrSoldOut, raffle.TotalTickets-raffle.SoldTickets)
		}
		if err := tx.ReserveTickets(raffleID, raffle.SoldTickets, quantity); err != nil {
			return err
		}
		entry = &models.Entry{
			ID:            uuid.NewString(),
			RaffleID:      raffleID,
			UserID:        userID,
			Quantity:      quantity,
			FirstTicket:   raffle.SoldTickets + 1,
			PaymentStatus: models.PaymentPending,
		}
		return tx.CreateEntry(entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// ConfirmPayment records the payment collaborator's verdict. Once the raffle
// has ended its pool is frozen and no verdict is accepted.
func (s *RaffleService) ConfirmPayment(ctx context.Context, entryID string, status models.PaymentStatus) (*models.Entry, error) {
	if status != models.PaymentCompleted && status != models.PaymentFailed {
		return nil, ErrInvalidPayment
	}
	var entry *models.Entry
	err := s.store.Transaction(ctx, func(tx *storage.Tx) error {
		e, err := tx.GetEntry(entryID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrEntryNotFound
		}
		if err != nil {
			return err
		}
		raffle, err := tx.GetRaffle(e.RaffleID)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrRaffleNotFound
		}
		if err != nil {
			return err
		}
		if raffle.Status == models.RaffleEnded {
			return ErrRaffleNotOpen
		}
		if err := tx.SettlePayment(entryID, status); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return ErrPaymentSettled
			}
			return err
		}
		e.PaymentStatus = status
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("entry %s payment %s", entryID, status)
	return entry, nil
}
