package models

import (
	"time"

	"gorm.io/datatypes"
)

// RaffleStatus is the lifecycle state of a raffle.
type RaffleStatus string

const (
	RaffleUpcoming RaffleStatus = "upcoming"
	RaffleActive   RaffleStatus = "active"
	RaffleEnded    RaffleStatus = "ended"
)

// PaymentStatus is the payment collaborator's verdict on an entry.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// DrawMethod records how the randomness of a draw audit was produced.
type DrawMethod string

const (
	MethodCryptoSecure          DrawMethod = "CRYPTO_SECURE"
	MethodCryptoSecureWitnessed DrawMethod = "CRYPTO_SECURE_WITNESSED"
	MethodPreCommitted          DrawMethod = "PRE_COMMITTED"
)

// ComplianceEventType names a lifecycle event in the compliance trail.
type ComplianceEventType string

const (
	EventCommitmentPublished ComplianceEventType = "COMMITMENT_PUBLISHED"
	EventDrawConducted       ComplianceEventType = "DRAW_CONDUCTED"
	EventDrawVerified        ComplianceEventType = "DRAW_VERIFIED"
	EventVerificationFailed  ComplianceEventType = "VERIFICATION_FAILED"
)

// Raffle is a sellable draw event.
// SoldTickets never exceeds TotalTickets, and once Status is ended the
// winner fields are never written again.
type Raffle struct {
	ID                  string       `gorm:"type:VARCHAR(36);primaryKey" json:"id"`
	Title               string       `gorm:"not null" json:"title"`
	Status              RaffleStatus `gorm:"type:VARCHAR(16);not null;index" json:"status"`
	TotalTickets        int          `gorm:"not null" json:"totalTickets"`
	SoldTickets         int          `gorm:"not null;default:0" json:"soldTickets"`
	EndTime             time.Time    `gorm:"not null" json:"endTime"`
	WinnerID            *string      `gorm:"type:VARCHAR(64)" json:"winnerId,omitempty"`
	WinningTicketNumber *int         `json:"winningTicketNumber,omitempty"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
}

// Entry is one ticket purchase. Its tickets are the contiguous range
// FirstTicket .. FirstTicket+Quantity-1 within the raffle.
type Entry struct {
	ID            string        `gorm:"type:VARCHAR(36);primaryKey" json:"id"`
	RaffleID      string        `gorm:"type:VARCHAR(36);not null;index;uniqueIndex:ux_entry_first_ticket,priority:1" json:"raffleId"`
	UserID        string        `gorm:"type:VARCHAR(64);not null;index" json:"userId"`
	Quantity      int           `gorm:"not null" json:"quantity"`
	FirstTicket   int           `gorm:"not null;uniqueIndex:ux_entry_first_ticket,priority:2" json:"firstTicket"`
	PaymentStatus PaymentStatus `gorm:"type:VARCHAR(16);not null;index" json:"paymentStatus"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// TicketNumbers expands the entry's ticket range.
func (e *Entry) TicketNumbers() []int {
	tickets := make([]int, 0, e.Quantity)
	for i := 0; i < e.Quantity; i++ {
		tickets = append(tickets, e.FirstTicket+i)
	}
	return tickets
}

// DrawAudit is the compliance record of truth for one commitment or one draw.
// It has no foreign key to raffles and outlives the raffle row.
type DrawAudit struct {
	ID                  string     `gorm:"type:VARCHAR(36);primaryKey" json:"id"`
	RaffleID            string     `gorm:"type:VARCHAR(36);not null;index" json:"raffleId"`
	DrawMethod          DrawMethod `gorm:"type:VARCHAR(32);not null" json:"drawMethod"`
	RandomSeed          string     `gorm:"type:TEXT;not null" json:"randomSeed"`
	SeedHash            *string    `gorm:"type:VARCHAR(64);index" json:"seedHash,omitempty"`
	CommitmentAuditID   *string    `gorm:"type:VARCHAR(36)" json:"commitmentAuditId,omitempty"`
	ScheduledDrawTime   *time.Time `json:"scheduledDrawTime,omitempty"`
	WinningTicketNumber *int       `json:"winningTicketNumber,omitempty"`
	WinnerUserID        *string    `gorm:"type:VARCHAR(64)" json:"winnerUserId,omitempty"`
	TotalTickets        int        `gorm:"not null;default:0" json:"totalTickets"`
	TotalParticipants   int        `gorm:"not null;default:0" json:"totalParticipants"`
	DrawProof           string     `gorm:"type:TEXT" json:"drawProof,omitempty"`
	WitnessSignature    *string    `gorm:"type:TEXT" json:"witnessSignature,omitempty"`
	WitnessEmail        *string    `gorm:"type:VARCHAR(255)" json:"witnessEmail,omitempty"`
	VideoRecording      *string    `gorm:"type:TEXT" json:"videoRecording,omitempty"`
	BlockchainHash      *string    `gorm:"type:VARCHAR(128)" json:"blockchainHash,omitempty"`
	IsVerified          bool       `gorm:"not null;default:false" json:"isVerified"`
	VerifiedAt          *time.Time `json:"verifiedAt,omitempty"`
	Timestamp           time.Time  `gorm:"not null;index" json:"timestamp"`
}

// ComplianceLogEntry is one write-once entry of the compliance trail.
type ComplianceLogEntry struct {
	ID         string              `gorm:"type:VARCHAR(36);primaryKey" json:"id"`
	CreatedAt  time.Time           `gorm:"not null;index" json:"createdAt"`
	RaffleID   string              `gorm:"type:VARCHAR(36);not null;index" json:"raffleId"`
	Actor      string              `gorm:"type:VARCHAR(128);not null" json:"actor"`
	EventType  ComplianceEventType `gorm:"type:VARCHAR(64);not null;index" json:"eventType"`
	ResourceID string              `gorm:"type:VARCHAR(36);index" json:"resourceId"`
	Details    datatypes.JSONMap   `gorm:"not null" json:"details"`
}

// MigrateModels lists every table the engine owns.
var MigrateModels = []any{
	&Raffle{},
	&Entry{},
	&DrawAudit{},
	&ComplianceLogEntry{},
}
