package services

import (
	"context"
	"time"

	"raffle/internal/metrics"
	"raffle/internal/models"
	"raffle/internal/storage"

	"github.com/google/logger"
	"github.com/google/uuid"
)

type actorKey struct{}

const systemActor = "system"

// WithActor tags ctx with the operator responsible for the actions it carries.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor set by WithActor, or "system".
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey{}).(string); ok && actor != "" {
		return actor
	}
	return systemActor
}

// ComplianceLogger appends entries to the compliance trail. The trail
// supplements the draw audits, so a failed write is reported and swallowed.
type ComplianceLogger struct {
	store   *storage.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewComplianceLogger(store *storage.Store, m *metrics.Metrics) *ComplianceLogger {
	return &ComplianceLogger{store: store, metrics: m, now: time.Now}
}

// LogEvent records one event. It never fails the caller.
func (c *ComplianceLogger) LogEvent(ctx context.Context, raffleID string, eventType models.ComplianceEventType, resourceID string, details map[string]any) {
	if details == nil {
		details = map[string]any{}
	}
	now := c.now().UTC()
	details["loggedAt"] = now.Format(time.RFC3339Nano)
	entry := &models.ComplianceLogEntry{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		RaffleID:   raffleID,
		Actor:      ActorFromContext(ctx),
		EventType:  eventType,
		ResourceID: resourceID,
		Details:    details,
	}
	if err := c.store.Reader(context.WithoutCancel(ctx)).AppendComplianceLog(entry); err != nil {
		c.metrics.ComplianceLogFailures.Inc()
		logger.Errorf("compliance log: %s for raffle %s (resource %s) not recorded: %v", eventType, raffleID, resourceID, err)
		return
	}
	logger.Infof("compliance log: %s raffle=%s resource=%s actor=%s", eventType, raffleID, resourceID, entry.Actor)
}
