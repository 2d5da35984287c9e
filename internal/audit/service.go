package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher mirrors audit events to an external sink. Nil means local-only.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Service captures structured audit events. Persistence failures are the
// caller's problem; publish failures are logged and dropped, the store row is
// the source of truth.
type Service struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	clock     func() time.Time
}

// NewService constructs the audit service. publisher may be nil.
func NewService(store Store, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{store: store, publisher: publisher, logger: logger, clock: time.Now}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Emit stamps and appends one audit event.
func (s *Service) Emit(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
	}
	if err := s.store.Append(ctx, event); err != nil {
		return err
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "audit publish failed",
				"event_id", event.ID,
				"action", event.Action,
				"error", err,
			)
		}
	}
	return nil
}

// ListByEntity returns the trail for one entity in append order.
func (s *Service) ListByEntity(ctx context.Context, entityType, entityID string) ([]Event, error) {
	return s.store.ListByEntity(ctx, entityType, entityID)
}
