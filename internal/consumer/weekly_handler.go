package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"example.com/swimlog/internal/domain"
	"example.com/swimlog/internal/events"
)

// ActivityLister loads the activities of an owner.
type ActivityLister interface {
	ListActivities(ctx context.Context, owner domain.Owner) ([]domain.Activity, error)
}

// WeeklyStore persists the weekly progress projection.
type WeeklyStore interface {
	UpsertWeekly(ctx context.Context, owner domain.Owner, report domain.WeeklyReport) error
}

// WeeklyProgressHandler recomputes the current week of the affected swimmer whenever one of
// their activities is recorded or deleted.
type WeeklyProgressHandler struct {
	activities ActivityLister
	store      WeeklyStore
	target     domain.WeeklyTarget
	location   *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

// NewWeeklyProgressHandler constructs a handler. A nil location means time.Local.
func NewWeeklyProgressHandler(activities ActivityLister, store WeeklyStore, target domain.WeeklyTarget, location *time.Location, logger *slog.Logger) *WeeklyProgressHandler {
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WeeklyProgressHandler{
		activities: activities,
		store:      store,
		target:     target,
		location:   location,
		now:        time.Now,
		logger:     logger,
	}
}

// Handle implements Handler. Unknown event types are ignored.
func (h *WeeklyProgressHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeActivityRecorded, events.TypeActivityDeleted:
	default:
		h.logger.Debug("ignoring event", "event_type", msg.EventType)
		return nil
	}

	owner := msg.Owner
	if !owner.Valid() {
		return fmt.Errorf("%s for activity %s: %w", msg.EventType, msg.ActivityID, domain.ErrInvalidOwner)
	}

	all, err := h.activities.ListActivities(ctx, owner)
	if err != nil {
		return fmt.Errorf("list activities: %w", err)
	}
	report := domain.WeeklyStats(all, h.now().In(h.location), h.target)
	if err := h.store.UpsertWeekly(ctx, owner, report); err != nil {
		return fmt.Errorf("store weekly progress: %w", err)
	}
	h.logger.Info("weekly progress refreshed",
		"tenant_id", owner.TenantID,
		"user_id", owner.UserID,
		"week_start", report.Start.Format("2006-01-02"),
		"distance", report.Stats.TotalDistance,
	)
	return nil
}
