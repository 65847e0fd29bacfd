package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zaidalbayati/minaret/internal/db"
	"github.com/zaidalbayati/minaret/internal/metrics"
	"github.com/zaidalbayati/minaret/internal/prayer"
)

// Repository is the slice of store operations the scheduling side needs.
type Repository interface {
	ListActiveSubscribersWithLocation(ctx context.Context) ([]*db.Subscriber, error)
	ReplaceUnsentSchedule(ctx context.Context, subscriberID uuid.UUID, notifs []*db.ScheduledNotification) error
	InsertSchedule(ctx context.Context, notifs []*db.ScheduledNotification) error
	DueNotifications(ctx context.Context, now time.Time, limit int) ([]*db.DueNotification, error)
	CleanupSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Planner turns subscriber locations into schedule rows via the prayer
// time engine.
type Planner struct {
	repo    Repository
	profile prayer.Profile
	config  PlannerConfig
	logger  *zap.Logger

	now func() time.Time
}

// PlannerConfig holds planning parameters.
type PlannerConfig struct {
	// Lead is how long before each prayer the notification fires.
	Lead time.Duration
	// FallbackOffsetHours is used when a subscriber's timezone name
	// cannot be resolved (the Baghdad default, +3).
	FallbackOffsetHours float64
}

// NewPlanner creates a planner.
func NewPlanner(repo Repository, profile prayer.Profile, cfg PlannerConfig, logger *zap.Logger) *Planner {
	if cfg.Lead == 0 {
		cfg.Lead = time.Minute
	}

	return &Planner{
		repo:    repo,
		profile: profile,
		config:  cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// subscriberOffset resolves the subscriber's UTC offset, falling back
// to the fixed default when the zone name is unrecognised. The
// fallback is a warning, never fatal.
func (p *Planner) subscriberOffset(sub *db.Subscriber, at time.Time) float64 {
	offset, err := utcOffsetHours(sub.Timezone, at)
	if err != nil {
		p.logger.Warn("unresolvable timezone, using fallback offset",
			zap.String("subscriber_id", sub.ID.String()),
			zap.String("timezone", sub.Timezone),
			zap.Float64("fallback_offset_hours", p.config.FallbackOffsetHours),
		)
		return p.config.FallbackOffsetHours
	}
	return offset
}

// planDay builds one schedule row per reachable prayer event on the
// given date, at eventTime minus the lead. Rows whose notify time has
// already passed are skipped.
func (p *Planner) planDay(sub *db.Subscriber, offset float64, date prayer.Date, now time.Time) []*db.ScheduledNotification {
	times := prayer.Compute(*sub.Latitude, *sub.Longitude, offset, date, p.profile)

	var rows []*db.ScheduledNotification
	for _, name := range prayer.Scheduled() {
		at, ok := times.Get(name)
		if !ok {
			continue
		}
		notifyAt := at.Add(-p.config.Lead)
		if !notifyAt.After(now) {
			continue
		}
		rows = append(rows, &db.ScheduledNotification{
			SubscriberID:  sub.ID,
			PrayerName:    name,
			ScheduledTime: notifyAt,
		})
	}
	return rows
}

// ScheduleSubscriber replaces one subscriber's unsent schedule with
// freshly planned rows for today and tomorrow. Used on registration
// and location updates, where stale rows for the old location must go.
func (p *Planner) ScheduleSubscriber(ctx context.Context, sub *db.Subscriber) (int, error) {
	if !sub.HasLocation() {
		return 0, nil
	}

	now := p.now()
	offset := p.subscriberOffset(sub, now)
	today := prayer.DateOf(now.In(time.FixedZone("", int(offset*3600))))

	var rows []*db.ScheduledNotification
	for dayOffset := 0; dayOffset < 2; dayOffset++ {
		rows = append(rows, p.planDay(sub, offset, today.AddDays(dayOffset), now)...)
	}

	if err := p.repo.ReplaceUnsentSchedule(ctx, sub.ID, rows); err != nil {
		return 0, fmt.Errorf("replace schedule: %w", err)
	}

	metrics.RecordNotificationsScheduled(len(rows))

	p.logger.Info("subscriber rescheduled",
		zap.String("subscriber_id", sub.ID.String()),
		zap.Int("rows", len(rows)),
	)

	return len(rows), nil
}

// RescheduleAll plans today's rows for every active located subscriber
// and bulk-inserts them. It runs once per day after yesterday's rows
// are already sent or purged, so it does not clear existing rows; the
// unique constraint absorbs any overlap with on-demand schedules.
func (p *Planner) RescheduleAll(ctx context.Context) (int, error) {
	subs, err := p.repo.ListActiveSubscribersWithLocation(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscribers: %w", err)
	}

	metrics.SetActiveSubscribers(len(subs))

	if len(subs) == 0 {
		p.logger.Info("no active subscribers with location, nothing to schedule")
		return 0, nil
	}

	now := p.now()
	var rows []*db.ScheduledNotification
	for _, sub := range subs {
		offset := p.subscriberOffset(sub, now)
		today := prayer.DateOf(now.In(time.FixedZone("", int(offset*3600))))
		rows = append(rows, p.planDay(sub, offset, today, now)...)
	}

	if err := p.repo.InsertSchedule(ctx, rows); err != nil {
		return 0, fmt.Errorf("insert schedule: %w", err)
	}

	metrics.RecordNotificationsScheduled(len(rows))

	p.logger.Info("daily schedule generated",
		zap.Int("subscribers", len(subs)),
		zap.Int("rows", len(rows)),
	)

	return len(rows), nil
}
