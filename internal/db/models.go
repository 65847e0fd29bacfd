package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/zaidalbayati/minaret/internal/prayer"
)

// Subscriber is a registered push subscription with its last known
// location. Endpoint is globally unique; re-registration with the same
// endpoint updates keys and location in place.
type Subscriber struct {
	ID        uuid.UUID `json:"id"`
	Endpoint  string    `json:"endpoint"`
	KeyP256dh string    `json:"-"`
	KeyAuth   string    `json:"-"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Timezone  string    `json:"timezone"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasLocation reports whether both coordinates are present. No
// schedule is generated until they are.
func (s *Subscriber) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// ScheduledNotification is one pending or delivered prayer alert.
// Rows are unique per (subscriber, prayer, scheduled time) and flip
// from unsent to sent exactly once.
type ScheduledNotification struct {
	ID            uuid.UUID   `json:"id"`
	SubscriberID  uuid.UUID   `json:"subscriber_id"`
	PrayerName    prayer.Name `json:"prayer_name"`
	ScheduledTime time.Time   `json:"scheduled_time"`
	Sent          bool        `json:"sent"`
	SentAt        *time.Time  `json:"sent_at,omitempty"`
	LastError     *string     `json:"last_error,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// DueNotification is a due, unsent schedule row joined to its
// subscriber's delivery credentials.
type DueNotification struct {
	ID            uuid.UUID
	SubscriberID  uuid.UUID
	PrayerName    prayer.Name
	ScheduledTime time.Time
	Endpoint      string
	KeyP256dh     string
	KeyAuth       string
}

// Delivery log status constants.
const (
	LogStatusSent   = "sent"
	LogStatusFailed = "failed"
)

// Stats holds the aggregate counters exposed on the stats endpoint.
type Stats struct {
	ActiveSubscribers    int64 `json:"active_subscribers"`
	PendingNotifications int64 `json:"pending_notifications"`
	SentToday            int64 `json:"sent_today"`
}
