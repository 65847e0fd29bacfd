package push

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/zaidalbayati/minaret/internal/prayer"
)

// Payload is the fixed notification structure delivered to clients.
// The shape is validated here rather than assembled ad hoc at call
// sites, so every alert carries the same tagged fields.
type Payload struct {
	Title              string          `json:"title"`
	Body               string          `json:"body"`
	Icon               string          `json:"icon"`
	Badge              string          `json:"badge"`
	Tag                string          `json:"tag"`
	RequireInteraction bool            `json:"requireInteraction"`
	Vibrate            []int           `json:"vibrate"`
	Data               PayloadData     `json:"data"`
	Actions            []PayloadAction `json:"actions"`
}

// PayloadData carries the machine-readable part of the alert.
type PayloadData struct {
	Prayer    prayer.Name `json:"prayer"`
	Timestamp int64       `json:"timestamp"`
	PlayAdhan bool        `json:"playAdhan"`
}

// PayloadAction is one button on the rendered notification.
type PayloadAction struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

// NewPrayerPayload builds the alert for one prayer event.
func NewPrayerPayload(name prayer.Name, at time.Time) Payload {
	title := name.ArabicTitle()
	return Payload{
		Title:              fmt.Sprintf("🕌 حان وقت صلاة %s", title),
		Body:               fmt.Sprintf("حان الآن وقت صلاة %s", title),
		Icon:               "/assets/icons/icon-192x192.png",
		Badge:              "/assets/icons/icon-72x72.png",
		Tag:                fmt.Sprintf("prayer-%s", name),
		RequireInteraction: true,
		Vibrate:            []int{200, 100, 200},
		Data: PayloadData{
			Prayer:    name,
			Timestamp: at.UnixMilli(),
			PlayAdhan: true,
		},
		Actions: []PayloadAction{
			{Action: "play-adhan", Title: "🎵 تشغيل الأذان"},
			{Action: "dismiss", Title: "تجاهل"},
		},
	}
}

// Marshal serializes the payload for the wire.
func (p Payload) Marshal() ([]byte, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal push payload: %w", err)
	}
	return b, nil
}
