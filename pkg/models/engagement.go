package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Engagement event types. Anything else in a batch is skipped, not an error.
const (
	EventImpression = "impression"
	EventDwell      = "dwell"
	EventOpen       = "open"
)

func ValidEventType(t string) bool {
	return t == EventImpression || t == EventDwell || t == EventOpen
}

// Day buckets for time-of-day preference learning.
const (
	DayTypeWeekday = "weekday"
	DayTypeWeekend = "weekend"
)

// DayTypeFor buckets a timestamp into weekday/weekend.
func DayTypeFor(t time.Time) string {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return DayTypeWeekend
	default:
		return DayTypeWeekday
	}
}

// EngagementEvent is the client-reported interaction fact. Hour, day and
// timestamps are stamped server-side at ingestion.
type EngagementEvent struct {
	LinkID        string   `json:"linkId"`
	EventType     string   `json:"eventType"`
	DwellTimeMs   *int     `json:"dwellTimeMs,omitempty"`
	SwipeVelocity *float64 `json:"swipeVelocity,omitempty"`
	CardIndex     *int     `json:"cardIndex,omitempty"`
	SessionID     string   `json:"sessionId,omitempty"`
	FeedRequestID string   `json:"feedRequestId,omitempty"`
}

// EngagementRequest accepts either {"events":[...]} or a bare event object.
type EngagementRequest struct {
	Events []EngagementEvent
}

func (r *EngagementRequest) UnmarshalJSON(data []byte) error {
	var batch struct {
		Events []EngagementEvent `json:"events"`
	}
	if err := json.Unmarshal(data, &batch); err == nil && batch.Events != nil {
		r.Events = batch.Events
		return nil
	}
	var single EngagementEvent
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("engagement payload is neither a batch nor an event: %w", err)
	}
	r.Events = []EngagementEvent{single}
	return nil
}

type EngagementResponse struct {
	OK        bool `json:"ok"`
	Processed int  `json:"processed"`
}

type TimePreference struct {
	UserID        string    `db:"user_id"`
	HourSlot      int       `db:"hour_slot"`
	DayType       string    `db:"day_type"`
	Category      string    `db:"category"`
	AvgEngagement float64   `db:"avg_engagement"`
	SampleCount   int       `db:"sample_count"`
	UpdatedAt     time.Time `db:"updated_at"`
}
