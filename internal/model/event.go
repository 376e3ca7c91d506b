package model

import "time"

// Event status values. Transitions are upcoming -> completed in normal use.
const (
	EventStatusUpcoming  = "upcoming"
	EventStatusCompleted = "completed"
)

type Event struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Title            string    `json:"title"`
	Date             time.Time `json:"date"`
	ImageURL         *string   `json:"image_url"`
	Status           string    `json:"status"`
	NotificationSent bool      `json:"notification_sent"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
