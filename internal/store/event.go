package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/herald-app/herald/internal/model"
)

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

const eventCols = `id, user_id, title, date, image_url, status, notification_sent, created_at, updated_at`

func scanEvent(scanner interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	var imageURL sql.NullString
	var sentInt int

	err := scanner.Scan(&e.ID, &e.UserID, &e.Title, &e.Date, &imageURL, &e.Status, &sentInt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	e.NotificationSent = sentInt != 0
	if imageURL.Valid {
		e.ImageURL = &imageURL.String
	}
	return &e, nil
}

func (s *EventStore) Create(userID int64, title string, date time.Time, imageURL *string) (*model.Event, error) {
	var img sql.NullString
	if imageURL != nil {
		img = sql.NullString{String: *imageURL, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO events (user_id, title, date, image_url, status, notification_sent)
		 VALUES (?, ?, ?, ?, ?, 0)`,
		userID, title, date.UTC(), img, model.EventStatusUpcoming,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *EventStore) GetByID(id int64) (*model.Event, error) {
	row := s.db.QueryRow(`SELECT `+eventCols+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	return e, nil
}

// ListByUser returns a user's events ordered by date ascending. An empty
// status lists all of them.
func (s *EventStore) ListByUser(userID int64, status string) ([]model.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events WHERE user_id = ?`
	args := []any{userID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY date ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events by user: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListUpcoming returns every upcoming event, regardless of owner, ordered
// by date ascending.
func (s *EventStore) ListUpcoming() ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM events WHERE status = ? ORDER BY date ASC`,
		model.EventStatusUpcoming,
	)
	if err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListDue returns events starting inside [start, end] (inclusive on both
// bounds) that are still upcoming and have not been notified.
func (s *EventStore) ListDue(start, end time.Time) ([]model.Event, error) {
	rows, err := s.db.Query(
		`SELECT `+eventCols+` FROM events
		 WHERE date >= ? AND date <= ? AND notification_sent = 0 AND status = ?`,
		start.UTC(), end.UTC(), model.EventStatusUpcoming,
	)
	if err != nil {
		return nil, fmt.Errorf("list due events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkNotified flips the event's notification flag. Idempotent; the flag
// never transitions back to unsent.
func (s *EventStore) MarkNotified(id int64) error {
	_, err := s.db.Exec(
		`UPDATE events SET notification_sent = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark event notified: %w", err)
	}
	return nil
}

func (s *EventStore) Update(id int64, title string, date time.Time, imageURL *string, status string) (*model.Event, error) {
	var img sql.NullString
	if imageURL != nil {
		img = sql.NullString{String: *imageURL, Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE events
		 SET title = ?, date = ?, image_url = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		title, date.UTC(), img, status, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}

	return s.GetByID(id)
}

func (s *EventStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	return nil
}

func scanEvents(rows *sql.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}
