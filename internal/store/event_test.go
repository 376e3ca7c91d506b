package store

import (
	"testing"
	"time"

	"github.com/herald-app/herald/internal/model"
)

func setupEventTest(t *testing.T) (*EventStore, int64) {
	t.Helper()
	db := newTestDB(t)
	uid := createTestUser(t, db, "owner@example.com")
	return NewEventStore(db), uid
}

func TestCreateEvent(t *testing.T) {
	s, uid := setupEventTest(t)

	date := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	e, err := s.Create(uid, "Dentist", date, nil)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if e.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if e.Status != model.EventStatusUpcoming {
		t.Errorf("status = %q, want %q", e.Status, model.EventStatusUpcoming)
	}
	if e.NotificationSent {
		t.Error("new event should not be marked notified")
	}
	if e.ImageURL != nil {
		t.Errorf("image_url = %v, want nil", *e.ImageURL)
	}
}

func TestCreateEventWithImage(t *testing.T) {
	s, uid := setupEventTest(t)

	img := "https://cdn.example.com/cake.png"
	e, err := s.Create(uid, "Birthday", time.Now().UTC().Add(time.Hour), &img)
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	if e.ImageURL == nil || *e.ImageURL != img {
		t.Errorf("image_url = %v, want %q", e.ImageURL, img)
	}
}

func TestListDueWindow(t *testing.T) {
	s, uid := setupEventTest(t)

	now := time.Now().UTC().Truncate(time.Second)
	windowStart := now.Add(25 * time.Minute)
	windowEnd := now.Add(35 * time.Minute)

	atStart, _ := s.Create(uid, "at window start", windowStart, nil)
	atEnd, _ := s.Create(uid, "at window end", windowEnd, nil)
	inside, _ := s.Create(uid, "inside window", now.Add(30*time.Minute), nil)
	s.Create(uid, "too soon", now.Add(10*time.Minute), nil)
	s.Create(uid, "too far", now.Add(40*time.Minute), nil)

	due, err := s.ListDue(windowStart, windowEnd)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 3 {
		t.Fatalf("len = %d, want 3", len(due))
	}

	want := map[int64]bool{atStart.ID: true, atEnd.ID: true, inside.ID: true}
	for _, e := range due {
		if !want[e.ID] {
			t.Errorf("unexpected due event %d (%s)", e.ID, e.Title)
		}
	}
}

func TestListDueExcludesNotified(t *testing.T) {
	s, uid := setupEventTest(t)

	now := time.Now().UTC().Truncate(time.Second)
	e, _ := s.Create(uid, "already notified", now.Add(30*time.Minute), nil)
	if err := s.MarkNotified(e.ID); err != nil {
		t.Fatalf("mark notified: %v", err)
	}

	due, err := s.ListDue(now.Add(25*time.Minute), now.Add(35*time.Minute))
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("len = %d, want 0", len(due))
	}
}

func TestListDueExcludesCompleted(t *testing.T) {
	s, uid := setupEventTest(t)

	now := time.Now().UTC().Truncate(time.Second)
	e, _ := s.Create(uid, "done early", now.Add(30*time.Minute), nil)
	if _, err := s.Update(e.ID, e.Title, e.Date, nil, model.EventStatusCompleted); err != nil {
		t.Fatalf("update: %v", err)
	}

	due, err := s.ListDue(now.Add(25*time.Minute), now.Add(35*time.Minute))
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("len = %d, want 0", len(due))
	}
}

func TestMarkNotifiedIdempotent(t *testing.T) {
	s, uid := setupEventTest(t)

	e, _ := s.Create(uid, "meeting", time.Now().UTC().Add(30*time.Minute), nil)

	if err := s.MarkNotified(e.ID); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := s.MarkNotified(e.ID); err != nil {
		t.Fatalf("second mark: %v", err)
	}

	got, _ := s.GetByID(e.ID)
	if !got.NotificationSent {
		t.Error("expected notification_sent = true")
	}
}

func TestListByUserStatusFilter(t *testing.T) {
	s, uid := setupEventTest(t)

	a, _ := s.Create(uid, "upcoming one", time.Now().UTC().Add(time.Hour), nil)
	b, _ := s.Create(uid, "finished one", time.Now().UTC().Add(2*time.Hour), nil)
	s.Update(b.ID, b.Title, b.Date, nil, model.EventStatusCompleted)

	all, err := s.ListByUser(uid, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("all len = %d, want 2", len(all))
	}

	upcoming, err := s.ListByUser(uid, model.EventStatusUpcoming)
	if err != nil {
		t.Fatalf("list upcoming: %v", err)
	}
	if len(upcoming) != 1 || upcoming[0].ID != a.ID {
		t.Fatalf("upcoming = %+v, want just event %d", upcoming, a.ID)
	}
}

func TestListByUserSortedByDate(t *testing.T) {
	s, uid := setupEventTest(t)

	later, _ := s.Create(uid, "later", time.Now().UTC().Add(3*time.Hour), nil)
	sooner, _ := s.Create(uid, "sooner", time.Now().UTC().Add(time.Hour), nil)

	events, err := s.ListByUser(uid, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].ID != sooner.ID || events[1].ID != later.ID {
		t.Errorf("order = [%d %d], want [%d %d]", events[0].ID, events[1].ID, sooner.ID, later.ID)
	}
}

func TestDeleteEvent(t *testing.T) {
	s, uid := setupEventTest(t)

	e, _ := s.Create(uid, "gone", time.Now().UTC().Add(time.Hour), nil)
	if err := s.Delete(e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := s.GetByID(e.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}
