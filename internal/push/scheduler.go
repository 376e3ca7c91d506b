package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/herald-app/herald/internal/model"
	"github.com/herald-app/herald/internal/store"
	"github.com/herald-app/herald/internal/websocket"

	"go.uber.org/multierr"
)

const defaultIcon = "/icon.svg"

// Sender delivers one payload to one subscription. *Service implements it;
// tests substitute fakes.
type Sender interface {
	Send(sub *model.PushSubscription, payload Payload) error
}

// SchedulerConfig holds the sweep cadence and the notification window,
// expressed as offsets from the sweep instant. The window must be wider
// than the interval or delayed sweeps can skip events entirely.
type SchedulerConfig struct {
	Interval    time.Duration
	WindowStart time.Duration
	WindowEnd   time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.WindowStart <= 0 {
		c.WindowStart = 25 * time.Minute
	}
	if c.WindowEnd <= 0 {
		c.WindowEnd = 35 * time.Minute
	}
	return c
}

// Scheduler periodically finds events entering the notification window and
// fans reminder pushes out to the owner's devices. Each event is handled
// best-effort: once the fan-out settles the event is marked notified no
// matter how many deliveries failed.
type Scheduler struct {
	sender Sender
	events *store.EventStore
	users  *store.UserStore
	subs   *store.PushStore
	hub    *websocket.Hub
	cfg    SchedulerConfig
	logger *slog.Logger

	mu     sync.Mutex // guards cancel/done
	cancel context.CancelFunc
	done   chan struct{}

	sweepMu sync.Mutex // serializes sweeps (timer vs manual trigger)
}

// NewScheduler creates a notification scheduler. hub may be nil.
func NewScheduler(sender Sender, events *store.EventStore, users *store.UserStore, subs *store.PushStore, hub *websocket.Hub, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sender: sender,
		events: events,
		users:  users,
		subs:   subs,
		hub:    hub,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// Start begins the scheduler loop: one sweep immediately, then one per
// interval. Starting an already-running scheduler is a logged no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		s.logger.Warn("scheduler already running")
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.logger.Info("scheduler starting",
		"interval", s.cfg.Interval,
		"window_start", s.cfg.WindowStart,
		"window_end", s.cfg.WindowEnd)

	go func() {
		defer close(done)

		if err := s.sweep(ctx); err != nil {
			s.logger.Error("sweep failed", "error", err)
		}

		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.sweep(ctx); err != nil {
					s.logger.Error("sweep failed", "error", err)
				}
			}
		}
	}()
}

// Stop cancels future sweeps and waits for the loop to exit. An in-flight
// sweep runs to completion. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// TriggerCheck runs exactly one sweep synchronously. Used by the
// trigger-check endpoint for operational diagnostics.
func (s *Scheduler) TriggerCheck(ctx context.Context) error {
	s.logger.Info("manual sweep triggered")
	return s.sweep(ctx)
}

// sweep selects events entering the window and notifies each one. A store
// error abandons the cycle; state is unchanged so the next tick retries
// naturally. The mutex keeps an overlapping manual trigger from dispatching
// the same events twice.
func (s *Scheduler) sweep(ctx context.Context) error {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	now := time.Now().UTC()
	windowStart := now.Add(s.cfg.WindowStart)
	windowEnd := now.Add(s.cfg.WindowEnd)

	events, err := s.events.ListDue(windowStart, windowEnd)
	if err != nil {
		return fmt.Errorf("list due events: %w", err)
	}
	if len(events) == 0 {
		s.logger.Debug("no events due", "window_start", windowStart, "window_end", windowEnd)
		return nil
	}

	s.logger.Info("events due for notification", "count", len(events))
	for i := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.notifyEvent(&events[i], now)
	}
	return nil
}

// notifyEvent fans one event's reminder out to every subscription of its
// owner. Dispatches are concurrent and all-settle: no outcome aborts its
// siblings. Dead endpoints are pruned as they are discovered. Whatever
// happens, the event ends up marked notified, except when the owner or
// subscription lookup itself fails, in which case the event stays eligible
// for the next sweep.
func (s *Scheduler) notifyEvent(event *model.Event, now time.Time) {
	owner, err := s.users.GetByID(event.UserID)
	if err != nil {
		s.logger.Error("load event owner", "event_id", event.ID, "error", err)
		return
	}
	if owner == nil {
		// Orphaned event; nobody to notify.
		s.logger.Warn("event owner missing", "event_id", event.ID, "user_id", event.UserID)
		s.markNotified(event)
		return
	}

	subs, err := s.subs.ListByUser(owner.ID)
	if err != nil {
		s.logger.Error("list subscriptions", "event_id", event.ID, "error", err)
		return
	}
	if len(subs) == 0 {
		// No subscriber counts as handled, otherwise every future sweep
		// would re-select the event for nothing.
		s.logger.Info("no subscriptions for event", "event_id", event.ID, "title", event.Title)
		s.markNotified(event)
		return
	}

	payload := s.buildPayload(event, now)

	var (
		wg        sync.WaitGroup
		resultMu  sync.Mutex
		delivered int
		expired   int
		failures  error
	)

	for i := range subs {
		wg.Add(1)
		go func(sub model.PushSubscription) {
			defer wg.Done()

			err := s.sender.Send(&sub, payload)
			switch {
			case err == nil:
				resultMu.Lock()
				delivered++
				resultMu.Unlock()
			case errors.Is(err, ErrExpired):
				if derr := s.subs.DeleteByEndpoint(sub.Endpoint); derr != nil {
					s.logger.Error("remove expired subscription", "endpoint", sub.Endpoint, "error", derr)
				} else {
					s.logger.Info("removed expired subscription", "user_id", sub.UserID, "endpoint", sub.Endpoint)
				}
				resultMu.Lock()
				expired++
				resultMu.Unlock()
			default:
				resultMu.Lock()
				failures = multierr.Append(failures, fmt.Errorf("endpoint %s: %w", sub.Endpoint, err))
				resultMu.Unlock()
			}
		}(subs[i])
	}
	wg.Wait()

	if failures != nil {
		s.logger.Warn("some dispatches failed",
			"event_id", event.ID,
			"delivered", delivered,
			"expired", expired,
			"error", failures)
	} else {
		s.logger.Info("event notifications sent",
			"event_id", event.ID,
			"title", event.Title,
			"delivered", delivered,
			"expired", expired)
	}

	// Unconditional: a partially failed fan-out still counts as handled.
	s.markNotified(event)
}

func (s *Scheduler) buildPayload(event *model.Event, now time.Time) Payload {
	minutes := int(event.Date.Sub(now).Round(time.Minute) / time.Minute)

	icon := defaultIcon
	if event.ImageURL != nil && *event.ImageURL != "" {
		icon = *event.ImageURL
	}

	return Payload{
		Title:              "Event Reminder",
		Body:               fmt.Sprintf("%q starts in %d minutes!", event.Title, minutes),
		Icon:               icon,
		Badge:              defaultIcon,
		Tag:                fmt.Sprintf("event-%d", event.ID),
		RequireInteraction: true,
		Data: PayloadData{
			EventID: strconv.FormatInt(event.ID, 10),
			URL:     "/dashboard",
		},
	}
}

func (s *Scheduler) markNotified(event *model.Event) {
	if err := s.events.MarkNotified(event.ID); err != nil {
		s.logger.Error("mark event notified", "event_id", event.ID, "error", err)
		return
	}
	event.NotificationSent = true
	if s.hub != nil {
		s.hub.Broadcast(websocket.NewMessage("event", "notified", event.ID, nil))
	}
}
