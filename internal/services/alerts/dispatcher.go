// Package alerts delivers crowd alerts and session state changes to the
// message bus and the browser event hub.
package alerts

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/events"
)

// StateChange is published on the state subject for every session transition
type StateChange struct {
	SessionID     string                 `json:"session_id"`
	State         models.ConnectionState `json:"state"`
	TransportMode models.TransportMode   `json:"transport_mode,omitempty"`
	CanonicalURL  string                 `json:"canonical_url,omitempty"`
	Timestamp     time.Time              `json:"timestamp"`
}

// Dispatcher publishes alerts with an optional per-session cooldown. A zero
// cooldown lets every alert through.
type Dispatcher struct {
	publisher     models.MessagePublisher
	hub           *events.Hub
	alertsSubject string
	stateSubject  string
	cooldown      time.Duration
	logger        zerolog.Logger

	cooldownMu sync.Mutex
	lastSent   map[string]time.Time
	now        func() time.Time
}

// NewDispatcher builds a dispatcher. publisher may be nil when the bus is
// unavailable; events then only reach the hub.
func NewDispatcher(publisher models.MessagePublisher, hub *events.Hub, alertsSubject, stateSubject string, cooldown time.Duration, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		publisher:     publisher,
		hub:           hub,
		alertsSubject: alertsSubject,
		stateSubject:  stateSubject,
		cooldown:      cooldown,
		logger:        logger,
		lastSent:      make(map[string]time.Time),
		now:           time.Now,
	}

	logger.Info().
		Dur("cooldown", cooldown).
		Bool("bus", publisher != nil).
		Msg("Alert dispatcher initialized")
	return d
}

// Dispatch delivers ev unless the session is still cooling down. It reports
// whether the alert was delivered.
func (d *Dispatcher) Dispatch(ev models.AlertEvent) bool {
	key := string(ev.Source) + ":" + ev.SessionID
	if !d.checkAndUpdateCooldown(key) {
		d.logger.Debug().
			Str("session_id", ev.SessionID).
			Dur("cooldown", d.cooldown).
			Msg("Alert blocked by cooldown")
		return false
	}

	if d.hub != nil {
		d.hub.Publish(events.Event{Type: events.TypeAlert, SessionID: ev.SessionID, Data: ev, Timestamp: ev.Timestamp})
	}

	if d.publisher != nil {
		if err := d.publisher.Publish(d.alertsSubject, ev); err != nil {
			d.logger.Error().Err(err).Str("subject", d.alertsSubject).Msg("Failed to publish alert")
		}
	}

	d.logger.Info().
		Str("session_id", ev.SessionID).
		Str("source", string(ev.Source)).
		Uint("people_count", ev.PeopleCount).
		Float64("confidence", ev.Confidence).
		Msg("Crowd alert dispatched")
	return true
}

// PublishState announces a session transition on the bus. A session that
// ended drops its cooldown entry.
func (d *Dispatcher) PublishState(change StateChange) {
	switch change.State.Phase {
	case models.PhaseDisconnected, models.PhaseError:
		if change.SessionID != "" {
			d.Reset(change.SessionID)
		}
	}

	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(d.stateSubject, change); err != nil {
		d.logger.Warn().Err(err).Str("subject", d.stateSubject).Msg("Failed to publish state change")
	}
}

// Reset forgets the cooldown state of a session
func (d *Dispatcher) Reset(sessionID string) {
	d.cooldownMu.Lock()
	defer d.cooldownMu.Unlock()
	for _, src := range []models.AlertSource{models.AlertSourceStream, models.AlertSourceUpload} {
		delete(d.lastSent, string(src)+":"+sessionID)
	}
}

func (d *Dispatcher) checkAndUpdateCooldown(key string) bool {
	if d.cooldown <= 0 {
		return true
	}

	d.cooldownMu.Lock()
	defer d.cooldownMu.Unlock()

	now := d.now()
	if last, ok := d.lastSent[key]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	for k, last := range d.lastSent {
		if now.Sub(last) >= d.cooldown {
			delete(d.lastSent, k)
		}
	}
	d.lastSent[key] = now
	return true
}
