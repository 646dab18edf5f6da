package alerts

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crowdwatch-worker-go/internal/models"
	"crowdwatch-worker-go/internal/services/events"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []interface{}
	err      error
}

func (p *recordingPublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subjects)
}

func alert(session string) models.AlertEvent {
	return models.AlertEvent{ID: "a", SessionID: session, Source: models.AlertSourceStream, PeopleCount: 30, Confidence: 0.9, Timestamp: time.Now()}
}

func TestDispatchWithoutCooldownFiresEveryTime(t *testing.T) {
	pub := &recordingPublisher{}
	hub := events.NewHub(8)
	sub, cancel := hub.Subscribe()
	defer cancel()

	d := NewDispatcher(pub, hub, "alerts", "state", 0, zerolog.Nop())
	for i := 0; i < 3; i++ {
		if !d.Dispatch(alert("s1")) {
			t.Fatalf("dispatch %d blocked", i)
		}
	}

	if pub.count() != 3 {
		t.Fatalf("published %d alerts, want 3", pub.count())
	}
	if pub.subjects[0] != "alerts" {
		t.Errorf("subject = %q", pub.subjects[0])
	}
	for i := 0; i < 3; i++ {
		ev := <-sub
		if ev.Type != events.TypeAlert || ev.SessionID != "s1" {
			t.Fatalf("hub event = %+v", ev)
		}
	}
}

func TestDispatchCooldown(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, nil, "alerts", "state", 10*time.Second, zerolog.Nop())

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	if !d.Dispatch(alert("s1")) {
		t.Fatal("first alert blocked")
	}
	if d.Dispatch(alert("s1")) {
		t.Fatal("second alert inside cooldown delivered")
	}
	if !d.Dispatch(alert("s2")) {
		t.Fatal("cooldown must be per session")
	}

	now = now.Add(10 * time.Second)
	if !d.Dispatch(alert("s1")) {
		t.Fatal("alert after cooldown blocked")
	}

	now = now.Add(time.Second)
	d.Reset("s1")
	if !d.Dispatch(alert("s1")) {
		t.Fatal("alert after Reset blocked")
	}
	if pub.count() != 4 {
		t.Fatalf("published %d, want 4", pub.count())
	}
}

func TestEndedSessionDropsCooldown(t *testing.T) {
	d := NewDispatcher(nil, nil, "alerts", "state", time.Hour, zerolog.Nop())

	if !d.Dispatch(alert("s1")) {
		t.Fatal("first alert blocked")
	}
	if d.Dispatch(alert("s1")) {
		t.Fatal("second alert inside cooldown delivered")
	}

	d.PublishState(StateChange{SessionID: "s1", State: models.ConnectionState{Phase: models.PhaseConnectedFallback}})
	if d.Dispatch(alert("s1")) {
		t.Fatal("cooldown dropped on a non-terminal transition")
	}

	d.PublishState(StateChange{SessionID: "s1", State: models.ConnectionState{Phase: models.PhaseDisconnected}})
	if !d.Dispatch(alert("s1")) {
		t.Fatal("alert blocked after the session ended")
	}

	d.cooldownMu.Lock()
	n := len(d.lastSent)
	d.cooldownMu.Unlock()
	if n != 1 {
		t.Fatalf("cooldown entries = %d, want 1", n)
	}
}

func TestExpiredCooldownEntriesArePruned(t *testing.T) {
	d := NewDispatcher(nil, nil, "alerts", "state", 10*time.Second, zerolog.Nop())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	for _, id := range []string{"s1", "s2", "s3"} {
		d.Dispatch(alert(id))
	}
	now = now.Add(time.Minute)
	d.Dispatch(alert("s4"))

	d.cooldownMu.Lock()
	defer d.cooldownMu.Unlock()
	if len(d.lastSent) != 1 {
		t.Fatalf("cooldown entries = %d, want 1", len(d.lastSent))
	}
}

func TestDispatchPublisherErrorStillDelivers(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("nats down")}
	hub := events.NewHub(1)
	sub, cancel := hub.Subscribe()
	defer cancel()

	d := NewDispatcher(pub, hub, "alerts", "state", 0, zerolog.Nop())
	if !d.Dispatch(alert("s1")) {
		t.Fatal("dispatch reported blocked")
	}
	if ev := <-sub; ev.Type != events.TypeAlert {
		t.Fatalf("hub event = %+v", ev)
	}
}

func TestPublishState(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub, nil, "alerts", "state", 0, zerolog.Nop())
	d.PublishState(StateChange{SessionID: "s1", State: models.ConnectionState{Phase: models.PhaseConnecting}})

	if pub.count() != 1 || pub.subjects[0] != "state" {
		t.Fatalf("subjects = %v", pub.subjects)
	}

	NewDispatcher(nil, nil, "alerts", "state", 0, zerolog.Nop()).PublishState(StateChange{})
}
