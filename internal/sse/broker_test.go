package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "match.completed", Data: map[string]string{"catName": "Oreo"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: match.completed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"catName":"Oreo"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishSighting_MapThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First coordinate-bearing sighting should trigger locations.updated.
	b.PublishSighting("Oreo", true)
	// Second one inside the throttle window should NOT.
	b.PublishSighting("Twix", true)

	// Drain and count events.
	time.Sleep(50 * time.Millisecond)
	mapCount := 0
	sightingCount := 0
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			if strings.Contains(s, "locations.updated") {
				mapCount++
			} else {
				sightingCount++
			}
		default:
			break loop
		}
	}

	if sightingCount != 2 {
		t.Errorf("expected 2 sighting.created events, got %d", sightingCount)
	}
	if mapCount != 1 {
		t.Errorf("expected 1 throttled locations.updated event, got %d", mapCount)
	}
}

func TestPublishSighting_NoCoordsNoMapEvent(t *testing.T) {
	b := NewBroker(10 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishSighting("Eggs", false)

	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), "locations.updated") {
				t.Fatal("sighting without coordinates must not refresh the map")
			}
		default:
			return
		}
	}
}

func TestServeHTTPStreamsEvents(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.ServeHTTP(rec, req)
	}()

	// Wait for the handler's subscription before publishing.
	deadline := time.After(time.Second)
	for b.ClientCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	b.Publish(Event{Type: "sighting.created", Data: map[string]string{"catName": "Snickers"}})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: sighting.created") || !strings.Contains(body, "Snickers") {
		t.Errorf("unexpected body %q", body)
	}
}

func TestCloseIdempotent(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	b.Close()
	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("client channel should be closed after broker Close")
	}
	if b.ClientCount() != 0 {
		t.Fatal("expected 0 clients after close")
	}
}
