package server

import (
	"encoding/json"
	"testing"
	"time"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub()
	go h.Run()
	t.Cleanup(h.Stop)
	return h
}

func recvEvent(t *testing.T, sub *Subscriber) map[string]any {
	t.Helper()
	select {
	case msg, ok := <-sub.Send:
		if !ok {
			t.Fatal("send channel closed")
		}
		var ev map[string]any
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("bad event json %q: %v", msg, err)
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestHubBroadcastsToSubscribers(t *testing.T) {
	h := runHub(t)
	a := &Subscriber{ID: "a", Send: make(chan []byte, 4)}
	b := &Subscriber{ID: "b", Send: make(chan []byte, 4)}
	h.Register(a)
	h.Register(b)

	h.Notify("state_changed", map[string]any{"state": "playing"})

	for _, sub := range []*Subscriber{a, b} {
		ev := recvEvent(t, sub)
		if ev["event"] != "state_changed" || ev["state"] != "playing" {
			t.Errorf("subscriber %s got %v", sub.ID, ev)
		}
		if _, ok := ev["timestamp"]; !ok {
			t.Errorf("subscriber %s event missing timestamp", sub.ID)
		}
	}
}

func TestHubUnregisterClosesChannel(t *testing.T) {
	h := runHub(t)
	sub := &Subscriber{ID: "a", Send: make(chan []byte, 4)}
	h.Register(sub)
	h.Unregister(sub)

	select {
	case _, ok := <-sub.Send:
		if ok {
			t.Error("received an event after unregister")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed after unregister")
	}
}

func TestHubStopClosesSubscribers(t *testing.T) {
	h := NewHub()
	go h.Run()
	sub := &Subscriber{ID: "a", Send: make(chan []byte, 4)}
	h.Register(sub)

	h.Stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("send channel not closed after hub stop")
		}
	}
}

func TestHubSlowSubscriberDoesNotBlock(t *testing.T) {
	h := runHub(t)
	slow := &Subscriber{ID: "slow", Send: make(chan []byte)} // unbuffered, never read
	fast := &Subscriber{ID: "fast", Send: make(chan []byte, 16)}
	h.Register(slow)
	h.Register(fast)

	for i := 0; i < 8; i++ {
		h.Notify("position", map[string]any{"position": float64(i)})
	}

	// The fast subscriber still gets events while the slow one drops them.
	ev := recvEvent(t, fast)
	if ev["event"] != "position" {
		t.Errorf("fast subscriber got %v", ev)
	}
}
