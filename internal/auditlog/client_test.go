package auditlog

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSend(t *testing.T) {
	received := make(chan Event, 1)
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/send" {
			t.Errorf("path = %s, want /send", r.URL.Path)
		}
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode event: %v", err)
		}
		received <- ev
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "log-app", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	c.Send("signup", map[string]interface{}{"name": "alice"})

	var ev Event
	select {
	case ev = <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("event never delivered")
	}

	if gotAuth != "Bearer log-app" {
		t.Errorf("auth = %q, want bearer app id", gotAuth)
	}
	if ev.Tag != "signup" {
		t.Errorf("tag = %q, want signup", ev.Tag)
	}

	// Timestamps go out in the sink's fixed +09:00 offset.
	ts, err := time.Parse("2006-01-02T15:04:05-07:00", ev.Time)
	if err != nil {
		t.Fatalf("time %q does not parse: %v", ev.Time, err)
	}
	if _, offset := ts.Zone(); offset != 9*60*60 {
		t.Errorf("time offset = %d, want +09:00", offset)
	}

	data, ok := ev.Data.(map[string]interface{})
	if !ok || data["name"] != "alice" {
		t.Errorf("data = %v", ev.Data)
	}
}

func TestSend_FailureDoesNotPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "log-app", zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}

	// Send is fire-and-forget: a failing sink must never panic or block.
	c.Send("signin", map[string]interface{}{"name": "bob"})
	time.Sleep(100 * time.Millisecond)
}
