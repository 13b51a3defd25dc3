package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "agentic-browser/internal/errors"
)

type countingNotifier struct {
	channel Channel
	err     error
	events  []Event
}

func (c *countingNotifier) Channel() Channel { return c.channel }

func (c *countingNotifier) Notify(_ context.Context, event Event) error {
	c.events = append(c.events, event)
	return c.err
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &countingNotifier{channel: ChannelLog}
	failing := &countingNotifier{channel: ChannelWebhook, err: errors.New("boom")}

	err := NewFanout(ok, nil, failing).Notify(context.Background(), Event{JobID: "job-1"})
	if err == nil {
		t.Fatal("expected error from failing notifier")
	}
	if len(ok.events) != 1 || len(failing.events) != 1 {
		t.Fatalf("every notifier should receive the event: %d %d", len(ok.events), len(failing.events))
	}
}

func TestWebhookNotifierPostsEvent(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := xerrors.New(xerrors.CodeRetriesExhausted, "job falhou", xerrors.WithMetadata("capability", "researcher"))
	n := &WebhookNotifier{URL: srv.URL}
	if err := n.Notify(context.Background(), EventFromError("job-9", err)); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got.Code != xerrors.CodeRetriesExhausted || got.JobID != "job-9" {
		t.Fatalf("unexpected event: %+v", got)
	}
	if got.Metadata["capability"] != "researcher" {
		t.Fatalf("metadata lost: %+v", got.Metadata)
	}
}

func TestWebhookNotifierReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL}
	if err := n.Notify(context.Background(), Event{}); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
