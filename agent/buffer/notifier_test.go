package buffer

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type fakePublisher struct {
	destination string
	body        []byte
	delay       time.Duration
}

func (p *fakePublisher) Publish(_ context.Context, destination string, body []byte, delay time.Duration) (string, error) {
	p.destination, p.body, p.delay = destination, body, delay
	return "msg_1", nil
}

func TestQStashNotifierPublishesCallback(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	n, err := newQStashNotifier(pub, " https://bot.example.com/buffer/flush ")
	if err != nil {
		t.Fatalf("newQStashNotifier() error = %v", err)
	}

	if err := n.NotifyFlush(context.Background(), "T", "u1", 4*time.Second); err != nil {
		t.Fatalf("NotifyFlush() error = %v", err)
	}
	if pub.destination != "https://bot.example.com/buffer/flush" {
		t.Fatalf("destination = %q", pub.destination)
	}
	if pub.delay != 5*time.Second {
		t.Fatalf("delay = %v, want 5s", pub.delay)
	}

	var cb FlushCallback
	if err := json.Unmarshal(pub.body, &cb); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if cb.TenantID != "T" || cb.LeadID != "u1" {
		t.Fatalf("callback = %+v", cb)
	}

	if _, err := newQStashNotifier(pub, ""); err == nil {
		t.Fatal("newQStashNotifier() without url error = nil")
	}
}
