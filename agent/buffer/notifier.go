package buffer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	qstashx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/pkg/qstash"
)

type publisher interface {
	Publish(ctx context.Context, destination string, body []byte, delay time.Duration) (string, error)
}

// QStashNotifier schedules a delayed callback to the flush endpoint.
type QStashNotifier struct {
	client      publisher
	callbackURL string
}

var _ Notifier = (*QStashNotifier)(nil)

func NewQStashNotifier(client *qstashx.Client, callbackURL string) (*QStashNotifier, error) {
	if client == nil {
		return nil, errors.New("qstash client is required")
	}
	return newQStashNotifier(client, callbackURL)
}

func newQStashNotifier(client publisher, callbackURL string) (*QStashNotifier, error) {
	callbackURL = strings.TrimSpace(callbackURL)
	if callbackURL == "" {
		return nil, errors.New("flush callback url is required")
	}
	return &QStashNotifier{client: client, callbackURL: callbackURL}, nil
}

// FlushCallback is the body QStash delivers to the flush endpoint.
type FlushCallback struct {
	TenantID string `json:"tenant_id"`
	LeadID   string `json:"lead_id"`
}

func (n *QStashNotifier) NotifyFlush(ctx context.Context, tenantID, leadID string, delay time.Duration) error {
	body, err := json.Marshal(FlushCallback{TenantID: tenantID, LeadID: leadID})
	if err != nil {
		return err
	}
	// One extra second so the callback lands after the due time.
	_, err = n.client.Publish(ctx, n.callbackURL, body, delay+time.Second)
	return err
}
