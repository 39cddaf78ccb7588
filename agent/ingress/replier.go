package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-SPIN-Sales-Orchestrator/agent/contract"
)

// LogReplier writes replies to the log. It is used when no channel webhook
// is configured.
type LogReplier struct{}

func (LogReplier) Reply(ctx context.Context, req contractx.TurnRequest, resp contractx.TurnResponse) error {
	log.Info().
		Str("tenant_id", req.TenantID).
		Str("lead_id", req.LeadID).
		Str("channel", req.Channel).
		Str("agent_id", resp.AgentID).
		Str("stage", string(resp.NextStage)).
		Bool("send_audio", resp.SendAudio).
		Bool("send_images", resp.SendImages).
		Msg("turn_reply")
	return nil
}

type WebhookConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func (c WebhookConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

// ReplyEnvelope is the body posted to the channel webhook.
type ReplyEnvelope struct {
	Request  contractx.TurnRequest  `json:"request"`
	Response contractx.TurnResponse `json:"response"`
}

// WebhookReplier hands replies to the channel adapter over HTTP.
type WebhookReplier struct {
	url        string
	httpClient *http.Client
}

func NewWebhookReplier(cfg WebhookConfig, hc *http.Client) (*WebhookReplier, error) {
	target := strings.TrimSpace(cfg.URL)
	if target == "" {
		return nil, errors.New("reply webhook url is required")
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, fmt.Errorf("invalid reply webhook url: %w", err)
	}
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &WebhookReplier{url: target, httpClient: hc}, nil
}

func (w *WebhookReplier) Reply(ctx context.Context, req contractx.TurnRequest, resp contractx.TurnResponse) error {
	body, err := json.Marshal(ReplyEnvelope{Request: req, Response: resp})
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build reply request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("post reply: %w", err)
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, 64<<10))

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("reply webhook status=%d", httpResp.StatusCode)
	}
	return nil
}
