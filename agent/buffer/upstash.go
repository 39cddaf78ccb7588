package buffer

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
)

const maxResponseSizeBytes = 2 << 20

type UpstashConfig struct {
	URL     string        `envconfig:"URL" split_words:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Enabled reports whether both REST credentials are present.
func (c UpstashConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != "" && strings.TrimSpace(c.Token) != ""
}

// UpstashOption customizes UpstashStore.
type UpstashOption func(*UpstashStore)

func WithHTTPClient(client *http.Client) UpstashOption {
	return func(s *UpstashStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashStore is a ListStore on Upstash Redis over its REST API. Append and
// Take are sent as one MULTI/EXEC transaction each.
type UpstashStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var _ ListStore = (*UpstashStore)(nil)

type restResult struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstashStore(cfg UpstashConfig, opts ...UpstashOption) (*UpstashStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *UpstashStore) Append(ctx context.Context, key, value string, ttl time.Duration) (int64, error) {
	results, err := s.multiExec(ctx,
		[]any{"RPUSH", key, value},
		[]any{"EXPIRE", key, ttlSeconds(ttl)},
	)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := json.Unmarshal(results[0].Result, &total); err != nil {
		return 0, fmt.Errorf("decode rpush result: %w", err)
	}
	return total, nil
}

func (s *UpstashStore) Take(ctx context.Context, key string) ([]string, error) {
	results, err := s.multiExec(ctx,
		[]any{"LRANGE", key, 0, -1},
		[]any{"DEL", key},
	)
	if err != nil {
		return nil, err
	}

	raw := bytes.TrimSpace(results[0].Result)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("decode lrange result: %w", err)
	}
	return values, nil
}

func (s *UpstashStore) multiExec(ctx context.Context, commands ...[]any) ([]restResult, error) {
	if len(commands) == 0 {
		return nil, errors.New("empty redis transaction")
	}

	body, err := json.Marshal(commands)
	if err != nil {
		return nil, fmt.Errorf("marshal redis transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/multi-exec", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed []restResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		var single restResult
		if json.Unmarshal(raw, &single) == nil && single.Error != "" {
			return nil, errors.New(single.Error)
		}
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if len(parsed) != len(commands) {
		return nil, fmt.Errorf("redis transaction returned %d results, want %d", len(parsed), len(commands))
	}
	for _, r := range parsed {
		if r.Error != "" {
			return nil, errors.New(r.Error)
		}
	}
	return parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
