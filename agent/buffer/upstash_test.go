package buffer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeUpstash serves /multi-exec for RPUSH, EXPIRE, LRANGE and DEL.
type fakeUpstash struct {
	mu    sync.Mutex
	lists map[string][]string
	ttls  map[string]int64
	calls int
}

func newFakeUpstash() *fakeUpstash {
	return &fakeUpstash{lists: map[string][]string{}, ttls: map[string]int64{}}
}

func (f *fakeUpstash) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/multi-exec" || r.Header.Get("Authorization") != "Bearer token" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}

	var commands [][]any
	if err := json.NewDecoder(r.Body).Decode(&commands); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	results := make([]map[string]any, 0, len(commands))
	for _, cmd := range commands {
		name := fmt.Sprint(cmd[0])
		key := fmt.Sprint(cmd[1])
		switch name {
		case "RPUSH":
			f.lists[key] = append(f.lists[key], fmt.Sprint(cmd[2]))
			results = append(results, map[string]any{"result": len(f.lists[key])})
		case "EXPIRE":
			f.ttls[key] = int64(cmd[2].(float64))
			results = append(results, map[string]any{"result": 1})
		case "LRANGE":
			values := f.lists[key]
			if values == nil {
				values = []string{}
			}
			results = append(results, map[string]any{"result": values})
		case "DEL":
			delete(f.lists, key)
			results = append(results, map[string]any{"result": 1})
		default:
			results = append(results, map[string]any{"error": "ERR unknown command"})
		}
	}
	_ = json.NewEncoder(w).Encode(results)
}

func TestUpstashStoreAppendTake(t *testing.T) {
	t.Parallel()

	fake := newFakeUpstash()
	server := httptest.NewServer(fake)
	defer server.Close()

	store, err := NewUpstashStore(UpstashConfig{URL: server.URL + "/", Token: "token"}, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("NewUpstashStore() error = %v", err)
	}

	ctx := context.Background()
	total, err := store.Append(ctx, "buffer:T:u1", "a", 6500*time.Millisecond)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if total != 1 {
		t.Fatalf("Append() total = %d, want 1", total)
	}
	if total, _ = store.Append(ctx, "buffer:T:u1", "b", 7*time.Second); total != 2 {
		t.Fatalf("second Append() total = %d, want 2", total)
	}
	if got := fake.ttls["buffer:T:u1"]; got != 7 {
		t.Fatalf("expire seconds = %d, want 7", got)
	}

	values, err := store.Take(ctx, "buffer:T:u1")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if len(values) != 2 || values[0] != "a" || values[1] != "b" {
		t.Fatalf("Take() = %v, want [a b]", values)
	}

	values, err = store.Take(ctx, "buffer:T:u1")
	if err != nil {
		t.Fatalf("second Take() error = %v", err)
	}
	if len(values) != 0 {
		t.Fatalf("second Take() = %v, want empty", values)
	}
	if fake.calls != 4 {
		t.Fatalf("transactions = %d, want 4", fake.calls)
	}
}

func TestUpstashStoreSurfacesErrors(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(newFakeUpstash())
	defer server.Close()

	store, err := NewUpstashStore(UpstashConfig{URL: server.URL, Token: "wrong"})
	if err != nil {
		t.Fatalf("NewUpstashStore() error = %v", err)
	}
	if _, err := store.Append(context.Background(), "k", "v", time.Second); err == nil {
		t.Fatal("Append() with bad token error = nil, want error")
	}
}

func TestNewUpstashStoreValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewUpstashStore(UpstashConfig{Token: "t"}); err == nil {
		t.Fatal("NewUpstashStore() without url error = nil")
	}
	if _, err := NewUpstashStore(UpstashConfig{URL: "https://example.upstash.io"}); err == nil {
		t.Fatal("NewUpstashStore() without token error = nil")
	}
	if (UpstashConfig{URL: "x"}).Enabled() {
		t.Fatal("Enabled() without token = true")
	}
}
