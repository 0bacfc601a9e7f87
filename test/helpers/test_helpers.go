package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/congregation-messenger/internal/store"
	"github.com/nimasrn/congregation-messenger/internal/store/storetest"
	"github.com/nimasrn/congregation-messenger/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func SetupTestStore(t *testing.T) store.Store {
	return store.NewGormStore(storetest.OpenDB(t, store.Models()...), store.NewLocalFeed())
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr := miniredis.RunT(t)

	// unique connection name per test, adapters are cached by name
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	adapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	return mr, adapter
}

// GatewayCall is one request received by the fake gateway.
type GatewayCall struct {
	Path         string
	Text         string            `json:"text"`
	Sender       string            `json:"sender"`
	Schedule     string            `json:"schedule"`
	Destinations []json.RawMessage `json:"destinations"`
}

// Numbers returns the destination numbers of a flat call.
func (c GatewayCall) Numbers() []string {
	out := make([]string, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		var n string
		if json.Unmarshal(d, &n) == nil {
			out = append(out, n)
			continue
		}
		var p struct {
			Number string `json:"number"`
		}
		if json.Unmarshal(d, &p) == nil {
			out = append(out, p.Number)
		}
	}
	return out
}

// FakeGateway speaks the handshake protocol and accepts every destination.
type FakeGateway struct {
	Server *httptest.Server

	mu     sync.Mutex
	calls  []GatewayCall
	reject bool
}

func NewFakeGateway(t *testing.T) *FakeGateway {
	f := &FakeGateway{}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeGateway) URL() string { return f.Server.URL }

// SetReject makes every following call fail the handshake.
func (f *FakeGateway) SetReject(v bool) {
	f.mu.Lock()
	f.reject = v
	f.mu.Unlock()
}

func (f *FakeGateway) Calls() []GatewayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]GatewayCall(nil), f.calls...)
}

func (f *FakeGateway) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	reject := f.reject
	f.mu.Unlock()
	if reject {
		_, _ = io.WriteString(w, `{"handshake":{"id":1401,"label":"HSHK_ERR_UA_AUTH"}}`)
		return
	}

	if r.Method == http.MethodGet {
		_, _ = io.WriteString(w, `{"handshake":{"id":0,"label":"HSHK_OK"},"data":{"balance":12.5,"currency":"GHS"}}`)
		return
	}

	call := GatewayCall{Path: r.URL.Path}
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.calls = append(f.calls, call)
	batch := fmt.Sprintf("batch-%d", len(f.calls))
	f.mu.Unlock()

	dests := make([]map[string]string, 0, len(call.Destinations))
	for i, n := range call.Numbers() {
		dests = append(dests, map[string]string{"id": fmt.Sprintf("%s-%d", batch, i), "to": n, "status": "sent"})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"handshake": map[string]any{"id": 0, "label": "HSHK_OK"},
		"data":      map[string]any{"batch": batch, "destinations": dests},
	})
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
