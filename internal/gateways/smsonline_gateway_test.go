package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nimasrn/congregation-messenger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func fakeGateway(t *testing.T, status int, reply string) (*httptest.Server, *capturedRequest, *atomic.Int32) {
	t.Helper()
	captured := &capturedRequest{}
	calls := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		captured.Method = r.Method
		captured.Path = r.URL.Path
		captured.Auth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		captured.Body = nil
		if len(b) > 0 {
			_ = json.Unmarshal(b, &captured.Body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, captured, calls
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: url, APIKey: "secret", SenderID: "BETHEL", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

const okSend = `{"handshake":{"id":0,"label":"HSHK_OK"},"data":{"batch":"b-1","destinations":[{"id":"m-1","to":"233244111111","status":{"id":2110,"label":"SENT"}}]}}`

func TestClient_SendFlatPayload(t *testing.T) {
	srv, got, _ := fakeGateway(t, http.StatusOK, okSend)
	c := newTestClient(t, srv.URL)

	out, err := c.Send(context.Background(), "Reminder", []model.PhoneNumber{"233244111111"})
	require.NoError(t, err)

	assert.True(t, out.Acknowledged)
	assert.Equal(t, "b-1", out.BatchID)
	require.Len(t, out.Destinations, 1)
	assert.Equal(t, "233244111111", out.Destinations[0].Number)

	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, PathSend, got.Path)
	assert.Equal(t, "key secret", got.Auth)
	assert.Equal(t, "Reminder", got.Body["text"])
	assert.Equal(t, float64(0), got.Body["type"])
	assert.Equal(t, "BETHEL", got.Body["sender"])
	assert.Equal(t, []any{"233244111111"}, got.Body["destinations"])
	assert.NotContains(t, got.Body, "schedule")
}

func TestClient_SendPersonalizedPayload(t *testing.T) {
	srv, got, _ := fakeGateway(t, http.StatusOK, `{"handshake":{"id":0,"label":"HSHK_OK"},"data":{}}`)
	c := newTestClient(t, srv.URL)

	_, err := c.SendPersonalized(context.Background(), "Hi {$name}", []model.PersonalizedDestination{
		{Number: "233244111111", Values: []string{"Alice"}},
		{Number: "233244111111", Values: []string{"Bob"}},
	})
	require.NoError(t, err)

	dests, ok := got.Body["destinations"].([]any)
	require.True(t, ok)
	require.Len(t, dests, 2)
	assert.Equal(t, map[string]any{"number": "233244111111", "values": []any{"Alice"}}, dests[0])
	assert.Equal(t, map[string]any{"number": "233244111111", "values": []any{"Bob"}}, dests[1])
}

func TestClient_ScheduleSendFormatsTime(t *testing.T) {
	srv, got, _ := fakeGateway(t, http.StatusOK, okSend)
	c := newTestClient(t, srv.URL)

	at := time.Date(2026, 12, 24, 18, 30, 0, 0, time.UTC)
	set := model.NewFlatSet([]model.PhoneNumber{"233244111111"}, nil)
	_, err := c.ScheduleSend(context.Background(), "Carols tonight", set, at)
	require.NoError(t, err)

	assert.Equal(t, "2026-12-24 18:30:00", got.Body["schedule"])
}

func TestClient_BroadcastUsesSetShape(t *testing.T) {
	srv, got, _ := fakeGateway(t, http.StatusOK, okSend)
	c := newTestClient(t, srv.URL)

	set := model.NewPersonalizedSet([]model.PersonalizedDestination{{Number: "233244111111", Values: []string{}}}, nil)
	_, err := c.Broadcast(context.Background(), "Hi {$name}", set)
	require.NoError(t, err)

	dests := got.Body["destinations"].([]any)
	assert.Equal(t, map[string]any{"number": "233244111111", "values": []any{}}, dests[0])

	_, err = c.Broadcast(context.Background(), "x", model.DestinationSet{})
	assert.True(t, IsValidation(err))
}

func TestClient_HandshakeReconciliation(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		ok    bool
	}{
		{"accepted", `{"handshake":{"id":0,"label":"HSHK_OK"},"data":{}}`, true},
		{"wrong id", `{"handshake":{"id":1,"label":"HSHK_OK"},"data":{}}`, false},
		{"wrong label", `{"handshake":{"id":0,"label":"HSHK_FAIL"}}`, false},
		{"missing id", `{"handshake":{"label":"HSHK_OK"}}`, false},
		{"missing handshake", `{"data":{}}`, false},
		{"not json", `<html>bad gateway</html>`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _, _ := fakeGateway(t, http.StatusOK, tc.reply)
			c := newTestClient(t, srv.URL)

			out, err := c.Send(context.Background(), "hello", []model.PhoneNumber{"233244111111"})
			if tc.ok {
				require.NoError(t, err)
				assert.True(t, out.Acknowledged)
				return
			}
			var rejection *GatewayRejection
			require.ErrorAs(t, err, &rejection)
			assert.Equal(t, tc.reply, string(rejection.Body))
			assert.False(t, rejection.Partial())
			assert.True(t, IsRetryable(err))
		})
	}
}

func TestClient_PartialRejection(t *testing.T) {
	reply := `{"handshake":{"id":0,"label":"HSHK_OK"},"data":{"batch":"b-2","destinations":[
		{"to":"233244111111","status":"delivered"},
		{"to":"233244222222","status":{"id":2107,"label":"DS_REJECTED"}}
	]}}`
	srv, _, _ := fakeGateway(t, http.StatusOK, reply)
	c := newTestClient(t, srv.URL)

	out, err := c.Send(context.Background(), "hello", []model.PhoneNumber{"233244111111", "233244222222"})

	var rejection *GatewayRejection
	require.ErrorAs(t, err, &rejection)
	assert.True(t, rejection.Partial())
	require.Len(t, rejection.Rejected, 1)
	assert.Equal(t, "233244222222", rejection.Rejected[0].Number)
	assert.Equal(t, 2107, rejection.Rejected[0].StatusID)

	require.NotNil(t, out)
	assert.True(t, out.Acknowledged)
	assert.Equal(t, "b-2", out.BatchID)
}

func TestReconcile_NumericBatchAndStatus(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		batch     string
		rejected  int
		firstSeen string
	}{
		{
			name:      "numeric batch keeps destination report",
			body:      `{"handshake":{"id":0,"label":"HSHK_OK"},"data":{"batch":12345,"destinations":[{"to":"233244111111","status":"FAILED"}]}}`,
			batch:     "12345",
			rejected:  1,
			firstSeen: "FAILED",
		},
		{
			name:      "numeric status is refused",
			body:      `{"handshake":{"id":0,"label":"HSHK_OK"},"data":{"batch":"b-3","destinations":[{"to":"233244111111","status":"sent"},{"to":"233244222222","status":2107}]}}`,
			batch:     "b-3",
			rejected:  1,
			firstSeen: "2107",
		},
		{
			name:      "malformed entry is refused",
			body:      `{"handshake":{"id":0,"label":"HSHK_OK"},"data":{"batch":"b-4","destinations":["233244111111"]}}`,
			batch:     "b-4",
			rejected:  1,
			firstSeen: "unreadable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := reconcile(OpSend, []byte(tt.body), true)

			var rejection *GatewayRejection
			require.ErrorAs(t, err, &rejection)
			assert.True(t, rejection.Partial())
			require.Len(t, rejection.Rejected, tt.rejected)
			assert.Equal(t, tt.firstSeen, rejection.Rejected[0].Status)
			require.NotNil(t, out)
			assert.Equal(t, tt.batch, out.BatchID)
		})
	}
}

func TestReconcile_DataWithoutDestinations(t *testing.T) {
	out, _, err := reconcile(OpSend, []byte(`{"handshake":{"id":0,"label":"HSHK_OK"},"data":{"batch":99}}`), true)
	require.NoError(t, err)
	assert.Equal(t, "99", out.BatchID)
	assert.Empty(t, out.Destinations)

	_, _, err = reconcile(OpSend, []byte(`{"handshake":{"id":0,"label":"HSHK_OK"},"data":{"destinations":{"to":"x"}}}`), true)
	var rejection *GatewayRejection
	require.ErrorAs(t, err, &rejection)
	assert.False(t, rejection.Partial())
}

func TestClient_ServerErrorIsTransport(t *testing.T) {
	srv, _, _ := fakeGateway(t, http.StatusServiceUnavailable, `down`)
	c := newTestClient(t, srv.URL)

	_, err := c.Send(context.Background(), "hello", []model.PhoneNumber{"233244111111"})
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.StatusServiceUnavailable, transport.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestClient_UnreachableIsTransport(t *testing.T) {
	srv, _, _ := fakeGateway(t, http.StatusOK, okSend)
	url := srv.URL
	srv.Close()

	c := newTestClient(t, url)
	_, err := c.Send(context.Background(), "hello", []model.PhoneNumber{"233244111111"})
	var transport *TransportError
	require.ErrorAs(t, err, &transport)
}

func TestClient_ValidationAndConfiguration(t *testing.T) {
	srv, _, calls := fakeGateway(t, http.StatusOK, okSend)

	c := newTestClient(t, srv.URL)
	_, err := c.Send(context.Background(), "   ", []model.PhoneNumber{"233244111111"})
	assert.True(t, IsValidation(err))
	_, err = c.Send(context.Background(), "hello", nil)
	assert.True(t, IsValidation(err))
	assert.False(t, IsRetryable(err))

	unconfigured, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = unconfigured.Send(context.Background(), "hello", []model.PhoneNumber{"233244111111"})
	require.True(t, IsConfiguration(err))
	assert.False(t, IsRetryable(err))
	assert.Contains(t, err.Error(), "api key")
	assert.Contains(t, err.Error(), "sender id")

	_, err = unconfigured.GetBalance(context.Background())
	assert.True(t, IsConfiguration(err))

	assert.Equal(t, int32(0), calls.Load())
}

func TestClient_GetBalance(t *testing.T) {
	srv, got, _ := fakeGateway(t, http.StatusOK, `{"handshake":{"id":0,"label":"HSHK_OK"},"data":{"balance":42.5,"currency":"GHS"}}`)
	c := newTestClient(t, srv.URL)

	b, err := c.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42.5, b.Amount)
	assert.Equal(t, "GHS", b.Currency)
	assert.Equal(t, http.MethodGet, got.Method)
	assert.Equal(t, PathBalance, got.Path)
	assert.Equal(t, "key secret", got.Auth)
}

func TestClient_StatsTrackOutcomes(t *testing.T) {
	srv, _, _ := fakeGateway(t, http.StatusOK, okSend)
	c := newTestClient(t, srv.URL)

	_, err := c.Send(context.Background(), "hello", []model.PhoneNumber{"233244111111"})
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.SuccessfulReqs)
	assert.Equal(t, 1.0, stats.SuccessRate)
}

func TestDestinationStatus_Unmarshal(t *testing.T) {
	var plain DestinationStatus
	require.NoError(t, json.Unmarshal([]byte(`{"number":"233244111111","status":"Sent"}`), &plain))
	assert.True(t, plain.Accepted())

	var object DestinationStatus
	require.NoError(t, json.Unmarshal([]byte(`{"id":7,"to":"233244111111","status":{"id":1,"label":"DELIVERED"}}`), &object))
	assert.True(t, object.Accepted())
	assert.Equal(t, "7", object.ID)

	var pending DestinationStatus
	require.NoError(t, json.Unmarshal([]byte(`{"phone":"233244111111"}`), &pending))
	assert.False(t, pending.Accepted())
	assert.Equal(t, "233244111111", pending.Number)
}

func TestMetrics_P95Latency(t *testing.T) {
	m := NewMetrics()
	for i := int64(0); i < 100; i++ {
		m.RecordSuccess(OpSend, i*10)
	}
	p95 := m.P95LatencyMs()
	assert.GreaterOrEqual(t, p95, int64(900))
	assert.LessOrEqual(t, p95, int64(990))

	m.RecordFailure(OpSend, "transport")
	assert.Equal(t, int32(1), m.ConsecutiveFails.Load())
	assert.InDelta(t, 100.0/101.0, m.SuccessRate(), 1e-9)
}
