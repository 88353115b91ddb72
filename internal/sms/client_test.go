package sms

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/medilink/internal/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(config.SMSConfig{APIURL: srv.URL, APIToken: "tok", SenderID: "MediLink", Timeout: time.Second}, zap.NewNop())
	c.httpClient.SetRetryCount(0)
	return c, &hits
}

func TestClient_Send(t *testing.T) {
	var got sendRequest
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/sms/send", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","message":"queued"}`))
	})

	require.NoError(t, c.Send(context.Background(), "077 123 4567", "hello"))
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, sendRequest{Recipient: "94771234567", SenderID: "MediLink", Type: "plain", Message: "hello"}, got)
}

func TestClient_Send_GatewayRejects(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"error","message":"insufficient credit"}`))
	})
	err := c.Send(context.Background(), "94771234567", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient credit")
}

func TestClient_Send_BreakerOpens(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	for i := 0; i < 5; i++ {
		require.Error(t, c.Send(context.Background(), "94771234567", "hello"))
	}
	err := c.Send(context.Background(), "94771234567", "hello")
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.EqualValues(t, 5, hits.Load())
}

func TestClient_Send_InvalidPhone(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	err := c.Send(context.Background(), "12", "hello")
	assert.ErrorIs(t, err, ErrInvalidPhone)
	assert.Zero(t, hits.Load())
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0771234567":      "94771234567",
		"94771234567":     "94771234567",
		"+94 77 123 4567": "94771234567",
		"771234567":       "94771234567",
		"077-123-4567":    "94771234567",
	}
	for in, want := range cases {
		got, err := NormalizePhone(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := NormalizePhone("")
	assert.ErrorIs(t, err, ErrInvalidPhone)
}
