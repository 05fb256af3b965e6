package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *LipilaClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	logger, _ := test.NewNullLogger()
	c := NewLipilaClient(srv.URL+"/api/v1/", "secret-key", time.Second, logger)
	c.retryDelay = time.Millisecond
	return c
}

func TestLipilaClient_MomoDeposit(t *testing.T) {
	var mu sync.Mutex
	var got MomoTransfer
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/collections/mobile-money", r.URL.Path)
		assert.Equal(t, "secret-key", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"identifier":"lp-1","status":"Pending"}`))
	})

	resp, err := c.InitiateMomoDeposit(context.Background(), MomoTransfer{
		Amount: 50, Phone: "+260971234567", ReferenceID: "ref-1", CallbackURL: "https://cb", Currency: "ZMW",
	})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "lp-1", resp["identifier"])
	assert.Equal(t, "ref-1", got.ReferenceID)
	assert.Equal(t, "+260971234567", got.Phone)
}

func TestLipilaClient_Paths(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		p := r.URL.Path
		if q := r.URL.RawQuery; q != "" {
			p += "?" + q
		}
		paths = append(paths, p)
		_, _ = w.Write([]byte(`{}`))
	})
	ctx := context.Background()

	_, err := c.InitiateMomoWithdrawal(ctx, MomoTransfer{})
	require.NoError(t, err)
	_, err = c.InitiateCardPayment(ctx, CardTransfer{})
	require.NoError(t, err)
	_, err = c.CheckStatus(ctx, "ref-9", Collection)
	require.NoError(t, err)
	_, err = c.CheckStatus(ctx, "ref-9", Disbursement)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"/api/v1/disbursements/mobile-money",
		"/api/v1/collections/card",
		"/api/v1/collections/check-status?referenceId=ref-9",
		"/api/v1/disbursements/check-status?referenceId=ref-9",
	}, paths)
}

func TestLipilaClient_RetriesOnceOn429(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	resp, err := c.InitiateMomoDeposit(context.Background(), MomoTransfer{})
	require.NoError(t, err)
	assert.Equal(t, true, resp["ok"])
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestLipilaClient_GivesUpAfterSecond429(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.InitiateMomoDeposit(context.Background(), MomoTransfer{})
	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, http.StatusTooManyRequests, gerr.StatusCode)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
}

func TestLipilaClient_ErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Invalid phone number"}`))
	})

	_, err := c.InitiateMomoDeposit(context.Background(), MomoTransfer{})
	var gerr *GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, "Invalid phone number", gerr.Detail())
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"+260971234567", "+260971234567", true},
		{"260971234567", "+260971234567", true},
		{"0971234567", "+260971234567", true},
		{"971234567", "+260971234567", true},
		{"+260 97 123 4567", "+260971234567", true},
		{"12345", "", false},
		{"+1 555 123 4567", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.in)
		if !tt.ok {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
