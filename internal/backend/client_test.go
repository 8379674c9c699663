package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haasonsaas/voicegate/internal/observability"
)

func newTestClient(t *testing.T, baseURL string, maxRetries int) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:           baseURL,
		APIKey:            "test-key",
		Timeout:           2 * time.Second,
		MaxRetries:        maxRetries,
		RetryInitialDelay: time.Millisecond,
	}, observability.NewNopLogger(), observability.NewTestMetrics())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestClient_SendsAPIKeyHeader(t *testing.T) {
	var gotKey atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-API-Key"))
		w.Write([]byte(`{"success":true,"message":"ok","data":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	if _, err := client.GetDeliveryFrequencies(context.Background()); err != nil {
		t.Fatalf("request error = %v", err)
	}
	if gotKey.Load() != "test-key" {
		t.Errorf("X-API-Key = %v, want test-key", gotKey.Load())
	}
}

func TestClient_RetriesServerErrorThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true,"message":"ok","data":{"customerId":"002864"}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 2)
	resp, err := client.GetAccountBalances(context.Background(), "002864", false)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if !resp.Success {
		t.Error("expected success envelope")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("upstream called %d times, want 3", calls)
	}
}

func TestClient_DoesNotRetryClientError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`bad payload`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	_, err := client.GetAccountBalances(context.Background(), "002864", false)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Kind != FailureRejected {
		t.Errorf("kind = %s, want rejected", apiErr.Kind)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("4xx retried: %d calls, want 1", calls)
	}
}

func TestClient_ClassifiesStatuses(t *testing.T) {
	cases := []struct {
		status int
		want   FailureKind
	}{
		{http.StatusUnauthorized, FailureUnauthorized},
		{http.StatusForbidden, FailureUnauthorized},
		{http.StatusNotFound, FailureNotFound},
		{http.StatusTooManyRequests, FailureRateLimited},
		{http.StatusInternalServerError, FailureRemote},
		{http.StatusUnprocessableEntity, FailureRejected},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		client := newTestClient(t, server.URL, 0)
		_, err := client.GetDeliveryFrequencies(context.Background())
		server.Close()

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("status %d: error = %v, want *APIError", tc.status, err)
		}
		if apiErr.Kind != tc.want {
			t.Errorf("status %d: kind = %s, want %s", tc.status, apiErr.Kind, tc.want)
		}
	}
}

func TestClient_VaultCreditCardNeverRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)
	_, err := client.VaultCreditCard(context.Background(), "002864", CreditCard{FirstName: "Jamie"})
	if err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("non-idempotent write retried: %d calls, want 1", calls)
	}
}

func TestClient_TimeoutKind(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	client, err := NewClient(Config{
		BaseURL:           server.URL,
		APIKey:            "test-key",
		Timeout:           20 * time.Millisecond,
		MaxRetries:        0,
		RetryInitialDelay: time.Millisecond,
	}, observability.NewNopLogger(), observability.NewTestMetrics())
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.GetDeliveryFrequencies(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Kind != FailureTimeout {
		t.Errorf("kind = %s, want timeout", apiErr.Kind)
	}
}

func TestSearchCache_ServesFromCacheWithinTTL(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"success":true,"message":"ok","data":{"data":[{"customerId":"002864"}]}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	cache := NewSearchCache(time.Minute)

	for i := 0; i < 3; i++ {
		if _, err := cache.SearchCustomers(context.Background(), client, "Jamie Carroll", 0, 25); err != nil {
			t.Fatalf("SearchCustomers() error = %v", err)
		}
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("upstream called %d times, want 1", calls)
	}

	// Different lookup misses.
	if _, err := cache.SearchCustomers(context.Background(), client, "Alex Rivers", 0, 25); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("upstream called %d times, want 2", calls)
	}
}

func TestSearchCache_ExpiresAfterTTL(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"success":true,"message":"ok","data":{}}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	cache := NewSearchCache(time.Minute)
	now := time.Now()
	cache.nowFunc = func() time.Time { return now }

	cache.SearchCustomers(context.Background(), client, "Jamie Carroll", 0, 25)
	now = now.Add(2 * time.Minute)
	cache.SearchCustomers(context.Background(), client, "Jamie Carroll", 0, 25)

	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("upstream called %d times, want 2 (expired entry reused)", calls)
	}
}
