package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := New(Config{
		BaseURL:    srv.URL + "/api",
		APIKey:     " secret-key ",
		Timeout:    time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestBilledFeesSendsAuthAndParsesAmounts(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/student/billed-fee-types/", r.URL.Path)
		assert.Equal(t, "Api-Key secret-key", r.Header.Get("Authorization"))
		assert.Equal(t, "SSC001", r.URL.Query().Get("student_id_number"))
		assert.Equal(t, "2025-1", r.URL.Query().Get("term"))
		_, _ = w.Write([]byte(`{"data":{"bills":[{"fee_type":"Tuition","amount":"1,200.50"},{"fee_type":"Levy","amount":99.5}]}}`))
	})

	bills, err := client.BilledFees(context.Background(), "SSC001", "2025-1")
	require.NoError(t, err)
	require.Len(t, bills, 2)
	assert.Equal(t, Cents(120050), bills[0].Amount)
	assert.Equal(t, Cents(130000), TotalBilled(bills))
}

func TestPaymentsParsesList(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/student/payments/", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"payments":[{"amount":"500","date":"2025-01-10"},{"amount":null,"date":"2025-01-11"}]}}`))
	})

	payments, err := client.Payments(context.Background(), "SSC001", "2025-1")
	require.NoError(t, err)
	assert.Equal(t, Cents(50000), TotalPaid(payments))
}

func TestNotFoundIsFatalAndWrapped(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.BilledFees(context.Background(), "SSC404", "2025-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, IsTransient(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestServerErrorsAreRetried(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"payments":[]}}`))
	})

	_, err := client.Payments(context.Background(), "SSC001", "2025-1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestRetriesExhaustedReturnsTransient(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Payments(context.Background(), "SSC001", "2025-1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.EqualValues(t, 4, atomic.LoadInt32(&calls))
}

func TestClientErrorIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad key"))
	})

	_, err := client.ProfilesPage(context.Background(), 0, 60)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "403")
}

func TestDecodeErrorIsFatal(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	})

	_, err := client.ProfilesPage(context.Background(), 0, 60)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestProfilesPageIsOneBasedOnTheWire(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/school/students/data", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		assert.Equal(t, "60", r.URL.Query().Get("page_size"))
		next := "https://directory/api/school/students/data?page=4"
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"next": next,
			"results": map[string]interface{}{
				"data": []map[string]interface{}{
					{"student_number": "SSC001", "firstname": "Tariro", "lastname": "Moyo", "student_mobile": 771234567, "guardian_mobile_number": "nan"},
				},
			},
		})
	})

	page, err := client.ProfilesPage(context.Background(), 2, 60)
	require.NoError(t, err)
	assert.True(t, page.HasMore)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Records, 1)
	assert.Equal(t, Text("771234567"), page.Records[0].StudentMobile)
	assert.Equal(t, Text("nan"), page.Records[0].GuardianMobile)
}

func TestProfilesPageLastPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"next":null,"results":{"data":[]}}`))
	})

	page, err := client.ProfilesPage(context.Background(), 9, 60)
	require.NoError(t, err)
	assert.False(t, page.HasMore)
}

func TestCancelledContextStopsRetries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client.retryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Payments(ctx, "SSC001", "2025-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDeadlineExceededIsTransient(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.WithoutRetries().ProfilesPage(ctx, 0, 60)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTransient(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestHTTPClientTimeoutIsTransient(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	client.httpClient.Timeout = 50 * time.Millisecond

	_, err := client.WithoutRetries().Payments(context.Background(), "SSC001", "2025-1")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestCancelledRequestIsNotTransient(t *testing.T) {
	started := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := client.WithoutRetries().Payments(ctx, "SSC001", "2025-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsTransient(err))
}

func TestWithoutRetriesMakesOneAttempt(t *testing.T) {
	var calls int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.WithoutRetries().ProfilesPage(context.Background(), 0, 60)
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	assert.Equal(t, 3, client.maxRetries)
}

func TestCentsUnmarshal(t *testing.T) {
	var c Cents
	require.NoError(t, json.Unmarshal([]byte(`"  "`), &c))
	assert.Equal(t, Cents(0), c)
	require.NoError(t, json.Unmarshal([]byte(`10.25`), &c))
	assert.Equal(t, Cents(1025), c)
	assert.Error(t, json.Unmarshal([]byte(`"ten"`), &c))
}
