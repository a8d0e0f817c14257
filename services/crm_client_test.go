package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(serverURL string) *KommoClient {
	c := NewKommoClient(serverURL, "test-token", 1000)
	c.initialBackoff = time.Millisecond
	c.maxBackoff = 10 * time.Millisecond
	return c
}

func TestFetchPagePaginates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/v4/users", r.URL.Path)

		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"_embedded":{"users":[{"id":1},{"id":2}]}}`)
		case "2":
			fmt.Fprint(w, `{"_embedded":{"users":[{"id":3}]}}`)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	ctx := context.Background()

	page1, err := client.FetchPage(ctx, EntityBrokers, nil, 1)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page2, err := client.FetchPage(ctx, EntityBrokers, nil, 2)
	require.NoError(t, err)
	assert.Len(t, page2, 1)

	page3, err := client.FetchPage(ctx, EntityBrokers, nil, 3)
	require.NoError(t, err)
	assert.Empty(t, page3, "an exhausted collection answers with no records")
}

func TestFetchPageSendsIncrementalFilter(t *testing.T) {
	var gotSince string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("filter[updated_at][from]")
		fmt.Fprint(w, `{"_embedded":{"leads":[]}}`)
	}))
	defer server.Close()

	since := time.Unix(1700000000, 0)
	_, err := newTestClient(server.URL).FetchPage(context.Background(), EntityLeads, &since, 1)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", gotSince)
}

func TestFetchPageRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"_embedded":{"events":[{"id":"e1"}]}}`)
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).FetchPage(context.Background(), EntityActivities, nil, 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPageExhausted429SurfacesRateLimitError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchPage(context.Background(), EntityLeads, nil, 1)
	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, "leads", rateErr.Endpoint)
}

func TestFetchPage403FailsImmediately(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchPage(context.Background(), EntityBrokers, nil, 1)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, int32(1), calls.Load(), "auth failures are never retried")
}

func TestFetchPageServerErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"_embedded":{"users":[{"id":1}]}}`)
	}))
	defer server.Close()

	records, err := newTestClient(server.URL).FetchPage(context.Background(), EntityBrokers, nil, 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFetchPageContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	client.initialBackoff = time.Minute
	client.maxBackoff = time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.FetchPage(ctx, EntityBrokers, nil, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestStatusNames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/leads/pipelines", r.URL.Path)
		fmt.Fprint(w, `{"_embedded":{"pipelines":[
			{"_embedded":{"statuses":[{"id":142,"name":"Venda ganha"},{"id":10,"name":"Contato inicial"}]}}
		]}}`)
	}))
	defer server.Close()

	names, err := newTestClient(server.URL).StatusNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Venda ganha", names[142])
	assert.Equal(t, "Contato inicial", names[10])
}

func TestAccountID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v4/account", r.URL.Path)
		fmt.Fprint(w, `{"id":31337,"name":"Imobiliária Teste"}`)
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).AccountID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(31337), id)
}
