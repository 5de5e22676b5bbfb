package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workinbox/internal/config"
	"workinbox/internal/domain"
	"workinbox/internal/inbox"
	"workinbox/internal/provider"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

type failingProvider struct{}

func (failingProvider) Bundle(context.Context) (domain.Bundle, error) {
	return domain.Bundle{}, errors.New("store offline")
}

func newTestServer(t *testing.T, p inbox.Provider) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := inbox.New(config.Default(), p)
	agg.Logger = logger
	agg.Now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Aggregator: agg, BasePath: "/v0", Logger: logger})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func decodeInbox(t *testing.T, data []byte) InboxResponse {
	t.Helper()
	var resp InboxResponse
	require.NoError(t, json.Unmarshal(data, &resp), string(data))
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, provider.Sample())
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), `"status":"ok"`)
}

func TestInboxFromProvider(t *testing.T) {
	srv := newTestServer(t, provider.Sample())
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/inbox", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	resp := decodeInbox(t, data)
	require.Len(t, resp.Items, 8)
	assert.Equal(t, 8, resp.Stats.Total)
	assert.Equal(t, 8, resp.Stats.Returned)
	assert.Empty(t, resp.Diagnostics)
	for i := 1; i < len(resp.Items); i++ {
		assert.GreaterOrEqual(t, resp.Items[i-1].PriorityScore, resp.Items[i].PriorityScore)
	}
	for _, it := range resp.Items {
		assert.Nil(t, it.Breakdown)
	}
}

func TestInboxFilters(t *testing.T) {
	srv := newTestServer(t, provider.Sample())
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/inbox?min_risk=critical", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	resp := decodeInbox(t, data)
	var keys []string
	for _, it := range resp.Items {
		keys = append(keys, it.UniqueKey)
	}
	assert.ElementsMatch(t, []string{"amendment:amd-12", "contract:ctr-11"}, keys)
	assert.Equal(t, 8, resp.Stats.Total)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/inbox?category=Invoice,Contract&limit=3", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	resp = decodeInbox(t, data)
	require.Len(t, resp.Items, 3)
	for _, it := range resp.Items {
		assert.Contains(t, []domain.Category{domain.CategoryInvoice, domain.CategoryContract}, it.Category)
	}
}

func TestInboxExplain(t *testing.T) {
	srv := newTestServer(t, provider.Sample())
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/inbox?explain=true&limit=2", nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	resp := decodeInbox(t, data)
	require.Len(t, resp.Items, 2)
	for _, it := range resp.Items {
		require.NotNil(t, it.Breakdown)
		assert.InDelta(t, it.PriorityScore, it.Breakdown.Total(), 1e-9)
	}
}

func TestInboxRejectsUnknownFilters(t *testing.T) {
	srv := newTestServer(t, provider.Sample())
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/inbox?category=Ticket", nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "bad_request", envelope.Error.Code)
	assert.Contains(t, envelope.Error.Message, "Ticket")

	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/inbox?min_risk=severe", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestInboxProviderFailure(t *testing.T) {
	srv := newTestServer(t, failingProvider{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/inbox", nil)
	require.Equal(t, http.StatusBadGateway, res.StatusCode, string(data))
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, "provider_unavailable", envelope.Error.Code)
	assert.Contains(t, envelope.Error.Details["error"], "store offline")
}

func TestAggregateBody(t *testing.T) {
	srv := newTestServer(t, failingProvider{})
	body := map[string]any{
		"invoices": []map[string]any{
			{"id": "INV-1", "status": "received", "amount": 6000000, "daysLate": 3},
			{"id": "INV-1", "status": "received", "amount": 6000000, "daysLate": 3},
			{"id": "INV-2", "status": "paid"},
		},
		"contracts": []map[string]any{
			{"id": "CTR-1", "daysToSignature": 2},
		},
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/inbox/aggregate", body)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	resp := decodeInbox(t, data)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 1, resp.Stats.Duplicates)
	assert.Equal(t, map[string]int{domain.DomainInvoices: 1, domain.DomainContracts: 1}, resp.Stats.Produced)
	assert.Equal(t, domain.RiskHigh, resp.Items[0].RiskLevel)
}

func TestOpenAPIAndDocs(t *testing.T) {
	srv := newTestServer(t, provider.Sample())
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "/v0/inbox")
	assert.Contains(t, string(data), "aggregate-inbox")

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/docs", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.Contains(string(data), "/v0/openapi.json"))
}

func TestOpenAPIConcurrentFirstRequests(t *testing.T) {
	srv := newTestServer(t, provider.Sample())
	const n = 8
	bodies := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			data, err := io.ReadAll(res.Body)
			bodies[i], errs[i] = string(data), err
		}()
	}
	wg.Wait()
	for i := range n {
		require.NoError(t, errs[i])
		assert.Contains(t, bodies[i], "/v0/inbox")
		assert.Equal(t, bodies[0], bodies[i])
	}
}
