package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dobfi/dobswap/internal/domain"
	"github.com/dobfi/dobswap/internal/storage/submissions"
)

type fakeService struct {
	snap      domain.Snapshot
	refreshed int
	quote     domain.SwapQuote
	quoteOK   bool
	records   []submissions.Record
}

func (f *fakeService) GetSnapshot() domain.Snapshot { return f.snap }

func (f *fakeService) RefreshNow(ctx context.Context) {
	f.refreshed++
	f.snap.BuiltAt = f.snap.BuiltAt.Add(time.Second)
}

func (f *fakeService) EstimateQuote(ctx context.Context, direction domain.QuoteDirection, amount int64) (domain.SwapQuote, bool) {
	return f.quote, f.quoteOK
}

func (f *fakeService) Submissions() []submissions.Record { return f.records }

func newTestMux(svc Service) http.Handler {
	mux := http.NewServeMux()
	s := NewServer(":0", svc, nil, zap.NewNop())
	mux.HandleFunc("/snapshot", s.handleSnapshot)
	mux.HandleFunc("/refresh", s.handleRefresh)
	mux.HandleFunc("/quote", s.handleQuote)
	mux.HandleFunc("/submissions", s.handleSubmissions)
	return mux
}

func TestHandleSnapshot(t *testing.T) {
	svc := &fakeService{snap: domain.Snapshot{
		Oracle:  &domain.OracleData{FairPrice: 10_000_000, RiskBps: 250},
		BuiltAt: time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}}
	srv := httptest.NewServer(newTestMux(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap domain.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.NotNil(t, snap.Oracle)
	assert.Equal(t, int64(10_000_000), snap.Oracle.FairPrice)
}

func TestHandleRefresh(t *testing.T) {
	svc := &fakeService{}
	srv := httptest.NewServer(newTestMux(svc))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/refresh", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, svc.refreshed)

	// GET is not a refresh
	resp, err = http.Get(srv.URL + "/refresh")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, 1, svc.refreshed)
}

func TestHandleQuote(t *testing.T) {
	svc := &fakeService{
		quote:   domain.SwapQuote{In: 1_000_000_000, Out: 980_100_000, FeeBps: 100},
		quoteOK: true,
	}
	srv := httptest.NewServer(newTestMux(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/quote?direction=buy&amount=1000000000")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var quote domain.SwapQuote
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&quote))
	assert.Equal(t, int64(980_100_000), quote.Out)
}

func TestHandleQuoteValidation(t *testing.T) {
	svc := &fakeService{quoteOK: true}
	srv := httptest.NewServer(newTestMux(svc))
	defer srv.Close()

	for _, path := range []string{
		"/quote?direction=sideways&amount=100",
		"/quote?direction=buy&amount=abc",
		"/quote?direction=buy&amount=0",
		"/quote?direction=buy&amount=-5",
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, path)
	}
}

func TestHandleQuoteUnavailable(t *testing.T) {
	srv := httptest.NewServer(newTestMux(&fakeService{quoteOK: false}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/quote?direction=sell&amount=100")
	require.NoError(t, err)
	resp.Body.Close()
	// unknown is not zero: the absence of an estimate is a 503, never an
	// empty quote body
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleSubmissions(t *testing.T) {
	svc := &fakeService{records: []submissions.Record{
		{ID: "1", Status: submissions.StatusConfirmed, Method: "swap_buy", Hash: "hash-1"},
	}}
	srv := httptest.NewServer(newTestMux(svc))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/submissions")
	require.NoError(t, err)
	defer resp.Body.Close()

	var records []submissions.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, "hash-1", records[0].Hash)
}
