package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Runtime, *mux.Router) {
	t.Helper()
	rt := NewRuntime(20*time.Millisecond, 64)
	rt.Live.Start()
	t.Cleanup(rt.Live.Stop)

	router := mux.NewRouter()
	NewPortfolioHandler(rt).SetupHandler(router.PathPrefix("/portfolios").Subrouter())
	NewStrategyHandler(rt).SetupHandler(router.PathPrefix("/strategies").Subrouter())
	return rt, router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestLiveServer_CreatePortfolio(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/portfolios", createPortfolioRequest{
		Name:       "acct1",
		Underlying: "AAPL",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/portfolios/acct1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view portfolioView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "acct1", view.Name)
	require.Equal(t, "AAPL", view.Underlying)
}

func TestLiveServer_RegisterContractAndFinalize(t *testing.T) {
	_, router := newTestServer(t)
	doJSON(t, router, http.MethodPost, "/portfolios", createPortfolioRequest{Name: "acct1", Underlying: "AAPL"})

	rec := doJSON(t, router, http.MethodPost, "/portfolios/acct1/contracts", registerContractRequest{
		Strike:     150,
		Expiry:     time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC),
		OptionType: "C",
		Multiplier: 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp registerContractResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "AAPL-20250620-C-150-100", resp.Symbol)

	rec = doJSON(t, router, http.MethodPost, "/portfolios/acct1/finalize", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/portfolios/acct1", nil)
	var view portfolioView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, 1, view.OptionCount)
	require.Equal(t, 1, view.ApplyOrderCount)
}

func TestLiveServer_UnknownPortfolioIs404(t *testing.T) {
	_, router := newTestServer(t)
	rec := doJSON(t, router, http.MethodGet, "/portfolios/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLiveServer_CreateAndStopStrategy(t *testing.T) {
	_, router := newTestServer(t)
	doJSON(t, router, http.MethodPost, "/portfolios", createPortfolioRequest{Name: "acct1", Underlying: "AAPL"})

	rec := doJSON(t, router, http.MethodPost, "/strategies", createStrategyRequest{
		ClassName:     "buy_and_hold_underlying",
		StrategyName:  "myalgo",
		PortfolioName: "acct1",
		Settings:      map[string]float64{"volume": 2},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createStrategyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "myalgo_acct1", resp.StrategyName)

	rec = doJSON(t, router, http.MethodGet, "/strategies/myalgo_acct1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view strategyView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.True(t, view.Inited)
	require.True(t, view.Started)

	rec = doJSON(t, router, http.MethodDelete, "/strategies/myalgo_acct1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/strategies/myalgo_acct1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLiveServer_CreateStrategyUnknownClass(t *testing.T) {
	_, router := newTestServer(t)
	doJSON(t, router, http.MethodPost, "/portfolios", createPortfolioRequest{Name: "acct1", Underlying: "AAPL"})

	rec := doJSON(t, router, http.MethodPost, "/strategies", createStrategyRequest{
		ClassName:     "does_not_exist",
		StrategyName:  "myalgo",
		PortfolioName: "acct1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLiveServer_SnapshotFeedsDispatcher(t *testing.T) {
	_, router := newTestServer(t)
	doJSON(t, router, http.MethodPost, "/portfolios", createPortfolioRequest{Name: "acct1", Underlying: "AAPL"})
	rec := doJSON(t, router, http.MethodPost, "/portfolios/acct1/contracts", registerContractRequest{
		Strike:     150,
		Expiry:     time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC),
		OptionType: "C",
		Multiplier: 100,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	doJSON(t, router, http.MethodPost, "/portfolios/acct1/finalize", nil)

	rec = doJSON(t, router, http.MethodPost, "/portfolios/acct1/snapshot", postSnapshotRequest{
		Time:           time.Now(),
		UnderlyingBid:  149,
		UnderlyingAsk:  151,
		UnderlyingLast: 150,
		Quotes: []quoteUpdate{
			{Symbol: "AAPL-20250620-C-150-100", Bid: 4.9, Ask: 5.1, Last: 5.0},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/portfolios/acct1", nil)
	var view portfolioView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, 150.0, view.UnderlyingMid)
}

func TestEffectiveStrategyName(t *testing.T) {
	require.Equal(t, "algo_acct1", effectiveStrategyName("algo", "acct1"))
	require.Equal(t, "algo_acct1", effectiveStrategyName("algo_acct1", "ignored"))
}
