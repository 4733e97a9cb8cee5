package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/otrader/engine/internal/constant"
	"github.com/otrader/engine/internal/dispatcher"
	"github.com/otrader/engine/internal/market"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
)

// PortfolioHandler routes the portfolio/contract/snapshot control-plane
// surface, grounded on the teacher's per-resource SetupHandler(router)
// convention (eventproducers/optionsapi, eventproducers/strategyapi).
type PortfolioHandler struct {
	rt *Runtime
}

func NewPortfolioHandler(rt *Runtime) *PortfolioHandler {
	return &PortfolioHandler{rt: rt}
}

func (h *PortfolioHandler) SetupHandler(router *mux.Router) {
	router.HandleFunc("", h.listPortfolios).Methods(http.MethodGet)
	router.HandleFunc("", h.createPortfolio).Methods(http.MethodPost)
	router.HandleFunc("/{name}", h.getPortfolio).Methods(http.MethodGet)
	router.HandleFunc("/{name}/contracts", h.registerContract).Methods(http.MethodPost)
	router.HandleFunc("/{name}/finalize", h.finalizePortfolio).Methods(http.MethodPost)
	router.HandleFunc("/{name}/snapshot", h.postSnapshot).Methods(http.MethodPost)
}

func (h *PortfolioHandler) createPortfolio(w http.ResponseWriter, r *http.Request) {
	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" || req.Underlying == "" {
		writeError(w, http.StatusBadRequest, errMissingField("name and underlying are required"))
		return
	}
	if req.RiskFreeRate == 0 {
		req.RiskFreeRate = 0.05
	}
	if req.IVPriceMode == "" {
		req.IVPriceMode = "mid"
	}

	err := h.rt.sync(func() {
		h.rt.createPortfolio(req.Name, req.Underlying, req.RiskFreeRate, req.IVPriceMode)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	log.WithField("portfolio", req.Name).Info("liveserver: portfolio created")
	writeJSON(w, http.StatusCreated, portfolioView{Name: req.Name, Underlying: req.Underlying})
}

func (h *PortfolioHandler) listPortfolios(w http.ResponseWriter, r *http.Request) {
	var views []portfolioView
	err := h.rt.sync(func() {
		for name, pf := range h.rt.portfolios {
			views = append(views, buildPortfolioView(name, pf))
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *PortfolioHandler) getPortfolio(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var view portfolioView
	found := false
	err := h.rt.sync(func() {
		pf, ok := h.rt.portfolios[name]
		if !ok {
			return
		}
		found = true
		view = buildPortfolioView(name, pf)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errNotFound("portfolio"))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func buildPortfolioView(name string, pf *portfolio.PortfolioData) portfolioView {
	view := portfolioView{Name: name, OptionCount: len(pf.Options), ChainCount: len(pf.Chains), ApplyOrderCount: len(pf.ApplyOrder())}
	if pf.Underlying != nil {
		view.Underlying = pf.Underlying.Symbol
		view.UnderlyingBid = pf.Underlying.BidPrice
		view.UnderlyingAsk = pf.Underlying.AskPrice
		view.UnderlyingMid = pf.Underlying.MidPrice
	}
	return view
}

func (h *PortfolioHandler) registerContract(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req registerContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Multiplier == 0 {
		req.Multiplier = 100
	}
	optType := constant.Call
	if strings.EqualFold(req.OptionType, "P") {
		optType = constant.Put
	}

	var symbol string
	found := false
	err := h.rt.sync(func() {
		pf, ok := h.rt.portfolios[name]
		if !ok || pf.Underlying == nil {
			return
		}
		found = true
		symbol = market.PlatformSymbol(pf.Underlying.Symbol, req.Expiry, optType, req.Strike, req.Multiplier)
		strike := req.Strike
		expiry := req.Expiry
		contract := object.ContractData{
			Symbol:           symbol,
			Size:             req.Multiplier,
			Product:          constant.Option,
			OptionStrike:     &strike,
			OptionType:       &optType,
			OptionExpiry:     &expiry,
			OptionUnderlying: pf.Underlying.Symbol,
			OptionIndex:      formatStrike(strike),
		}
		pf.AddOption(contract)
		h.rt.contracts[name][symbol] = &contract
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errNotFound("portfolio"))
		return
	}
	writeJSON(w, http.StatusCreated, registerContractResponse{Symbol: symbol})
}

func (h *PortfolioHandler) finalizePortfolio(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	found := false
	err := h.rt.sync(func() {
		pf, ok := h.rt.portfolios[name]
		if !ok {
			return
		}
		found = true
		pf.FinalizeChains()
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errNotFound("portfolio"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *PortfolioHandler) postSnapshot(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req postSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	found := false
	err := h.rt.sync(func() {
		pf, ok := h.rt.portfolios[name]
		if !ok {
			return
		}
		found = true

		bySymbol := make(map[string]quoteUpdate, len(req.Quotes))
		for _, q := range req.Quotes {
			bySymbol[q.Symbol] = q
		}

		applyOrder := pf.ApplyOrder()
		snapshot := object.PortfolioSnapshot{
			PortfolioName:  name,
			DateTime:       req.Time,
			UnderlyingBid:  req.UnderlyingBid,
			UnderlyingAsk:  req.UnderlyingAsk,
			UnderlyingLast: req.UnderlyingLast,
			Bid:            make([]float64, len(applyOrder)),
			Ask:            make([]float64, len(applyOrder)),
			Last:           make([]float64, len(applyOrder)),
		}
		for i, opt := range applyOrder {
			if q, ok := bySymbol[opt.Symbol]; ok {
				snapshot.Bid[i] = q.Bid
				snapshot.Ask[i] = q.Ask
				snapshot.Last[i] = q.Last
			}
		}
		dispatcher.SinkLogs(h.rt.Dispatcher.DispatchSnapshot(name, snapshot))
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errNotFound("portfolio"))
		return
	}
	w.WriteHeader(http.StatusOK)
}

// formatStrike mirrors market.PlatformSymbol's own strike-formatting
// rule (whole strikes unadorned, fractional strikes trimmed), since
// that helper is package-private and AddOption needs a matching
// OptionIndex for its chain to key the same way.
func formatStrike(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
