package main

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	log "github.com/sirupsen/logrus"

	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/position"
	"github.com/otrader/engine/internal/strategy"
)

var queryDecoder = schema.NewDecoder()

// listStrategiesFilter is decoded from the query string via
// gorilla/schema, the teacher's form/query decoding library
// (handler/slack.go), so GET /strategies?portfolio=foo narrows the
// listing to one portfolio's strategies.
type listStrategiesFilter struct {
	Portfolio string `schema:"portfolio"`
}

// StrategyHandler routes the strategy-lifecycle control-plane surface:
// create/stop a named instance of a registered class, list running
// instances with their current holding summary.
type StrategyHandler struct {
	rt *Runtime
}

func NewStrategyHandler(rt *Runtime) *StrategyHandler {
	return &StrategyHandler{rt: rt}
}

func (h *StrategyHandler) SetupHandler(router *mux.Router) {
	router.HandleFunc("", h.listStrategies).Methods(http.MethodGet)
	router.HandleFunc("", h.createStrategy).Methods(http.MethodPost)
	router.HandleFunc("/{name}", h.getStrategy).Methods(http.MethodGet)
	router.HandleFunc("/{name}", h.stopStrategy).Methods(http.MethodDelete)
}

// effectiveStrategyName applies the "<strategy>_<portfolio>" holding-key
// convention position.PortfolioNameForStrategy derives a strategy's
// portfolio from, so a caller only has to name its portfolio once.
func effectiveStrategyName(strategyName, portfolioName string) string {
	if strings.Contains(strategyName, "_") {
		return strategyName
	}
	return strategyName + "_" + portfolioName
}

func (h *StrategyHandler) createStrategy(w http.ResponseWriter, r *http.Request) {
	var req createStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ClassName == "" || req.StrategyName == "" || req.PortfolioName == "" {
		writeError(w, http.StatusBadRequest, errMissingField("class_name, strategy_name, and portfolio_name are required"))
		return
	}

	name := effectiveStrategyName(req.StrategyName, req.PortfolioName)
	settings := strategy.Settings(req.Settings)

	var buildErr error
	found := false
	err := h.rt.sync(func() {
		classes, ok := h.rt.classesByPortfolio[req.PortfolioName]
		if !ok {
			return
		}
		found = true

		inst, berr := classes.Build(req.ClassName, name, settings)
		if berr != nil {
			buildErr = berr
			return
		}
		h.rt.Strategies.Register(inst)
		h.rt.Execution.EnsureStrategyKey(name)
		inst.Init()
		inst.Start()

		if req.Hedge != nil {
			h.rt.Hedge.RegisterStrategy(name, req.Hedge.TimerTrigger, req.Hedge.DeltaTarget, req.Hedge.DeltaRange)
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errNotFound("portfolio"))
		return
	}
	if buildErr != nil {
		writeError(w, http.StatusBadRequest, buildErr)
		return
	}

	log.WithFields(log.Fields{"strategy": name, "class": req.ClassName}).Info("liveserver: strategy started")
	writeJSON(w, http.StatusCreated, createStrategyResponse{StrategyName: name})
}

func (h *StrategyHandler) stopStrategy(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	found := false
	err := h.rt.sync(func() {
		s, ok := h.rt.Strategies.Get(name)
		if !ok {
			return
		}
		found = true
		s.Stop()
		h.rt.Strategies.Unregister(name)
		h.rt.Hedge.UnregisterStrategy(name)
		h.rt.Execution.RemoveStrategyTracking(name)
		h.rt.Position.RemoveStrategyHolding(name)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errNotFound("strategy"))
		return
	}
	log.WithField("strategy", name).Info("liveserver: strategy stopped")
	w.WriteHeader(http.StatusOK)
}

func (h *StrategyHandler) listStrategies(w http.ResponseWriter, r *http.Request) {
	var filter listStrategiesFilter
	if err := r.ParseForm(); err == nil {
		queryDecoder.Decode(&filter, r.Form)
	}

	var views []strategyView
	err := h.rt.sync(func() {
		for _, s := range h.rt.Strategies.All() {
			if filter.Portfolio != "" && position.PortfolioNameForStrategy(s.Name) != filter.Portfolio {
				continue
			}
			views = append(views, buildStrategyView(h.rt, s))
		}
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *StrategyHandler) getStrategy(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var view strategyView
	found := false
	err := h.rt.sync(func() {
		s, ok := h.rt.Strategies.Get(name)
		if !ok {
			return
		}
		found = true
		view = buildStrategyView(h.rt, s)
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, errNotFound("strategy"))
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func buildStrategyView(rt *Runtime, s *strategy.Strategy) strategyView {
	view := strategyView{
		Name:     s.Name,
		Inited:   s.IsInited(),
		Started:  s.IsStarted(),
		Errored:  s.Errored(),
		ErrorMsg: s.ErrorMsg(),
	}
	if holding, ok := rt.Position.GetHolding(s.Name); ok {
		view.HasHolding = true
		view.Summary = toSummaryView(holding.Summary)
	}
	return view
}

func toSummaryView(s object.PortfolioSummary) summaryView {
	return summaryView{
		TotalCost:     s.TotalCost,
		CurrentValue:  s.CurrentValue,
		UnrealizedPnl: s.UnrealizedPnl,
		RealizedPnl:   s.RealizedPnl,
		Pnl:           s.Pnl,
		Delta:         s.Delta,
		Gamma:         s.Gamma,
		Theta:         s.Theta,
		Vega:          s.Vega,
	}
}
