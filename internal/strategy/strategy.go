// Package strategy implements the lifecycle template every trading
// strategy runs under: init/start/stop hooks, timer decimation, and
// order/trade callbacks, with a failing hook stopping further timer
// dispatch rather than crashing the runtime. Grounded on spec §4.7 and
// the callback shape the original system's engines invoke strategies
// through (core/engine_execution.cpp, core/engine_position.cpp).
package strategy

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/otrader/engine/internal/object"
)

// Strategy is the contract a trading strategy implements. Any of these
// may be left nil except Name; a nil hook is simply skipped.
type Strategy struct {
	Name         string
	TimerTrigger int // call OnTimer every Nth Timer event; 0 or 1 means every tick

	OnInit  func() error
	OnStart func() error
	OnStop  func() error
	OnTimer func() error
	OnOrder func(order object.OrderData) error
	OnTrade func(trade object.TradeData) error

	inited    bool
	started   bool
	errored   bool
	errorMsg  string
	timerTick int
}

// Registry holds every strategy the runtime knows about, keyed by name.
type Registry struct {
	strategies map[string]*Strategy
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]*Strategy)}
}

// Register adds s to the registry, keyed by s.Name.
func (r *Registry) Register(s *Strategy) { r.strategies[s.Name] = s }

// Unregister drops a strategy by name.
func (r *Registry) Unregister(name string) { delete(r.strategies, name) }

// Get returns the strategy and whether it was found.
func (r *Registry) Get(name string) (*Strategy, bool) {
	s, ok := r.strategies[name]
	return s, ok
}

// All returns every registered strategy, in no particular order.
func (r *Registry) All() []*Strategy {
	out := make([]*Strategy, 0, len(r.strategies))
	for _, s := range r.strategies {
		out = append(out, s)
	}
	return out
}

// IsInited, IsStarted, and Errored expose the strategy's lifecycle state.
func (s *Strategy) IsInited() bool   { return s.inited }
func (s *Strategy) IsStarted() bool  { return s.started }
func (s *Strategy) Errored() bool    { return s.errored }
func (s *Strategy) ErrorMsg() string { return s.errorMsg }

// Init runs OnInit once; a failure sets the error state and leaves the
// strategy un-inited.
func (s *Strategy) Init() {
	if s.inited {
		return
	}
	if err := s.runGuarded(s.OnInit); err != nil {
		s.fail("init", err)
		return
	}
	s.inited = true
}

// Start runs OnStart; a failure sets the error state and leaves the
// strategy un-started, so OnTimer is never invoked.
func (s *Strategy) Start() {
	if !s.inited || s.started || s.errored {
		return
	}
	if err := s.runGuarded(s.OnStart); err != nil {
		s.fail("start", err)
		return
	}
	s.started = true
}

// Stop runs OnStop and clears the started flag regardless of outcome.
func (s *Strategy) Stop() {
	if err := s.runGuarded(s.OnStop); err != nil {
		s.fail("stop", err)
	}
	s.started = false
}

// Timer runs OnTimer every TimerTrigger-th call (1-indexed, so the first
// call always fires), but only while the strategy is started and not in
// the error state.
func (s *Strategy) Timer() {
	if !s.started || s.errored {
		return
	}
	trigger := s.TimerTrigger
	if trigger < 1 {
		trigger = 1
	}
	s.timerTick++
	if (s.timerTick-1)%trigger != 0 {
		return
	}
	if err := s.runGuarded(s.OnTimer); err != nil {
		s.fail("timer", err)
	}
}

// Order delivers an order update; a hook failure logs but does not enter
// the strategy error state (order/trade callbacks are best-effort).
func (s *Strategy) Order(order object.OrderData) {
	if s.OnOrder == nil {
		return
	}
	if err := s.runGuardedOrder(order); err != nil {
		log.WithField("strategy", s.Name).WithError(err).Error("strategy on_order failed")
	}
}

// Trade delivers a trade fill; a hook failure logs but does not enter
// the strategy error state.
func (s *Strategy) Trade(trade object.TradeData) {
	if s.OnTrade == nil {
		return
	}
	if err := s.runGuardedTrade(trade); err != nil {
		log.WithField("strategy", s.Name).WithError(err).Error("strategy on_trade failed")
	}
}

func (s *Strategy) fail(stage string, err error) {
	s.errored = true
	s.started = false
	s.errorMsg = fmt.Sprintf("%s: %v", stage, err)
	log.WithField("strategy", s.Name).WithError(err).Errorf("strategy %s failed", stage)
}

func (s *Strategy) runGuarded(fn func() error) (err error) {
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func (s *Strategy) runGuardedOrder(order object.OrderData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.OnOrder(order)
}

func (s *Strategy) runGuardedTrade(trade object.TradeData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.OnTrade(trade)
}
