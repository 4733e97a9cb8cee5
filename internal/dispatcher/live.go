package dispatcher

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/otrader/engine/internal/object"
)

// EventKind distinguishes the six event shapes the live queue carries.
type EventKind int

const (
	EventSnapshot EventKind = iota
	EventTimer
	EventOrder
	EventTrade
	EventContract
	EventFunc
)

// Event is one entry on the live runtime's MPSC queue. Only the fields
// relevant to Kind are populated.
type Event struct {
	Kind          EventKind
	PortfolioName string
	Snapshot      object.PortfolioSnapshot
	StrategyName  string
	Order         object.OrderData
	Trade         object.TradeData
	Contract      object.ContractData

	// Fn is EventFunc's payload: an arbitrary closure run on the worker
	// goroutine, serialized against every other event. Callers outside
	// the worker (an HTTP control-plane handler, a gateway callback) use
	// this to read or mutate engine state without racing the dispatch
	// loop, instead of adding a new Event kind per operation.
	Fn func()
}

// LiveRuntime is the live scheduling model: one worker goroutine drains
// the event queue, a separate goroutine enqueues Timer events at a
// fixed interval. A shared atomic flag gates both loops; Stop clears it
// and lets each loop notice on its own suspension point, matching the
// original's condition-variable-with-timeout shutdown.
type LiveRuntime struct {
	Dispatcher    *Dispatcher
	TimerInterval time.Duration

	queue   chan Event
	active  atomic.Bool
	stopped chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// NewLiveRuntime constructs a runtime; timerInterval defaults to 1s,
// queueSize to 1024, matching spec §4.1's live scheduling defaults.
func NewLiveRuntime(d *Dispatcher, timerInterval time.Duration, queueSize int) *LiveRuntime {
	if timerInterval <= 0 {
		timerInterval = time.Second
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &LiveRuntime{
		Dispatcher:    d,
		TimerInterval: timerInterval,
		queue:         make(chan Event, queueSize),
		stopped:       make(chan struct{}),
	}
}

// Enqueue posts ev to the worker queue; a full queue drops the event
// with a warning rather than blocking the caller (typically a gateway
// callback thread).
func (r *LiveRuntime) Enqueue(ev Event) {
	if !r.active.Load() {
		return
	}
	select {
	case r.queue <- ev:
	default:
		log.WithField("kind", ev.Kind).Warn("live runtime: event queue full, dropping event")
	}
}

// Start launches the worker and timer goroutines.
func (r *LiveRuntime) Start() {
	if r.Dispatcher == nil {
		log.Fatal("live runtime: dispatcher is unset")
	}
	r.active.Store(true)
	r.wg.Add(2)
	go r.runWorker()
	go r.runTimer()
}

// Stop clears the active flag and waits for both loops to exit.
func (r *LiveRuntime) Stop() {
	r.active.Store(false)
	r.once.Do(func() { close(r.stopped) })
	r.wg.Wait()
}

func (r *LiveRuntime) runWorker() {
	defer r.wg.Done()
	for r.active.Load() {
		select {
		case ev := <-r.queue:
			r.handle(ev)
		case <-time.After(time.Second):
			// suspension point: re-checks active every second for
			// graceful shutdown, matching the original's condvar wait.
		}
	}
}

func (r *LiveRuntime) runTimer() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.TimerInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !r.active.Load() {
				return
			}
			r.Enqueue(Event{Kind: EventTimer})
		case <-r.stopped:
			return
		}
	}
}

func (r *LiveRuntime) handle(ev Event) {
	switch ev.Kind {
	case EventSnapshot:
		SinkLogs(r.Dispatcher.DispatchSnapshot(ev.PortfolioName, ev.Snapshot))
	case EventTimer:
		SinkLogs(r.Dispatcher.DispatchTimer())
	case EventOrder:
		r.Dispatcher.DispatchOrder(ev.StrategyName, ev.Order)
	case EventTrade:
		r.Dispatcher.DispatchTrade(ev.StrategyName, ev.Trade)
	case EventContract:
		r.Dispatcher.DispatchContract(ev.Contract)
	case EventFunc:
		if ev.Fn != nil {
			ev.Fn()
		}
	}
}
