package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/otrader/engine/internal/execution"
	"github.com/otrader/engine/internal/hedge"
	"github.com/otrader/engine/internal/object"
	"github.com/otrader/engine/internal/portfolio"
	"github.com/otrader/engine/internal/position"
	"github.com/otrader/engine/internal/strategy"
)

func buildLiveDispatcher() *Dispatcher {
	pf := portfolio.NewPortfolioData("default")
	pf.SetUnderlying(object.ContractData{Symbol: "AAPL"})
	return New(func(string) *portfolio.PortfolioData { return pf }, execution.New(nil, nil), position.New(), hedge.New(), strategy.NewRegistry())
}

func TestLiveRuntime_EventFuncRunsOnWorker(t *testing.T) {
	rt := NewLiveRuntime(buildLiveDispatcher(), 50*time.Millisecond, 16)
	rt.Start()
	defer rt.Stop()

	done := make(chan struct{})
	var ran bool
	rt.Enqueue(Event{Kind: EventFunc, Fn: func() {
		ran = true
		close(done)
	}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EventFunc never ran")
	}
	require.True(t, ran)
}

func TestLiveRuntime_EventFuncSerializedAgainstSnapshot(t *testing.T) {
	pf := portfolio.NewPortfolioData("default")
	pf.SetUnderlying(object.ContractData{Symbol: "AAPL"})
	d := New(func(string) *portfolio.PortfolioData { return pf }, execution.New(nil, nil), position.New(), hedge.New(), strategy.NewRegistry())

	rt := NewLiveRuntime(d, 50*time.Millisecond, 16)
	rt.Start()
	defer rt.Stop()

	rt.Enqueue(Event{Kind: EventSnapshot, PortfolioName: "default", Snapshot: object.PortfolioSnapshot{
		UnderlyingBid: 99, UnderlyingAsk: 101, UnderlyingLast: 100,
	}})

	done := make(chan float64)
	rt.Enqueue(Event{Kind: EventFunc, Fn: func() {
		done <- pf.Underlying.MidPrice
	}})

	select {
	case mid := <-done:
		require.Equal(t, 100.0, mid)
	case <-time.After(time.Second):
		t.Fatal("EventFunc never observed the prior snapshot")
	}
}

func TestLiveRuntime_StopDrainsCleanly(t *testing.T) {
	rt := NewLiveRuntime(buildLiveDispatcher(), 10*time.Millisecond, 4)
	rt.Start()
	rt.Stop()

	// Enqueue after Stop is a no-op, not a panic or a block.
	rt.Enqueue(Event{Kind: EventTimer})
}
