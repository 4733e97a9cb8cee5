package strategy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLifecycle_InitStartTimer(t *testing.T) {
	var timerCalls int
	s := &Strategy{
		Name:    "a",
		OnTimer: func() error { timerCalls++; return nil },
	}
	s.Init()
	require.True(t, s.IsInited())
	s.Start()
	require.True(t, s.IsStarted())

	s.Timer()
	s.Timer()
	require.Equal(t, 2, timerCalls)
}

func TestLifecycle_StartFailureBlocksTimer(t *testing.T) {
	var timerCalls int
	s := &Strategy{
		Name:    "a",
		OnStart: func() error { return errors.New("boom") },
		OnTimer: func() error { timerCalls++; return nil },
	}
	s.Init()
	s.Start()
	require.False(t, s.IsStarted())
	require.True(t, s.Errored())

	s.Timer()
	require.Equal(t, 0, timerCalls)
}

func TestTimer_TriggerDecimation(t *testing.T) {
	var timerCalls int
	s := &Strategy{
		Name:         "a",
		TimerTrigger: 3,
		OnTimer:      func() error { timerCalls++; return nil },
	}
	s.Init()
	s.Start()

	for i := 0; i < 7; i++ {
		s.Timer()
	}
	// first call fires (tick 1), then every 3rd: ticks 1, 4, 7
	require.Equal(t, 3, timerCalls)
}

func TestTimer_PanicSetsErrorState(t *testing.T) {
	s := &Strategy{
		Name:    "a",
		OnTimer: func() error { panic("boom") },
	}
	s.Init()
	s.Start()

	s.Timer()
	require.True(t, s.Errored())
	require.False(t, s.IsStarted())
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := &Strategy{Name: "a"}
	r.Register(s)

	got, ok := r.Get("a")
	require.True(t, ok)
	require.Same(t, s, got)

	r.Unregister("a")
	_, ok = r.Get("a")
	require.False(t, ok)
}
