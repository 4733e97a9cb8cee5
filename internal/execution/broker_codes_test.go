package execution

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsHarmlessBrokerCode(t *testing.T) {
	require.True(t, IsHarmlessBrokerCode(202))
	require.True(t, IsHarmlessBrokerCode(2104))
	require.True(t, IsHarmlessBrokerCode(2106))
	require.True(t, IsHarmlessBrokerCode(2158))
	require.False(t, IsHarmlessBrokerCode(1100))
}

func TestConnectionTracker_ReconnectsAfterThreshold(t *testing.T) {
	c := NewConnectionTracker()
	require.True(t, c.Connected())

	c.SetConnected(false)
	for i := 1; i < ReconnectTicksThreshold; i++ {
		require.False(t, c.Tick())
	}
	require.True(t, c.Tick())

	c.SetConnected(true)
	require.False(t, c.Tick())
}
