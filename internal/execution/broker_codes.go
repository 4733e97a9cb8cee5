package execution

// HarmlessBrokerCodes are broker status codes a live gateway adapter
// should suppress rather than log at ERROR, per spec §7. These are
// informational/connectivity codes the original system's TWS adapter
// treats as noise (market data farm connection OK, etc.), not trading
// faults.
var HarmlessBrokerCodes = map[int]bool{
	202:  true,
	2104: true,
	2106: true,
	2158: true,
}

// IsHarmlessBrokerCode reports whether code should be suppressed rather
// than logged at ERROR.
func IsHarmlessBrokerCode(code int) bool {
	return HarmlessBrokerCodes[code]
}

// ReconnectTicksThreshold is how many consecutive disconnected Timer
// ticks elapse before a live gateway adapter should attempt a
// reconnection, per spec §7.
const ReconnectTicksThreshold = 10

// ConnectionTracker counts consecutive disconnected ticks for a single
// gateway and reports when a reconnect attempt is due.
type ConnectionTracker struct {
	connected       bool
	disconnectTicks int
}

// NewConnectionTracker starts in the connected state.
func NewConnectionTracker() *ConnectionTracker {
	return &ConnectionTracker{connected: true}
}

// SetConnected updates connection state, resetting the disconnect
// counter on a reconnect.
func (c *ConnectionTracker) SetConnected(connected bool) {
	c.connected = connected
	if connected {
		c.disconnectTicks = 0
	}
}

// Connected reports the last known connection state.
func (c *ConnectionTracker) Connected() bool { return c.connected }

// Tick advances the disconnect counter by one Timer tick and reports
// whether a reconnect attempt is due this tick (every ReconnectTicksThreshold
// ticks while disconnected).
func (c *ConnectionTracker) Tick() bool {
	if c.connected {
		return false
	}
	c.disconnectTicks++
	return c.disconnectTicks%ReconnectTicksThreshold == 0
}
