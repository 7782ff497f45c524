package mqtt311

import "time"

// keepAliveGuard is subtracted from the negotiated interval so the PINGREQ
// leaves before the broker's deadline.
const keepAliveGuard = 500 * time.Millisecond

// KeepAliveTimer tracks when the next PINGREQ is due.
//
// The countdown is advanced by the caller; the timer never reads the clock.
type KeepAliveTimer struct {
	interval  time.Duration
	remaining time.Duration
	enabled   bool
}

// NewKeepAliveTimer creates an enabled timer with the given interval and a
// full countdown. A non-positive interval creates a disabled timer.
func NewKeepAliveTimer(interval time.Duration) KeepAliveTimer {
	if interval <= 0 {
		return KeepAliveTimer{}
	}
	return KeepAliveTimer{interval: interval, remaining: interval, enabled: true}
}

// KeepAliveInterval converts the CONNECT keepalive in seconds into the ping
// interval. Zero disables keepalive.
func KeepAliveInterval(seconds uint16) time.Duration {
	if seconds == 0 {
		return 0
	}
	return time.Duration(seconds)*time.Second - keepAliveGuard
}

// start enables the timer for a new connection with the first ping due
// immediately.
func (t *KeepAliveTimer) start(seconds uint16) {
	*t = NewKeepAliveTimer(KeepAliveInterval(seconds))
	t.remaining = 0
}

// Reset restarts the countdown from the full interval.
func (t *KeepAliveTimer) Reset() {
	t.remaining = t.interval
}

// Tick subtracts elapsed from the countdown, stopping at zero, and reports
// whether a ping is due.
func (t *KeepAliveTimer) Tick(elapsed time.Duration) bool {
	if !t.enabled {
		return false
	}

	if elapsed >= t.remaining {
		t.remaining = 0
	} else if elapsed > 0 {
		t.remaining -= elapsed
	}

	return t.remaining == 0
}

// Enabled reports whether keepalive pings are sent at all.
func (t KeepAliveTimer) Enabled() bool { return t.enabled }

// Interval returns the ping interval.
func (t KeepAliveTimer) Interval() time.Duration { return t.interval }

// Remaining returns the time left until the next ping.
func (t KeepAliveTimer) Remaining() time.Duration { return t.remaining }
