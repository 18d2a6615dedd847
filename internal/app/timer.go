package app

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// countdown drives a single timed window (buffer or open question) for one
// session. Each Start bumps a generation counter; tick and expiry callbacks
// carry the generation they were armed with, and a stale generation is
// dropped before it can reach the state machine. That is what guarantees a
// cancelled timer never delivers a late expiry, and a natural expiry fires
// exactly once.
type countdown struct {
	clock clockwork.Clock
	every time.Duration

	mu        sync.Mutex
	gen       uint64
	running   bool
	timer     clockwork.Timer
	ticker    clockwork.Ticker
	stop      chan struct{}
	deadline  time.Time
	total     time.Duration
	remaining time.Duration
}

func newCountdown(clock clockwork.Clock, tickEvery time.Duration) *countdown {
	if tickEvery <= 0 {
		tickEvery = time.Second
	}
	return &countdown{clock: clock, every: tickEvery}
}

// Start arms the countdown for d, cancelling any previous window.
func (c *countdown) Start(d time.Duration, onTick func(gen uint64), onExpire func(gen uint64)) uint64 {
	c.mu.Lock()
	c.stopLocked()
	c.gen++
	gen := c.gen
	c.running = true
	c.total = d
	c.remaining = 0
	c.deadline = c.clock.Now().Add(d)
	timer := c.clock.NewTimer(d)
	ticker := c.clock.NewTicker(c.every)
	stop := make(chan struct{})
	c.timer = timer
	c.ticker = ticker
	c.stop = stop
	c.mu.Unlock()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-timer.Chan():
				if c.claim(gen) && onExpire != nil {
					onExpire(gen)
				}
				return
			case <-ticker.Chan():
				if !c.valid(gen) {
					return
				}
				if onTick != nil {
					onTick(gen)
				}
			}
		}
	}()
	return gen
}

// Cancel stops the countdown; any in-flight expiry for the old generation
// is discarded.
func (c *countdown) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.gen++
	c.running = false
}

// Pause freezes the remaining duration and stops the clock. The frozen
// remainder is what Resume re-arms with.
func (c *countdown) Pause() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return c.remaining
	}
	c.remaining = c.deadline.Sub(c.clock.Now())
	if c.remaining < 0 {
		c.remaining = 0
	}
	c.stopLocked()
	c.gen++
	c.running = false
	return c.remaining
}

// Resume re-arms the countdown with the remainder frozen by Pause.
func (c *countdown) Resume(onTick func(gen uint64), onExpire func(gen uint64)) uint64 {
	c.mu.Lock()
	d := c.remaining
	total := c.total
	c.mu.Unlock()
	gen := c.Start(d, onTick, onExpire)
	c.mu.Lock()
	c.total = total // keep the original window length for tick payloads
	c.mu.Unlock()
	return gen
}

// Deadline returns the monotonic deadline of the current window.
func (c *countdown) Deadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deadline
}

// Remaining reports how much of the window is left.
func (c *countdown) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return c.remaining
	}
	d := c.deadline.Sub(c.clock.Now())
	if d < 0 {
		d = 0
	}
	return d
}

// Total returns the full length of the current window.
func (c *countdown) Total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

// Expired reports whether the deadline has elapsed.
func (c *countdown) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.deadline.IsZero() && c.clock.Now().After(c.deadline)
}

// claim consumes the expiry for gen; it succeeds at most once per Start.
func (c *countdown) claim(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || !c.running {
		return false
	}
	c.running = false
	c.remaining = 0
	return true
}

func (c *countdown) valid(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen && c.running
}

// stopLocked stops and drains the underlying timer/ticker per the
// time.Timer.Stop contract, and releases the watcher goroutine so a
// cancelled window never strands it.
func (c *countdown) stopLocked() {
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.timer != nil {
		if !c.timer.Stop() {
			select {
			case <-c.timer.Chan():
			default:
			}
		}
		c.timer = nil
	}
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}
