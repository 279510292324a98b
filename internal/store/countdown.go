package store

import (
	"sync"
	"time"
)

// Countdown drives ExamStore.Tick once per interval while a session is in
// progress. It stops itself on expiry and must be stopped explicitly when
// the exam screen unmounts, so no live ticker outlives its screen.
type Countdown struct {
	es       *ExamStore
	interval time.Duration
	onTick   func(remaining int)
	onExpire func()

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewCountdown constructs a countdown. interval <= 0 defaults to one second.
// onExpire fires exactly once, after the tick that reached zero.
func NewCountdown(es *ExamStore, interval time.Duration, onTick func(int), onExpire func()) *Countdown {
	if interval <= 0 {
		interval = time.Second
	}
	return &Countdown{
		es:       es,
		interval: interval,
		onTick:   onTick,
		onExpire: onExpire,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the ticker goroutine.
func (c *Countdown) Start() {
	go func() {
		defer close(c.done)
		t := time.NewTicker(c.interval)
		defer t.Stop()
		for {
			select {
			case <-c.stop:
				return
			case <-t.C:
				remaining, expired := c.es.Tick()
				if c.onTick != nil {
					c.onTick(remaining)
				}
				if expired {
					if c.onExpire != nil {
						c.onExpire()
					}
					return
				}
				if remaining <= 0 {
					return
				}
			}
		}
	}()
}

// Stop halts the ticker and waits for the goroutine to exit. Safe to call
// more than once and after self-stop.
func (c *Countdown) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
	<-c.done
}
