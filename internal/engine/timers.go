package engine

import "time"

// timerHandle is one armed Schedule() call (spec.md §4.3 "Timers"):
// one-shot timers use timer; periodic ones use stop to signal the
// forwarding goroutine to quit.
type timerHandle struct {
	timer *time.Timer
	stop  chan struct{}
}

func (h *timerHandle) cancel() {
	if h.timer != nil {
		h.timer.Stop()
	}
	if h.stop != nil {
		close(h.stop)
	}
}

// armTimers arms every scheduled spec collected from a handler invocation,
// registering each under its owning node so it is cancelled automatically
// when that node exits (spec.md §4.3 "a scheduled timer is cancelled when
// the state that scheduled it exits").
func (e *Engine) armTimers(specs []scheduledSpec) {
	for _, sp := range specs {
		e.armTimer(sp)
	}
}

func (e *Engine) armTimer(sp scheduledSpec) {
	var h *timerHandle
	if sp.periodic {
		stop := make(chan struct{})
		t := time.NewTicker(sp.delay)
		go func() {
			for {
				select {
				case <-t.C:
					e.PostAsync(sp.produce())
				case <-stop:
					t.Stop()
					return
				}
			}
		}()
		h = &timerHandle{stop: stop}
	} else {
		h = &timerHandle{timer: time.AfterFunc(sp.delay, func() {
			e.PostAsync(sp.produce())
		})}
	}
	e.mu.Lock()
	e.timers[sp.owner] = append(e.timers[sp.owner], h)
	e.mu.Unlock()
}

// cancelTimersFor stops and forgets every timer owned by key.
func (e *Engine) cancelTimersFor(key Key) {
	e.mu.Lock()
	handles := e.timers[key]
	delete(e.timers, key)
	e.mu.Unlock()
	for _, h := range handles {
		h.cancel()
	}
}

// cancelAllTimers is used on Stop.
func (e *Engine) cancelAllTimers() {
	e.mu.Lock()
	all := e.timers
	e.timers = map[Key][]*timerHandle{}
	e.mu.Unlock()
	for _, handles := range all {
		for _, h := range handles {
			h.cancel()
		}
	}
}
