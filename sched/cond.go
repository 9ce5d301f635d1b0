package sched

import (
	"time"

	"golang.org/x/exp/slices"

	"kos/defs"
)

// CondVar is a condition variable over the global kernel lock, with an
// explicit FIFO waiter queue. Signal and Broadcast ready waiters in
// insertion order, but readied threads race for the lock, so callers must
// re-check their predicate on every wakeup.
//
// The zero value is an initialized, empty condition variable.
type CondVar struct {
	waiters []*waiter
}

type waiter struct {
	ch    chan bool
	class defs.Tsched
}

func newWaiter(class defs.Tsched) *waiter {
	return &waiter{ch: make(chan bool, 1), class: class}
}

// Wait suspends the calling thread until signalled. The caller holds the
// kernel lock; Wait releases it while suspended and reacquires it before
// returning.
func (cv *CondVar) Wait(class defs.Tsched) {
	w := newWaiter(class)
	cv.waiters = append(cv.waiters, w)
	Unlock()
	<-w.ch
	Lock()
}

// TimedWait is Wait with a timeout; it returns false if the timeout
// expired before a wakeup. A wakeup that races with the timer counts as a
// wakeup. A zero timeout waits forever.
func (cv *CondVar) TimedWait(class defs.Tsched, timeout time.Duration) bool {
	if timeout == 0 {
		cv.Wait(class)
		return true
	}
	w := newWaiter(class)
	cv.waiters = append(cv.waiters, w)
	Unlock()
	woken := false
	select {
	case <-w.ch:
		woken = true
	case <-time.After(timeout):
	}
	Lock()
	if !woken {
		// If we are no longer queued, a signal picked us just as the timer
		// fired; consume it and report a normal wakeup.
		if i := slices.Index(cv.waiters, w); i >= 0 {
			cv.waiters = slices.Delete(cv.waiters, i, i+1)
		} else {
			<-w.ch
			woken = true
		}
	}
	return woken
}

// Signal readies the oldest waiter, if any. Caller holds the kernel lock.
func (cv *CondVar) Signal() {
	if len(cv.waiters) > 0 {
		w := cv.waiters[0]
		cv.waiters = cv.waiters[1:]
		w.ch <- true
	}
}

// Broadcast readies every waiter. Caller holds the kernel lock.
func (cv *CondVar) Broadcast() {
	for _, w := range cv.waiters {
		w.ch <- true
	}
	cv.waiters = nil
}
