package sched

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	db "kos/debug"
)

// TCB is a scheduler thread. Owner points at the owning process control
// block and Handle at the per-thread join handle; both are opaque here.
type TCB struct {
	id     int64
	state  Tstate
	Owner  any
	Handle any
	start  chan struct{}
}

func (t *TCB) Id() int64 {
	return t.id
}

var nextid int64

// Registry of live kernel threads, keyed by goroutine id. Guarded by its
// own mutex, not the kernel lock: a thread registers before it first takes
// the kernel lock.
var tmu sync.Mutex
var threads = make(map[uint64]*TCB)

func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// first line is "goroutine <id> [<state>]:"
	f := bytes.Fields(buf[:n])
	id, err := strconv.ParseUint(string(f[1]), 10, 64)
	if err != nil {
		db.DFatalf("goid parse %q err %v", buf[:n], err)
	}
	return id
}

func register(t *TCB) {
	tmu.Lock()
	defer tmu.Unlock()
	threads[goid()] = t
}

func unregister() {
	tmu.Lock()
	defer tmu.Unlock()
	delete(threads, goid())
}

// CurThread returns the TCB of the calling kernel thread.
func CurThread() *TCB {
	tmu.Lock()
	defer tmu.Unlock()
	t, ok := threads[goid()]
	if !ok {
		db.DFatalf("CurThread: goroutine %v is not a kernel thread", goid())
	}
	return t
}

// Spawn creates a kernel thread parked until Wakeup makes it runnable.
// The caller finishes initializing the TCB (and whatever it owns) before
// calling Wakeup; once woken the thread may run.
func Spawn(owner any, entry func()) *TCB {
	t := &TCB{
		id:    atomic.AddInt64(&nextid, 1),
		state: INIT,
		Owner: owner,
		start: make(chan struct{}),
	}
	go func() {
		<-t.start
		register(t)
		entry()
		db.DFatalf("thread %v: entry returned", t.id)
	}()
	return t
}

// Wakeup makes a spawned thread runnable. Called with the kernel lock held.
func Wakeup(t *TCB) {
	t.state = READY
	close(t.start)
}

// RegisterBoot adopts the calling goroutine as a kernel thread. The boot
// path uses it to turn itself into the idle process's main thread.
func RegisterBoot(owner any) *TCB {
	t := &TCB{
		id:    atomic.AddInt64(&nextid, 1),
		state: RUNNING,
		Owner: owner,
	}
	register(t)
	return t
}

func UnregisterBoot() {
	unregister()
}

// Reset discards all thread registrations. Only the boot path may call it,
// before any thread of the new kernel instance is spawned.
func Reset() {
	tmu.Lock()
	defer tmu.Unlock()
	threads = make(map[uint64]*TCB)
}
