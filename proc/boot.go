package proc

import (
	db "kos/debug"
	"kos/defs"
	"kos/sched"
)

// Boot glue. The kernel package initializes the table, adopts the calling
// goroutine as the idle process's thread, Execs init, and waits here for
// init to finish.

// AttachBoot turns the calling goroutine into the main thread of the idle
// process (pid 0).
func AttachBoot() *sched.TCB {
	idle := pt[0]
	if idle.pstate != ALIVE {
		db.DFatalf("AttachBoot: idle pstate %v", idle.pstate)
	}
	t := sched.RegisterBoot(idle)
	sched.Lock()
	idle.mainThread = t
	idle.threadCount++
	sched.Unlock()
	return t
}

// WaitInit blocks until init (pid 1) has become a zombie, reaps it, and
// returns its exit value. Init is parentless, so the boot thread reaps it
// directly rather than through WaitChild.
func WaitInit() int {
	sched.Lock()
	defer sched.Unlock()

	initpcb := getPcb(1)
	if initpcb == nil {
		db.DFatalf("WaitInit: no init process")
	}
	for initpcb.pstate == ALIVE {
		initDone.Wait(defs.SchedUser)
	}
	status := initpcb.exitval
	releasePcb(initpcb)
	return status
}

// DetachBoot releases the idle process and the boot thread's registration.
func DetachBoot() {
	sched.Lock()
	idle := pt[0]
	idle.threadCount--
	idle.fidt.Drain()
	releasePcb(idle)
	sched.Unlock()
	sched.UnregisterBoot()
}
