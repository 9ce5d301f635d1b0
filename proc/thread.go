package proc

import (
	"golang.org/x/exp/slices"

	db "kos/debug"
	"kos/defs"
	"kos/sched"
)

// Ptcb is a per-thread join handle, linking a scheduler thread to its
// owning process. It is freed by the last joiner to drop its reference
// after the thread exits, or by the process's last-thread cleanup.
type Ptcb struct {
	tid defs.Ttid
	tcb *sched.TCB

	task defs.Task
	argl int
	args []byte

	exitval  int
	exited   bool
	detached bool
	refcnt   int
	exitCv   sched.CondVar
}

func (pt *Ptcb) Tid() defs.Ttid {
	return pt.tid
}

var nextTid int64

func acquirePtcb(tcb *sched.TCB, pcb *Pcb, task defs.Task, argl int, args []byte) *Ptcb {
	nextTid++
	ptcb := &Ptcb{
		tid:  defs.Ttid(nextTid),
		tcb:  tcb,
		task: task,
		argl: argl,
		args: args,
	}
	tcb.Handle = ptcb
	pcb.ptcbs = append(pcb.ptcbs, ptcb)
	return ptcb
}

func curPtcb() *Ptcb {
	return sched.CurThread().Handle.(*Ptcb)
}

func findPtcb(pcb *Pcb, tid defs.Ttid) *Ptcb {
	i := slices.IndexFunc(pcb.ptcbs, func(p *Ptcb) bool { return p.tid == tid })
	if i < 0 {
		return nil
	}
	return pcb.ptcbs[i]
}

// startThread is the entry of a thread created by CreateThread: run the
// task, then exit the thread with its return value.
func startThread() {
	sched.Lock()
	ptcb := curPtcb()
	call := ptcb.task
	argl := ptcb.argl
	args := ptcb.args
	sched.Unlock()

	exitval := call(argl, args)
	ThreadExit(exitval)
}

// CreateThread spawns a new thread in the current process. The argument
// buffer is not copied; the caller must keep it alive.
func CreateThread(task defs.Task, argl int, args []byte) defs.Ttid {
	sched.Lock()
	defer sched.Unlock()

	if task == nil {
		return defs.NOTHREAD
	}
	curproc := Cur()
	tcb := sched.Spawn(curproc, startThread)
	ptcb := acquirePtcb(tcb, curproc, task, argl, args)
	curproc.threadCount++
	sched.Wakeup(tcb)
	db.DPrintf(db.THREAD, "pid %v create tid %v", curproc.pid, ptcb.tid)
	return ptcb.tid
}

// ThreadSelf returns the handle of the calling thread.
func ThreadSelf() defs.Ttid {
	sched.Lock()
	defer sched.Unlock()
	return curPtcb().tid
}

// ThreadJoin waits for tid to exit and delivers its exit value. It fails
// on an unknown tid, a self-join, or a detached target; a target detached
// while waiting also fails, with no exit value delivered.
func ThreadJoin(tid defs.Ttid, exitval *int) int {
	sched.Lock()
	defer sched.Unlock()

	curproc := Cur()
	ptcb := findPtcb(curproc, tid)
	if ptcb == nil {
		return -1
	}
	if ptcb == curPtcb() {
		return -1
	}
	if ptcb.detached {
		return -1
	}

	ptcb.refcnt++
	for !ptcb.exited && !ptcb.detached {
		ptcb.exitCv.Wait(defs.SchedUser)
	}
	ptcb.refcnt--

	if ptcb.detached {
		return -1
	}
	if exitval != nil {
		*exitval = ptcb.exitval
	}

	// Last joiner frees the handle.
	if ptcb.refcnt == 0 {
		if i := slices.Index(curproc.ptcbs, ptcb); i >= 0 {
			curproc.ptcbs = slices.Delete(curproc.ptcbs, i, i+1)
		}
	}
	return 0
}

// ThreadDetach marks tid detached: current joiners are released with an
// error and future joins fail. The handle is then freed by the process's
// last-thread cleanup, not by a joiner.
func ThreadDetach(tid defs.Ttid) int {
	sched.Lock()
	defer sched.Unlock()

	ptcb := findPtcb(Cur(), tid)
	if ptcb == nil {
		return -1
	}
	if ptcb.exited {
		return -1
	}
	ptcb.detached = true
	ptcb.exitCv.Broadcast()
	return 0
}

// ThreadExit terminates the calling thread; it never returns. The last
// thread of a process tears the process down.
func ThreadExit(exitval int) {
	sched.Lock()
	threadExit(exitval)
}

func threadExit(exitval int) {
	ptcb := curPtcb()
	curproc := Cur()

	ptcb.exitval = exitval
	ptcb.exited = true
	ptcb.exitCv.Broadcast()

	curproc.threadCount--

	if curproc.threadCount == 0 {
		db.DPrintf(db.PROC, "pid %v last thread exits", curproc.pid)
		if curproc.pid > 1 {
			initpcb := getPcb(1)

			// Reparent children (zombies included) to init.
			moved := len(curproc.children) > 0 || len(curproc.exited) > 0
			for _, child := range curproc.children {
				child.parent = initpcb
				initpcb.children = append(initpcb.children, child)
			}
			curproc.children = nil

			// Hand exited children to init.
			initpcb.exited = append(initpcb.exited, curproc.exited...)
			curproc.exited = nil
			if moved {
				initpcb.childExit.Broadcast()
			}

			// Become a zombie child of our parent.
			curproc.parent.exited = append(curproc.parent.exited, curproc)
			curproc.parent.childExit.Broadcast()
		}

		if len(curproc.children) > 0 || len(curproc.exited) > 0 {
			db.DFatalf("pid %v exits with children", curproc.pid)
		}

		curproc.args = nil
		curproc.fidt.Drain()
		curproc.ptcbs = nil
		curproc.mainThread = nil
		curproc.pstate = ZOMBIE

		if curproc.pid == 1 {
			initDone.Broadcast()
		}
	}

	sched.Sleep(sched.EXITED)
}
