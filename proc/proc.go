// Package proc implements the process table and the process, thread, and
// descriptor syscalls. Exported syscalls take the global kernel lock at
// entry; the lower-case implementations assume it is held.
package proc

import (
	"golang.org/x/exp/slices"

	db "kos/debug"
	"kos/defs"
	"kos/fid"
	"kos/sched"
)

type Tpstate int

const (
	FREE Tpstate = iota
	ALIVE
	ZOMBIE
)

func (s Tpstate) String() string {
	switch s {
	case FREE:
		return "FREE"
	case ALIVE:
		return "ALIVE"
	case ZOMBIE:
		return "ZOMBIE"
	default:
		return "unknown pstate"
	}
}

// Pcb is a process control block. Zombie children appear on both the
// children and exited lists until reaped.
type Pcb struct {
	pstate      Tpstate
	pid         defs.Tpid
	parent      *Pcb
	exitval     int
	mainThread  *sched.TCB
	mainTask    defs.Task
	argl        int
	args        []byte
	children    []*Pcb
	exited      []*Pcb
	ptcbs       []*Ptcb
	fidt        *fid.Table
	threadCount int
	childExit   sched.CondVar
}

func (p *Pcb) Pid() defs.Tpid {
	return p.pid
}

// FidTable exposes the process's descriptor table to the stream
// subsystems; callers hold the kernel lock.
func (p *Pcb) FidTable() *fid.Table {
	return p.fidt
}

// The process table. Slots are fixed for the life of the kernel; the free
// list is threaded through the parent field of FREE slots.
var pt []*Pcb
var pcbFreelist *Pcb
var processCount int
var initDone sched.CondVar

// Init builds the process table and runs the null idle process as pid 0.
func Init() {
	n := defs.Conf.Proc.MAX_PROC
	pt = make([]*Pcb, n)
	for i := range pt {
		pt[i] = &Pcb{pstate: FREE, pid: defs.Tpid(i)}
	}
	pcbFreelist = nil
	for i := n - 1; i >= 0; i-- {
		pt[i].parent = pcbFreelist
		pcbFreelist = pt[i]
	}
	processCount = 0
	initDone = sched.CondVar{}
	nextTid = 0
	if exec(nil, 0, nil) != 0 {
		db.DFatalf("The idle process does not have pid==0")
	}
}

func getPcb(pid defs.Tpid) *Pcb {
	if pid < 0 || int(pid) >= len(pt) {
		return nil
	}
	if pt[pid].pstate == FREE {
		return nil
	}
	return pt[pid]
}

func getPid(pcb *Pcb) defs.Tpid {
	if pcb == nil {
		return defs.NOPROC
	}
	return pcb.pid
}

func acquirePcb() *Pcb {
	pcb := pcbFreelist
	if pcb != nil {
		pcb.pstate = ALIVE
		pcbFreelist = pcb.parent
		pcb.parent = nil
		processCount++
	}
	return pcb
}

func releasePcb(pcb *Pcb) {
	pcb.pstate = FREE
	pcb.exitval = 0
	pcb.mainThread = nil
	pcb.mainTask = nil
	pcb.argl = 0
	pcb.args = nil
	pcb.children = nil
	pcb.exited = nil
	pcb.ptcbs = nil
	pcb.fidt = nil
	pcb.threadCount = 0
	pcb.childExit = sched.CondVar{}
	pcb.parent = pcbFreelist
	pcbFreelist = pcb
	processCount--
}

// Cur returns the PCB of the calling kernel thread's process.
func Cur() *Pcb {
	return sched.CurThread().Owner.(*Pcb)
}

// Exec spawns a new process running task. The argument buffer is copied
// into process-owned storage; the caller's buffer need not outlive the
// call. Returns the new pid, or NOPROC if the table is full.
func Exec(task defs.Task, argl int, args []byte) defs.Tpid {
	sched.Lock()
	defer sched.Unlock()
	return exec(task, argl, args)
}

func exec(task defs.Task, argl int, args []byte) defs.Tpid {
	newproc := acquirePcb()
	if newproc == nil {
		return defs.NOPROC
	}

	if newproc.pid <= 1 {
		// The idle process and init are parentless.
		newproc.parent = nil
		newproc.fidt = fid.NewTable()
	} else {
		curproc := Cur()
		newproc.parent = curproc
		curproc.children = append(curproc.children, newproc)
		newproc.fidt = curproc.fidt.Clone()
	}

	newproc.mainTask = task
	newproc.argl = argl
	if args != nil {
		newproc.args = make([]byte, argl)
		copy(newproc.args, args[:argl])
	} else {
		newproc.args = nil
	}

	// Waking the main thread must come last; once woken it may run.
	if task != nil {
		newproc.mainThread = sched.Spawn(newproc, startMainThread)
		acquirePtcb(newproc.mainThread, newproc, task, argl, newproc.args)
		newproc.threadCount++
		sched.Wakeup(newproc.mainThread)
	}

	db.DPrintf(db.PROC, "exec pid %v parent %v", newproc.pid, getPid(newproc.parent))
	return newproc.pid
}

// startMainThread is the entry of a process's main thread: run the main
// task, then exit the process with its return value.
func startMainThread() {
	sched.Lock()
	curproc := Cur()
	call := curproc.mainTask
	argl := curproc.argl
	args := curproc.args
	sched.Unlock()

	exitval := call(argl, args)
	Exit(exitval)
}

func GetPid() defs.Tpid {
	sched.Lock()
	defer sched.Unlock()
	return getPid(Cur())
}

func GetPPid() defs.Tpid {
	sched.Lock()
	defer sched.Unlock()
	return getPid(Cur().parent)
}

// cleanupZombie reaps a zombie child: deliver its exit value, unlink it
// from the parent's lists, and release the slot.
func cleanupZombie(pcb *Pcb, status *int) {
	if status != nil {
		*status = pcb.exitval
	}
	parent := pcb.parent
	if i := slices.Index(parent.children, pcb); i >= 0 {
		parent.children = slices.Delete(parent.children, i, i+1)
	}
	if i := slices.Index(parent.exited, pcb); i >= 0 {
		parent.exited = slices.Delete(parent.exited, i, i+1)
	}
	releasePcb(pcb)
}

func waitForSpecificChild(cpid defs.Tpid, status *int) defs.Tpid {
	if cpid < 0 || int(cpid) >= len(pt) {
		return defs.NOPROC
	}
	parent := Cur()
	child := getPcb(cpid)
	if child == nil || child.parent != parent {
		return defs.NOPROC
	}

	for child.pstate == ALIVE {
		parent.childExit.Wait(defs.SchedUser)
	}
	cleanupZombie(child, status)
	return cpid
}

func waitForAnyChild(status *int) defs.Tpid {
	parent := Cur()

	for len(parent.children) > 0 && len(parent.exited) == 0 {
		parent.childExit.Wait(defs.SchedUser)
	}
	if len(parent.children) == 0 {
		return defs.NOPROC
	}

	// Oldest zombie first.
	child := parent.exited[0]
	if child.pstate != ZOMBIE {
		db.DFatalf("exited child %v pstate %v", child.pid, child.pstate)
	}
	cpid := child.pid
	cleanupZombie(child, status)
	return cpid
}

// WaitChild blocks until the named child (or, for NOPROC, any child) has
// exited, reaps it, and returns its pid. Returns NOPROC if cpid is not a
// child of the caller, or if the caller has no children at all.
func WaitChild(cpid defs.Tpid, status *int) defs.Tpid {
	sched.Lock()
	defer sched.Unlock()
	return waitChild(cpid, status)
}

func waitChild(cpid defs.Tpid, status *int) defs.Tpid {
	if cpid != defs.NOPROC {
		return waitForSpecificChild(cpid, status)
	}
	return waitForAnyChild(status)
}

// Exit terminates the calling process. Init (pid 1) first reaps all of its
// children. The call never returns; the actual process teardown happens in
// the last-thread branch of threadExit.
func Exit(exitval int) {
	sched.Lock()

	curproc := Cur()
	curproc.exitval = exitval

	if curproc.pid == 1 {
		for waitChild(defs.NOPROC, nil) != defs.NOPROC {
		}
	}

	threadExit(exitval)
}
