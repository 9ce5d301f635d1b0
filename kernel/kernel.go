// Package kernel boots and shuts down a kernel instance. Boot runs the
// given task as init (pid 1) on a fresh set of kernel tables, with the
// calling goroutine serving as the idle process's thread, and returns
// init's exit value once every process has been reaped.
package kernel

import (
	db "kos/debug"
	"kos/defs"
	"kos/pipe"
	"kos/proc"
	"kos/sched"
	"kos/socket"
)

// Boot initializes the kernel, runs init, and tears everything down. It
// must not be called concurrently with another Boot on the same program.
func Boot(task defs.Task, argl int, args []byte) int {
	sched.Reset()
	pipe.Init()
	socket.Init()
	proc.Init()

	proc.AttachBoot()

	db.DPrintf(db.KERNEL, "boot: starting init")
	if pid := proc.Exec(task, argl, args); pid != 1 {
		db.DFatalf("boot: init has pid %v", pid)
	}

	status := proc.WaitInit()
	proc.DetachBoot()
	db.DPrintf(db.KERNEL, "boot: init exited with %v", status)
	return status
}
