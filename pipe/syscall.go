package pipe

import (
	db "kos/debug"
	"kos/defs"
	"kos/proc"
	"kos/sched"
)

// Pipe reserves a reader and a writer descriptor in the calling process
// connected by a fresh pipe. Returns -1 if two descriptors cannot be
// reserved.
func Pipe(pp *defs.Tpipe) int {
	sched.Lock()
	defer sched.Unlock()

	fids, fcbs, ok := proc.Cur().FidTable().Reserve(2)
	if !ok {
		return -1
	}

	p := NewCB(fcbs[0], fcbs[1])
	fcbs[0].Obj = readEnd{p}
	fcbs[1].Obj = writeEnd{p}

	pp.Read = fids[0]
	pp.Write = fids[1]
	db.DPrintf(db.PIPE, "pipe r %v w %v", pp.Read, pp.Write)
	return 0
}
