// Package procfs exposes the process table as a read-only stream. Each
// Read delivers one JSON-encoded Procinfo record; a read at the end of the
// table returns 0.
package procfs

import (
	"encoding/json"

	db "kos/debug"
	"kos/defs"
	"kos/proc"
	"kos/sched"
)

type infoStream struct {
	cursor int
}

// OpenInfo reserves a descriptor bound to a cursor over the process table.
func OpenInfo() defs.Tfid {
	sched.Lock()
	defer sched.Unlock()

	fids, fcbs, ok := proc.Cur().FidTable().Reserve(1)
	if !ok {
		return defs.NOFILE
	}
	fcbs[0].Obj = &infoStream{}
	db.DPrintf(db.PROCFS, "openinfo fid %v", fids[0])
	return fids[0]
}

// Read copies the next record into buf. A buffer too small for the whole
// encoded record is an error; records are never truncated.
func (is *infoStream) Read(buf []byte) int {
	pi, next := proc.NextInfo(is.cursor)
	if pi == nil {
		return 0
	}
	data, err := json.Marshal(pi)
	if err != nil {
		db.DFatalf("marshal procinfo %v err %v", pi, err)
	}
	if len(buf) < len(data) {
		return -1
	}
	is.cursor = next
	copy(buf, data)
	return len(data)
}

func (is *infoStream) Write(buf []byte) int {
	return -1
}

func (is *infoStream) Close() int {
	return 0
}
