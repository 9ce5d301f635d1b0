package proc

import (
	"kos/defs"
)

// Procinfo is one record of the process-listing stream. Args is truncated
// to PROCINFO_MAX_ARGS_SIZE bytes.
type Procinfo struct {
	Pid         defs.Tpid `json:"pid"`
	PPid        defs.Tpid `json:"ppid"`
	Alive       bool      `json:"alive"`
	ThreadCount int       `json:"thread_count"`
	Argl        int       `json:"argl"`
	Args        []byte    `json:"args"`
}

// NextInfo returns the record for the first non-FREE slot at or after
// cursor, and the cursor for the following slot. A nil record means the
// table is exhausted. Caller holds the kernel lock.
func NextInfo(cursor int) (*Procinfo, int) {
	for cursor < len(pt) && pt[cursor].pstate == FREE {
		cursor++
	}
	if cursor >= len(pt) {
		return nil, cursor
	}
	p := pt[cursor]
	pi := &Procinfo{
		Pid:         p.pid,
		PPid:        getPid(p.parent),
		Alive:       p.pstate == ALIVE,
		ThreadCount: p.threadCount,
		Argl:        p.argl,
	}
	n := len(p.args)
	if max := defs.Conf.Proc.PROCINFO_MAX_ARGS_SIZE; n > max {
		n = max
	}
	pi.Args = append([]byte(nil), p.args[:n]...)
	return pi, cursor + 1
}
