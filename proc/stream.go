package proc

import (
	"kos/defs"
	"kos/sched"
)

// Descriptor syscalls. Each resolves the fid in the calling process's
// table and dispatches to the bound stream; an empty slot or unbound
// stream yields -1.

func Read(fd defs.Tfid, buf []byte) int {
	sched.Lock()
	defer sched.Unlock()

	f := Cur().fidt.Get(fd)
	if f == nil || f.Obj == nil {
		return -1
	}
	return f.Obj.Read(buf)
}

func Write(fd defs.Tfid, buf []byte) int {
	sched.Lock()
	defer sched.Unlock()

	f := Cur().fidt.Get(fd)
	if f == nil || f.Obj == nil {
		return -1
	}
	return f.Obj.Write(buf)
}

func Close(fd defs.Tfid) int {
	sched.Lock()
	defer sched.Unlock()

	return Cur().fidt.Release(fd)
}
