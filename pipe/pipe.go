// Package pipe implements the bounded byte ring shared by the Pipe syscall
// and the two directions of a stream socket. A pipe holds weak handles to
// the descriptors at its two ends; each close path clears its handle and
// the second close releases the pipe.
package pipe

import (
	db "kos/debug"
	"kos/defs"
	"kos/fid"
	"kos/sched"
)

// PipeCB is a pipe control block. The ring uses the one-slot-empty
// convention: empty iff r == w, full iff (w+1)%N == r, capacity N-1.
type PipeCB struct {
	reader   *fid.FCB
	writer   *fid.FCB
	buf      []byte
	r        int
	w        int
	hasSpace sched.CondVar
	hasData  sched.CondVar
}

// Allocation bookkeeping, guarded by the kernel lock. Tests use it to
// check that every pipe is released exactly once.
var nalloc int
var nfree int

func Allocated() int {
	sched.Lock()
	defer sched.Unlock()
	return nalloc - nfree
}

// Init resets the allocation counters; the boot path calls it before any
// thread runs.
func Init() {
	nalloc = 0
	nfree = 0
}

// NewCB allocates a pipe between the given reader and writer descriptors.
// Caller holds the kernel lock.
func NewCB(reader, writer *fid.FCB) *PipeCB {
	nalloc++
	return &PipeCB{
		reader: reader,
		writer: writer,
		buf:    make([]byte, defs.Conf.Pipe.BUFFER_SIZE),
	}
}

func (p *PipeCB) empty() bool {
	return p.r == p.w
}

func (p *PipeCB) full() bool {
	return (p.w+1)%len(p.buf) == p.r
}

func (p *PipeCB) free() {
	nfree++
	p.buf = nil
	db.DPrintf(db.PIPE, "pipe %p released", p)
}

// Write copies bytes into the ring, blocking while it is full and the
// reader is still open. It returns the bytes written, which is short of
// len(b) when the ring fills; -1 if an endpoint is gone.
func (p *PipeCB) Write(b []byte) int {
	if p.writer == nil || p.reader == nil {
		return -1
	}
	if len(b) == 0 {
		return 0
	}

	for p.full() && p.reader != nil {
		p.hasSpace.Wait(defs.SchedPipe)
	}
	if p.reader == nil {
		return -1
	}

	written := 0
	for !p.full() && written < len(b) {
		p.buf[p.w] = b[written]
		written++
		p.w = (p.w + 1) % len(p.buf)
	}

	p.hasData.Broadcast()
	return written
}

// Read copies bytes out of the ring, blocking while it is empty and the
// writer is still open. It returns the bytes read; 0 means the writer has
// closed and the ring is drained.
func (p *PipeCB) Read(b []byte) int {
	if p.reader == nil {
		return -1
	}
	if len(b) == 0 {
		return 0
	}

	for p.empty() && p.writer != nil {
		p.hasData.Wait(defs.SchedPipe)
	}

	nread := 0
	for !p.empty() && nread < len(b) {
		b[nread] = p.buf[p.r]
		nread++
		p.r = (p.r + 1) % len(p.buf)
	}

	p.hasSpace.Broadcast()
	return nread
}

// WriterClose closes the write end: blocked readers wake, drain, and see
// EOF. The second close releases the pipe.
func (p *PipeCB) WriterClose() int {
	if p == nil {
		return -1
	}
	p.writer = nil
	if p.reader == nil {
		p.free()
	} else {
		p.hasData.Broadcast()
	}
	return 0
}

// ReaderClose closes the read end: blocked writers wake and fail. The
// second close releases the pipe.
func (p *PipeCB) ReaderClose() int {
	if p == nil {
		return -1
	}
	p.reader = nil
	if p.writer == nil {
		p.free()
	} else {
		p.hasSpace.Broadcast()
	}
	return 0
}

// The two descriptor endpoints. The read end rejects writes and the write
// end rejects reads.

type readEnd struct {
	p *PipeCB
}

func (re readEnd) Read(b []byte) int {
	return re.p.Read(b)
}

func (re readEnd) Write(b []byte) int {
	return -1
}

func (re readEnd) Close() int {
	return re.p.ReaderClose()
}

type writeEnd struct {
	p *PipeCB
}

func (we writeEnd) Read(b []byte) int {
	return -1
}

func (we writeEnd) Write(b []byte) int {
	return we.p.Write(b)
}

func (we writeEnd) Close() int {
	return we.p.WriterClose()
}
