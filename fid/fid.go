// Package fid implements per-process descriptor tables. A descriptor slot
// binds a small-integer fid to a reference-counted file control block whose
// stream object implements Stream.
package fid

import (
	db "kos/debug"
	"kos/defs"
)

// Stream is the vtable bound into a descriptor. Endpoints that do not
// support a direction return -1 from it; only Close is universal.
type Stream interface {
	Read(p []byte) int
	Write(p []byte) int
	Close() int
}

// FCB is a file control block. refcnt counts the descriptor slots that
// refer to it (cloned tables share FCBs); the stream is closed when the
// last reference drops.
type FCB struct {
	refcnt int
	Obj    Stream
}

func NewFCB() *FCB {
	return &FCB{refcnt: 1}
}

func (f *FCB) Incref() {
	f.refcnt++
}

// Decref drops one reference and closes the stream when none remain.
// Caller holds the kernel lock.
func (f *FCB) Decref() {
	f.refcnt--
	if f.refcnt == 0 {
		if f.Obj != nil {
			f.Obj.Close()
		}
	} else if f.refcnt < 0 {
		db.DFatalf("Decref refcnt %v", f.refcnt)
	}
}

// Table is a process's descriptor table, of fixed capacity MAX_FILEID.
type Table struct {
	fcbs []*FCB
}

func NewTable() *Table {
	return &Table{fcbs: make([]*FCB, defs.Conf.Fid.MAX_FILEID)}
}

// Clone copies the parent's table into a fresh one, bumping each shared
// FCB's reference count.
func (t *Table) Clone() *Table {
	nt := NewTable()
	for i, f := range t.fcbs {
		nt.fcbs[i] = f
		if f != nil {
			f.Incref()
		}
	}
	return nt
}

// Reserve finds the n lowest free slots, allocates an FCB for each, and
// binds them. It fails atomically: either all n descriptors are reserved
// or none are.
func (t *Table) Reserve(n int) ([]defs.Tfid, []*FCB, bool) {
	fids := make([]defs.Tfid, 0, n)
	for i, f := range t.fcbs {
		if f == nil {
			fids = append(fids, defs.Tfid(i))
			if len(fids) == n {
				break
			}
		}
	}
	if len(fids) < n {
		db.DPrintf(db.FID, "Reserve %v: out of fids", n)
		return nil, nil, false
	}
	fcbs := make([]*FCB, n)
	for i, fid := range fids {
		fcbs[i] = NewFCB()
		t.fcbs[fid] = fcbs[i]
	}
	return fids, fcbs, true
}

// Get returns the FCB bound to fid, or nil if the fid is out of range or
// the slot is empty.
func (t *Table) Get(fid defs.Tfid) *FCB {
	if fid < 0 || int(fid) >= len(t.fcbs) {
		return nil
	}
	return t.fcbs[fid]
}

// Release drops the binding for fid, dropping the FCB reference it held.
func (t *Table) Release(fid defs.Tfid) int {
	f := t.Get(fid)
	if f == nil {
		return -1
	}
	t.fcbs[fid] = nil
	f.Decref()
	return 0
}

// Drain releases every bound descriptor; the process-exit path uses it.
func (t *Table) Drain() {
	for i, f := range t.fcbs {
		if f != nil {
			t.fcbs[i] = nil
			f.Decref()
		}
	}
}
