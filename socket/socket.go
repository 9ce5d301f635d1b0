// Package socket implements local stream sockets: a socket is created
// unbound, becomes a listener via Listen, and peers meet through the
// Accept/Connect rendezvous. A peer connection is full duplex over two
// pipes, one per direction, which Shutdown closes independently.
package socket

import (
	"time"

	db "kos/debug"
	"kos/defs"
	"kos/fid"
	"kos/pipe"
	"kos/proc"
	"kos/sched"
)

type Ttype int

const (
	UNBOUND Ttype = iota
	LISTENER
	PEER
)

func (t Ttype) String() string {
	switch t {
	case UNBOUND:
		return "UNBOUND"
	case LISTENER:
		return "LISTENER"
	case PEER:
		return "PEER"
	default:
		return "unknown type"
	}
}

// Scb is a socket control block. refcnt starts at 1 for the descriptor's
// reference; rendezvous participants take a reference across their waits
// and the block is released when the count reaches 0.
type Scb struct {
	refcnt int
	fcb    *fid.FCB
	typ    Ttype
	port   defs.Tport

	// LISTENER
	reqs         []*connReq
	reqAvailable sched.CondVar

	// PEER
	peer      *Scb
	readPipe  *pipe.PipeCB
	writePipe *pipe.PipeCB
}

type Treq int

const (
	reqPending Treq = iota
	reqAdmitted
	reqExpired
)

// connReq is a pending connection. Whichever party sets the terminal
// state (admitted by Accept, expired by the connector's timeout or the
// listener's close) owns the transition; both happen under the kernel
// lock, so the other party only ever observes the final state.
type connReq struct {
	state       Treq
	peer        *Scb
	connectedCv sched.CondVar
}

// The port map: port -> listener, written only by Listen and the listener
// close path.
var portMap []*Scb

// Scb allocation bookkeeping, for the leak tests.
var nalloc int
var nfree int

func Allocated() int {
	sched.Lock()
	defer sched.Unlock()
	return nalloc - nfree
}

// Init builds an empty port map; the boot path calls it before any thread
// runs.
func Init() {
	portMap = make([]*Scb, defs.Conf.Socket.MAX_PORT+1)
	nalloc = 0
	nfree = 0
}

func (scb *Scb) decref() {
	scb.refcnt--
	if scb.refcnt == 0 {
		nfree++
		db.DPrintf(db.SOCKET, "scb %p port %v released", scb, scb.port)
	} else if scb.refcnt < 0 {
		db.DFatalf("scb %p refcnt %v", scb, scb.refcnt)
	}
}

// getScb resolves a fid of the current process to its socket, or nil.
func getScb(fd defs.Tfid) *Scb {
	f := proc.Cur().FidTable().Get(fd)
	if f == nil || f.Obj == nil {
		return nil
	}
	scb, ok := f.Obj.(*Scb)
	if !ok {
		return nil
	}
	return scb
}

// Socket reserves a descriptor bound to a fresh unbound socket on port.
// Port 0 (NOPORT) is legal but can never be listened on.
func Socket(port defs.Tport) defs.Tfid {
	sched.Lock()
	defer sched.Unlock()
	return socket(port)
}

func socket(port defs.Tport) defs.Tfid {
	if port < 0 || int(port) > defs.Conf.Socket.MAX_PORT {
		return defs.NOFILE
	}
	fids, fcbs, ok := proc.Cur().FidTable().Reserve(1)
	if !ok {
		return defs.NOFILE
	}
	scb := &Scb{
		refcnt: 1,
		fcb:    fcbs[0],
		typ:    UNBOUND,
		port:   port,
	}
	nalloc++
	fcbs[0].Obj = scb
	db.DPrintf(db.SOCKET, "socket fid %v port %v", fids[0], port)
	return fids[0]
}

// Listen makes an unbound socket with a free, non-zero port the listener
// for that port.
func Listen(fd defs.Tfid) int {
	sched.Lock()
	defer sched.Unlock()

	scb := getScb(fd)
	if scb == nil {
		return -1
	}
	if scb.port == defs.NOPORT {
		return -1
	}
	if scb.typ != UNBOUND {
		return -1
	}
	if portMap[scb.port] != nil {
		return -1
	}

	scb.typ = LISTENER
	scb.reqs = nil
	portMap[scb.port] = scb
	db.DPrintf(db.SOCKET, "listen fid %v port %v", fd, scb.port)
	return 0
}

// Accept blocks until a connection request arrives, builds the two pipes
// of the connection, admits the connector, and returns the server-side
// peer descriptor.
func Accept(fd defs.Tfid) defs.Tfid {
	sched.Lock()
	defer sched.Unlock()

	scb := getScb(fd)
	if scb == nil || scb.typ != LISTENER {
		return defs.NOFILE
	}

	scb.refcnt++

	var req *connReq
	for req == nil {
		if portMap[scb.port] != scb {
			// Listener was closed while we waited.
			scb.decref()
			return defs.NOFILE
		}
		if len(scb.reqs) == 0 {
			scb.reqAvailable.Wait(defs.SchedPipe)
			continue
		}
		r := scb.reqs[0]
		scb.reqs = scb.reqs[1:]
		if r.state == reqExpired {
			continue
		}
		req = r
	}

	connector := req.peer
	if connector.typ != UNBOUND {
		req.state = reqExpired
		scb.decref()
		return defs.NOFILE
	}

	sfid := socket(connector.port)
	if sfid == defs.NOFILE {
		req.state = reqExpired
		scb.decref()
		return defs.NOFILE
	}
	server := getScb(sfid)

	connector.typ = PEER
	server.typ = PEER

	// Pipe A: server writes, connector reads; pipe B is the converse.
	pipeA := pipe.NewCB(connector.fcb, server.fcb)
	pipeB := pipe.NewCB(server.fcb, connector.fcb)

	connector.peer = server
	connector.readPipe = pipeA
	connector.writePipe = pipeB

	server.peer = connector
	server.readPipe = pipeB
	server.writePipe = pipeA

	req.state = reqAdmitted
	req.connectedCv.Signal()

	scb.decref()
	db.DPrintf(db.SOCKET, "accept port %v -> fid %v", scb.port, sfid)
	return sfid
}

// Connect enqueues a connection request on port's listener and waits, up
// to timeout, to be admitted. A zero timeout uses the configured default.
func Connect(fd defs.Tfid, port defs.Tport, timeout time.Duration) int {
	sched.Lock()
	defer sched.Unlock()

	scb := getScb(fd)
	if scb == nil || scb.typ != UNBOUND {
		return -1
	}
	if port < 0 || int(port) > defs.Conf.Socket.MAX_PORT {
		return -1
	}
	l := portMap[port]
	if l == nil {
		return -1
	}

	scb.refcnt++

	req := &connReq{state: reqPending, peer: scb}
	l.reqs = append(l.reqs, req)
	l.reqAvailable.Signal()

	if timeout == 0 {
		timeout = defs.Conf.Socket.CONNECT_TIMEOUT
	}
	req.connectedCv.TimedWait(defs.SchedPipe, timeout)

	ret := -1
	if req.state == reqAdmitted {
		ret = 0
	} else {
		// Expired requests stay queued; Accept discards them.
		req.state = reqExpired
	}

	scb.decref()
	db.DPrintf(db.SOCKET, "connect fid %v port %v -> %v", fd, port, ret)
	return ret
}

// ShutDown closes one or both directions of a peer connection.
func ShutDown(fd defs.Tfid, how defs.Tshutdown) int {
	sched.Lock()
	defer sched.Unlock()

	scb := getScb(fd)
	if scb == nil || scb.typ != PEER {
		return -1
	}

	switch how {
	case defs.ShutdownRead:
		scb.shutRead()
	case defs.ShutdownWrite:
		scb.shutWrite()
	case defs.ShutdownBoth:
		scb.shutRead()
		scb.shutWrite()
	default:
		return -1
	}
	return 0
}

func (scb *Scb) shutRead() {
	if scb.readPipe != nil {
		scb.readPipe.ReaderClose()
		scb.readPipe = nil
	}
}

func (scb *Scb) shutWrite() {
	if scb.writePipe != nil {
		scb.writePipe.WriterClose()
		scb.writePipe = nil
	}
}

// The socket's stream vtable. Read and Write are valid only on peers with
// the direction still open; Close tears down whatever state the type
// carries and drops the descriptor's reference.

func (scb *Scb) Read(b []byte) int {
	if scb.typ != PEER || scb.readPipe == nil {
		return -1
	}
	return scb.readPipe.Read(b)
}

func (scb *Scb) Write(b []byte) int {
	if scb.typ != PEER || scb.writePipe == nil {
		return -1
	}
	return scb.writePipe.Write(b)
}

func (scb *Scb) Close() int {
	switch scb.typ {
	case LISTENER:
		portMap[scb.port] = nil
		// Fail pending connectors promptly rather than letting them
		// time out.
		for _, r := range scb.reqs {
			if r.state == reqPending {
				r.state = reqExpired
				r.connectedCv.Broadcast()
			}
		}
		scb.reqs = nil
		scb.reqAvailable.Broadcast()
	case PEER:
		scb.shutRead()
		scb.shutWrite()
	}
	scb.decref()
	return 0
}
