package socket_test

import (
	"testing"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"

	db "kos/debug"
	"kos/defs"
	"kos/pipe"
	"kos/proc"
	"kos/socket"
	"kos/test"
)

func TestCompile(t *testing.T) {
}

func TestSocketErrors(t *testing.T) {
	test.Run(t, func() {
		assert.Equal(t, defs.NOFILE, socket.Socket(defs.Tport(-1)))
		assert.Equal(t, defs.NOFILE,
			socket.Socket(defs.Tport(defs.Conf.Socket.MAX_PORT+1)))

		s := socket.Socket(defs.NOPORT)
		assert.NotEqual(t, defs.NOFILE, s)
		// NOPORT can never be listened on.
		assert.Equal(t, -1, socket.Listen(s))
		// Unbound sockets carry no data and cannot accept.
		assert.Equal(t, -1, proc.Read(s, make([]byte, 1)))
		assert.Equal(t, -1, proc.Write(s, []byte{1}))
		assert.Equal(t, defs.NOFILE, socket.Accept(s))
		assert.Equal(t, defs.NOFILE, socket.Accept(defs.Tfid(100)))
		assert.Equal(t, 0, proc.Close(s))
	})
}

func TestListen(t *testing.T) {
	test.Run(t, func() {
		s := socket.Socket(defs.Tport(42))
		assert.NotEqual(t, defs.NOFILE, s)
		assert.Equal(t, 0, socket.Listen(s))
		// A listener cannot listen again or connect.
		assert.Equal(t, -1, socket.Listen(s))
		assert.Equal(t, -1, socket.Connect(s, defs.Tport(42), 0))

		// The port is taken until the listener closes.
		s2 := socket.Socket(defs.Tport(42))
		assert.Equal(t, -1, socket.Listen(s2))
		assert.Equal(t, 0, proc.Close(s))
		assert.Equal(t, 0, socket.Listen(s2))
		assert.Equal(t, 0, proc.Close(s2))
	})
	assert.Equal(t, 0, socket.Allocated())
}

// S3: rendezvous between two processes, data both ways, then a write
// shutdown produces EOF at the peer.
func TestRendezvous(t *testing.T) {
	test.Run(t, func() {
		ls := socket.Socket(defs.Tport(42))
		assert.NotEqual(t, defs.NOFILE, ls)
		assert.Equal(t, 0, socket.Listen(ls))

		connector := func(argl int, args []byte) int {
			c := socket.Socket(defs.NOPORT)
			assert.NotEqual(t, defs.NOFILE, c)
			assert.Equal(t, 0, socket.Connect(c, defs.Tport(42), time.Second))

			buf := make([]byte, 8)
			n := proc.Read(c, buf)
			assert.Equal(t, 4, n)
			assert.Equal(t, "ping", string(buf[:n]))
			assert.Equal(t, 4, proc.Write(c, []byte("pong")))

			// The server shut down its write side: EOF.
			assert.Equal(t, 0, proc.Read(c, buf))
			assert.Equal(t, 0, proc.Close(c))
			return 0
		}
		pid := proc.Exec(connector, 0, nil)
		assert.NotEqual(t, defs.NOPROC, pid)

		a := socket.Accept(ls)
		assert.NotEqual(t, defs.NOFILE, a)

		assert.Equal(t, 4, proc.Write(a, []byte("ping")))
		buf := make([]byte, 8)
		n := proc.Read(a, buf)
		assert.Equal(t, 4, n)
		assert.Equal(t, "pong", string(buf[:n]))

		assert.Equal(t, 0, socket.ShutDown(a, defs.ShutdownWrite))

		var status int
		assert.Equal(t, pid, proc.WaitChild(pid, &status))
		assert.Equal(t, 0, status)

		assert.Equal(t, 0, proc.Close(a))
		assert.Equal(t, 0, proc.Close(ls))
	})
	assert.Equal(t, 0, socket.Allocated())
	assert.Equal(t, 0, pipe.Allocated())
}

// S4: connect with no listener fails at once; with a listener but no
// accept it fails after the timeout, and a later accept does not admit
// the expired request.
func TestConnectTimeout(t *testing.T) {
	test.Run(t, func() {
		c := socket.Socket(defs.NOPORT)
		assert.Equal(t, -1, socket.Connect(c, defs.Tport(99), 50*time.Millisecond))

		ls := socket.Socket(defs.Tport(99))
		assert.Equal(t, 0, socket.Listen(ls))

		t0 := time.Now()
		assert.Equal(t, -1, socket.Connect(c, defs.Tport(99), 50*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(t0), 50*time.Millisecond)

		// A fresh connector must get through; the expired request is
		// discarded, not admitted.
		c2 := socket.Socket(defs.NOPORT)
		connect2 := func(argl int, args []byte) int {
			assert.Equal(t, 0, socket.Connect(c2, defs.Tport(99), time.Second))
			return 0
		}
		tid := proc.CreateThread(connect2, 0, nil)
		assert.NotEqual(t, defs.NOTHREAD, tid)

		a := socket.Accept(ls)
		assert.NotEqual(t, defs.NOFILE, a)
		assert.Equal(t, 0, proc.ThreadJoin(tid, nil))

		// The admitted peer is c2, not the expired c.
		assert.Equal(t, 2, proc.Write(a, []byte("ok")))
		buf := make([]byte, 2)
		assert.Equal(t, 2, proc.Read(c2, buf))
		assert.Equal(t, -1, proc.Read(c, buf))

		assert.Equal(t, 0, proc.Close(a))
		assert.Equal(t, 0, proc.Close(c))
		assert.Equal(t, 0, proc.Close(c2))
		assert.Equal(t, 0, proc.Close(ls))
	})
	assert.Equal(t, 0, socket.Allocated())
	assert.Equal(t, 0, pipe.Allocated())
}

func TestShutdownModes(t *testing.T) {
	test.Run(t, func() {
		ls := socket.Socket(defs.Tport(7))
		assert.Equal(t, 0, socket.Listen(ls))
		// Shutdown is for peers only.
		assert.Equal(t, -1, socket.ShutDown(ls, defs.ShutdownBoth))

		c := socket.Socket(defs.NOPORT)
		acceptor := func(argl int, args []byte) int {
			a := socket.Accept(ls)
			assert.NotEqual(t, defs.NOFILE, a)
			assert.Equal(t, -1, socket.ShutDown(a, defs.Tshutdown(99)))
			assert.Equal(t, 0, socket.ShutDown(a, defs.ShutdownBoth))
			assert.Equal(t, 0, proc.Close(a))
			return 0
		}
		tid := proc.CreateThread(acceptor, 0, nil)
		assert.Equal(t, 0, socket.Connect(c, defs.Tport(7), time.Second))
		assert.Equal(t, 0, proc.ThreadJoin(tid, nil))

		// Both directions at the peer are down.
		assert.Equal(t, 0, proc.Read(c, make([]byte, 1)))
		assert.Equal(t, -1, proc.Write(c, []byte{1}))

		assert.Equal(t, 0, socket.ShutDown(c, defs.ShutdownRead))
		assert.Equal(t, -1, proc.Read(c, make([]byte, 1)))

		assert.Equal(t, 0, proc.Close(c))
		assert.Equal(t, 0, proc.Close(ls))
	})
	assert.Equal(t, 0, socket.Allocated())
	assert.Equal(t, 0, pipe.Allocated())
}

// Closing a listener unblocks a pending accept and fails a pending
// connector promptly.
func TestListenerClose(t *testing.T) {
	test.Run(t, func() {
		ls := socket.Socket(defs.Tport(11))
		assert.Equal(t, 0, socket.Listen(ls))

		acceptor := func(argl int, args []byte) int {
			assert.Equal(t, defs.NOFILE, socket.Accept(ls))
			return 0
		}
		tid := proc.CreateThread(acceptor, 0, nil)
		time.Sleep(20 * time.Millisecond)

		assert.Equal(t, 0, proc.Close(ls))
		assert.Equal(t, 0, proc.ThreadJoin(tid, nil))

		// The port is free again.
		ls2 := socket.Socket(defs.Tport(11))
		assert.Equal(t, 0, socket.Listen(ls2))
		assert.Equal(t, 0, proc.Close(ls2))
	})
	assert.Equal(t, 0, socket.Allocated())
}

// Repeated rendezvous; reports connect latency percentiles.
func TestConnectLatency(t *testing.T) {
	const rounds = 20
	test.Run(t, func() {
		ls := socket.Socket(defs.Tport(80))
		assert.Equal(t, 0, socket.Listen(ls))

		acceptor := func(argl int, args []byte) int {
			for i := 0; i < rounds; i++ {
				a := socket.Accept(ls)
				if a == defs.NOFILE {
					return -1
				}
				if proc.Close(a) != 0 {
					return -1
				}
			}
			return 0
		}
		tid := proc.CreateThread(acceptor, 0, nil)

		durs := make([]float64, 0, rounds)
		for i := 0; i < rounds; i++ {
			c := socket.Socket(defs.NOPORT)
			assert.NotEqual(t, defs.NOFILE, c)
			t0 := time.Now()
			assert.Equal(t, 0, socket.Connect(c, defs.Tport(80), time.Second))
			durs = append(durs, float64(time.Since(t0).Microseconds()))
			assert.Equal(t, 0, proc.Close(c))
		}

		var ret int
		assert.Equal(t, 0, proc.ThreadJoin(tid, &ret))
		assert.Equal(t, 0, ret)

		med, _ := stats.Median(durs)
		p95, _ := stats.Percentile(durs, 95)
		db.DPrintf(db.TEST, "connect latency: median %vus p95 %vus", med, p95)

		assert.Equal(t, 0, proc.Close(ls))
	})
	assert.Equal(t, 0, socket.Allocated())
	assert.Equal(t, 0, pipe.Allocated())
}
