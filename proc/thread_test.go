package proc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kos/defs"
	"kos/pipe"
	"kos/proc"
	"kos/test"
)

func TestThreadSelf(t *testing.T) {
	test.Run(t, func() {
		self := proc.ThreadSelf()
		assert.NotEqual(t, defs.NOTHREAD, self)
		assert.Equal(t, -1, proc.ThreadJoin(self, nil))
	})
}

func TestJoinDeliversExit(t *testing.T) {
	test.Run(t, func() {
		task := func(argl int, args []byte) int {
			return 7
		}
		tid := proc.CreateThread(task, 0, nil)
		assert.NotEqual(t, defs.NOTHREAD, tid)

		var out int
		assert.Equal(t, 0, proc.ThreadJoin(tid, &out))
		assert.Equal(t, 7, out)

		// The handle is gone after the last joiner.
		assert.Equal(t, -1, proc.ThreadJoin(tid, nil))
	})
}

func TestJoinErrors(t *testing.T) {
	test.Run(t, func() {
		assert.Equal(t, -1, proc.ThreadJoin(defs.Ttid(999), nil))
		assert.Equal(t, -1, proc.ThreadDetach(defs.Ttid(999)))
	})
}

// Two joiners block on the same thread; both get its exit value and the
// handle is freed exactly once.
func TestTwoJoiners(t *testing.T) {
	test.Run(t, func() {
		var pp defs.Tpipe
		assert.Equal(t, 0, pipe.Pipe(&pp))

		target := func(argl int, args []byte) int {
			buf := make([]byte, 1)
			proc.Read(pp.Read, buf)
			return 7
		}
		tid := proc.CreateThread(target, 0, nil)
		assert.NotEqual(t, defs.NOTHREAD, tid)

		joiner := func(argl int, args []byte) int {
			var out int
			if proc.ThreadJoin(tid, &out) != 0 {
				return -1
			}
			return out
		}
		j1 := proc.CreateThread(joiner, 0, nil)
		j2 := proc.CreateThread(joiner, 0, nil)

		// Let both joiners block, then release the target.
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 1, proc.Write(pp.Write, []byte{1}))

		var out1, out2 int
		assert.Equal(t, 0, proc.ThreadJoin(j1, &out1))
		assert.Equal(t, 0, proc.ThreadJoin(j2, &out2))
		assert.Equal(t, 7, out1)
		assert.Equal(t, 7, out2)

		// Freed by whichever joiner was last.
		assert.Equal(t, -1, proc.ThreadJoin(tid, nil))

		assert.Equal(t, 0, proc.Close(pp.Read))
		assert.Equal(t, 0, proc.Close(pp.Write))
	})
}

func TestDetach(t *testing.T) {
	test.Run(t, func() {
		var pp defs.Tpipe
		assert.Equal(t, 0, pipe.Pipe(&pp))

		target := func(argl int, args []byte) int {
			buf := make([]byte, 1)
			proc.Read(pp.Read, buf)
			return 7
		}
		tid := proc.CreateThread(target, 0, nil)

		assert.Equal(t, 0, proc.ThreadDetach(tid))
		assert.Equal(t, -1, proc.ThreadJoin(tid, nil))

		// Release the target and let it exit; detaching an exited thread
		// fails.
		assert.Equal(t, 1, proc.Write(pp.Write, []byte{1}))
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, -1, proc.ThreadDetach(tid))

		assert.Equal(t, 0, proc.Close(pp.Read))
		assert.Equal(t, 0, proc.Close(pp.Write))
	})
}

// Detaching a thread releases a joiner already waiting on it, with no
// exit value delivered.
func TestDetachReleasesJoiner(t *testing.T) {
	test.Run(t, func() {
		var pp defs.Tpipe
		assert.Equal(t, 0, pipe.Pipe(&pp))

		target := func(argl int, args []byte) int {
			buf := make([]byte, 1)
			proc.Read(pp.Read, buf)
			return 7
		}
		tid := proc.CreateThread(target, 0, nil)

		joiner := func(argl int, args []byte) int {
			out := 33
			ret := proc.ThreadJoin(tid, &out)
			assert.Equal(t, -1, ret)
			assert.Equal(t, 33, out)
			return 0
		}
		j := proc.CreateThread(joiner, 0, nil)

		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, proc.ThreadDetach(tid))

		var jret int
		assert.Equal(t, 0, proc.ThreadJoin(j, &jret))
		assert.Equal(t, 0, jret)

		assert.Equal(t, 1, proc.Write(pp.Write, []byte{1}))
		time.Sleep(20 * time.Millisecond)
		assert.Equal(t, 0, proc.Close(pp.Read))
		assert.Equal(t, 0, proc.Close(pp.Write))
	})
}

func TestCreateThreadNilTask(t *testing.T) {
	test.Run(t, func() {
		assert.Equal(t, defs.NOTHREAD, proc.CreateThread(nil, 0, nil))
	})
}
