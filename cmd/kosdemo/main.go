// Boots a kernel whose init process wires an echo server and a client
// through a local stream socket, then reports their exit status.
package main

import (
	"fmt"
	"os"
	"time"

	"kos/defs"
	"kos/kernel"
	"kos/proc"
	"kos/socket"
)

const echoPort = defs.Tport(42)

func server(argl int, args []byte) int {
	ls := socket.Socket(echoPort)
	if ls == defs.NOFILE {
		return 1
	}
	if socket.Listen(ls) != 0 {
		return 1
	}
	a := socket.Accept(ls)
	if a == defs.NOFILE {
		return 1
	}
	buf := make([]byte, 64)
	for {
		n := proc.Read(a, buf)
		if n <= 0 {
			break
		}
		off := 0
		for off < n {
			m := proc.Write(a, buf[off:n])
			if m < 0 {
				return 1
			}
			off += m
		}
	}
	proc.Close(a)
	proc.Close(ls)
	return 0
}

func client(argl int, args []byte) int {
	c := socket.Socket(defs.NOPORT)
	if c == defs.NOFILE {
		return 1
	}
	// The server may not have bound its port yet; retry.
	ok := false
	for i := 0; i < 100; i++ {
		if socket.Connect(c, echoPort, 50*time.Millisecond) == 0 {
			ok = true
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !ok {
		return 1
	}
	msg := string(args)
	if proc.Write(c, []byte(msg)) != len(msg) {
		return 1
	}
	buf := make([]byte, 64)
	n := proc.Read(c, buf)
	fmt.Printf("echo: %s\n", buf[:n])
	socket.ShutDown(c, defs.ShutdownBoth)
	proc.Close(c)
	return 0
}

func initTask(argl int, args []byte) int {
	spid := proc.Exec(server, 0, nil)
	if spid == defs.NOPROC {
		return 1
	}
	cpid := proc.Exec(client, argl, args)
	if cpid == defs.NOPROC {
		return 1
	}

	status := 0
	for {
		var st int
		pid := proc.WaitChild(defs.NOPROC, &st)
		if pid == defs.NOPROC {
			break
		}
		if st != 0 {
			status = st
		}
	}
	return status
}

func main() {
	msg := "hello, kernel"
	if len(os.Args) > 1 {
		msg = os.Args[1]
	}
	status := kernel.Boot(initTask, len(msg), []byte(msg))
	if status != 0 {
		fmt.Fprintf(os.Stderr, "init exited with %v\n", status)
		os.Exit(1)
	}
}
