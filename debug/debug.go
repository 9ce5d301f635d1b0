package debug

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strings"
)

//
// Debug output is controlled by the KOSDEBUG environment variable, which
// can be a list of labels (e.g., "PIPE;SOCKET").
//

func init() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)
}

var labels map[Tselector]bool = debugLabels()

func debugLabels() map[Tselector]bool {
	m := make(map[Tselector]bool)
	s := os.Getenv("KOSDEBUG")
	if s == "" {
		return m
	}
	for _, l := range strings.Split(s, ";") {
		m[Tselector(l)] = true
	}
	return m
}

func DPrintf(label Tselector, format string, v ...interface{}) {
	if _, ok := labels[label]; ok || label == ALWAYS {
		log.Printf("%v %v", label, fmt.Sprintf(format, v...))
	}
}

func DFatalf(format string, v ...interface{}) {
	pc, file, line, ok := runtime.Caller(1)
	fnDetails := runtime.FuncForPC(pc)
	if ok && fnDetails != nil {
		log.Fatalf("FATAL %v %v:%v %v", fnDetails.Name(), file, line, fmt.Sprintf(format, v...))
	} else {
		log.Fatalf("FATAL (missing details) %v", fmt.Sprintf(format, v...))
	}
}
