//go:build unix

package main

import (
	"os"
	"syscall"
)

// pauseSignals toggle between pause and resume, e.g. kill -USR1 <pid>.
var pauseSignals = []os.Signal{syscall.SIGUSR1}
