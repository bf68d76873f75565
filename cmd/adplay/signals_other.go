//go:build !unix

package main

import "os"

// pauseSignals is empty where SIGUSR1 does not exist.
var pauseSignals []os.Signal
