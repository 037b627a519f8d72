package main

import (
	"os/signal"
	"syscall"
)

// signalIgnore ignores sig for the lifetime of the process.
func signalIgnore(sig syscall.Signal) {
	signal.Ignore(sig)
}
