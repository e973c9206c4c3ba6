//go:build windows

package main

import (
	"os"
	"os/signal"
)

// Windows has no SIGTERM.
func notifySignals(c chan<- os.Signal) {
	signal.Notify(c, os.Interrupt)
}
