package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// handleSignals cancels the main context on SIGINT or SIGTERM
// A second signal ends the process immediately
func handleSignals(cancel context.CancelFunc) {
	go func() {
		signalChan := make(chan os.Signal, 1)
		signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
		<-signalChan

		log.Print("Caught SIGINT or SIGTERM, shutting down")
		cancel()

		<-signalChan
		End(false)
	}()
}
