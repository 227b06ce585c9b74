package main

import (
	"log"
	"net"
	"os"

	"github.com/HimbeerserverDE/meshworld/assets"
	"github.com/HimbeerserverDE/meshworld/transport"
)

var (
	pc    net.PacketConn
	mesh  *transport.Mesh
	store *assets.Store
)

// End disconnects from all peers and stops the process
func End(crash bool) {
	log.Print("Ending")

	if mesh != nil {
		mesh.Close()
	}
	if pc != nil {
		pc.Close()
	}
	if store != nil {
		store.Close()
	}

	log.Writer().(*Logger).Close()

	if crash {
		os.Exit(1)
	}
	os.Exit(0)
}
