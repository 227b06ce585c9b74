package transport

import (
	"context"
	"log"
	"net"
	"strconv"

	"github.com/grandcat/zeroconf"
)

// DefaultService is the mDNS service type meshworld peers advertise
const DefaultService = "_meshworld._udp"

// Advertise announces the Mesh on the local network until ctx is done
func (m *Mesh) Advertise(ctx context.Context, service string) error {
	addr, ok := m.Addr().(*net.UDPAddr)
	if !ok {
		return nil
	}

	server, err := zeroconf.Register(string(m.opts.ID), service, "local.", addr.Port, []string{"id=" + string(m.opts.ID)}, nil)
	if err != nil {
		return err
	}

	<-ctx.Done()
	server.Shutdown()

	return nil
}

// Discover browses the local network for other peers
// and dials every one found until ctx is done
func (m *Mesh) Discover(ctx context.Context, service string) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}

	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			if PeerID(entry.Instance) == m.opts.ID || len(entry.AddrIPv4) == 0 {
				continue
			}
			if m.connected(PeerID(entry.Instance)) {
				continue
			}

			addr := net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port))
			log.Print("discovered ", entry.Instance, " at ", addr)

			go func() {
				if err := m.Dial(ctx, addr); err != nil {
					log.Print(addr, ": ", err)
				}
			}()
		}
	}()

	if err := resolver.Browse(ctx, service, "local.", entries); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func (m *Mesh) connected(id PeerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.peers[id]
	return ok
}
