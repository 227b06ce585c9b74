package main

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/HimbeerserverDE/meshworld/node"
	"github.com/gorilla/mux"
)

var uptime time.Time

// Uptime reports how long the program has been running
func Uptime() float64 {
	return math.Floor(time.Since(uptime).Seconds())
}

func init() {
	uptime = time.Now()
}

// A snapshotter is anything that reports a node.Snapshot
type snapshotter interface {
	Snapshot() node.Snapshot
}

type status struct {
	Uptime float64 `json:"uptime"`
	node.Snapshot
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Print("status: ", err)
	}
}

func statusRouter(n snapshotter) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, status{Uptime: Uptime(), Snapshot: n.Snapshot()})
	}).Methods(http.MethodGet)

	r.HandleFunc("/peers", func(w http.ResponseWriter, req *http.Request) {
		s := n.Snapshot()
		writeJSON(w, map[string]interface{}{
			"id":      s.ID,
			"peers":   s.Peers,
			"players": s.Players,
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/props", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, n.Snapshot().Props)
	}).Methods(http.MethodGet)

	r.HandleFunc("/props/{uuid}", func(w http.ResponseWriter, req *http.Request) {
		uuid := mux.Vars(req)["uuid"]
		for _, p := range n.Snapshot().Props {
			if string(p.UUID) == uuid {
				writeJSON(w, p)
				return
			}
		}
		http.NotFound(w, req)
	}).Methods(http.MethodGet)

	r.HandleFunc("/transfers", func(w http.ResponseWriter, req *http.Request) {
		s := n.Snapshot()
		writeJSON(w, map[string]interface{}{
			"inbound":  s.Inbound,
			"outbound": s.Outbound,
		})
	}).Methods(http.MethodGet)

	return r
}

// serveStatus serves the status API on addr until ctx is cancelled
func serveStatus(ctx context.Context, addr string, n snapshotter) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	log.Print("Status available on http://", l.Addr())

	srv := &http.Server{Handler: statusRouter(n)}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	if err := srv.Serve(l); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
