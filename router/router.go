// Package router decodes incoming frames and queues them
// for the component that handles their kind
package router

import (
	"fmt"
	"log"
	"runtime/debug"

	"github.com/HimbeerserverDE/meshworld/proto"
	"github.com/HimbeerserverDE/meshworld/transport"

	"golang.org/x/time/rate"
)

// A Topic is the queue of one consuming component
type Topic uint8

const (
	Props Topic = iota
	Players
	Voice
	Assets

	numTopics
)

var topicNames = [numTopics]string{"props", "players", "voice", "assets"}

func (t Topic) String() string {
	if t < numTopics {
		return topicNames[t]
	}
	return fmt.Sprintf("Topic(%d)", uint8(t))
}

// TopicOf returns the Topic messages of kind k are queued on
func TopicOf(k proto.Kind) Topic {
	switch k {
	case proto.KindSpawnCube, proto.KindUpdateProp, proto.KindDeleteProp:
		return Props
	case proto.KindPlayerPosition:
		return Players
	case proto.KindVoiceChat:
		return Voice
	default:
		return Assets
	}
}

// An Envelope is a decoded message and where it came from
type Envelope struct {
	From transport.PeerID
	Lane transport.Lane
	Msg  proto.Msg
}

// Route decodes a single frame
func Route(raw []byte) (proto.Msg, error) {
	return proto.Decode(raw)
}

type Router struct {
	// Accept, if set, is asked for every packet
	// Packets from peers it rejects are skipped
	Accept func(transport.PeerID) bool

	queues [numTopics][]Envelope

	limiters map[transport.PeerID]*rate.Limiter
	dropped  uint64
	routed   uint64
}

func New() *Router {
	return &Router{limiters: make(map[transport.PeerID]*rate.Limiter)}
}

// Drain reads everything the transport received, reliable lane first,
// and queues the decoded messages by Topic
// Malformed frames are dropped and never stop the rest of the batch
func (r *Router) Drain(t transport.Transport) {
	r.drain(t.Recv(transport.Reliable))
	r.drain(t.Recv(transport.Unreliable))
}

func (r *Router) drain(pkts []transport.Packet) {
	for _, pkt := range pkts {
		if r.Accept != nil && !r.Accept(pkt.From) {
			continue
		}

		msg, err := Route(pkt.Data)
		if err != nil {
			r.drop(pkt.From, err)
			continue
		}

		// Ordered kinds are worthless without ordering
		if pkt.Lane == transport.Unreliable && !msg.Kind().Unreliable() {
			r.drop(pkt.From, fmt.Errorf("%s received on %s lane", msg.Kind(), pkt.Lane))
			continue
		}

		topic := TopicOf(msg.Kind())
		r.queues[topic] = append(r.queues[topic], Envelope{
			From: pkt.From,
			Lane: pkt.Lane,
			Msg:  msg,
		})
		r.routed++
	}
}

// drop counts a rejected frame and logs it,
// rate limited per peer
func (r *Router) drop(from transport.PeerID, err error) {
	r.dropped++

	l, ok := r.limiters[from]
	if !ok {
		l = rate.NewLimiter(1, 3)
		r.limiters[from] = l
	}

	if l.Allow() {
		log.Print(from, ": dropping frame: ", err)
	}
}

// Take returns the queue of topic and empties it
func (r *Router) Take(topic Topic) []Envelope {
	q := r.queues[topic]
	r.queues[topic] = nil
	return q
}

// Dispatch calls fn for every message queued on topic
// An error or panic in fn is logged and processing continues
// with the next message
func (r *Router) Dispatch(topic Topic, fn func(Envelope) error) {
	for _, env := range r.Take(topic) {
		if err := call(fn, env); err != nil {
			log.Print(env.From, ": ", env.Msg.Kind(), ": ", err)
		}
	}
}

func call(fn func(Envelope) error, env Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v\n%s", rec, debug.Stack())
		}
	}()

	return fn(env)
}

// Forget drops the rate limiter of a disconnected peer
func (r *Router) Forget(peer transport.PeerID) {
	delete(r.limiters, peer)
}

// Dropped returns the number of frames dropped so far
func (r *Router) Dropped() uint64 { return r.dropped }

// Routed returns the number of frames queued so far
func (r *Router) Routed() uint64 { return r.routed }
