// Package broadcast fans out connection-state and statistics events to a
// ZeroMQ PUB socket, for any number of downstream subscribers. Publishing
// never blocks the caller: events pass through an unbounded queue so a
// slow or absent subscriber cannot steal cycles from the real-time loop
// that calls Publish.
package broadcast

import (
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/kuka-rsi/rsihost/internal/unboundedchan"
)

// Event is the payload frame of each published message: a tag frame
// (Event.Kind) followed by this struct JSON-encoded as the second frame,
// so a subscriber can filter on the tag without decoding JSON first.
type Event struct {
	InstanceID string    `json:"instance_id"`
	Kind       string    `json:"kind"` // "connected", "disconnected", "statistics"
	Time       time.Time `json:"time"`
	Payload    any       `json:"payload,omitempty"`
}

// Broadcaster owns a bound PUB socket fed by a dedicated publisher
// goroutine. Construct with New; call Close to release the socket.
type Broadcaster struct {
	instanceID string
	queue      *unboundedchan.UnboundedChannel[Event]
	sock       *zmq.Socket
	connected  atomic.Bool
	done       chan struct{}
}

// New binds endpoint (e.g. "tcp://*:5556") as a ZMQ PUB socket and starts
// the publisher goroutine. If the bind fails, err is non-nil and the
// caller should treat the Event Broadcaster as disabled rather than retry
// indefinitely, matching the best-effort nature of this sink.
func New(endpoint, instanceID string) (*Broadcaster, error) {
	sock, err := zmq.NewSocket(zmq.PUB)
	if err != nil {
		return nil, err
	}
	if err := sock.Bind(endpoint); err != nil {
		sock.Close()
		return nil, err
	}

	b := &Broadcaster{
		instanceID: instanceID,
		queue:      unboundedchan.NewUnboundedChannel[Event](),
		sock:       sock,
		done:       make(chan struct{}),
	}
	b.connected.Store(true)
	go b.run()
	return b, nil
}

func (b *Broadcaster) run() {
	defer close(b.done)
	for ev := range b.queue.Out() {
		body, err := json.Marshal(ev)
		if err != nil {
			log.Printf("broadcast: marshal event: %v", err)
			continue
		}
		// Two frames: a tag frame subscribers can filter on with
		// SetSubscribe without decoding JSON, then the payload.
		if _, err := b.sock.SendMessage(ev.Kind, body); err != nil {
			log.Printf("broadcast: send: %v", err)
		}
	}
}

// PublishConnectionChange enqueues a connected/disconnected event.
// Non-blocking: the call returns as soon as the event is queued.
func (b *Broadcaster) PublishConnectionChange(connected bool) {
	kind := "disconnected"
	if connected {
		kind = "connected"
	}
	b.enqueue(Event{InstanceID: b.instanceID, Kind: kind, Time: time.Now()})
}

// PublishStatistics enqueues a statistics snapshot. stats is passed as
// `any` so this package stays independent of the root package's types.
func (b *Broadcaster) PublishStatistics(stats any) {
	b.enqueue(Event{InstanceID: b.instanceID, Kind: "statistics", Time: time.Now(), Payload: stats})
}

func (b *Broadcaster) enqueue(ev Event) {
	if !b.connected.Load() {
		return
	}
	b.queue.In() <- ev
}

// Connected reports whether the PUB socket is currently open. ZMQ PUB
// sockets don't expose peer-count introspection without the (optional)
// ZMQ_PUB_WELCOME_MSG/monitor machinery, so this reports socket liveness,
// not subscriber presence.
func (b *Broadcaster) Connected() bool {
	return b.connected.Load()
}

// Close stops the publisher goroutine and closes the socket.
func (b *Broadcaster) Close() error {
	if !b.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(b.queue.In())
	<-b.done
	return b.sock.Close()
}
