package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// natsBridge mirrors published events onto an embedded, single-node
// NATS server reachable only via an in-process connection — no TCP
// listener is opened, so this never becomes a distributed transport.
// Because there is no listener, only code inside the same process can
// attach to it (through Subscribe); other processes cannot reach it.
type natsBridge struct {
	srv  *server.Server
	conn *nats.Conn
	log  *logrus.Entry
}

const eventsSubjectPrefix = "orchestrator.events."

// newNATSBridge starts an embedded NATS server with no client or
// cluster listener and opens an in-process connection to it.
func newNATSBridge() (*natsBridge, error) {
	opts := &server.Options{
		DontListen: true,
		NoSigs:     true,
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("start embedded nats server: %w", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(0) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded nats server did not become ready")
	}

	conn, err := nats.Connect("", nats.InProcessServer(srv))
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("connect to embedded nats server: %w", err)
	}

	return &natsBridge{srv: srv, conn: conn, log: logrus.WithField("component", "events.nats")}, nil
}

func (b *natsBridge) publish(event *Event) {
	data, err := json.Marshal(event)
	if err != nil {
		b.log.WithError(err).Warn("failed to marshal event for nats mirror")
		return
	}
	subject := eventsSubjectPrefix + string(event.Type)
	if err := b.conn.Publish(subject, data); err != nil {
		b.log.WithError(err).Warn("failed to publish event to embedded nats")
	}
}

// Subscribe attaches a raw NATS subscription, over the in-process
// connection, that receives every mirrored event of a given type. The returned
// subscription must be unsubscribed by the caller.
func (b *natsBridge) Subscribe(eventType Type, handler func(*Event)) (*nats.Subscription, error) {
	subject := eventsSubjectPrefix + string(eventType)
	return b.conn.Subscribe(subject, func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.log.WithError(err).Warn("failed to unmarshal mirrored event")
			return
		}
		handler(&event)
	})
}

func (b *natsBridge) close() {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.srv != nil {
		b.srv.Shutdown()
		b.srv.WaitForShutdown()
	}
}

// NewEmbeddedBus is the constructor cmd/orchestratord uses: it starts
// the embedded NATS bridge and wires it into a new Bus.
func NewEmbeddedBus(store Store) (*Bus, error) {
	bridge, err := newNATSBridge()
	if err != nil {
		return nil, err
	}
	return NewBus(store, bridge), nil
}
