package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
)

// subscriberBuffer is how many undelivered messages a subscription holds
// before NATS starts dropping them.
const subscriberBuffer = 256

// Subscriber receives events from the event bus.
type Subscriber interface {
	// Subscribe delivers decoded envelopes on the returned channel. Call the
	// returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan *Envelope, func(), error)
	Close() error
}

// NATSSubscriber receives enveloped events from NATS subjects.
type NATSSubscriber struct {
	conn      *nats.Conn
	malformed atomic.Int64
}

// NewNATSSubscriber connects to NATS and keeps reconnecting for as long as
// the subscriber is open. Extra options (e.g. disconnect and reconnect
// handlers) are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe delivers the envelopes published on subjects matching topic,
// which may use NATS wildcards such as TopicAll. Payloads that are not
// envelopes are skipped and counted by Malformed. cancel may be called more
// than once; the channel is closed once it has been called.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan *Envelope, func(), error) {
	msgs := make(chan *nats.Msg, subscriberBuffer)
	sub, err := s.conn.ChanSubscribe(topic, msgs)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	// Make sure the server knows about the subscription before returning,
	// so events published right after are routed to it.
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("flushing subscription: %w", err)
	}

	out := make(chan *Envelope)
	stop := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-stop:
				return
			case msg := <-msgs:
				env, err := Decode(msg.Data)
				if err != nil {
					s.malformed.Add(1)
					continue
				}
				select {
				case out <- env:
				case <-stop:
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			close(stop)
		})
	}
	return out, cancel, nil
}

// Malformed returns how many received payloads failed to decode.
func (s *NATSSubscriber) Malformed() int64 {
	return s.malformed.Load()
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
