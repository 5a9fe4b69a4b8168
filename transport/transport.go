package transport

import (
	"context"
)

// QoS is the MQTT delivery guarantee of a publish or subscription.
type QoS byte

const (
	AtMostOnce  QoS = 0
	AtLeastOnce QoS = 1
	ExactlyOnce QoS = 2
)

// Message is a raw publish as seen on the wire.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      QoS
	Retained bool
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber delivers every message matching pattern to out, preserving
// per-topic publish order, until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, pattern string, out chan<- Message) error
}

type Client interface {
	Publisher
	Subscriber
}
