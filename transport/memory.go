package transport

import (
	"context"
	"sort"
	"sync"

	operations "github.com/goliatone/go-operations"
)

// MemoryBroker is an in-process broker with retained message semantics.
// An empty retained payload clears the retained message of its topic.
type MemoryBroker struct {
	mu       sync.Mutex
	retained map[string]Message
	order    []string
	subs     map[int]*memorySub
	nextID   int
	closed   bool
}

type memorySub struct {
	pattern string
	pump    *Pump
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		retained: make(map[string]Message),
		subs:     make(map[int]*memorySub),
	}
}

func (b *MemoryBroker) Publish(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return operations.NewError(operations.ErrTransportClosed, "", nil, map[string]any{"topic": msg.Topic})
	}

	msg.Payload = append([]byte(nil), msg.Payload...)
	if msg.Retained {
		b.retain(msg)
	}

	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		sub := b.subs[id]
		if operations.TopicMatches(sub.pattern, msg.Topic) {
			// live deliveries are not flagged as retained
			live := msg
			live.Retained = false
			sub.pump.Push(live)
		}
	}
	return nil
}

func (b *MemoryBroker) retain(msg Message) {
	if _, ok := b.retained[msg.Topic]; ok {
		b.dropOrder(msg.Topic)
	}
	if len(msg.Payload) == 0 {
		delete(b.retained, msg.Topic)
		return
	}
	b.retained[msg.Topic] = msg
	b.order = append(b.order, msg.Topic)
}

func (b *MemoryBroker) dropOrder(topic string) {
	for i, t := range b.order {
		if t == topic {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

// Subscribe replays matching retained messages, oldest first, then streams
// live publishes until ctx is done.
func (b *MemoryBroker) Subscribe(ctx context.Context, pattern string, out chan<- Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return operations.NewError(operations.ErrTransportClosed, "", nil, map[string]any{"pattern": pattern})
	}

	pump := NewPump(ctx, out)
	for _, topic := range b.order {
		if operations.TopicMatches(pattern, topic) {
			pump.Push(b.retained[topic])
		}
	}

	b.nextID++
	id := b.nextID
	b.subs[id] = &memorySub{pattern: pattern, pump: pump}

	go func() {
		<-pump.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

// Retained returns the retained message of topic.
func (b *MemoryBroker) Retained(topic string) (Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.retained[topic]
	return msg, ok
}

// Close rejects further publishes and subscriptions.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
