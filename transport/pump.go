package transport

import (
	"context"
	"sync"
)

// Pump decouples producers from a consumer channel with an unbounded FIFO
// so that a slow consumer never blocks the producer.
type Pump struct {
	mu     sync.Mutex
	queue  []Message
	signal chan struct{}
	out    chan<- Message
	done   chan struct{}
}

// NewPump starts forwarding queued messages to out until ctx is done.
func NewPump(ctx context.Context, out chan<- Message) *Pump {
	p := &Pump{
		signal: make(chan struct{}, 1),
		out:    out,
		done:   make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

// Push enqueues msg. It never blocks.
func (p *Pump) Push(msg Message) {
	p.mu.Lock()
	p.queue = append(p.queue, msg)
	p.mu.Unlock()

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// Done is closed once the pump stops forwarding.
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

func (p *Pump) run(ctx context.Context) {
	defer close(p.done)
	for {
		msg, ok := p.pop()
		if !ok {
			select {
			case <-p.signal:
				continue
			case <-ctx.Done():
				return
			}
		}
		select {
		case p.out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pump) pop() (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return Message{}, false
	}
	msg := p.queue[0]
	p.queue[0] = Message{}
	p.queue = p.queue[1:]
	return msg, true
}
