package channel

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const pipeQueueLen = 1024

// Faults describes the impairments applied to datagrams leaving one pipe end.
// Rates are probabilities in [0,1].
type Faults struct {
	Loss      float64
	Corrupt   float64
	Duplicate float64
	Reorder   float64
	// CorruptFrom is the first byte offset corruption may touch. A datagram
	// no longer than CorruptFrom is lost instead of corrupted.
	CorruptFrom int
	Seed        int64
	// Tamper, when set, replaces the random pipeline: it receives each
	// outbound datagram and returns the datagrams to deliver, in order.
	Tamper func(datagram []byte) [][]byte
}

// PipeEnd is one side of an in-memory datagram link that simulates an
// unreliable channel.
type PipeEnd struct {
	in      chan []byte
	out     chan []byte
	timeout time.Duration

	mu     sync.Mutex
	faults Faults
	rng    *rand.Rand
	held   []byte

	closed    chan struct{}
	closeOnce sync.Once
}

var _ Channel = (*PipeEnd)(nil)

// NewPipe returns two connected ends. Whatever a sends, b receives and the
// reverse. Both ends start fault-free.
func NewPipe(timeout time.Duration) (*PipeEnd, *PipeEnd) {
	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}
	ab := make(chan []byte, pipeQueueLen)
	ba := make(chan []byte, pipeQueueLen)
	a := &PipeEnd{in: ba, out: ab, timeout: timeout, closed: make(chan struct{}), rng: rand.New(rand.NewSource(1))}
	b := &PipeEnd{in: ab, out: ba, timeout: timeout, closed: make(chan struct{}), rng: rand.New(rand.NewSource(2))}
	return a, b
}

// SetFaults installs impairments for datagrams sent from this end.
func (p *PipeEnd) SetFaults(f Faults) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults = f
	if f.Seed != 0 {
		p.rng = rand.New(rand.NewSource(f.Seed))
	}
}

func (p *PipeEnd) Send(ctx context.Context, datagram []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.closed:
		return ErrClosed
	default:
	}
	msg := make([]byte, len(datagram))
	copy(msg, datagram)
	for _, d := range p.impair(msg) {
		select {
		case p.out <- d:
		default:
			// queue full: the link drops it
		}
	}
	return nil
}

func (p *PipeEnd) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-p.closed:
		return nil, ErrClosed
	default:
	}
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case d := <-p.in:
		return d, nil
	case <-p.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	return nil
}

func (p *PipeEnd) impair(msg []byte) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.faults.Tamper != nil {
		return p.faults.Tamper(msg)
	}

	f := p.faults
	var out [][]byte
	switch {
	case p.hit(f.Loss):
		// lost
	case p.hit(f.Corrupt):
		if len(msg) > f.CorruptFrom {
			i := f.CorruptFrom + p.rng.Intn(len(msg)-f.CorruptFrom)
			msg[i] ^= 0x01
			out = append(out, msg)
		}
	default:
		out = append(out, msg)
		if p.hit(f.Duplicate) {
			dup := make([]byte, len(msg))
			copy(dup, msg)
			out = append(out, dup)
		}
	}

	if len(out) > 0 && p.held == nil && p.hit(f.Reorder) {
		p.held = out[0]
		out = out[1:]
		return out
	}
	if p.held != nil {
		out = append(out, p.held)
		p.held = nil
	}
	return out
}

func (p *PipeEnd) hit(rate float64) bool {
	return rate > 0 && p.rng.Float64() < rate
}
