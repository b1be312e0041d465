package arq

import (
	"context"
	"sync"

	"github.com/danmuck/arqlink/internal/channel"
)

// step is one scripted Receive result.
type step struct {
	data []byte
	err  error
}

func ack(seq uint8) step { return step{data: []byte{seq}} }
func datagram(b []byte) step { return step{data: b} }
func timeout() step { return step{err: channel.ErrTimeout} }
func failWith(err error) step { return step{err: err} }

// scriptChannel replays scripted receive results and records every send.
// When the script runs out it reports timeouts, or ErrClosed when
// closeWhenDone is set.
type scriptChannel struct {
	mu            sync.Mutex
	script        []step
	sent          [][]byte
	closed        bool
	closeWhenDone bool
	sendErr       error
}

func (c *scriptChannel) Send(ctx context.Context, d []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return channel.ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, append([]byte(nil), d...))
	return nil
}

func (c *scriptChannel) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, channel.ErrClosed
	}
	if len(c.script) == 0 {
		if c.closeWhenDone {
			return nil, channel.ErrClosed
		}
		return nil, channel.ErrTimeout
	}
	s := c.script[0]
	c.script = c.script[1:]
	return s.data, s.err
}

func (c *scriptChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptChannel) sends() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.sent...)
}

// recorder wraps a channel and records traffic in both directions.
type recorder struct {
	channel.Channel
	mu  sync.Mutex
	out [][]byte
	in  [][]byte
}

func (r *recorder) Send(ctx context.Context, d []byte) error {
	r.mu.Lock()
	r.out = append(r.out, append([]byte(nil), d...))
	r.mu.Unlock()
	return r.Channel.Send(ctx, d)
}

func (r *recorder) Receive(ctx context.Context) ([]byte, error) {
	d, err := r.Channel.Receive(ctx)
	if err == nil {
		r.mu.Lock()
		r.in = append(r.in, append([]byte(nil), d...))
		r.mu.Unlock()
	}
	return d, err
}

func (r *recorder) sent() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.out...)
}

func (r *recorder) received() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.in...)
}
