package channel

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"
)

const udpReadBuffer = 64 * 1024

// UDP binds one local port and sends every datagram to a fixed remote port.
type UDP struct {
	conn    net.PacketConn
	remote  net.Addr
	timeout time.Duration
	buf     []byte

	closeOnce sync.Once
	closeErr  error
}

var _ Channel = (*UDP)(nil)

func OpenUDP(cfg Config) (*UDP, error) {
	local := net.JoinHostPort(cfg.BindHost, strconv.Itoa(cfg.InboundPort))
	conn, err := net.ListenPacket("udp", local)
	if err != nil {
		return nil, fmt.Errorf("channel: bind udp %s: %w", local, err)
	}
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(cfg.OutboundPort)))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel: resolve udp peer: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}
	return NewUDP(conn, remote, timeout), nil
}

// NewUDP wraps an already bound packet conn. The UDP channel owns conn.
func NewUDP(conn net.PacketConn, remote net.Addr, timeout time.Duration) *UDP {
	return &UDP{
		conn:    conn,
		remote:  remote,
		timeout: timeout,
		buf:     make([]byte, udpReadBuffer),
	}
}

func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

func (u *UDP) Send(ctx context.Context, datagram []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(datagram) > udpReadBuffer {
		return fmt.Errorf("%w: %d bytes", ErrDatagramTooLong, len(datagram))
	}
	_ = u.conn.SetWriteDeadline(receiveDeadline(ctx, u.timeout))
	if _, err := u.conn.WriteTo(datagram, u.remote); err != nil {
		return u.mapErr(ctx, err)
	}
	return nil
}

func (u *UDP) Receive(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	_ = u.conn.SetReadDeadline(receiveDeadline(ctx, u.timeout))
	n, _, err := u.conn.ReadFrom(u.buf)
	if err != nil {
		return nil, u.mapErr(ctx, err)
	}
	out := make([]byte, n)
	copy(out, u.buf[:n])
	return out, nil
}

func (u *UDP) Close() error {
	u.closeOnce.Do(func() {
		u.closeErr = u.conn.Close()
	})
	return u.closeErr
}

func (u *UDP) mapErr(ctx context.Context, err error) error {
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return ErrTimeout
	}
	return err
}
