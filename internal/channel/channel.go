package channel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTimeout         = errors.New("channel: receive timeout")
	ErrClosed          = errors.New("channel: closed")
	ErrUnknownKind     = errors.New("channel: unknown transport kind")
	ErrInvalidPort     = errors.New("channel: invalid port")
	ErrSerialRequired  = errors.New("channel: serial port name required")
	ErrDatagramTooLong = errors.New("channel: datagram too long")
)

// Channel is an unreliable datagram transport. Receive returns ErrTimeout
// when nothing arrives within the configured timeout and ErrClosed once the
// channel is shut; both are ordinary results, not failures of the peer.
type Channel interface {
	Send(ctx context.Context, datagram []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

type Kind string

const (
	KindUDP    Kind = "udp"
	KindSerial Kind = "serial"
)

const (
	DefaultHost           = "127.0.0.1"
	SenderInboundPort     = 50006
	SenderOutboundPort    = 50005
	ReceiverInboundPort   = 50005
	ReceiverOutboundPort  = 50006
	DefaultBaud           = 9600
	DefaultReceiveTimeout = time.Second
)

// Config selects and configures a transport.
type Config struct {
	Kind         Kind
	Host         string
	BindHost     string
	InboundPort  int
	OutboundPort int
	Timeout      time.Duration
	SerialPort   string
	Baud         int
}

func SenderConfig() Config {
	return Config{
		Kind:         KindUDP,
		Host:         DefaultHost,
		InboundPort:  SenderInboundPort,
		OutboundPort: SenderOutboundPort,
		Timeout:      DefaultReceiveTimeout,
		Baud:         DefaultBaud,
	}
}

func ReceiverConfig() Config {
	return Config{
		Kind:         KindUDP,
		Host:         DefaultHost,
		InboundPort:  ReceiverInboundPort,
		OutboundPort: ReceiverOutboundPort,
		Timeout:      10 * time.Second,
		Baud:         DefaultBaud,
	}
}

func (c Config) Validate() error {
	switch NormalizeKind(c.Kind) {
	case KindUDP:
		if c.InboundPort < 0 || c.InboundPort > 65535 {
			return fmt.Errorf("%w: inbound %d", ErrInvalidPort, c.InboundPort)
		}
		if c.OutboundPort <= 0 || c.OutboundPort > 65535 {
			return fmt.Errorf("%w: outbound %d", ErrInvalidPort, c.OutboundPort)
		}
	case KindSerial:
		if strings.TrimSpace(c.SerialPort) == "" {
			return ErrSerialRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	return nil
}

func NormalizeKind(kind Kind) Kind {
	if strings.TrimSpace(string(kind)) == "" {
		return KindUDP
	}
	return Kind(strings.ToLower(strings.TrimSpace(string(kind))))
}

// Open acquires the transport described by cfg.
func Open(cfg Config) (Channel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultReceiveTimeout
	}
	switch NormalizeKind(cfg.Kind) {
	case KindSerial:
		return OpenSerial(cfg.SerialPort, cfg.Baud, cfg.Timeout)
	default:
		return OpenUDP(cfg)
	}
}

// receiveDeadline is the earlier of now+timeout and the ctx deadline.
func receiveDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
