package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/arqlink/internal/protocol/frame"
)

var (
	ErrInvalidTimeout       = errors.New("session: timeout must be positive")
	ErrInvalidRetries       = errors.New("session: max retries must not be negative")
	ErrInvalidModulus       = errors.New("session: sequence modulus must be within 2..256")
	ErrInvalidStartSequence = errors.New("session: start sequence outside modulus")
	ErrInvalidCopies        = errors.New("session: copies must be at least 1")
	ErrInvalidChunkSize     = errors.New("session: chunk size outside 1..max payload")
	ErrInvalidIdleTimeouts  = errors.New("session: idle timeouts must not be negative")
)

const (
	DefaultTimeout    = time.Second
	DefaultMaxRetries = 10
	MaxModulus        = 256
)

// BackoffConfig defines the pause inserted before a timeout-driven retransmit.
// A zero InitialDelay retransmits immediately.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines stop-and-wait reliability parameters shared by both roles.
type Config struct {
	// Timeout bounds every channel receive.
	Timeout time.Duration
	// MaxRetries is the number of retransmissions allowed per frame.
	MaxRetries int
	// StartSequence is the first sequence sent or expected.
	StartSequence uint8
	// SequenceModulus wraps sequence numbers; 256 on the wire.
	SequenceModulus int
	// ChunkSize caps payload bytes per frame; 0 means frame.MaxPayload.
	ChunkSize int
	// Copies is the number of datagrams emitted per transmission.
	Copies int
	// IdleTimeouts ends a receive loop after that many consecutive
	// timeouts. Zero waits forever.
	IdleTimeouts int
	Backoff      BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Timeout:         DefaultTimeout,
		MaxRetries:      DefaultMaxRetries,
		StartSequence:   0,
		SequenceModulus: MaxModulus,
		ChunkSize:       frame.MaxPayload,
		Copies:          1,
		IdleTimeouts:    0,
		Backoff: BackoffConfig{
			InitialDelay: 0,
			Multiplier:   2.0,
			MaxDelay:     2 * time.Second,
			Jitter:       false,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Timeout == 0 {
		c.Timeout = def.Timeout
	}
	if c.SequenceModulus == 0 {
		c.SequenceModulus = def.SequenceModulus
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = def.ChunkSize
	}
	if c.Copies == 0 {
		c.Copies = def.Copies
	}
	if c.Backoff.Multiplier == 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	return c
}

func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidTimeout, c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRetries, c.MaxRetries)
	}
	if c.SequenceModulus < 2 || c.SequenceModulus > MaxModulus {
		return fmt.Errorf("%w: %d", ErrInvalidModulus, c.SequenceModulus)
	}
	if int(c.StartSequence) >= c.SequenceModulus {
		return fmt.Errorf("%w: %d >= %d", ErrInvalidStartSequence, c.StartSequence, c.SequenceModulus)
	}
	if c.ChunkSize < 1 || c.ChunkSize > frame.MaxPayload {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.Copies < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidCopies, c.Copies)
	}
	if c.IdleTimeouts < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidIdleTimeouts, c.IdleTimeouts)
	}
	return nil
}
