package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/arqlink/internal/channel"
	"github.com/danmuck/arqlink/internal/protocol/session"
)

// Session converts the file into engine parameters and validates them.
func (f File) Session() (session.Config, error) {
	cfg := session.DefaultConfig()

	timeout, err := f.timeout()
	if err != nil {
		return session.Config{}, err
	}
	cfg.Timeout = timeout
	cfg.MaxRetries = f.Retries
	if f.StartSeq < 0 || f.StartSeq > 255 {
		return session.Config{}, fmt.Errorf("%w: %d", session.ErrInvalidStartSequence, f.StartSeq)
	}
	cfg.StartSequence = uint8(f.StartSeq)
	cfg.SequenceModulus = f.Modulus
	cfg.ChunkSize = f.ChunkSize
	cfg.Copies = f.Copies
	cfg.IdleTimeouts = f.IdleTimeouts

	if cfg.Backoff.InitialDelay, err = parseDuration("backoff.initial", f.Backoff.Initial, cfg.Backoff.InitialDelay); err != nil {
		return session.Config{}, err
	}
	if cfg.Backoff.MaxDelay, err = parseDuration("backoff.max", f.Backoff.Max, cfg.Backoff.MaxDelay); err != nil {
		return session.Config{}, err
	}
	if f.Backoff.Multiplier != 0 {
		cfg.Backoff.Multiplier = f.Backoff.Multiplier
	}
	cfg.Backoff.Jitter = f.Backoff.Jitter

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}

// Channel converts the file into transport parameters.
func (f File) Channel() (channel.Config, error) {
	timeout, err := f.timeout()
	if err != nil {
		return channel.Config{}, err
	}
	cfg := channel.Config{
		Kind:         channel.NormalizeKind(channel.Kind(f.Transport)),
		Host:         strings.TrimSpace(f.Host),
		BindHost:     strings.TrimSpace(f.BindHost),
		InboundPort:  f.InPort,
		OutboundPort: f.OutPort,
		Timeout:      timeout,
		SerialPort:   strings.TrimSpace(f.SerialPort),
		Baud:         f.Baud,
	}
	if cfg.Host == "" {
		cfg.Host = channel.DefaultHost
	}
	if cfg.Baud <= 0 {
		cfg.Baud = channel.DefaultBaud
	}
	if err := cfg.Validate(); err != nil {
		return channel.Config{}, err
	}
	return cfg, nil
}

func (f File) timeout() (time.Duration, error) {
	if f.TimeoutMS > 0 {
		return time.Duration(f.TimeoutMS) * time.Millisecond, nil
	}
	return parseDuration("timeout", f.Timeout, session.DefaultTimeout)
}

func parseDuration(key, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
