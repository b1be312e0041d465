package arq

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/arqlink/internal/channel"
	"github.com/danmuck/arqlink/internal/observability"
	"github.com/danmuck/arqlink/internal/protocol/frame"
	"github.com/danmuck/arqlink/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sender delivers a byte stream reliably over an unreliable channel.
type Sender interface {
	Send(ctx context.Context, data []byte) error
}

// SenderEngine is the stop-and-wait sender. At most one frame is
// unacknowledged at any time.
type SenderEngine struct {
	ch  channel.Channel
	cfg session.Config
	log zerolog.Logger
	rng *rand.Rand

	// Loop-owned state.
	nextSeq uint8
	pending []byte
	retries int
	sent    int // transmissions of the pending frame
	// stale bounds the late acks still owed for the previously confirmed
	// frame. Up to that many acks naming it are dropped instead of being
	// read as a NAK.
	stale int

	stats senderCounters

	closeOnce sync.Once
	closeErr  error
}

var _ Sender = (*SenderEngine)(nil)

// NewSender takes ownership of ch. On error the caller keeps it.
func NewSender(ch channel.Channel, cfg session.Config) (*SenderEngine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &SenderEngine{
		ch:      ch,
		cfg:     cfg,
		log:     observability.Component("arq.sender"),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		nextSeq: cfg.StartSequence,
	}
	s.stats.sequence.Store(uint32(s.nextSeq))
	return s, nil
}

// NextSequence is the sequence the next chunk will carry.
func (s *SenderEngine) NextSequence() uint8 {
	return uint8(s.stats.sequence.Load())
}

func (s *SenderEngine) Stats() SenderStats {
	return s.stats.snapshot()
}

// Close releases the channel. It is safe to call more than once.
func (s *SenderEngine) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.ch.Close()
	})
	return s.closeErr
}

// Send splits data into chunks and delivers them in order. It returns nil
// once every chunk is acknowledged, ErrDeliveryFailed when a frame exhausts
// its retries, ErrChannelClosed, or the context error on cancellation.
func (s *SenderEngine) Send(ctx context.Context, data []byte) error {
	chunks := frame.Split(data, s.cfg.ChunkSize)
	if len(chunks) == 0 {
		return nil
	}

	transfer := uuid.NewString()
	s.stats.transfer.Store(transfer)
	logger := s.log.With().Str("transfer", transfer).Logger()
	start := time.Now()
	logger.Info().
		Int("bytes", len(data)).
		Int("chunks", len(chunks)).
		Uint8("start_seq", s.nextSeq).
		Msg("transfer started")

	for i, chunk := range chunks {
		if err := s.deliver(ctx, logger, chunk); err != nil {
			observability.RecordTransfer("sender", "failed", time.Since(start))
			logger.Error().Err(err).Int("chunk", i).Int("chunks", len(chunks)).Msg("transfer failed")
			return err
		}
	}

	observability.RecordTransfer("sender", "ok", time.Since(start))
	logger.Info().
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Uint8("next_seq", s.nextSeq).
		Msg("transfer complete")
	return nil
}

func (s *SenderEngine) deliver(ctx context.Context, logger zerolog.Logger, chunk []byte) error {
	seq := s.nextSeq
	buf, err := frame.Encode(chunk, seq)
	if err != nil {
		return err
	}
	s.pending = buf
	s.retries = 0
	s.sent = 0
	defer func() { s.pending = nil }()

	for {
		if err := s.transmit(ctx); err != nil {
			return err
		}

		err := s.awaitAck(ctx, seq)
		switch {
		case err == nil:
			s.confirm(seq, len(chunk))
			logger.Debug().Uint8("seq", seq).Int("len", len(chunk)).Int("retries", s.retries).Msg("frame confirmed")
			return nil
		case errors.Is(err, ErrChannelTimeout):
			s.stats.timeouts.Add(1)
			observability.RecordAck("timeout")
			logger.Debug().Uint8("seq", seq).Int("retry", s.retries+1).Msg("ack timeout")
		case errors.Is(err, ErrSequenceMismatch), errors.Is(err, frame.ErrMalformedAck):
			logger.Debug().Uint8("seq", seq).Int("retry", s.retries+1).Err(err).Msg("negative ack")
		default:
			return err
		}

		s.retries++
		if s.retries > s.cfg.MaxRetries {
			return fmt.Errorf("%w: seq=%d retransmits=%d", ErrDeliveryFailed, seq, s.cfg.MaxRetries)
		}
		if errors.Is(err, ErrChannelTimeout) {
			if err := session.WaitBackoff(ctx, s.cfg.Backoff, s.retries, s.rng); err != nil {
				return fmt.Errorf("arq: send canceled: %w", err)
			}
		}
	}
}

// transmit emits the pending frame Copies times.
func (s *SenderEngine) transmit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("arq: send canceled: %w", err)
	}
	retransmit := s.sent > 0
	for i := 0; i < s.cfg.Copies; i++ {
		if err := s.ch.Send(ctx, s.pending); err != nil {
			if isCanceled(err) {
				return fmt.Errorf("arq: send canceled: %w", err)
			}
			return fmt.Errorf("arq: transmit: %w", err)
		}
	}
	s.sent++
	s.stats.frames.Add(1)
	if retransmit {
		s.stats.retransmits.Add(1)
	}
	observability.RecordFrameSent(retransmit)
	return nil
}

// awaitAck reads acks until one decides the pending frame's fate: nil for
// a match, ErrChannelTimeout, or a negative signal.
func (s *SenderEngine) awaitAck(ctx context.Context, seq uint8) error {
	prev := session.PrevSequence(seq, s.cfg.SequenceModulus)
	for {
		d, err := s.ch.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, channel.ErrTimeout):
				return ErrChannelTimeout
			case isCanceled(err):
				return fmt.Errorf("arq: send canceled: %w", err)
			default:
				return fmt.Errorf("arq: await ack: %w", err)
			}
		}

		ack, err := frame.DecodeAck(d)
		if err != nil {
			s.stats.acksMalformed.Add(1)
			observability.RecordAck("malformed")
			return err
		}
		if ack == seq {
			s.stats.acksMatched.Add(1)
			observability.RecordAck("match")
			return nil
		}
		if ack == prev && s.stale > 0 {
			s.stale--
			s.stats.staleAcks.Add(1)
			observability.RecordAck("stale")
			continue
		}
		s.stats.acksMismatched.Add(1)
		observability.RecordAck("mismatch")
		return fmt.Errorf("%w: ack=%d want=%d", ErrSequenceMismatch, ack, seq)
	}
}

func (s *SenderEngine) confirm(seq uint8, n int) {
	// Every datagram of every transmission may still draw an ack; one of
	// them was the match.
	s.stale = s.sent*s.cfg.Copies - 1
	s.retries = 0
	s.nextSeq = session.NextSequence(seq, s.cfg.SequenceModulus)
	s.stats.sequence.Store(uint32(s.nextSeq))
	s.stats.bytesConfirmed.Add(uint64(n))
}
