package arq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/danmuck/arqlink/internal/channel"
	"github.com/danmuck/arqlink/internal/observability"
	"github.com/danmuck/arqlink/internal/protocol/frame"
	"github.com/danmuck/arqlink/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Receiver reassembles a stream from data frames and writes it to sink.
type Receiver interface {
	Run(ctx context.Context, sink io.Writer) error
}

// ReceiverEngine is the stop-and-wait receiver.
type ReceiverEngine struct {
	ch  channel.Channel
	cfg session.Config
	log zerolog.Logger

	expected  uint8
	lastAcked uint8

	stats receiverCounters

	closeOnce sync.Once
	closeErr  error
}

var _ Receiver = (*ReceiverEngine)(nil)

// NewReceiver takes ownership of ch. On error the caller keeps it.
func NewReceiver(ch channel.Channel, cfg session.Config) (*ReceiverEngine, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &ReceiverEngine{
		ch:        ch,
		cfg:       cfg,
		log:       observability.Component("arq.receiver"),
		expected:  cfg.StartSequence,
		lastAcked: session.PrevSequence(cfg.StartSequence, cfg.SequenceModulus),
	}
	r.stats.sequence.Store(uint32(r.expected))
	return r, nil
}

func (r *ReceiverEngine) ExpectedSequence() uint8 {
	return uint8(r.stats.sequence.Load())
}

func (r *ReceiverEngine) Stats() ReceiverStats {
	return r.stats.snapshot()
}

// Close releases the channel. It is safe to call more than once.
func (r *ReceiverEngine) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.ch.Close()
	})
	return r.closeErr
}

type verdict int

const (
	verdictDeliver verdict = iota
	verdictDuplicate
	verdictOutOfOrder
	verdictCorrupt
	verdictMalformed
)

func (v verdict) String() string {
	switch v {
	case verdictDeliver:
		return "delivered"
	case verdictDuplicate:
		return "duplicate"
	case verdictOutOfOrder:
		return "out_of_order"
	case verdictCorrupt:
		return "corrupt"
	default:
		return "malformed"
	}
}

// classify decides what to do with one datagram given the current state.
func (r *ReceiverEngine) classify(d []byte) (frame.Frame, verdict, error) {
	f, err := frame.Decode(d)
	if err != nil {
		return f, verdictMalformed, err
	}
	if !f.ChecksumOK {
		return f, verdictCorrupt, fmt.Errorf("%w: got=%d want=%d", ErrChecksumMismatch, f.Checksum, frame.Checksum(f.Payload))
	}
	switch f.Sequence {
	case r.expected:
		return f, verdictDeliver, nil
	case r.lastAcked:
		return f, verdictDuplicate, fmt.Errorf("%w: duplicate seq=%d", ErrSequenceMismatch, f.Sequence)
	default:
		return f, verdictOutOfOrder, fmt.Errorf("%w: seq=%d want=%d", ErrSequenceMismatch, f.Sequence, r.expected)
	}
}

// Run receives frames until ctx is canceled, the idle policy ends the
// stream, or the channel closes. Cancellation and idle exit return nil.
func (r *ReceiverEngine) Run(ctx context.Context, sink io.Writer) error {
	id := uuid.NewString()
	r.stats.session.Store(id)
	logger := r.log.With().Str("session", id).Logger()
	start := time.Now()
	logger.Info().
		Uint8("expected_seq", r.expected).
		Int("idle_timeouts", r.cfg.IdleTimeouts).
		Msg("receiver started")

	err := r.loop(ctx, logger, sink)

	outcome := "ok"
	if err != nil {
		outcome = "failed"
		logger.Error().Err(err).Msg("receiver stopped")
	} else {
		logger.Info().
			Uint64("bytes", r.stats.bytesDelivered.Load()).
			Dur("elapsed", time.Since(start)).
			Uint8("expected_seq", r.expected).
			Msg("receiver finished")
	}
	observability.RecordTransfer("receiver", outcome, time.Since(start))
	return err
}

func (r *ReceiverEngine) loop(ctx context.Context, logger zerolog.Logger, sink io.Writer) error {
	idle := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		d, err := r.ch.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, channel.ErrTimeout):
				r.stats.timeouts.Add(1)
				idle++
				if r.cfg.IdleTimeouts > 0 && idle >= r.cfg.IdleTimeouts {
					logger.Info().Int("timeouts", idle).Msg("idle limit reached")
					return nil
				}
				continue
			case isCanceled(err):
				return nil
			default:
				return fmt.Errorf("arq: receive: %w", err)
			}
		}
		idle = 0
		r.stats.datagrams.Add(1)

		f, v, cerr := r.classify(d)
		switch v {
		case verdictDeliver:
			if _, err := sink.Write(f.Payload); err != nil {
				return fmt.Errorf("arq: deliver seq=%d: %w", f.Sequence, err)
			}
			r.lastAcked = f.Sequence
			r.expected = session.NextSequence(f.Sequence, r.cfg.SequenceModulus)
			r.stats.sequence.Store(uint32(r.expected))
			r.stats.delivered.Add(1)
			r.stats.bytesDelivered.Add(uint64(len(f.Payload)))
			logger.Debug().Uint8("seq", f.Sequence).Int("len", len(f.Payload)).Msg("frame delivered")
		case verdictDuplicate:
			r.stats.duplicates.Add(1)
		case verdictOutOfOrder:
			r.stats.outOfOrder.Add(1)
		case verdictCorrupt:
			r.stats.corrupt.Add(1)
		case verdictMalformed:
			r.stats.malformed.Add(1)
		}
		if cerr != nil {
			logger.Debug().Err(cerr).Str("verdict", v.String()).Uint8("reack", r.lastAcked).Msg("frame rejected")
		}
		delivered := 0
		if v == verdictDeliver {
			delivered = len(f.Payload)
		}
		observability.RecordReceived(v.String(), delivered)

		if err := r.ch.Send(ctx, frame.EncodeAck(r.lastAcked)); err != nil {
			switch {
			case isCanceled(err):
				return nil
			case errors.Is(err, channel.ErrClosed):
				return fmt.Errorf("arq: ack: %w", err)
			default:
				// the sender's timeout covers a lost ack
				logger.Warn().Err(err).Uint8("ack", r.lastAcked).Msg("ack send failed")
				continue
			}
		}
		r.stats.acksSent.Add(1)
	}
}
