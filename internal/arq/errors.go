package arq

import (
	"context"
	"errors"

	"github.com/danmuck/arqlink/internal/channel"
	"github.com/danmuck/arqlink/internal/protocol/frame"
)

// Content and ordering errors are recovered inside the engines. Only
// ErrDeliveryFailed, ErrChannelClosed, cancellation and sink failures are
// returned to callers.
var (
	ErrChecksumMismatch = errors.New("arq: checksum mismatch")
	ErrSequenceMismatch = errors.New("arq: sequence mismatch")
	ErrDeliveryFailed   = errors.New("arq: delivery failed")

	ErrMalformed      = frame.ErrMalformed
	ErrChannelTimeout = channel.ErrTimeout
	ErrChannelClosed  = channel.ErrClosed
)

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
