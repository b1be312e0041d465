package arq

import "sync/atomic"

// SenderStats is a point-in-time copy of sender counters.
type SenderStats struct {
	Transfer       string `json:"transfer"`
	NextSequence   uint8  `json:"next_sequence"`
	Frames         uint64 `json:"frames"`
	Retransmits    uint64 `json:"retransmits"`
	Timeouts       uint64 `json:"timeouts"`
	AcksMatched    uint64 `json:"acks_matched"`
	AcksMismatched uint64 `json:"acks_mismatched"`
	AcksMalformed  uint64 `json:"acks_malformed"`
	StaleAcks      uint64 `json:"stale_acks"`
	BytesConfirmed uint64 `json:"bytes_confirmed"`
}

// ReceiverStats is a point-in-time copy of receiver counters.
type ReceiverStats struct {
	Session          string `json:"session"`
	ExpectedSequence uint8  `json:"expected_sequence"`
	Datagrams        uint64 `json:"datagrams"`
	Delivered        uint64 `json:"delivered"`
	Duplicates       uint64 `json:"duplicates"`
	OutOfOrder       uint64 `json:"out_of_order"`
	Corrupt          uint64 `json:"corrupt"`
	Malformed        uint64 `json:"malformed"`
	Timeouts         uint64 `json:"timeouts"`
	AcksSent         uint64 `json:"acks_sent"`
	BytesDelivered   uint64 `json:"bytes_delivered"`
}

// Counters are atomic so a status endpoint can read them while the engine
// loop runs; the loop's own sequence state is not shared.
type senderCounters struct {
	transfer       atomic.Value
	sequence       atomic.Uint32
	frames         atomic.Uint64
	retransmits    atomic.Uint64
	timeouts       atomic.Uint64
	acksMatched    atomic.Uint64
	acksMismatched atomic.Uint64
	acksMalformed  atomic.Uint64
	staleAcks      atomic.Uint64
	bytesConfirmed atomic.Uint64
}

func (c *senderCounters) snapshot() SenderStats {
	id, _ := c.transfer.Load().(string)
	return SenderStats{
		Transfer:       id,
		NextSequence:   uint8(c.sequence.Load()),
		Frames:         c.frames.Load(),
		Retransmits:    c.retransmits.Load(),
		Timeouts:       c.timeouts.Load(),
		AcksMatched:    c.acksMatched.Load(),
		AcksMismatched: c.acksMismatched.Load(),
		AcksMalformed:  c.acksMalformed.Load(),
		StaleAcks:      c.staleAcks.Load(),
		BytesConfirmed: c.bytesConfirmed.Load(),
	}
}

type receiverCounters struct {
	session        atomic.Value
	sequence       atomic.Uint32
	datagrams      atomic.Uint64
	delivered      atomic.Uint64
	duplicates     atomic.Uint64
	outOfOrder     atomic.Uint64
	corrupt        atomic.Uint64
	malformed      atomic.Uint64
	timeouts       atomic.Uint64
	acksSent       atomic.Uint64
	bytesDelivered atomic.Uint64
}

func (c *receiverCounters) snapshot() ReceiverStats {
	id, _ := c.session.Load().(string)
	return ReceiverStats{
		Session:          id,
		ExpectedSequence: uint8(c.sequence.Load()),
		Datagrams:        c.datagrams.Load(),
		Delivered:        c.delivered.Load(),
		Duplicates:       c.duplicates.Load(),
		OutOfOrder:       c.outOfOrder.Load(),
		Corrupt:          c.corrupt.Load(),
		Malformed:        c.malformed.Load(),
		Timeouts:         c.timeouts.Load(),
		AcksSent:         c.acksSent.Load(),
		BytesDelivered:   c.bytesDelivered.Load(),
	}
}
