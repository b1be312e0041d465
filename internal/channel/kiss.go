package channel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// KISS framing bytes.
const (
	kissFEND    = 0xC0
	kissFESC    = 0xDB
	kissTFEND   = 0xDC
	kissTFESC   = 0xDD
	kissCmdData = 0x00

	kissQueueLen  = 256
	kissReadChunk = 1024
)

// KISS carries datagrams as KISS data frames over a byte stream such as a
// serial TNC. A background reader splits the stream into datagrams.
type KISS struct {
	rw      io.ReadWriteCloser
	timeout time.Duration

	wmu    sync.Mutex
	frames chan []byte
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

var _ Channel = (*KISS)(nil)

// OpenSerial opens a serial port and speaks KISS on it.
func OpenSerial(portName string, baud int, timeout time.Duration) (*KISS, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("channel: open serial %s: %w", portName, err)
	}
	log.Info().Str("component", "channel.kiss").Str("port", portName).Int("baud", baud).Msg("serial port opened")
	return NewKISS(port, timeout), nil
}

// NewKISS starts reading KISS frames from rw. The KISS channel owns rw.
func NewKISS(rw io.ReadWriteCloser, timeout time.Duration) *KISS {
	if timeout <= 0 {
		timeout = DefaultReceiveTimeout
	}
	k := &KISS{
		rw:      rw,
		timeout: timeout,
		frames:  make(chan []byte, kissQueueLen),
		done:    make(chan struct{}),
	}
	go k.readLoop()
	return k
}

func (k *KISS) Send(ctx context.Context, datagram []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-k.done:
		return ErrClosed
	default:
	}
	k.wmu.Lock()
	defer k.wmu.Unlock()
	if _, err := k.rw.Write(EncodeKISS(datagram)); err != nil {
		select {
		case <-k.done:
			return ErrClosed
		default:
		}
		return err
	}
	return nil
}

func (k *KISS) Receive(ctx context.Context) ([]byte, error) {
	timer := time.NewTimer(k.timeout)
	defer timer.Stop()
	select {
	case d, ok := <-k.frames:
		if !ok {
			return nil, ErrClosed
		}
		return d, nil
	case <-k.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, ErrTimeout
	}
}

func (k *KISS) Close() error {
	k.closeOnce.Do(func() {
		close(k.done)
		k.closeErr = k.rw.Close()
	})
	return k.closeErr
}

func (k *KISS) readLoop() {
	defer close(k.frames)
	var dec KISSDecoder
	buf := make([]byte, kissReadChunk)
	for {
		n, err := k.rw.Read(buf)
		for _, d := range dec.Feed(buf[:n]) {
			select {
			case k.frames <- d:
			default:
				log.Debug().Str("component", "channel.kiss").Int("len", len(d)).Msg("receive queue full; frame dropped")
			}
		}
		if err != nil {
			select {
			case <-k.done:
			default:
				if err != io.EOF {
					log.Warn().Str("component", "channel.kiss").Err(err).Msg("read loop stopped")
				}
			}
			return
		}
	}
}

// EncodeKISS wraps a datagram in a KISS data frame.
func EncodeKISS(datagram []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(datagram) + 4)
	out.WriteByte(kissFEND)
	out.WriteByte(kissCmdData)
	for _, b := range datagram {
		switch b {
		case kissFEND:
			out.Write([]byte{kissFESC, kissTFEND})
		case kissFESC:
			out.Write([]byte{kissFESC, kissTFESC})
		default:
			out.WriteByte(b)
		}
	}
	out.WriteByte(kissFEND)
	return out.Bytes()
}

// KISSDecoder reassembles datagrams from an arbitrarily chunked KISS stream.
// Frames with a non-data command byte are skipped.
type KISSDecoder struct {
	cur     []byte
	inFrame bool
	escaped bool
}

func (d *KISSDecoder) Feed(p []byte) [][]byte {
	var out [][]byte
	for _, b := range p {
		if b == kissFEND {
			if d.inFrame && len(d.cur) > 0 {
				if d.cur[0]&0x0F == kissCmdData {
					datagram := make([]byte, len(d.cur)-1)
					copy(datagram, d.cur[1:])
					out = append(out, datagram)
				}
			}
			d.cur = d.cur[:0]
			d.inFrame = true
			d.escaped = false
			continue
		}
		if !d.inFrame {
			continue
		}
		if d.escaped {
			switch b {
			case kissTFEND:
				d.cur = append(d.cur, kissFEND)
			case kissTFESC:
				d.cur = append(d.cur, kissFESC)
			default:
				d.cur = append(d.cur, b)
			}
			d.escaped = false
			continue
		}
		if b == kissFESC {
			d.escaped = true
			continue
		}
		d.cur = append(d.cur, b)
	}
	return out
}
