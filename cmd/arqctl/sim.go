package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/arqlink/internal/arq"
	"github.com/danmuck/arqlink/internal/channel"
	"github.com/danmuck/arqlink/internal/config"
	"github.com/danmuck/arqlink/internal/protocol/frame"
	"github.com/danmuck/arqlink/internal/status"
	"github.com/spf13/cobra"
)

type simFlags struct {
	link      linkFlags
	loss      float64
	corrupt   float64
	duplicate float64
	reorder   float64
	seed      int64
}

func (s simFlags) faults(corruptFrom int, seedOffset int64) channel.Faults {
	return channel.Faults{
		Loss:        s.loss,
		Corrupt:     s.corrupt,
		Duplicate:   s.duplicate,
		Reorder:     s.reorder,
		CorruptFrom: corruptFrom,
		Seed:        s.seed + seedOffset,
	}
}

var errBadRate = errors.New("fault rates must be within [0,1]")

func (s simFlags) validate() error {
	for name, v := range map[string]float64{"loss": s.loss, "corrupt": s.corrupt, "duplicate": s.duplicate, "reorder": s.reorder} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s=%v", errBadRate, name, v)
		}
	}
	return nil
}

// simReport is written to stderr after a simulated transfer.
type simReport struct {
	Bytes    int               `json:"bytes"`
	Intact   bool              `json:"intact"`
	Sender   arq.SenderStats   `json:"sender"`
	Receiver arq.ReceiverStats `json:"receiver"`
}

func newSimCmd(g *globalFlags) *cobra.Command {
	f := &simFlags{}
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Transfer stdin through an in-process lossy channel and write it to stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			cfg, err := f.link.resolve(cmd, g, config.RoleSend)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSim(ctx, cfg, *f, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	f.link.register(cmd, config.RoleSend)
	fs := cmd.Flags()
	fs.Float64Var(&f.loss, "loss", 0.1, "probability a datagram is dropped")
	fs.Float64Var(&f.corrupt, "corrupt", 0.05, "probability a datagram has a payload bit flipped")
	fs.Float64Var(&f.duplicate, "duplicate", 0.05, "probability a datagram is delivered twice")
	fs.Float64Var(&f.reorder, "reorder", 0.05, "probability a datagram is held behind the next one")
	fs.Int64Var(&f.seed, "seed", 1, "fault generator seed")
	return cmd
}

func runSim(ctx context.Context, cfg config.File, f simFlags, in io.Reader, out, report io.Writer) error {
	sessCfg, err := cfg.Session()
	if err != nil {
		return err
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	a, b := channel.NewPipe(sessCfg.Timeout)
	a.SetFaults(f.faults(frame.HeaderLen, 0))
	// A flipped ack byte reads as another valid ack, so the return path
	// loses acks instead of corrupting them.
	b.SetFaults(f.faults(frame.AckLen, 1))

	sender, err := arq.NewSender(a, sessCfg)
	if err != nil {
		return err
	}
	defer sender.Close()
	recvCfg := sessCfg
	recvCfg.IdleTimeouts = 0
	receiver, err := arq.NewReceiver(b, recvCfg)
	if err != nil {
		return err
	}
	defer receiver.Close()

	startStatus(ctx, "arqctl-sim", cfg, map[string]status.StatsFunc{
		"sender":   func() any { return sender.Stats() },
		"receiver": func() any { return receiver.Stats() },
	})

	var sink bytes.Buffer
	recvCtx, stopRecv := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- receiver.Run(recvCtx, &sink) }()

	sendErr := sender.Send(ctx, data)
	stopRecv()
	recvErr := <-done

	if sendErr == nil && recvErr == nil {
		if _, err := out.Write(sink.Bytes()); err != nil {
			return fmt.Errorf("write stdout: %w", err)
		}
	}

	enc := json.NewEncoder(report)
	enc.SetIndent("", "  ")
	if err := enc.Encode(simReport{
		Bytes:    len(data),
		Intact:   bytes.Equal(sink.Bytes(), data),
		Sender:   sender.Stats(),
		Receiver: receiver.Stats(),
	}); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if sendErr != nil {
		return sendErr
	}
	return recvErr
}
