package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/arqlink/internal/arq"
	"github.com/danmuck/arqlink/internal/channel"
	"github.com/danmuck/arqlink/internal/config"
	"github.com/danmuck/arqlink/internal/status"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSendCmd(g *globalFlags) *cobra.Command {
	f := &linkFlags{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Read stdin to EOF and deliver it to a receiver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd, g, config.RoleSend)
			if err != nil {
				return err
			}
			return runSend(cmd.Context(), cfg, cmd.Flags().Changed("start-seq"), cmd.InOrStdin())
		},
	}
	f.register(cmd, config.RoleSend)
	return cmd
}

func runSend(parent context.Context, cfg config.File, pinnedStart bool, in io.Reader) error {
	sessCfg, err := cfg.Session()
	if err != nil {
		return err
	}
	chCfg, err := cfg.Channel()
	if err != nil {
		return err
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}

	store, err := openState(cfg.StateFile)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	key := stateKey(config.RoleSend, chCfg)
	if !pinnedStart {
		if seq, ok := resumeSequence(store, key, sessCfg.SequenceModulus); ok {
			sessCfg.StartSequence = seq
		}
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, err := channel.Open(chCfg)
	if err != nil {
		return err
	}
	eng, err := arq.NewSender(ch, sessCfg)
	if err != nil {
		_ = ch.Close()
		return err
	}
	defer eng.Close()

	startStatus(ctx, "arqctl-send", cfg, map[string]status.StatsFunc{
		"sender": func() any { return eng.Stats() },
	})

	log.Info().
		Str("transport", string(chCfg.Kind)).
		Str("peer", fmt.Sprintf("%s:%d", chCfg.Host, chCfg.OutboundPort)).
		Int("bytes", len(data)).
		Uint8("start_seq", sessCfg.StartSequence).
		Msg("sending")

	if err := eng.Send(ctx, data); err != nil {
		return err
	}
	persistSequence(store, key, eng.NextSequence())
	return nil
}
