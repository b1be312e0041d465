package main

import (
	"context"
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

func newRecvCmd(g *globalFlags) *cobra.Command {
	f := &linkFlags{}
	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Receive a stream and write it to stdout in order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := f.resolve(cmd, g, config.RoleRecv)
			if err != nil {
				return err
			}
			return runRecv(cmd.Context(), cfg, cmd.Flags().Changed("start-seq"), cmd.OutOrStdout())
		},
	}
	f.register(cmd, config.RoleRecv)
	return cmd
}

func runRecv(parent context.Context, cfg config.File, pinnedStart bool, out io.Writer) error {
	sessCfg, err := cfg.Session()
	if err != nil {
		return err
	}
	chCfg, err := cfg.Channel()
	if err != nil {
		return err
	}

	store, err := openState(cfg.StateFile)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	key := stateKey(config.RoleRecv, chCfg)
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
	eng, err := arq.NewReceiver(ch, sessCfg)
	if err != nil {
		_ = ch.Close()
		return err
	}
	defer eng.Close()

	startStatus(ctx, "arqctl-recv", cfg, map[string]status.StatsFunc{
		"receiver": func() any { return eng.Stats() },
	})

	log.Info().
		Str("transport", string(chCfg.Kind)).
		Int("in_port", chCfg.InboundPort).
		Uint8("expected_seq", sessCfg.StartSequence).
		Msg("receiving")

	err = eng.Run(ctx, out)
	persistSequence(store, key, eng.ExpectedSequence())
	return err
}
