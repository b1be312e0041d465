package main

import (
	"fmt"

	"github.com/danmuck/arqlink/internal/logging"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

type globalFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "arqctl",
		Short:         "Reliable stop-and-wait byte stream transfer over UDP or a KISS serial link",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logging.ConfigureRuntime()
			if g.logLevel != "" && !logging.SetLevel(g.logLevel) {
				return fmt.Errorf("unknown log level %q", g.logLevel)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "path to a TOML link config")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level (trace|debug|info|warn|error); overrides log_level and ARQLINK_LOG_LEVEL")

	root.AddCommand(
		newSendCmd(g),
		newRecvCmd(g),
		newSimCmd(g),
		newConfigCmd(),
	)
	return root
}
