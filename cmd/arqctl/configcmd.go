package main

import (
	"fmt"

	"github.com/danmuck/arqlink/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or check link config files",
	}

	var (
		role   string
		output string
		force  bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config template with the built-in defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := config.ParseRole(role)
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("arqctl.%s.toml", r)
			}
			if err := config.WriteTemplate(output, r, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s config template: %s\n", r, output)
			return nil
		},
	}
	initCmd.Flags().StringVar(&role, "role", string(config.RoleSend), "send or recv")
	initCmd.Flags().StringVarP(&output, "output", "o", "", "path of the template (default arqctl.<role>.toml)")
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	var (
		vRole string
		input string
	)
	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Strictly check a config file against the schema and engine limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := config.ParseRole(vRole)
			if err != nil {
				return err
			}
			if input == "" {
				return fmt.Errorf("--input is required")
			}
			if err := config.ValidateFile(input, r); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", input)
			return nil
		},
	}
	validateCmd.Flags().StringVar(&vRole, "role", string(config.RoleSend), "send or recv")
	validateCmd.Flags().StringVarP(&input, "input", "i", "", "config file to check")

	cmd.AddCommand(initCmd, validateCmd)
	return cmd
}
