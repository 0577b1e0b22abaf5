package commands

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stockledger/internal/config"
	"stockledger/internal/printer"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration after defaults and environment overrides",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return printer.Error(cmd.ErrOrStderr(), "Invalid configuration", err.Error())
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
