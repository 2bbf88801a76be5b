package main

import (
	"github.com/spf13/cobra"

	"datagate/internal/config"
	"datagate/internal/logger"
)

var (
	// Global state set during PersistentPreRunE
	cfg *config.Config

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "datagate",
	Short: "Permission-aware filter compiler and payload sanitizer",
	Long: `datagate - permission-aware data access

datagate compiles JSON filters and permission rules into SQL over a
relational schema, and sanitizes nested item payloads against the
caller's field permissions.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		return logger.Init(cfg.Log.Level, cfg.Log.Development)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./datagate.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(tokenCmd)
}
