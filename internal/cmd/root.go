// Package cmd implements the logpile command line.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coffersTech/logpile/internal/config"
)

// app carries state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
}

// NewRootCmd builds the command tree with fresh flag state.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:   "logpile",
		Short: "Structured logging with searchable storage",
		Long: `logpile writes structured log entries to the console, JSON lines files,
a compressed segment store or remote nodes, and searches them back by
value, partial shape and time window.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Init(a.v, a.cfgFile); err != nil {
				return err
			}
			if cmd.Flags().Changed("data-dir") {
				a.v.Set("store.enabled", true)
			}
			cfg, err := config.Load(a.v)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}

	// Global flags
	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./logpile.yaml or $HOME/.config/logpile/logpile.yaml)")
	root.PersistentFlags().String("data-dir", "", "segment store directory (enables the store)")
	_ = a.v.BindPFlag("store.data_dir", root.PersistentFlags().Lookup("data-dir"))

	root.AddCommand(
		newEmitCmd(a),
		newSearchCmd(a),
		newServeCmd(a),
		newStatsCmd(a),
		newHashTokenCmd(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
