package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	ibus       bool
	verbose    bool
	configPath string
}

var opts rootOptions

var rootCmd = &cobra.Command{
	Use:   "ibus-afrim",
	Short: "Afrim input method engine for IBus",
	Long: `ibus-afrim turns key sequences into text using an afrim dictionary
and serves the result to applications through IBus.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(cmd, &opts)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVarP(&opts.ibus, "ibus", "i", false, "started by ibus-daemon: claim the bus name instead of registering a component")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "configuration file (default $XDG_CONFIG_HOME/ibus-afrim/config.toml)")
}
