package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ibusafrim/internal/config"
	"ibusafrim/internal/ime"
)

var installDir string

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install the IBus component file",
	Long: `Writes ibus-afrim.xml into the per-user IBus component directory so
ibus-daemon can list and start the engine. Run 'ibus restart' afterwards.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewLoader(opts.configPath).Load()
		if err != nil {
			return err
		}
		component, err := cfg.Component()
		if err != nil {
			return err
		}
		dir := installDir
		if dir == "" {
			if dir, err = ime.ComponentDir(); err != nil {
				return err
			}
		}
		path, err := ime.InstallComponent(dir, component)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Installed %s. Run 'ibus restart' to load.\n", path)
		return nil
	},
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the IBus component file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := installDir
		if dir == "" {
			var err error
			if dir, err = ime.ComponentDir(); err != nil {
				return err
			}
		}
		if err := ime.UninstallComponent(dir); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Uninstalled successfully.")
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{installCmd, uninstallCmd} {
		c.Flags().StringVar(&installDir, "dir", "", "component directory (default $XDG_DATA_HOME/ibus/component)")
		rootCmd.AddCommand(c)
	}
}
