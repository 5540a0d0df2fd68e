package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ibusafrim/internal/composer"
)

var dictCmd = &cobra.Command{
	Use:   "dict",
	Short: "Work with afrim dictionaries",
}

var dictCompileCmd = &cobra.Command{
	Use:   "compile SOURCE OUTPUT",
	Short: "Compile a TOML/JSON/YAML dictionary into SQLite",
	Long: `Resolves every include of SOURCE and writes the result to OUTPUT as a
SQLite database. Large lexicons load faster compiled, and their
translations are queried on demand instead of held in memory.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := composer.Load(args[0])
		if err != nil {
			return err
		}
		defer d.Close()

		if err := composer.Compile(d, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Compiled %d sequences and %d translators into %s\n",
			d.Sequences(), len(d.Scripts()), args[1])
		return nil
	},
}

var dictCheckCmd = &cobra.Command{
	Use:   "check DICTIONARY [INPUT...]",
	Short: "Validate a dictionary and show what inputs produce",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := composer.Load(args[0])
		if err != nil {
			return err
		}
		defer d.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s: %d sequences, %d translators, buffer size %d, auto commit %v\n",
			args[0], d.Sequences(), len(d.Scripts()), d.BufferSize(), d.AutoCommit())

		for _, input := range args[1:] {
			preds, err := d.Translate(input)
			if err != nil {
				return err
			}
			var texts []string
			for _, p := range preds {
				texts = append(texts, strings.Join(p.Texts, "|"))
			}
			fmt.Fprintf(out, "%s -> %s [%s]\n", input, d.Transform(input), strings.Join(texts, ", "))
		}
		return nil
	},
}

func init() {
	dictCmd.AddCommand(dictCompileCmd, dictCheckCmd)
	rootCmd.AddCommand(dictCmd)
}
