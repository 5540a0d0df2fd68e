//go:build !linux

package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func runEngine(cmd *cobra.Command, o *rootOptions) error {
	return errors.New("ibus-afrim runs on Linux only")
}
