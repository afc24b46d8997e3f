package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the xvia version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("xvia", version)
		},
	}
}
