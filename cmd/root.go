package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set via ldflags at build time
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "authgate",
	Short:   "authgate - authentication gateway",
	Long:    `A single-binary authentication gateway mediating OAuth, magic-link and credentials sign-in, issuing application sessions.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate("authgate version {{.Version}}\n")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
