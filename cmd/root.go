// Package cmd wires the cobra CLI for the extraction engine.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mapleads",
		Short: "Business record deduplication and contact-extraction engine.",
		Long: `mapleads consumes scraped business listings, rejects duplicates using a
multi-signal policy, crawls each accepted business's website under polite
crawl-state tracking, and extracts obfuscated business-role email addresses
from the fetched pages.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newRunCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
