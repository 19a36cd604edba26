// Command askdata loads data files into an embedded SQL store and answers
// natural-language questions about them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// config picks the backend; every backend is built in.
	_ "askdata/internal/storage/all"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// flags are the root-level overrides shared by every subcommand.
type flags struct {
	configPath string
	logLevel   string
	storeKind  string
	dsn        string
	provider   string
	model      string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:           "askdata",
		Short:         "Ask questions about spreadsheets, CSV, JSON and documents",
		Long:          `Load heterogeneous data files into an embedded SQL store, then ask questions in plain language.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "YAML config path")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&f.storeKind, "store", "", "storage backend (sqlite, postgres, mssql)")
	pf.StringVar(&f.dsn, "dsn", "", "storage DSN (e.g. askdata.db)")
	pf.StringVar(&f.provider, "provider", "", "language model provider (none, gemini, ollama)")
	pf.StringVar(&f.model, "model", "", "language model name")

	root.AddCommand(
		newLoadCmd(f),
		newQueryCmd(f),
		newTablesCmd(f),
		newDescribeCmd(f),
		newStatsCmd(f),
		newProbeCmd(f),
		newServeCmd(f),
	)
	return root
}
