package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var verbose bool

// newRootCommand builds the command tree the way
// original_source/commands/operations/operations.go's NewOperationsCommand
// builds its own: a bare root plus cmd.AddCommand per subcommand.
func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "payload-proxy",
		Short: "HTTP/2 reverse proxy that rewrites payload fields between a client and a gRPC upstream",
	}
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")

	root.AddCommand(newServeCommand())
	root.AddCommand(newValidateDescriptorsCommand())
	return root
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
