package main

import (
	"fmt"
	"runtime"

	"github.com/codecrafters-io/procstream/executable/arg_quoter"
	"github.com/spf13/cobra"
)

func newQuoteCommand() *cobra.Command {
	var platform string

	cmd := &cobra.Command{
		Use:   "quote [--platform goos] args...",
		Short: "Print the command line a process would be started with",
		RunE: func(cmd *cobra.Command, args []string) error {
			quoter := arg_quoter.New(platform)
			_, err := fmt.Fprintln(cmd.OutOrStdout(), quoter.CommandLine(args))
			return err
		},
	}

	cmd.Flags().StringVar(&platform, "platform", runtime.GOOS, "target platform, quoting applies to windows only")

	return cmd
}
