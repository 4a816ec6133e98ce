package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// exitCodeError carries a child's non-zero exit code out to main.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("process exited with code %d", e.code)
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "procstream",
		Short:         "Run a process with flow-controlled standard streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCommand())
	root.AddCommand(newQuoteCommand())

	return root
}
