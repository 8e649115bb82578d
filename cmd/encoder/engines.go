package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RenatoCabral2022/WhatsWebService/encoder/internal/codec"
)

func newEnginesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the registered encoding engines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range codec.Default.Names() {
				c, _ := codec.Default.Lookup(name)
				fmt.Fprintf(out, "%-14s %-10s %s\n", name, c.ID(), c.LongName())
			}
			return nil
		},
	}
}
