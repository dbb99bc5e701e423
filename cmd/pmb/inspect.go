package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pmbackend/pmbackend"
)

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <id>",
		Short: "print a block's header fields and liveness, for debugging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return err
			}
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			fmt.Println(s.Inspect(pmbackend.ID(raw)))
			return nil
		},
	}
}
