package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pmbackend/pmbackend"
)

func putCmd() *cobra.Command {
	var updateID uint64
	var offset uint32
	cmd := &cobra.Command{
		Use:   "put <key> <value>",
		Short: "write a key/value pair to the data region, printing the resulting block id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			tx, err := s.Begin()
			if err != nil {
				return err
			}
			id, err := tx.Put([]byte(args[0]), []byte(args[1]), offset, pmbackend.ID(updateID))
			if err != nil {
				_ = tx.Abort()
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			if err := tx.Execute(); err != nil {
				return err
			}
			fmt.Println(uint64(id))
			return nil
		},
	}
	cmd.Flags().Uint64Var(&updateID, "update-id", 0, "id of an existing block to update instead of writing a new one")
	cmd.Flags().Uint32Var(&offset, "offset", 0, "byte offset within the value to start the write at, for partial updates")
	return cmd
}
