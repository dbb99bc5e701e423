package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pmbackend/pmbackend"
)

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "print the key and value stored at a block id",
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

			key, val, err := s.Get(pmbackend.ID(raw))
			if err != nil {
				return err
			}
			fmt.Printf("key=%q val=%q\n", key, val)
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "remove the block at id",
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

			tx, err := s.Begin()
			if err != nil {
				return err
			}
			if err := tx.Delete(pmbackend.ID(raw)); err != nil {
				_ = tx.Abort()
				return err
			}
			if err := tx.Commit(); err != nil {
				return err
			}
			return tx.Execute()
		},
	}
}
