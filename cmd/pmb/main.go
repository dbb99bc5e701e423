// Command pmb is a thin CLI over the pmbackend engine: open a pool, put
// and get individual pairs, inspect a block, and watch occupancy/latency
// stats. It exercises the same operations as the original C examples
// (kvtest.c, pool_inspect.c, pool_list.c) against this Go engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootFlags struct {
	path          string
	dataSize      uint64
	metaSize      uint64
	maxKeyLen     uint32
	maxValLen     uint32
	metaMaxKeyLen uint32
	metaMaxValLen uint32
}

func main() {
	root := &cobra.Command{
		Use:           "pmb",
		Short:         "inspect and exercise a pmbackend pool from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&rootFlags.path, "path", "", "path to the pool file (created if missing)")
	pf.Uint64Var(&rootFlags.dataSize, "data-size", 64*1024*1024, "data region size in bytes, for pool creation")
	pf.Uint64Var(&rootFlags.metaSize, "meta-size", 16*1024*1024, "meta region size in bytes, for pool creation")
	pf.Uint32Var(&rootFlags.maxKeyLen, "max-key-len", 64, "max key length for the data region")
	pf.Uint32Var(&rootFlags.maxValLen, "max-val-len", 4096, "max value length for the data region")
	pf.Uint32Var(&rootFlags.metaMaxKeyLen, "meta-max-key-len", 32, "max key length for the meta region")
	pf.Uint32Var(&rootFlags.metaMaxValLen, "meta-max-val-len", 512, "max value length for the meta region")
	_ = root.MarkPersistentFlagRequired("path")

	root.AddCommand(putCmd(), getCmd(), deleteCmd(), inspectCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
