package main

import (
	"fmt"
	"time"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/pmbackend/pmbackend"
)

func statsCmd() *cobra.Command {
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "print region occupancy and commit/execute latency percentiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			printSummary := func() {
				snap := s.Metrics().Snapshot()
				fmt.Printf("data: %d/%d free   meta: %d/%d free   commit p50/p99=%dus/%dus   execute p50/p99=%dus/%dus\n",
					s.NFree(pmbackend.RegionData), s.NTotal(pmbackend.RegionData),
					s.NFree(pmbackend.RegionMeta), s.NTotal(pmbackend.RegionMeta),
					snap.CommitP50, snap.CommitP99, snap.ExecuteP50, snap.ExecuteP99)
			}

			if !watch {
				printSummary()
				return nil
			}

			const window = 120
			history := make([]float64, 0, window)
			for {
				live := float64(s.NTotal(pmbackend.RegionData) - uint64(s.NFree(pmbackend.RegionData)))
				history = append(history, live)
				if len(history) > window {
					history = history[len(history)-window:]
				}

				fmt.Print("\033[H\033[2J")
				printSummary()
				fmt.Println(asciigraph.Plot(history,
					asciigraph.Height(10),
					asciigraph.Caption("live data blocks")))
				time.Sleep(interval)
			}
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "stream a live sparkline of data-region occupancy")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "refresh interval for --watch")
	return cmd
}
