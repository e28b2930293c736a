package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/af-corp/relay/internal/types"
)

type backendView struct {
	types.ProfileStatus
	Health *struct {
		Status              string `json:"status"`
		ConsecutiveFailures int    `json:"consecutive_failures"`
	} `json:"health,omitempty"`
}

func newBackendsCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List registered backends with availability and health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Backends []backendView `json:"backends"`
			}
			if err := newClient(opts).get(cmd.Context(), "/v1/backends", &out); err != nil {
				return err
			}
			if len(out.Backends) == 0 {
				fmt.Println("No backends registered.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tFAMILY\tAVAILABLE\tHEALTH\tMODELS\tCOST/1K")
			for _, b := range out.Backends {
				health := "-"
				if b.Health != nil {
					health = b.Health.Status
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\t%.4f\n",
					b.Name, b.Family, b.Available, health, strings.Join(b.Models, ","), b.Pricing.Combined())
			}
			return w.Flush()
		},
	}
}

func newStatsCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show rolling per-model statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Stats []types.BackendStats `json:"stats"`
			}
			if err := newClient(opts).get(cmd.Context(), "/v1/stats", &out); err != nil {
				return err
			}
			if len(out.Stats) == 0 {
				fmt.Println("No requests recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BACKEND\tMODEL\tREQUESTS\tTOKENS\tCOST\tAVG LATENCY\tSUCCESS\tLAST USED")
			for _, s := range out.Stats {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t$%.4f\t%.0fms\t%.0f%%\t%s\n",
					s.Backend, s.Model, s.TotalRequests, s.TotalTokens, s.TotalCostUSD,
					s.AverageLatencyMs, s.SuccessRate*100, s.LastUsed.Format("2006-01-02T15:04:05"))
			}
			return w.Flush()
		},
	}
}
