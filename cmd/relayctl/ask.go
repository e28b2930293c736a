package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/af-corp/relay/internal/dispatch"
	"github.com/af-corp/relay/internal/types"
)

func newAskCmd(opts *clientOptions) *cobra.Command {
	var (
		backend     string
		model       string
		priority    string
		maxTokens   int
		temperature float64
		showRouting bool
	)

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send one completion request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := newRequest(opts, strings.Join(args, " "))
			req.Backend = backend
			req.Model = model
			req.Priority = types.Priority(priority)
			req.Options.MaxTokens = maxTokens
			if cmd.Flags().Changed("temperature") {
				req.Options.Temperature = &temperature
			}

			var resp types.CompletionResponse
			if err := newClient(opts).post(cmd.Context(), "/v1/completions", req, &resp); err != nil {
				return err
			}

			fmt.Println(resp.Text)
			fmt.Fprintf(os.Stderr, "\n%s/%s  %d tokens  $%.6f  %dms\n",
				resp.Backend, resp.Model, resp.Usage.TotalTokens, resp.Usage.CostUSD, resp.Performance.LatencyMs)
			if showRouting && resp.Routing != nil {
				printRouting(resp.Routing)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&backend, "backend", "b", "", "backend name, empty or \"auto\" to let the router choose")
	cmd.Flags().StringVarP(&model, "model", "m", "", "model name (defaults to the backend's first model)")
	cmd.Flags().StringVar(&priority, "priority", "", "low, normal or high")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 0, "completion token cap")
	cmd.Flags().Float64Var(&temperature, "temperature", types.DefaultTemperature, "sampling temperature")
	cmd.Flags().BoolVar(&showRouting, "routing", false, "print the routing decision")
	return cmd
}

func newCompareCmd(opts *clientOptions) *cobra.Command {
	var targets []string

	cmd := &cobra.Command{
		Use:   "compare [prompt]",
		Short: "Send one prompt to several backends and print every answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := struct {
				*types.CompletionRequest
				Targets []dispatch.Target `json:"targets,omitempty"`
			}{CompletionRequest: newRequest(opts, strings.Join(args, " "))}
			for _, t := range targets {
				name, model, _ := strings.Cut(t, ":")
				body.Targets = append(body.Targets, dispatch.Target{Backend: name, Model: model})
			}

			var cmp dispatch.Comparison
			if err := newClient(opts).post(cmd.Context(), "/v1/compare", body, &cmp); err != nil {
				return err
			}

			for _, r := range cmp.Results {
				fmt.Printf("== %s/%s (%d tokens, $%.6f, %dms)\n%s\n\n",
					r.Backend, r.Model, r.Usage.TotalTokens, r.Usage.CostUSD, r.Performance.LatencyMs, r.Text)
			}
			for _, f := range cmp.Failures {
				fmt.Printf("!! %s/%s failed: %s\n", f.Backend, f.Model, f.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&targets, "target", "t", nil, "backend[:model] to include (repeatable, defaults to the server's compare targets)")
	return cmd
}

func newRequest(opts *clientOptions, prompt string) *types.CompletionRequest {
	return &types.CompletionRequest{
		UserID: opts.userID,
		TeamID: opts.teamID,
		Prompt: prompt,
		Metadata: types.RequestMetadata{
			Command: "relayctl",
		},
	}
}

func printRouting(d *types.RoutingDecision) {
	w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "chosen\t%s/%s\tconfidence %.2f\t%s\n", d.Backend, d.Model, d.Confidence, d.Reasoning)
	for _, a := range d.Alternatives {
		fmt.Fprintf(w, "alt\t%s/%s\tscore %.3f\t%s\n", a.Backend, a.Model, a.Score, a.Reasoning)
	}
	w.Flush()
}
