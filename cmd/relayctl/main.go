package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	opts := &clientOptions{}

	root := &cobra.Command{
		Use:          "relayctl",
		Short:        "Command-line client for the relay dispatch API",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("RELAY_URL", "http://localhost:8080"), "relay base URL")
	root.PersistentFlags().StringVar(&opts.secret, "secret", os.Getenv("RELAY_SIGNING_SECRET"), "signing secret (empty sends unsigned requests)")
	root.PersistentFlags().StringVar(&opts.userID, "user", envOr("RELAY_USER", os.Getenv("USER")), "user id sent with completion requests")
	root.PersistentFlags().StringVar(&opts.teamID, "team", os.Getenv("RELAY_TEAM"), "team id sent with completion requests")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "request timeout")

	root.AddCommand(
		newAskCmd(opts),
		newCompareCmd(opts),
		newBackendsCmd(opts),
		newStatsCmd(opts),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
