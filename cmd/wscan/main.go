// Command wscan is the crawler driver: it accepts seed URLs as positional
// arguments plus concurrency/depth/size-cap flags, wires the reactor,
// cookie jar, TLS glue, HTTP client, and crawler together, and runs until
// the frontier drains.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/yanrbts/wscan/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "wscan [seed-url ...]",
		Short: "Asynchronous single-process web crawler",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Seeds = args
			return run(cfg)
		},
	}

	cfg.BindFlags(cmd.Flags())
	return cmd
}
