package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"quotabar/internal/config"
	"quotabar/internal/discover"
	"quotabar/internal/quota"
	"quotabar/internal/scanner"
)

// runOnce performs a single discovery pass and quota fetch, prints the
// snapshot as JSON, and returns the process exit code. Used for scripting and
// for checking a setup without starting the TUI.
func runOnce(cfg config.Config, logger *zap.Logger) int {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	probeTimeout := time.Duration(cfg.Discovery.ProbeTimeoutMS) * time.Millisecond
	lister := scanner.NewDefaultLister()
	prober := discover.NewProber(cfg.Discovery.ServiceName, probeTimeout, logger)
	resolver := discover.NewResolver(lister, prober, cfg.Discovery, logger)

	conn := resolver.Detect(ctx)
	if conn == nil {
		fmt.Fprintln(os.Stderr, "quotabar: no language server found")
		return 1
	}

	poller := quota.NewPoller(probeTimeout, cfg.Display.PinnedModels, logger)
	poller.SetConnection(*conn)

	var (
		snap     *quota.Snapshot
		fetchErr error
	)
	poller.OnUpdate(func(s quota.Snapshot) { snap = &s })
	poller.OnError(func(err error) { fetchErr = err })
	poller.Fetch(ctx)

	if fetchErr != nil {
		fmt.Fprintf(os.Stderr, "quotabar: quota fetch failed: %v\n", fetchErr)
		return 1
	}
	if snap == nil {
		fmt.Fprintln(os.Stderr, "quotabar: quota fetch produced no snapshot")
		return 1
	}

	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "quotabar: encode snapshot: %v\n", err)
		return 1
	}
	fmt.Println(string(out))
	return 0
}
