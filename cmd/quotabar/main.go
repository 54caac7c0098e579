package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"quotabar/internal/config"
	"quotabar/internal/discover"
	"quotabar/internal/events"
	"quotabar/internal/quota"
	"quotabar/internal/retry"
	"quotabar/internal/scanner"
	"quotabar/internal/tui"
)

func main() {
	configFlag := flag.String("config", "", "Path to a config file (default ~/.config/quotabar/config.toml)")
	debugFlag := flag.String("debug", "", "Write a JSON debug log to the specified file path")
	onceFlag := flag.Bool("once", false, "Resolve the connection, print one quota snapshot as JSON, and exit")
	flag.Parse()

	var (
		loadResult *config.LoadResult
		err        error
	)
	if *configFlag != "" {
		loadResult, err = config.LoadFrom(*configFlag)
	} else {
		loadResult, err = config.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "quotabar: config error: %v\n", err)
		os.Exit(1)
	}
	cfg := loadResult.Config

	for _, w := range loadResult.Warnings {
		fmt.Fprintf(os.Stderr, "quotabar: config warning: %s\n", w)
	}

	logger, err := newDebugLogger(*debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quotabar: failed to open debug log %q: %v\n", *debugFlag, err)
		os.Exit(1)
	}

	if *onceFlag {
		code := runOnce(cfg, logger)
		_ = logger.Sync()
		os.Exit(code)
	}

	probeTimeout := time.Duration(cfg.Discovery.ProbeTimeoutMS) * time.Millisecond
	lister := scanner.NewDefaultLister()
	prober := discover.NewProber(cfg.Discovery.ServiceName, probeTimeout, logger)
	resolver := discover.NewResolver(lister, prober, cfg.Discovery, logger)

	poller := quota.NewPoller(probeTimeout, cfg.Display.PinnedModels, logger)
	eventBuf := events.NewRingBuffer(cfg.Display.EventBufferSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// The TUI owns the terminal; anything the stdlib logger would print
	// corrupts the alt screen.
	log.SetOutput(io.Discard)

	var controller *retry.Controller

	model := tui.NewModel(
		tui.WithRefresher(&refresherAdapter{poller: poller}),
		tui.WithReconnector(&reconnectorAdapter{
			poller:    poller,
			reconnect: func() { controller.Reconnect() },
		}),
		tui.WithEventProvider(eventBuf),
		tui.WithOnShutdown(func() {
			poller.Stop()
			cancel()
			_ = logger.Sync()
		}),
	)

	p := tea.NewProgram(model,
		tea.WithAltScreen(),
	)

	poller.OnUpdate(func(snap quota.Snapshot) {
		eventBuf.Add(events.PollEvent{
			Timestamp: snap.Timestamp,
			Kind:      events.KindSnapshot,
			Detail:    fmt.Sprintf("%d models", len(snap.Models)),
		})
		p.Send(tui.SnapshotMsg(snap))
	})
	poller.OnError(func(err error) {
		eventBuf.Add(events.PollEvent{
			Timestamp: time.Now(),
			Kind:      events.KindError,
			Detail:    err.Error(),
		})
		p.Send(tui.FetchErrorMsg{Err: err.Error()})
	})

	pollInterval := time.Duration(cfg.Poller.IntervalSeconds) * time.Second
	controller = retry.NewController(resolver, logger,
		retry.WithOnAttempt(func(attempt int, phase retry.Phase) {
			eventBuf.Add(events.PollEvent{
				Timestamp: time.Now(),
				Kind:      events.KindLifecycle,
				Detail:    fmt.Sprintf("discovery attempt %d (%s)", attempt+1, phase),
			})
			p.Send(tui.AttemptMsg{Attempt: attempt + 1, Phase: phase.String()})
		}),
		retry.WithOnResolved(func(conn discover.ResolvedConnection) {
			eventBuf.Add(events.PollEvent{
				Timestamp: time.Now(),
				Kind:      events.KindLifecycle,
				Detail:    fmt.Sprintf("connected on port %d", conn.ConnectPort),
			})
			poller.SetConnection(conn)
			if cfg.Poller.Enabled {
				poller.Start(pollInterval)
			}
			p.Send(tui.ConnectedMsg{Port: conn.ConnectPort})
		}),
		retry.WithOnWaiting(func() {
			eventBuf.Add(events.PollEvent{
				Timestamp: time.Now(),
				Kind:      events.KindLifecycle,
				Detail:    "retry budget exhausted, waiting for manual reconnect",
			})
			p.Send(tui.WaitingMsg{})
		}),
	)

	controller.Start(ctx)

	go func() {
		select {
		case <-sigCh:
			poller.Stop()
			cancel()
			_ = logger.Sync()
			p.Quit()
		case <-ctx.Done():
			return
		}
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "quotabar: %v\n", err)
		os.Exit(1)
	}
}

// newDebugLogger builds a JSON file logger when a path is given, otherwise a
// no-op logger. The TUI owns stdout and stderr while it runs.
func newDebugLogger(path string) (*zap.Logger, error) {
	if path == "" {
		return zap.NewNop(), nil
	}
	zc := zap.NewProductionConfig()
	zc.OutputPaths = []string{path}
	zc.ErrorOutputPaths = []string{path}
	return zc.Build()
}

type refresherAdapter struct {
	poller *quota.Poller
}

func (a *refresherAdapter) Refresh() {
	go a.poller.Fetch(context.Background())
}

type reconnectorAdapter struct {
	poller    *quota.Poller
	reconnect func()
}

func (a *reconnectorAdapter) Reconnect() {
	a.poller.Stop()
	a.reconnect()
}
