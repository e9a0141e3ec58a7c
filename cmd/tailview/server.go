package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/tailview/internal/httpserver"
	"github.com/tinytelemetry/tailview/internal/socketrpc"
	"github.com/tinytelemetry/tailview/internal/tracker"
	"github.com/tinytelemetry/tailview/internal/watch"
)

// runServer watches the configured paths and serves them until a signal
// arrives.
func runServer(cfg appConfig) error {
	cleanupLogger := configureRuntimeLogger(cfg)
	defer cleanupLogger()

	patterns := make([]watch.Pattern, 0, len(cfg.Files))
	for _, arg := range cfg.Files {
		p, err := watch.ParsePattern(arg)
		if err != nil {
			return err
		}
		patterns = append(patterns, p)
	}

	tr := tracker.New(tracker.Config{
		Capacity:        cfg.Buffer,
		Expire:          cfg.Expire,
		DisableJSONScan: cfg.NoJSON,
	})
	defer tr.Stop()

	webServer := httpserver.NewServer(cfg.Addr, tr, httpserver.ServerConfig{
		IndexPath:       cfg.Index,
		CaseInsensitive: cfg.CaseInsensitive,
	})
	if err := webServer.Start(); err != nil {
		return fmt.Errorf("failed to start web server: %w", err)
	}
	defer webServer.Stop()

	socketStarted := false
	if cfg.SocketPath != "" {
		sockServer := socketrpc.NewServer(cfg.SocketPath, tr)
		if err := sockServer.Start(); err != nil {
			log.Printf("Warning: failed to start socket server: %v", err)
		} else {
			socketStarted = true
			defer sockServer.Stop()
		}
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	pluginCfg := InputPluginConfig{
		Patterns:     patterns,
		Poll:         cfg.Poll,
		PollInterval: cfg.PollInterval,
	}
	sources := buildSources(ctx, pluginCfg)
	if len(sources) == 0 {
		return fmt.Errorf("no watch backend could be started")
	}

	mux := NewSourceMultiplexer(ctx, sources, cfg.MuxBufferSize)
	mux.Start()

	if !cfg.Quiet {
		printStartupBanner(cfg, mux.SourceNames(), socketStarted)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		watch.Dispatch(gctx, mux.Notices(), tr)
		return nil
	})

	// Wait for context cancellation (from signal handler) in the errgroup
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Printf("server: errgroup exited with error: %v", err)
	}

	cancel()
	mux.Stop()
	signal.Stop(sigCh)

	return nil
}

// buildSources starts the enabled backends. A native watcher that cannot
// start falls back to polling.
func buildSources(ctx context.Context, cfg InputPluginConfig) []watch.Source {
	var sources []watch.Source
	for _, plugin := range buildInputPlugins(cfg) {
		if !plugin.Enabled() {
			continue
		}
		src, err := plugin.Build(ctx)
		if err != nil {
			log.Printf("Error initializing watch backend %q: %v", plugin.Name(), err)
			if plugin.Name() != "native" {
				continue
			}
			fallback := pollFallback(cfg)
			if src, err = fallback.Build(ctx); err != nil {
				log.Printf("Error initializing watch backend %q: %v", fallback.Name(), err)
				continue
			}
			log.Printf("server: falling back to polling every %s", cfg.PollInterval)
		}
		sources = append(sources, src)
	}
	return sources
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func configureRuntimeLogger(cfg appConfig) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if cfg.Quiet {
		log.SetOutput(io.Discard)
		return func() {}
	}
	if cfg.LogFile == "" {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.SetOutput(os.Stderr)
		return func() {}
	}

	log.SetOutput(f)
	return func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, backends []string, socketStarted bool) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔╦╗╔═╗╦╦  ╦  ╦╦╔═╗╦ ╦
     ║ ╠═╣║║  ╚╗╔╝║║╣ ║║║
     ╩ ╩ ╩╩╩═╝ ╚╝ ╩╚═╝╚╩╝`)

	var lines []string
	lines = append(lines, "", logo, "    "+dim.Render("v"+version), "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator, "")

	lines = append(lines, bold.Render("    Serving"), "")
	lines = append(lines, fmt.Sprintf("    %s  Web UI         %s", check, cyan.Render(browserURL(cfg.Addr))))
	if socketStarted {
		lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Watching"), "")
	for _, f := range cfg.Files {
		lines = append(lines, fmt.Sprintf("    %s  %s", check, shortenPath(f)))
	}
	lines = append(lines, fmt.Sprintf("    %s  Backend        %s", check, dim.Render(strings.Join(backends, ", "))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Runtime"), "")
	lines = append(lines, fmt.Sprintf("    %s  History        %s", check, dim.Render(humanize.Comma(int64(cfg.Buffer))+" lines per file")))
	lines = append(lines, fmt.Sprintf("    %s  Expire         %s", check, dim.Render(cfg.Expire.String())))
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}

	lines = append(lines, "", separator, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

// browserURL turns a listen address into something clickable.
func browserURL(addr string) string {
	if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	} else if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
