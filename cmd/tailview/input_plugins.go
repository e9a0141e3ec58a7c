package main

import (
	"context"
	"fmt"
	"time"

	"github.com/tinytelemetry/tailview/internal/clock"
	"github.com/tinytelemetry/tailview/internal/watch"
)

// InputSourcePlugin is a small plugin primitive for wiring watch backends.
type InputSourcePlugin interface {
	Name() string
	Enabled() bool
	Build(ctx context.Context) (watch.Source, error)
}

// InputPluginConfig defines runtime backend selection.
type InputPluginConfig struct {
	Patterns     []watch.Pattern
	Poll         bool
	PollInterval time.Duration
	Clock        clock.Clock
}

func buildInputPlugins(cfg InputPluginConfig) []InputSourcePlugin {
	plugins := make([]InputSourcePlugin, 0, 2)
	plugins = append(plugins, nativeInputPlugin{
		patterns: cfg.Patterns,
		enabled:  !cfg.Poll,
	})
	plugins = append(plugins, pollInputPlugin{
		patterns: cfg.Patterns,
		interval: cfg.PollInterval,
		clock:    cfg.Clock,
		enabled:  cfg.Poll,
	})
	return plugins
}

type nativeInputPlugin struct {
	patterns []watch.Pattern
	enabled  bool
}

func (p nativeInputPlugin) Name() string { return "native" }

func (p nativeInputPlugin) Enabled() bool { return p.enabled && len(p.patterns) > 0 }

func (p nativeInputPlugin) Build(ctx context.Context) (watch.Source, error) {
	src, err := watch.NewNativeSource(ctx, p.patterns)
	if err != nil {
		return nil, fmt.Errorf("start native watcher: %w", err)
	}
	return src, nil
}

type pollInputPlugin struct {
	patterns []watch.Pattern
	interval time.Duration
	clock    clock.Clock
	enabled  bool
}

func (p pollInputPlugin) Name() string { return "poll" }

func (p pollInputPlugin) Enabled() bool { return p.enabled && len(p.patterns) > 0 }

func (p pollInputPlugin) Build(ctx context.Context) (watch.Source, error) {
	if p.interval <= 0 {
		return nil, fmt.Errorf("invalid poll interval %s", p.interval)
	}
	return watch.NewPollSource(ctx, p.patterns, p.interval, p.clock), nil
}

// pollFallback returns the plugin used when the native watcher cannot start.
func pollFallback(cfg InputPluginConfig) InputSourcePlugin {
	return pollInputPlugin{
		patterns: cfg.Patterns,
		interval: cfg.PollInterval,
		clock:    cfg.Clock,
		enabled:  true,
	}
}
