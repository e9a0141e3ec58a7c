package watch

import (
	"context"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/tinytelemetry/tailview/internal/clock"
)

// PollSource rescans the patterns on a fixed interval. It works on file
// systems that do not deliver change events (network mounts, some
// container volumes).
type PollSource struct {
	patterns []Pattern
	ticker   *clock.Ticker
	ch       chan Notice
	cancel   context.CancelFunc

	stopOnce sync.Once
	done     chan struct{}
}

type fileState struct {
	size    int64
	modTime time.Time
}

// NewPollSource scans immediately and then every interval.
func NewPollSource(ctx context.Context, patterns []Pattern, interval time.Duration, clk clock.Clock) *PollSource {
	if clk == nil {
		clk = clock.Real()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &PollSource{
		patterns: patterns,
		ticker:   clk.NewTicker(interval),
		ch:       make(chan Notice, DefaultNoticeBuffer),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *PollSource) Notices() <-chan Notice { return s.ch }
func (s *PollSource) Name() string           { return "poll" }

func (s *PollSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *PollSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)
	defer s.ticker.Stop()

	known := make(map[string]fileState)
	for {
		if !s.scan(ctx, known) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.ticker.C:
		}
	}
}

func (s *PollSource) scan(ctx context.Context, known map[string]fileState) bool {
	seen := make(map[string]fileState)
	for _, p := range s.patterns {
		files, err := p.Files()
		if err != nil {
			log.Printf("watch: poll: %v", err)
			continue
		}
		for path := range files {
			if _, ok := seen[path]; ok {
				continue
			}
			st, ok := stat(path)
			if !ok {
				continue
			}
			seen[path] = st
		}
	}

	var notices []Notice
	for path, st := range seen {
		prev, ok := known[path]
		switch {
		case !ok:
			notices = append(notices, Notice{Kind: Discovered, Path: path, Size: st.size})
		case prev.size != st.size || !prev.modTime.Equal(st.modTime):
			notices = append(notices, Notice{Kind: Modified, Path: path, Size: st.size})
		}
	}
	for path := range known {
		if _, ok := seen[path]; !ok {
			notices = append(notices, Notice{Kind: Removed, Path: path, Size: -1})
		}
	}
	sort.Slice(notices, func(i, j int) bool { return notices[i].Path < notices[j].Path })

	clear(known)
	for path, st := range seen {
		known[path] = st
	}
	for _, n := range notices {
		select {
		case s.ch <- n:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

func stat(path string) (fileState, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return fileState{}, false
	}
	return fileState{size: info.Size(), modTime: info.ModTime()}, true
}
