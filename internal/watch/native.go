package watch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultNoticeBuffer is the default channel buffer size for notices.
const DefaultNoticeBuffer = 1024

// NativeSource reports changes using the operating system's file events.
type NativeSource struct {
	watcher  *fsnotify.Watcher
	patterns []Pattern
	ch       chan Notice
	cancel   context.CancelFunc

	stopOnce sync.Once
	done     chan struct{}

	watched map[string]bool // directories, owned by the run goroutine
}

// NewNativeSource watches the directories covering patterns. Files that
// already match are reported as discovered first.
func NewNativeSource(ctx context.Context, patterns []Pattern) (*NativeSource, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &NativeSource{
		watcher:  w,
		patterns: patterns,
		ch:       make(chan Notice, DefaultNoticeBuffer),
		cancel:   cancel,
		done:     make(chan struct{}),
		watched:  make(map[string]bool),
	}
	for _, p := range patterns {
		for _, dir := range p.Dirs() {
			s.addDir(dir)
		}
	}
	go s.run(ctx)
	return s, nil
}

func (s *NativeSource) Notices() <-chan Notice { return s.ch }
func (s *NativeSource) Name() string           { return "native" }

// Stop closes the watcher and waits for the notice channel to close.
func (s *NativeSource) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *NativeSource) addDir(dir string) {
	if s.watched[dir] {
		return
	}
	if err := s.watcher.Add(dir); err != nil {
		log.Printf("watch: cannot watch %s: %v", dir, err)
		return
	}
	s.watched[dir] = true
}

func (s *NativeSource) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.ch)
	defer s.watcher.Close()

	for _, p := range s.patterns {
		files, err := p.Files()
		if err != nil {
			log.Printf("watch: %v", err)
			continue
		}
		for path, size := range files {
			if !s.send(ctx, Notice{Kind: Discovered, Path: path, Size: size}) {
				return
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !s.handle(ctx, ev) {
				return
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("watch: watcher error: %v", err)
		}
	}
}

func (s *NativeSource) handle(ctx context.Context, ev fsnotify.Event) bool {
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Stat(ev.Name)
		if err != nil {
			return true
		}
		if info.IsDir() {
			return s.enterDir(ctx, ev.Name)
		}
		if matchAny(s.patterns, ev.Name) {
			return s.send(ctx, Notice{Kind: Discovered, Path: ev.Name, Size: info.Size()})
		}
	case ev.Has(fsnotify.Write):
		if !matchAny(s.patterns, ev.Name) {
			return true
		}
		info, err := os.Stat(ev.Name)
		if err != nil {
			return true
		}
		return s.send(ctx, Notice{Kind: Modified, Path: ev.Name, Size: info.Size()})
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if s.watched[ev.Name] {
			delete(s.watched, ev.Name)
			_ = s.watcher.Remove(ev.Name)
			return true
		}
		if matchAny(s.patterns, ev.Name) {
			return s.send(ctx, Notice{Kind: Removed, Path: ev.Name, Size: -1})
		}
	}
	return true
}

// enterDir starts watching a directory created under a recursive pattern
// and reports the files that landed in it before the watch was added.
func (s *NativeSource) enterDir(ctx context.Context, dir string) bool {
	recursive := false
	for _, p := range s.patterns {
		if p.Recursive() && isWithin(p.Base, dir) {
			recursive = true
			break
		}
	}
	if !recursive {
		return true
	}
	s.addDir(dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("watch: read %s: %v", dir, err)
		}
		return true
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if !s.enterDir(ctx, path) {
				return false
			}
			continue
		}
		info, err := e.Info()
		if err != nil || !matchAny(s.patterns, path) {
			continue
		}
		if !s.send(ctx, Notice{Kind: Discovered, Path: path, Size: info.Size()}) {
			return false
		}
	}
	return true
}

func (s *NativeSource) send(ctx context.Context, n Notice) bool {
	select {
	case s.ch <- n:
		return true
	case <-ctx.Done():
		return false
	}
}
