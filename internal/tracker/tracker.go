// Package tracker owns the set of tailed paths. It creates a Tail the first
// time a path is reported, routes change notifications to it, evicts it a
// grace period after the file disappears, and fans every tail's batches out
// to subscribers tagged with their path.
package tracker

import (
	"log"
	"slices"
	"sync"
	"time"

	"github.com/tinytelemetry/tailview/internal/clock"
	"github.com/tinytelemetry/tailview/internal/model"
	"github.com/tinytelemetry/tailview/internal/tail"
)

// Config holds tracker settings. Zero values fall back to the model
// defaults.
type Config struct {
	Capacity        int
	Expire          time.Duration
	Source          tail.ByteSource
	Clock           clock.Clock
	DisableJSONScan bool
}

// Tracker multiplexes tails by path.
//
// Lock order is Tracker.mu, then a tail's flush lock, then the hub. Flush
// delivery runs under the tail's flush lock and never takes Tracker.mu.
type Tracker struct {
	expire  time.Duration
	clock   clock.Clock
	tailCfg tail.Config
	ids     model.IDSequence
	hub     *hub

	mu        sync.Mutex
	tails     map[string]*tail.Tail
	evictions map[string]*eviction
	stopped   bool
}

type eviction struct {
	timer *clock.Timer
}

// New creates a Tracker.
func New(conf ...Config) *Tracker {
	var cfg Config
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = model.DefaultHistoryLines
	}
	if cfg.Expire <= 0 {
		cfg.Expire = model.DefaultExpire
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}

	t := &Tracker{
		expire:    cfg.Expire,
		clock:     cfg.Clock,
		hub:       newHub(),
		tails:     make(map[string]*tail.Tail),
		evictions: make(map[string]*eviction),
	}
	t.tailCfg = tail.Config{
		Capacity:        cfg.Capacity,
		Source:          cfg.Source,
		Clock:           cfg.Clock,
		IDs:             &t.ids,
		DisableJSONScan: cfg.DisableJSONScan,
	}
	return t
}

// Discovered starts tracking path, or resumes it if it was removed and is
// still within its grace period. Pass tail.UnknownSize when no size is at
// hand.
func (t *Tracker) Discovered(path string, sizeHint int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	tl := t.getOrCreate(path)
	if ev, ok := t.evictions[path]; ok {
		ev.timer.Stop()
		delete(t.evictions, path)
	}
	tl.Initialize(sizeHint)
}

// Modified reads new content for path, creating its tail if the change
// arrived before the discovery.
func (t *Tracker) Modified(path string, sizeHint int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.getOrCreate(path).Update(sizeHint)
}

// Removed marks path as gone and schedules its eviction after the grace
// period. History stays available until then.
func (t *Tracker) Removed(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	tl, ok := t.tails[path]
	if !ok {
		return
	}
	tl.Unlink()

	if prev, ok := t.evictions[path]; ok {
		prev.timer.Stop()
	}
	ev := &eviction{}
	t.evictions[path] = ev
	ev.timer = t.clock.AfterFunc(t.expire, func() { t.evict(path, ev) })
}

// evict drops path if ev is still its pending eviction. A re-add that won
// the race has already removed ev from the map.
func (t *Tracker) evict(path string, ev *eviction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.evictions[path] != ev {
		return
	}
	delete(t.evictions, path)
	if tl, ok := t.tails[path]; ok {
		tl.Close()
		delete(t.tails, path)
	}
	log.Printf("tracker: evicted %s", path)
	t.hub.publish(model.Notification{Kind: model.NotifyRemove, Path: path})
}

func (t *Tracker) getOrCreate(path string) *tail.Tail {
	if tl, ok := t.tails[path]; ok {
		return tl
	}
	tl := tail.New(path, t.tailCfg)
	tl.SetListener(func(events []model.Event) {
		t.hub.publish(model.Notification{Kind: model.NotifyUpdate, Path: path, Events: events})
	})
	t.tails[path] = tl
	log.Printf("tracker: tracking %s", path)
	t.hub.publish(model.Notification{Kind: model.NotifyAdd, Path: path})
	return tl
}

// Subscribe attaches a new subscriber. Before any live notification it
// receives, for every tracked path in path order, an add followed by an
// update carrying that path's full history oldest first.
func (t *Tracker) Subscribe() *Subscription {
	sub := newSubscription(t.hub)

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		sub.terminate()
		go sub.pump()
		return sub
	}
	paths := t.sortedPathsLocked()
	releases := make([]func(), 0, len(paths))
	for _, path := range paths {
		history, release := t.tails[path].Freeze()
		releases = append(releases, release)
		sub.push(model.Notification{Kind: model.NotifyAdd, Path: path})
		sub.push(model.Notification{Kind: model.NotifyUpdate, Path: path, Events: history})
	}
	t.hub.add(sub)
	for _, release := range releases {
		release()
	}
	t.mu.Unlock()

	go sub.pump()
	return sub
}

// Files lists tracked paths in path order.
func (t *Tracker) Files() []model.FileInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	paths := t.sortedPathsLocked()
	out := make([]model.FileInfo, 0, len(paths))
	for _, path := range paths {
		out = append(out, t.tails[path].Info())
	}
	return out
}

// History returns the buffered events for path, oldest first.
func (t *Tracker) History(path string) ([]model.Event, bool) {
	t.mu.Lock()
	tl, ok := t.tails[path]
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	return tl.History(), true
}

// Len returns the number of tracked paths.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tails)
}

// Subscribers returns the number of attached subscriptions.
func (t *Tracker) Subscribers() int {
	return t.hub.len()
}

// Wait blocks until every tail has drained its queued operations.
func (t *Tracker) Wait() {
	t.mu.Lock()
	tails := make([]*tail.Tail, 0, len(t.tails))
	for _, tl := range t.tails {
		tails = append(tails, tl)
	}
	t.mu.Unlock()
	for _, tl := range tails {
		tl.Wait()
	}
}

// Stop cancels pending evictions, detaches every tail and ends all
// subscriptions. Later notifications are ignored.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	for path, ev := range t.evictions {
		ev.timer.Stop()
		delete(t.evictions, path)
	}
	for _, tl := range t.tails {
		tl.Close()
	}
	t.hub.closeAll()
}

func (t *Tracker) sortedPathsLocked() []string {
	paths := make([]string, 0, len(t.tails))
	for path := range t.tails {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}
