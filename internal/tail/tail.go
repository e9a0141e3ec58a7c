// Package tail incrementally reads one growing file and turns appended
// lines into events.
//
// Every operation on a Tail (Initialize, Update, Unlink) is queued and run
// in submission order on a per-tail goroutine. Events produced while the
// queue is busy are buffered and flushed as one batch once it drains, so a
// burst of writes yields a single notification.
package tail

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/x/ansi"
	"github.com/tinytelemetry/tailview/internal/clock"
	"github.com/tinytelemetry/tailview/internal/jsonscan"
	"github.com/tinytelemetry/tailview/internal/model"
)

// UnknownSize tells Initialize and Update to ask the ByteSource for the
// current size.
const UnknownSize int64 = -1

const (
	scanChunkSize = 8 * 1024
	readChunkSize = 64 * 1024

	// A queue that never drains still flushes once this many events wait.
	maxPendingBatch = 4096
)

// System event texts.
const (
	MsgStarted   = "Started tracking file"
	MsgTruncated = "File truncated"
	MsgRemoved   = "File removed"
	MsgInitError = "Error reading end of file during initialization"
	MsgReadError = "Error reading new content at the end of the file"
)

// Config holds the dependencies and limits shared by every Tail a tracker
// creates.
type Config struct {
	Capacity        int // history lines; also how far back Initialize starts
	Source          ByteSource
	Clock           clock.Clock
	IDs             *model.IDSequence
	DisableJSONScan bool
}

func (c Config) withDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = model.DefaultHistoryLines
	}
	if c.Source == nil {
		c.Source = OSSource{}
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.IDs == nil {
		c.IDs = &model.IDSequence{}
	}
	return c
}

// FlushFunc receives each flushed batch. It is called with the tail's
// flush lock held and must not block.
type FlushFunc func(events []model.Event)

// Tail tracks one path.
type Tail struct {
	path string
	cfg  Config

	mu      sync.Mutex
	idle    *sync.Cond
	queue   []func()
	running bool
	pending []model.Event

	// Owned by the drain goroutine; atomics are for readers.
	initialized bool
	partial     []byte
	offset      atomic.Int64
	errored     atomic.Bool
	removed     atomic.Bool

	flushMu  sync.Mutex
	history  *history
	listener FlushFunc
}

// New creates a Tail for path. Nothing is read until Initialize or Update.
func New(path string, cfg Config) *Tail {
	cfg = cfg.withDefaults()
	t := &Tail{
		path:    path,
		cfg:     cfg,
		history: newHistory(cfg.Capacity),
	}
	t.idle = sync.NewCond(&t.mu)
	return t
}

// Path returns the tracked path.
func (t *Tail) Path() string { return t.path }

// SetListener installs fn to receive flushed batches, replacing any
// previous listener.
func (t *Tail) SetListener(fn FlushFunc) {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()
	t.listener = fn
}

// Close detaches the listener. Queued operations still run but their
// batches only reach history.
func (t *Tail) Close() {
	t.SetListener(nil)
}

// Initialize starts tracking. The first call positions the read offset at
// the start of the last Capacity lines and reads from there; later calls
// resume from the current offset.
func (t *Tail) Initialize(sizeHint int64) {
	t.enqueue(func() { t.initialize(sizeHint) })
}

// Update reads whatever was appended since the last read.
func (t *Tail) Update(sizeHint int64) {
	t.enqueue(func() { t.update(sizeHint) })
}

// Unlink records that the file was removed. History is kept.
func (t *Tail) Unlink() {
	t.enqueue(t.unlink)
}

// History returns a copy of the buffered events, oldest first.
func (t *Tail) History() []model.Event {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()
	return t.history.snapshot()
}

// Freeze blocks flushes and returns the current history. No batch is
// delivered to the listener until release is called.
func (t *Tail) Freeze() (events []model.Event, release func()) {
	t.flushMu.Lock()
	return t.history.snapshot(), t.flushMu.Unlock
}

// Info summarizes the tail for read surfaces.
func (t *Tail) Info() model.FileInfo {
	t.flushMu.Lock()
	lines := t.history.len()
	t.flushMu.Unlock()
	return model.FileInfo{
		Path:    t.path,
		Lines:   lines,
		Offset:  t.offset.Load(),
		Errored: t.errored.Load(),
		Removed: t.removed.Load(),
	}
}

// Errored reports whether an I/O error stopped this tail for good.
func (t *Tail) Errored() bool { return t.errored.Load() }

// Wait blocks until every queued operation has run and its events have been
// flushed.
func (t *Tail) Wait() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for t.running {
		t.idle.Wait()
	}
}

func (t *Tail) enqueue(op func()) {
	t.mu.Lock()
	t.queue = append(t.queue, op)
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()
	go t.drain()
}

// drain runs queued operations one at a time, flushing buffered events
// whenever the queue empties or the batch grows past maxPendingBatch. Only
// one drain runs per tail, which keeps flushes in order.
func (t *Tail) drain() {
	for {
		t.mu.Lock()
		if len(t.pending) > 0 && (len(t.queue) == 0 || len(t.pending) >= maxPendingBatch) {
			batch := t.pending
			t.pending = nil
			t.mu.Unlock()
			t.flush(batch)
			continue
		}
		if len(t.queue) > 0 {
			op := t.queue[0]
			t.queue[0] = nil
			t.queue = t.queue[1:]
			t.mu.Unlock()
			op()
			continue
		}
		t.running = false
		t.idle.Broadcast()
		t.mu.Unlock()
		return
	}
}

func (t *Tail) flush(batch []model.Event) {
	t.flushMu.Lock()
	defer t.flushMu.Unlock()
	t.history.push(batch...)
	if t.listener != nil {
		t.listener(batch)
	}
}

func (t *Tail) initialize(sizeHint int64) {
	if t.errored.Load() {
		return
	}
	t.removed.Store(false)
	if t.initialized {
		t.update(sizeHint)
		return
	}
	t.initialized = true
	t.emit(model.KindSystem, MsgStarted)

	size, err := t.size(sizeHint)
	if err != nil {
		t.fail(MsgInitError, err)
		return
	}
	offset, err := t.scanBackward(size)
	if err != nil {
		t.fail(MsgInitError, err)
		return
	}
	t.offset.Store(offset)
	t.read(size)
}

func (t *Tail) update(sizeHint int64) {
	if t.errored.Load() {
		return
	}
	if !t.initialized {
		t.initialize(sizeHint)
		return
	}
	size, err := t.size(sizeHint)
	if err != nil {
		t.fail(MsgReadError, err)
		return
	}
	if size < t.offset.Load() {
		t.emit(model.KindSystem, MsgTruncated)
		t.offset.Store(0)
		t.partial = t.partial[:0]
	}
	t.read(size)
}

func (t *Tail) unlink() {
	if t.errored.Load() {
		return
	}
	t.removed.Store(true)
	t.emit(model.KindSystem, MsgRemoved)
}

func (t *Tail) size(hint int64) (int64, error) {
	if hint >= 0 {
		return hint, nil
	}
	return t.cfg.Source.Size(t.path)
}

// scanBackward finds the offset where the last Capacity lines begin by
// counting newlines from the end of the file, one chunk at a time. size is
// treated as fixed for the duration of the scan.
func (t *Tail) scanBackward(size int64) (int64, error) {
	if size == 0 {
		return 0, nil
	}
	f, err := t.cfg.Source.Open(t.path)
	if err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	remaining := t.cfg.Capacity
	buf := make([]byte, scanChunkSize)
	for end := size; end > 0; {
		n := min(int64(scanChunkSize), end)
		start := end - n
		chunk := buf[:n]
		clear(chunk)
		if _, err := f.ReadAt(chunk, start); err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read at %d: %w", start, err)
		}
		for i := len(chunk) - 1; i >= 0; i-- {
			if chunk[i] != '\n' {
				continue
			}
			remaining--
			if remaining < 0 {
				return start + int64(i) + 1, nil
			}
		}
		end = start
	}
	return 0, nil
}

func (t *Tail) read(size int64) {
	if err := t.readTo(size); err != nil {
		t.fail(MsgReadError, err)
	}
}

// readTo consumes bytes from the current offset up to size. Lines are split
// on the raw '\n' byte before decoding, so a multi-byte character cut by a
// chunk boundary is rejoined in the partial line.
func (t *Tail) readTo(size int64) error {
	offset := t.offset.Load()
	if offset >= size {
		return nil
	}
	f, err := t.cfg.Source.Open(t.path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	buf := make([]byte, readChunkSize)
	for offset < size {
		n := min(int64(readChunkSize), size-offset)
		got, err := f.ReadAt(buf[:n], offset)
		if got > 0 {
			t.consume(buf[:got])
			offset += int64(got)
			t.offset.Store(offset)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Shrunk underneath us; the next update sees the truncation.
				return nil
			}
			return fmt.Errorf("read at %d: %w", offset, err)
		}
	}
	return nil
}

func (t *Tail) consume(data []byte) {
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			t.partial = append(t.partial, data...)
			return
		}
		line := data[:idx]
		if len(t.partial) > 0 {
			line = append(t.partial, line...)
			t.partial = t.partial[:0]
		}
		t.emit(model.KindLine, strings.ToValidUTF8(string(line), "\uFFFD"))
		data = data[idx+1:]
	}
}

func (t *Tail) fail(msg string, err error) {
	log.Printf("tail: %s: %s: %v", t.path, msg, err)
	t.errored.Store(true)
	t.emit(model.KindSystem, msg)
}

func (t *Tail) emit(kind model.EventKind, content string) {
	ev := t.newEvent(kind, content)
	t.mu.Lock()
	t.pending = append(t.pending, ev)
	t.mu.Unlock()
}

func (t *Tail) newEvent(kind model.EventKind, content string) model.Event {
	ev := model.Event{
		ID:         t.cfg.IDs.Next(),
		Kind:       kind,
		ObservedAt: t.cfg.Clock.Now().UnixMilli(),
		Content:    content,
	}
	if kind != model.KindLine {
		return ev
	}
	if stripped := ansi.Strip(content); stripped != content {
		raw := content
		ev.ColorCodes = &raw
		ev.Content = stripped
	}
	if !t.cfg.DisableJSONScan {
		ev.EmbeddedJSON = jsonscan.Find(ev.Content)
	}
	return ev
}
