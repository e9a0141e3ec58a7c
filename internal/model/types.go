package model

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// EventKind distinguishes observed log lines from engine notices.
type EventKind string

const (
	KindLine   EventKind = "line"
	KindSystem EventKind = "system"
)

// Event represents one observed log line or system notice.
// It is the canonical type for history, transport (websocket and socket RPC),
// and query evaluation.
type Event struct {
	ID         uint64    `json:"id"`
	Kind       EventKind `json:"type"`
	ObservedAt int64     `json:"when"` // ms since epoch, engine clock
	Content    string    `json:"content"`

	// ColorCodes holds the original line when it carried terminal escape
	// sequences; Content is then the stripped text.
	ColorCodes   *string     `json:"contentAnsi,omitempty"`
	EmbeddedJSON []JSONMatch `json:"jsonMatches,omitempty"`

	// HighlightSpans is only set on copies returned by the query layer.
	HighlightSpans []Span `json:"highlightRanges,omitempty"`
}

// JSONMatch is one embedded JSON value found inside a line.
// Start and End are byte offsets into the scanned text, End exclusive.
type JSONMatch struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Value any `json:"parsed"`
}

// Span is a highlight range into Event.Content. When Replacement is set the
// range is rendered as that text instead of the original bytes.
type Span struct {
	Start       int
	End         int
	Replacement *string
}

// MarshalJSON encodes a span as [start,end] or [start,end,"replacement"].
func (s Span) MarshalJSON() ([]byte, error) {
	if s.Replacement != nil {
		return json.Marshal([]any{s.Start, s.End, *s.Replacement})
	}
	return json.Marshal([2]int{s.Start, s.End})
}

// UnmarshalJSON decodes the tuple form written by MarshalJSON.
func (s *Span) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return err
	}
	if len(parts) != 2 && len(parts) != 3 {
		return fmt.Errorf("span: expected 2 or 3 elements, got %d", len(parts))
	}
	var out Span
	if err := json.Unmarshal(parts[0], &out.Start); err != nil {
		return fmt.Errorf("span start: %w", err)
	}
	if err := json.Unmarshal(parts[1], &out.End); err != nil {
		return fmt.Errorf("span end: %w", err)
	}
	if len(parts) == 3 {
		var repl string
		if err := json.Unmarshal(parts[2], &repl); err != nil {
			return fmt.Errorf("span replacement: %w", err)
		}
		out.Replacement = &repl
	}
	*s = out
	return nil
}

// NotificationKind is the type of a tracker notification.
type NotificationKind string

const (
	NotifyAdd    NotificationKind = "add"
	NotifyUpdate NotificationKind = "update"
	NotifyRemove NotificationKind = "remove"
)

// Notification is emitted by the tracker for every tracked path.
// Events is only populated for update notifications and carries the events
// produced since the previous update for that path.
type Notification struct {
	Kind   NotificationKind `json:"type"`
	Path   string           `json:"path"`
	Events []Event          `json:"events,omitempty"`
}

// IDSequence hands out process-unique, strictly increasing event ids.
// The zero value is ready to use.
type IDSequence struct {
	n atomic.Uint64
}

// Next returns the next id.
func (s *IDSequence) Next() uint64 {
	return s.n.Add(1)
}

// FileInfo describes one tracked path for read surfaces.
type FileInfo struct {
	Path    string `json:"path"`
	Lines   int    `json:"lines"`
	Offset  int64  `json:"offset"`
	Errored bool   `json:"errored"`
	Removed bool   `json:"removed"`
}
