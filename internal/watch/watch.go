// Package watch turns filesystem activity on the paths given on the command
// line into discovered/modified/removed notices for the tracker.
package watch

import (
	"context"
	"fmt"
)

// NoticeKind is the type of filesystem change.
type NoticeKind int

const (
	Discovered NoticeKind = iota
	Modified
	Removed
)

func (k NoticeKind) String() string {
	switch k {
	case Discovered:
		return "discovered"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("NoticeKind(%d)", int(k))
	}
}

// Notice reports one change to a watched path. Size is the file size seen
// by the source, or -1 when it is unknown or the file is gone.
type Notice struct {
	Kind NoticeKind
	Path string
	Size int64
}

// Source is a unified interface for watch backends (native events, polling).
type Source interface {
	Notices() <-chan Notice // closed after Stop
	Stop()
	Name() string
}

// Handler receives notices; *tracker.Tracker implements it.
type Handler interface {
	Discovered(path string, sizeHint int64)
	Modified(path string, sizeHint int64)
	Removed(path string)
}

// Dispatch feeds notices into h until the channel closes or ctx is done.
func Dispatch(ctx context.Context, notices <-chan Notice, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notices:
			if !ok {
				return
			}
			switch n.Kind {
			case Discovered:
				h.Discovered(n.Path, n.Size)
			case Modified:
				h.Modified(n.Path, n.Size)
			case Removed:
				h.Removed(n.Path)
			}
		}
	}
}
