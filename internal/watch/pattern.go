package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern is one FILE argument: a file, a directory (watched recursively) or
// a glob, resolved against the working directory.
type Pattern struct {
	Raw  string
	Base string // absolute directory the glob is relative to
	Glob string // slash-separated doublestar pattern
}

// ParsePattern resolves arg into a Pattern.
func ParsePattern(arg string) (Pattern, error) {
	abs, err := filepath.Abs(arg)
	if err != nil {
		return Pattern{}, fmt.Errorf("resolve %q: %w", arg, err)
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return Pattern{Raw: arg, Base: abs, Glob: "**"}, nil
	}

	base, glob := doublestar.SplitPattern(filepath.ToSlash(abs))
	if glob == "" || !hasMeta(glob) {
		base, glob = filepath.ToSlash(filepath.Dir(abs)), filepath.Base(abs)
	}
	if !doublestar.ValidatePattern(glob) {
		return Pattern{}, fmt.Errorf("invalid pattern %q", arg)
	}
	return Pattern{Raw: arg, Base: filepath.FromSlash(base), Glob: glob}, nil
}

func hasMeta(s string) bool {
	return strings.ContainsAny(s, `*?[{\`)
}

// Match reports whether path (absolute) is covered by the pattern.
func (p Pattern) Match(path string) bool {
	if !isWithin(p.Base, path) {
		return false
	}
	rel, _ := filepath.Rel(p.Base, path)
	ok, err := doublestar.Match(p.Glob, filepath.ToSlash(rel))
	return err == nil && ok
}

// Recursive reports whether matches may live below the base directory.
func (p Pattern) Recursive() bool {
	return strings.Contains(p.Glob, "/") || strings.Contains(p.Glob, "**")
}

// Files returns the regular files currently matching the pattern, with
// their sizes.
func (p Pattern) Files() (map[string]int64, error) {
	out := make(map[string]int64)
	err := doublestar.GlobWalk(os.DirFS(p.Base), p.Glob, func(rel string, d fs.DirEntry) error {
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out[filepath.Join(p.Base, filepath.FromSlash(rel))] = info.Size()
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("glob %s: %w", p.Raw, err)
	}
	return out, nil
}

// Dirs returns the directories a native watcher must subscribe to.
func (p Pattern) Dirs() []string {
	if !p.Recursive() {
		return []string{p.Base}
	}
	var dirs []string
	_ = filepath.WalkDir(p.Base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if len(dirs) == 0 {
		dirs = append(dirs, p.Base)
	}
	return dirs
}

func matchAny(patterns []Pattern, path string) bool {
	for _, p := range patterns {
		if p.Match(path) {
			return true
		}
	}
	return false
}

// isWithin reports whether path is base or lies below it.
func isWithin(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
