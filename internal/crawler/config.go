package crawler

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/dl/indexa/internal/index"
)

// Config selects what the crawler indexes and how.
type Config struct {
	// Roots are the directories to index. They are canonicalized before
	// the crawl; duplicates and roots nested under another root collapse
	// to the shallower root.
	Roots []string

	// IgnoreHidden skips entries whose basename begins with a dot.
	IgnoreHidden bool

	// FollowSymlinks descends into symlinked directories. Cycles are
	// detected via the (device, inode) ancestor chain and refused.
	FollowSymlinks bool

	// StayOnFilesystem refuses to cross into a child directory whose
	// device id differs from its parent's.
	StayOnFilesystem bool

	// Attributes is the subset of index attribute flags to collect
	// (FlagSize, FlagMtime, FlagCtime, FlagAtime, FlagMode). Collecting
	// any of them costs one lstat per entry, however many are selected.
	Attributes index.Flags

	// BuildFolded precomputes the case-folded name table so that
	// case-insensitive literal queries reduce to a handle lookup.
	BuildFolded bool

	// Exclude holds gitignore-syntax patterns matched against the
	// root-relative path of every entry.
	Exclude []string

	// Threads is the worker count; 0 means the host logical CPU count.
	Threads int
}

func (c *Config) threads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	return runtime.NumCPU()
}

func (c *Config) buildFlags() index.Flags {
	f := c.Attributes
	if c.BuildFolded {
		f |= index.FlagFolded
	}
	return f
}

// ErrEmptyRoots is returned when no roots remain after canonicalization
// and nested-root filtering.
var ErrEmptyRoots = errors.New("crawler: no roots remain after filtering")

// ErrNoReadableRoots is returned when every configured root failed to
// open. Unreadable directories below a readable root are warnings, not
// errors.
var ErrNoReadableRoots = errors.New("crawler: no readable roots")

// ErrCancelled is returned when the cancellation token fired before the
// crawl drained.
var ErrCancelled = errors.New("crawler: cancelled")

// Warning records a non-fatal problem encountered during a crawl. The
// crawl continues; the directory in question contributes no children.
type Warning struct {
	Path  string
	Cause error
}

func (w Warning) Error() string {
	return "crawl " + w.Path + ": " + w.Cause.Error()
}

func (w Warning) Unwrap() error {
	return w.Cause
}

// normalizeRoots canonicalizes, deduplicates, and un-nests the configured
// roots. Order is preserved for the survivors; a dropped root produces a
// warning.
func normalizeRoots(roots []string) ([]string, []Warning, error) {
	var warns []Warning
	var canon []string
	for _, r := range roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			warns = append(warns, Warning{Path: r, Cause: err})
			continue
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			// An unresolvable root is kept as-is; Build fails to stat it
			// and reports it as unreadable.
			resolved = abs
		}
		canon = append(canon, filepath.Clean(resolved))
	}

	var kept []string
	for _, r := range canon {
		drop := false
		for _, k := range kept {
			if r == k {
				warns = append(warns, Warning{Path: r, Cause: errors.New("duplicate root")})
				drop = true
				break
			}
			if isUnder(r, k) {
				warns = append(warns, Warning{Path: r, Cause: fmt.Errorf("nested under root %s", k)})
				drop = true
				break
			}
		}
		if drop {
			continue
		}
		// A previously kept root may turn out to be nested under this one.
		filtered := kept[:0]
		for _, k := range kept {
			if isUnder(k, r) {
				warns = append(warns, Warning{Path: k, Cause: fmt.Errorf("nested under root %s", r)})
				continue
			}
			filtered = append(filtered, k)
		}
		kept = append(filtered, r)
	}

	if len(kept) == 0 {
		return nil, warns, ErrEmptyRoots
	}
	return kept, warns, nil
}

// isUnder reports whether path is a strict descendant of root.
func isUnder(path, root string) bool {
	if root == "/" {
		return path != "/"
	}
	return strings.HasPrefix(path, root) && len(path) > len(root) && path[len(root)] == '/'
}
