package cli

import (
	"fmt"

	"github.com/dl/indexa/internal/index"
	"github.com/dl/indexa/internal/matcher"
)

// Config holds all configuration for an indexa invocation, merged from
// the config file, environment, and command-line flags.
type Config struct {
	// Search surface.
	Query         string
	HasQuery      bool
	Regex         bool
	CaseSensitive string // "yes" | "no" | "smart"
	MatchPath     string // "on" | "off" | "auto"
	MaxHits       int    // 0 = unlimited

	// Database surface.
	DatabasePath string
	Update       bool
	Stats        bool

	// Crawl surface.
	Roots            []string
	IgnoreHidden     bool
	FollowSymlinks   bool
	StayOnFilesystem bool
	Attributes       []string // subset of size, mtime, ctime, atime, mode
	Exclude          []string

	Threads int
	Verbose bool
	NoColor bool
}

// Validate checks that the config is internally consistent.
func (c *Config) Validate() error {
	switch c.CaseSensitive {
	case "yes", "no", "smart":
	default:
		return fmt.Errorf("invalid case-sensitive mode %q (want yes, no, or smart)", c.CaseSensitive)
	}
	switch c.MatchPath {
	case "on", "off", "auto":
	default:
		return fmt.Errorf("invalid match-path mode %q (want on, off, or auto)", c.MatchPath)
	}
	if c.Threads < 0 {
		return fmt.Errorf("invalid thread count: %d", c.Threads)
	}
	if c.MaxHits < 0 {
		return fmt.Errorf("invalid max hits: %d", c.MaxHits)
	}
	if _, err := c.attrFlags(); err != nil {
		return err
	}
	return nil
}

// attrFlags maps the attribute names to index flag bits.
func (c *Config) attrFlags() (index.Flags, error) {
	var f index.Flags
	for _, a := range c.Attributes {
		switch a {
		case "size":
			f |= index.FlagSize
		case "mtime":
			f |= index.FlagMtime
		case "ctime":
			f |= index.FlagCtime
		case "atime":
			f |= index.FlagAtime
		case "mode":
			f |= index.FlagMode
		default:
			return 0, fmt.Errorf("unknown attribute %q (want size, mtime, ctime, atime, or mode)", a)
		}
	}
	return f, nil
}

// matcherFlags translates the config's enumerated modes into matcher
// compilation flags.
func (c *Config) matcherFlags() matcher.Flags {
	f := matcher.Flags{Regex: c.Regex}
	switch c.CaseSensitive {
	case "yes":
		f.Case = matcher.CaseSensitive
	case "no":
		f.Case = matcher.CaseInsensitive
	default:
		f.Case = matcher.CaseSmart
	}
	switch c.MatchPath {
	case "on":
		f.Path = matcher.PathFull
	case "off":
		f.Path = matcher.PathBasename
	default:
		f.Path = matcher.PathAuto
	}
	return f
}

// caseFoldAtBuild reports whether the built database should carry the
// folded name table. Case-sensitive "yes" is the only mode that can never
// consult it.
func (c *Config) caseFoldAtBuild() bool {
	return c.CaseSensitive != "yes"
}
