// Package crawler builds the index database by walking the configured
// roots in parallel. Workers pull directory jobs from a shared queue; each
// job reads one directory, commits its sorted children as a contiguous id
// block, and enqueues the child directories.
package crawler

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sys/unix"

	"github.com/dl/indexa/internal/cancel"
	"github.com/dl/indexa/internal/index"
)

// Crawler produces a Database from a Config.
type Crawler struct {
	cfg Config
}

// New validates the config. The roots themselves are checked at Build
// time; an empty root list fails immediately.
func New(cfg Config) (*Crawler, error) {
	if len(cfg.Roots) == 0 {
		return nil, ErrEmptyRoots
	}
	return &Crawler{cfg: cfg}, nil
}

// Build walks the roots and returns the finished Database together with
// the non-fatal warnings accumulated along the way. The error is non-nil
// only when no root was readable, no root survived filtering, or the
// token fired mid-crawl.
func (c *Crawler) Build(tok *cancel.Token) (*index.Database, []Warning, error) {
	roots, warns, err := normalizeRoots(c.cfg.Roots)
	if err != nil {
		return nil, warns, err
	}

	cw := &crawl{
		cfg:     &c.cfg,
		builder: index.NewBuilder(c.cfg.buildFlags()),
		tok:     tok,
		warns:   warns,
	}
	cw.cond = sync.NewCond(&cw.mu)
	if len(c.cfg.Exclude) > 0 {
		cw.excl = ignore.CompileIgnoreLines(c.cfg.Exclude...)
	}

	seeded := 0
	for _, root := range roots {
		var st unix.Stat_t
		if err := unix.Stat(root, &st); err != nil {
			cw.warn(root, err)
			continue
		}
		if st.Mode&unix.S_IFMT != unix.S_IFDIR {
			cw.warn(root, errors.New("not a directory"))
			continue
		}
		// Readability check up front: the crawl as a whole fails only
		// when every root is unreadable.
		fd, err := unix.Open(root, unix.O_RDONLY|unix.O_DIRECTORY, 0)
		if err != nil {
			cw.warn(root, err)
			continue
		}
		unix.Close(fd)

		id := cw.builder.AddRoot(root, attrFromStat(&st, c.cfg.Attributes))
		j := job{id: id, path: root, dev: st.Dev}
		if c.cfg.FollowSymlinks {
			j.chain = []devino{{st.Dev, st.Ino}}
		}
		cw.enqueue(j)
		seeded++
	}
	if seeded == 0 {
		return nil, cw.warns, ErrNoReadableRoots
	}

	var wg sync.WaitGroup
	for range c.cfg.threads() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cw.worker()
		}()
	}
	wg.Wait()

	if cw.aborted.Load() {
		return nil, cw.warns, ErrCancelled
	}
	return cw.builder.Finish(), cw.warns, nil
}

// devino identifies a physical directory for cycle detection.
type devino struct {
	dev uint64
	ino uint64
}

// job is one directory awaiting enumeration. rel is the root-relative
// path used for exclude matching; chain is the (dev, inode) ancestor set,
// populated only when symlinks are followed.
type job struct {
	id    index.EntryID
	path  string
	rel   string
	dev   uint64
	chain []devino
}

// crawl coordinates the concurrent traversal.
type crawl struct {
	cfg     *Config
	builder *index.Builder
	excl    *ignore.GitIgnore
	tok     *cancel.Token

	mu      sync.Mutex
	queue   []job
	pending int
	cond    *sync.Cond
	done    bool

	warnMu sync.Mutex
	warns  []Warning

	aborted atomic.Bool
}

func (cw *crawl) warn(path string, cause error) {
	cw.warnMu.Lock()
	cw.warns = append(cw.warns, Warning{Path: path, Cause: cause})
	cw.warnMu.Unlock()
}

func (cw *crawl) enqueue(j job) {
	cw.mu.Lock()
	cw.queue = append(cw.queue, j)
	cw.pending++
	cw.mu.Unlock()
	cw.cond.Signal()
}

// dequeue retrieves a job, blocking while the queue is temporarily empty.
// Returns false when all work is complete or the crawl was aborted.
func (cw *crawl) dequeue() (job, bool) {
	cw.mu.Lock()
	for len(cw.queue) == 0 && !cw.done {
		cw.cond.Wait()
	}
	if cw.done && len(cw.queue) == 0 {
		cw.mu.Unlock()
		return job{}, false
	}
	j := cw.queue[0]
	cw.queue = cw.queue[1:]
	cw.mu.Unlock()
	return j, true
}

// finish marks a directory as fully processed.
func (cw *crawl) finish() {
	cw.mu.Lock()
	cw.pending--
	if cw.pending == 0 && len(cw.queue) == 0 {
		cw.done = true
		cw.cond.Broadcast()
	}
	cw.mu.Unlock()
}

// abort drops all queued work and wakes every worker.
func (cw *crawl) abort() {
	cw.aborted.Store(true)
	cw.mu.Lock()
	cw.queue = nil
	cw.done = true
	cw.cond.Broadcast()
	cw.mu.Unlock()
}

// worker processes directory jobs until the queue drains. The token is
// checked between jobs, so cancellation latency is bounded by one
// directory enumeration.
func (cw *crawl) worker() {
	buf := make([]byte, 32*1024) // per-worker getdents buffer
	var dirents []dirent
	for {
		item, ok := cw.dequeue()
		if !ok {
			return
		}
		if cw.tok.Cancelled() {
			cw.abort()
			return
		}
		dirents = cw.processDir(item, buf, dirents)
		cw.finish()
	}
}

// childEnt pairs a pending ChildRecord with the traversal metadata that
// does not go into the database.
type childEnt struct {
	rec  index.ChildRecord
	walk bool
	dev  uint64
	ino  uint64
}

// processDir opens one directory, classifies its entries, commits the
// sorted children as a contiguous block, and enqueues child directories.
// The directory fd is closed before the subtree is enqueued.
func (cw *crawl) processDir(item job, buf []byte, dirents []dirent) []dirent {
	fd, err := unix.Open(item.path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_NOATIME, 0)
	if err != nil {
		fd, err = unix.Open(item.path, unix.O_RDONLY|unix.O_DIRECTORY, 0)
		if err != nil {
			cw.warn(item.path, err)
			return dirents
		}
	}

	var kids []childEnt
	for {
		n, err := unix.Getdents(fd, buf)
		if err != nil {
			cw.warn(item.path, err)
			break
		}
		if n == 0 {
			break
		}

		dirents = parseDirents(buf, n, dirents)
		for _, de := range dirents {
			if cw.cfg.IgnoreHidden && len(de.name) > 0 && de.name[0] == '.' {
				continue
			}
			ent, ok := cw.classify(de, item)
			if !ok {
				continue
			}
			if cw.excluded(item.rel, de.name, ent.rec.IsDir) {
				continue
			}
			kids = append(kids, ent)
		}
	}
	unix.Close(fd)

	if len(kids) == 0 {
		return dirents
	}

	// Children are committed in bytewise name order so the contiguous id
	// block is deterministic for a given directory.
	sort.Slice(kids, func(i, j int) bool { return kids[i].rec.Name < kids[j].rec.Name })

	recs := make([]index.ChildRecord, len(kids))
	for i := range kids {
		recs[i] = kids[i].rec
	}
	start := cw.builder.AddChildren(item.id, recs)

	for i := range kids {
		if !kids[i].walk {
			continue
		}
		j := job{
			id:   start + index.EntryID(i),
			path: joinPath(item.path, kids[i].rec.Name),
			dev:  kids[i].dev,
		}
		if cw.excl != nil {
			j.rel = relJoin(item.rel, kids[i].rec.Name)
		}
		if cw.cfg.FollowSymlinks {
			j.chain = make([]devino, len(item.chain)+1)
			copy(j.chain, item.chain)
			j.chain[len(item.chain)] = devino{kids[i].dev, kids[i].ino}
		}
		cw.enqueue(j)
	}
	return dirents
}

// classify turns a raw dirent into a childEnt, performing the minimum
// number of stat calls the configuration demands. ok is false when the
// entry is skipped (unfollowed broken symlink, stat failure).
func (cw *crawl) classify(de dirent, item job) (childEnt, bool) {
	full := ""
	fullPath := func() string {
		if full == "" {
			full = joinPath(item.path, de.name)
		}
		return full
	}

	wantAttrs := cw.cfg.Attributes&index.AttrMask != 0
	var st unix.Stat_t
	haveStat := false

	lstat := func() bool {
		if !haveStat {
			if err := unix.Lstat(fullPath(), &st); err != nil {
				cw.warn(fullPath(), err)
				return false
			}
			haveStat = true
		}
		return true
	}

	dtype := de.dtype
	if dtype == dtUnknown {
		if !lstat() {
			return childEnt{}, false
		}
		switch st.Mode & unix.S_IFMT {
		case unix.S_IFDIR:
			dtype = dtDir
		case unix.S_IFLNK:
			dtype = dtLnk
		default:
			dtype = dtReg
		}
	}

	switch dtype {
	case dtDir:
		ent := childEnt{walk: true, dev: item.dev, ino: de.ino}
		ent.rec.Name = de.name
		ent.rec.IsDir = true
		if wantAttrs || cw.cfg.StayOnFilesystem || cw.cfg.FollowSymlinks {
			if !lstat() {
				return childEnt{}, false
			}
			ent.dev, ent.ino = st.Dev, st.Ino
			ent.rec.Attr = attrFromStat(&st, cw.cfg.Attributes)
			if cw.cfg.StayOnFilesystem && st.Dev != item.dev {
				ent.walk = false
			}
			if ent.walk && cw.cfg.FollowSymlinks && chainContains(item.chain, devino{st.Dev, st.Ino}) {
				cw.warn(fullPath(), errors.New("symlink cycle detected"))
				ent.walk = false
			}
		}
		return ent, true

	case dtLnk:
		if !cw.cfg.FollowSymlinks {
			// The link itself is indexed as a plain entry.
			ent := childEnt{}
			ent.rec.Name = de.name
			if wantAttrs {
				if !lstat() {
					return childEnt{}, false
				}
				ent.rec.Attr = attrFromStat(&st, cw.cfg.Attributes)
			}
			return ent, true
		}
		var target unix.Stat_t
		if err := unix.Stat(fullPath(), &target); err != nil {
			return childEnt{}, false // broken symlink
		}
		ent := childEnt{dev: target.Dev, ino: target.Ino}
		ent.rec.Name = de.name
		ent.rec.Attr = attrFromStat(&target, cw.cfg.Attributes)
		if target.Mode&unix.S_IFMT == unix.S_IFDIR {
			ent.rec.IsDir = true
			ent.walk = true
			if cw.cfg.StayOnFilesystem && target.Dev != item.dev {
				ent.walk = false
			}
			if ent.walk && chainContains(item.chain, devino{target.Dev, target.Ino}) {
				cw.warn(fullPath(), errors.New("symlink cycle detected"))
				ent.walk = false
			}
		}
		return ent, true

	default:
		ent := childEnt{}
		ent.rec.Name = de.name
		if wantAttrs {
			if !lstat() {
				return childEnt{}, false
			}
			ent.rec.Attr = attrFromStat(&st, cw.cfg.Attributes)
		}
		return ent, true
	}
}

// excluded applies the configured gitignore-syntax patterns to the
// root-relative path.
func (cw *crawl) excluded(parentRel, name string, isDir bool) bool {
	if cw.excl == nil {
		return false
	}
	rel := relJoin(parentRel, name)
	if cw.excl.MatchesPath(rel) {
		return true
	}
	return isDir && cw.excl.MatchesPath(rel+"/")
}

func relJoin(parentRel, name string) string {
	if parentRel == "" {
		return name
	}
	return parentRel + "/" + name
}

func chainContains(chain []devino, di devino) bool {
	for _, c := range chain {
		if c == di {
			return true
		}
	}
	return false
}

// attrFromStat copies the requested attribute subset out of a stat
// result. Returns nil when no attributes are configured, so entries carry
// no attribute row at all.
func attrFromStat(st *unix.Stat_t, flags index.Flags) *index.Attributes {
	if flags&index.AttrMask == 0 {
		return nil
	}
	a := &index.Attributes{}
	if flags.Has(index.FlagSize) {
		a.Size = uint64(st.Size)
	}
	if flags.Has(index.FlagMtime) {
		a.Mtime = st.Mtim.Nano()
	}
	if flags.Has(index.FlagCtime) {
		a.Ctime = st.Ctim.Nano()
	}
	if flags.Has(index.FlagAtime) {
		a.Atime = st.Atim.Nano()
	}
	if flags.Has(index.FlagMode) {
		a.Mode = st.Mode
	}
	return a
}
