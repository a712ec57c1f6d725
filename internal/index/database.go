package index

import (
	"errors"
	"time"
)

// EntryID indexes the entry vector of a Database.
type EntryID uint32

// NoEntry is the parent sentinel carried by root entries.
const NoEntry EntryID = ^EntryID(0)

// NoAttr marks an entry without an attribute row.
const NoAttr uint32 = ^uint32(0)

// Flags records the build-time shape of a Database: which optional
// attributes were collected and whether the folded-name table is present.
type Flags uint32

const (
	FlagSize Flags = 1 << iota
	FlagMtime
	FlagCtime
	FlagAtime
	FlagMode
	FlagFolded

	// AttrMask selects the attribute bits of a Flags value.
	AttrMask = FlagSize | FlagMtime | FlagCtime | FlagAtime | FlagMode
)

// Has reports whether all bits in f2 are set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// ErrCorruptStructure is returned when the entry vector violates its own
// invariants (a parent chain that does not terminate at a root, or an out
// of range index). It indicates a bug or on-disk corruption and is fatal
// to the query that hit it.
var ErrCorruptStructure = errors.New("index: corrupt database structure")

// Entry is one filesystem object. Entries are fixed-width and pointer-free
// so the vector scans without GC pressure.
type Entry struct {
	Name       NameID
	Fold       NameID // folded basename handle; NoName when folding is off
	Parent     EntryID
	Attr       uint32 // row in the attribute table; NoAttr if none
	ChildStart EntryID
	ChildCount uint32
	IsDir      bool
}

// Attributes is a fixed-layout side-table row. Which fields carry data is
// governed by the Database flags, not per-row; absent fields are zero.
type Attributes struct {
	Size  uint64
	Mtime int64 // unix nanoseconds
	Ctime int64
	Atime int64
	Mode  uint32
}

// Root describes one configured crawl root.
type Root struct {
	Path  string
	Entry EntryID
}

// Database is the immutable product of a crawl (or a load). It shares
// freely across query workers without locking.
type Database struct {
	names   *Interner
	folded  *Interner
	entries []Entry
	attrs   []Attributes
	roots   []Root
	flags   Flags
}

// NumEntries returns the size of the entry vector.
func (db *Database) NumEntries() int { return len(db.entries) }

// Flags returns the build-time flags.
func (db *Database) Flags() Flags { return db.flags }

// Roots returns the root descriptors.
func (db *Database) Roots() []Root { return db.roots }

// Entries exposes the entry vector for sequential scans.
func (db *Database) Entries() []Entry { return db.entries }

// Entry returns the record at id.
func (db *Database) Entry(id EntryID) *Entry { return &db.entries[id] }

// Name resolves the basename of an entry. For roots this is the full
// canonical root path.
func (db *Database) Name(id EntryID) string {
	return db.names.Resolve(db.entries[id].Name)
}

// FoldedName resolves the case-folded basename. Valid only when
// FlagFolded is set.
func (db *Database) FoldedName(id EntryID) string {
	return db.folded.Resolve(db.entries[id].Fold)
}

// Folded reports whether the folded-name table is present.
func (db *Database) Folded() bool { return db.folded != nil }

// Children returns the contiguous child range [start, end) of a
// directory. Empty for files.
func (db *Database) Children(id EntryID) (start, end EntryID) {
	e := &db.entries[id]
	return e.ChildStart, e.ChildStart + EntryID(e.ChildCount)
}

// PathOf reconstructs the absolute path of an entry.
func (db *Database) PathOf(id EntryID) (string, error) {
	buf, err := db.AppendPath(nil, id)
	if err != nil {
		return "", err
	}
	return string(buf), nil
}

// AppendPath appends the absolute path of id to buf and returns the
// extended buffer. Query workers pass a per-thread scratch buffer to
// amortize allocation across millions of reconstructions.
func (db *Database) AppendPath(buf []byte, id EntryID) ([]byte, error) {
	if int(id) >= len(db.entries) {
		return buf, ErrCorruptStructure
	}

	// Collect the parent chain root-last. Depth is bounded by the entry
	// count; anything deeper means a parent cycle.
	var stack [64]EntryID
	chain := stack[:0]
	cur := id
	for steps := 0; ; steps++ {
		if steps > len(db.entries) {
			return buf, ErrCorruptStructure
		}
		chain = append(chain, cur)
		p := db.entries[cur].Parent
		if p == NoEntry {
			break
		}
		if int(p) >= len(db.entries) || !db.entries[p].IsDir {
			return buf, ErrCorruptStructure
		}
		cur = p
	}

	for i := len(chain) - 1; i >= 0; i-- {
		frag := db.names.Resolve(db.entries[chain[i]].Name)
		if i != len(chain)-1 && (len(buf) == 0 || buf[len(buf)-1] != '/') {
			buf = append(buf, '/')
		}
		buf = append(buf, frag...)
	}
	return buf, nil
}

// AppendFoldedPath is AppendPath over the case-folded name table. Valid
// only when FlagFolded is set; it lets case-insensitive literal path
// queries run without folding the reconstructed path per entry.
func (db *Database) AppendFoldedPath(buf []byte, id EntryID) ([]byte, error) {
	if int(id) >= len(db.entries) {
		return buf, ErrCorruptStructure
	}

	var stack [64]EntryID
	chain := stack[:0]
	cur := id
	for steps := 0; ; steps++ {
		if steps > len(db.entries) {
			return buf, ErrCorruptStructure
		}
		chain = append(chain, cur)
		p := db.entries[cur].Parent
		if p == NoEntry {
			break
		}
		if int(p) >= len(db.entries) || !db.entries[p].IsDir {
			return buf, ErrCorruptStructure
		}
		cur = p
	}

	for i := len(chain) - 1; i >= 0; i-- {
		frag := db.folded.Resolve(db.entries[chain[i]].Fold)
		if i != len(chain)-1 && (len(buf) == 0 || buf[len(buf)-1] != '/') {
			buf = append(buf, '/')
		}
		buf = append(buf, frag...)
	}
	return buf, nil
}

// Size returns the recorded size of an entry, if sizes were collected and
// the entry has an attribute row.
func (db *Database) Size(id EntryID) (uint64, bool) {
	a, ok := db.attrRow(id, FlagSize)
	if !ok {
		return 0, false
	}
	return a.Size, true
}

// Mtime returns the recorded modification time.
func (db *Database) Mtime(id EntryID) (time.Time, bool) {
	a, ok := db.attrRow(id, FlagMtime)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, a.Mtime), true
}

// Ctime returns the recorded change time. Whether the host treats this as
// inode-change or creation time is preserved as-is from stat.
func (db *Database) Ctime(id EntryID) (time.Time, bool) {
	a, ok := db.attrRow(id, FlagCtime)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, a.Ctime), true
}

// Atime returns the recorded access time.
func (db *Database) Atime(id EntryID) (time.Time, bool) {
	a, ok := db.attrRow(id, FlagAtime)
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(0, a.Atime), true
}

// Mode returns the recorded mode bits.
func (db *Database) Mode(id EntryID) (uint32, bool) {
	a, ok := db.attrRow(id, FlagMode)
	if !ok {
		return 0, false
	}
	return a.Mode, true
}

func (db *Database) attrRow(id EntryID, want Flags) (*Attributes, bool) {
	if !db.flags.Has(want) {
		return nil, false
	}
	row := db.entries[id].Attr
	if row == NoAttr {
		return nil, false
	}
	return &db.attrs[row], true
}

// Attrs exposes the attribute table for serialization.
func (db *Database) Attrs() []Attributes { return db.attrs }

// Names exposes the basename interner for serialization.
func (db *Database) Names() *Interner { return db.names }

// FoldedNames exposes the folded interner for serialization, nil when the
// fold table is absent.
func (db *Database) FoldedNames() *Interner { return db.folded }

// FromParts assembles a Database from deserialized components. The caller
// is responsible for having validated the parts against each other; the
// structural invariants are re-checked lazily by path reconstruction.
func FromParts(names, folded []string, entries []Entry, attrs []Attributes, roots []Root, flags Flags) *Database {
	db := &Database{
		names:   internerFromFragments(names),
		entries: entries,
		attrs:   attrs,
		roots:   roots,
		flags:   flags,
	}
	if flags.Has(FlagFolded) {
		db.folded = internerFromFragments(folded)
	}
	return db
}
