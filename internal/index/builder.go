package index

import "sync"

// ChildRecord is one directory entry as seen by a crawl worker, before it
// has an id. The worker collects and sorts the records for a directory,
// then commits them in one block so the children occupy contiguous ids.
type ChildRecord struct {
	Name  string
	IsDir bool
	Attr  *Attributes // nil when no attributes were collected
}

// Builder accumulates entries during a crawl and freezes them into a
// Database. Interning runs concurrently; the entry vector itself is
// guarded by a single mutex held only for the per-directory block commit.
type Builder struct {
	names  *Interner
	folded *Interner
	flags  Flags

	mu      sync.Mutex
	entries []Entry
	attrs   []Attributes
	roots   []Root
}

// NewBuilder creates a Builder for the given build flags.
func NewBuilder(flags Flags) *Builder {
	b := &Builder{
		names: NewInterner(),
		flags: flags,
	}
	if flags.Has(FlagFolded) {
		b.folded = NewInterner()
	}
	return b
}

// Flags returns the build flags.
func (b *Builder) Flags() Flags { return b.flags }

// AddRoot allocates the entry for a crawl root. The root's interned
// fragment is its full canonical path; its parent is the NoEntry sentinel.
func (b *Builder) AddRoot(path string, attr *Attributes) EntryID {
	e := Entry{
		Name:   b.names.Intern(path),
		Fold:   NoName,
		Parent: NoEntry,
		Attr:   NoAttr,
		IsDir:  true,
	}
	if b.folded != nil {
		e.Fold = b.folded.Intern(Fold(path))
	}

	b.mu.Lock()
	id := EntryID(len(b.entries))
	if attr != nil {
		e.Attr = uint32(len(b.attrs))
		b.attrs = append(b.attrs, *attr)
	}
	b.entries = append(b.entries, e)
	b.roots = append(b.roots, Root{Path: path, Entry: id})
	b.mu.Unlock()
	return id
}

// AddChildren commits a directory's sorted children as one contiguous id
// block and records the range on the parent. Returns the first child id.
// Interning happens outside the entry lock; the lock covers only the block
// append, keeping the critical section proportional to the memcpy.
func (b *Builder) AddChildren(parent EntryID, recs []ChildRecord) EntryID {
	block := make([]Entry, len(recs))
	for i := range recs {
		block[i] = Entry{
			Name:   b.names.Intern(recs[i].Name),
			Fold:   NoName,
			Parent: parent,
			Attr:   NoAttr,
			IsDir:  recs[i].IsDir,
		}
		if b.folded != nil {
			block[i].Fold = b.folded.Intern(Fold(recs[i].Name))
		}
	}

	b.mu.Lock()
	start := EntryID(len(b.entries))
	for i := range recs {
		if recs[i].Attr != nil {
			block[i].Attr = uint32(len(b.attrs))
			b.attrs = append(b.attrs, *recs[i].Attr)
		}
	}
	b.entries = append(b.entries, block...)
	b.entries[parent].ChildStart = start
	b.entries[parent].ChildCount = uint32(len(recs))
	b.mu.Unlock()
	return start
}

// NumEntries returns the current entry count.
func (b *Builder) NumEntries() int {
	b.mu.Lock()
	n := len(b.entries)
	b.mu.Unlock()
	return n
}

// Finish freezes the accumulated state into an immutable Database.
func (b *Builder) Finish() *Database {
	b.names.seal()
	if b.folded != nil {
		b.folded.seal()
	}
	return &Database{
		names:   b.names,
		folded:  b.folded,
		entries: b.entries,
		attrs:   b.attrs,
		roots:   b.roots,
		flags:   b.flags,
	}
}
