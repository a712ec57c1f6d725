package index

import (
	"strings"
	"sync"
)

// NameID is a dense handle into an Interner. Handles are assigned in
// insertion order and stay valid for the lifetime of the owning Database.
type NameID uint32

// NoName marks an absent handle.
const NoName NameID = ^NameID(0)

// Interner deduplicates path fragments. Filenames repeat heavily across a
// tree (think "Makefile", "index.js"), so each distinct fragment is stored
// once and referenced by handle. Insertion is safe from concurrent crawl
// workers; a single short-held mutex guards the table.
type Interner struct {
	mu        sync.Mutex
	lookup    map[string]NameID
	fragments []string
}

// NewInterner creates an empty Interner.
func NewInterner() *Interner {
	return &Interner{lookup: make(map[string]NameID, 1024)}
}

// Intern returns the handle for fragment, assigning the next dense handle
// if the fragment has not been seen before.
func (it *Interner) Intern(fragment string) NameID {
	it.mu.Lock()
	id, ok := it.lookup[fragment]
	if !ok {
		id = NameID(len(it.fragments))
		it.fragments = append(it.fragments, fragment)
		it.lookup[fragment] = id
	}
	it.mu.Unlock()
	return id
}

// Resolve returns the fragment for a handle.
func (it *Interner) Resolve(id NameID) string {
	return it.fragments[id]
}

// Len returns the number of distinct fragments.
func (it *Interner) Len() int {
	it.mu.Lock()
	n := len(it.fragments)
	it.mu.Unlock()
	return n
}

// Bytes returns the total size of stored fragments.
func (it *Interner) Bytes() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	n := 0
	for _, f := range it.fragments {
		n += len(f)
	}
	return n
}

// seal drops the lookup map once the build is done. A loaded or sealed
// Interner only resolves; Intern after seal would panic on the nil map,
// and an immutable Database never calls it.
func (it *Interner) seal() {
	it.mu.Lock()
	it.lookup = nil
	it.mu.Unlock()
}

// internerFromFragments reconstructs an Interner from its fragment list in
// handle order. Used by the persistence layer; the lookup map is not
// rebuilt because a loaded Database never interns.
func internerFromFragments(fragments []string) *Interner {
	return &Interner{fragments: fragments}
}

// Fragments exposes the fragment list in handle order for serialization.
func (it *Interner) Fragments() []string {
	return it.fragments
}

// Fold returns the case-folded form of a fragment. ASCII-dominant names
// make strings.ToLower effectively allocation-free for already-lower input.
func Fold(fragment string) string {
	return strings.ToLower(fragment)
}
