// Package store serializes a Database to a single little-endian file and
// back. The layout is header, roots, interner block(s), entry block,
// attribute block; the header carries a magic, a schema version bumped on
// every incompatible change, and the build flags.
package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dl/indexa/internal/index"
)

const (
	// Magic is "IDXA" read as a little-endian uint32.
	Magic uint32 = 0x41584449

	// SchemaVersion identifies the on-disk layout.
	SchemaVersion uint32 = 1
)

// ErrMalformedHeader is returned when the file is too short for a header
// or the magic does not match.
var ErrMalformedHeader = errors.New("store: malformed header")

// ErrTruncated is returned when a block extends past the end of the file
// or a record references an out-of-range index.
var ErrTruncated = errors.New("store: truncated or corrupt database file")

// IncompatibleSchemaError is returned when the file's schema version does
// not match this build. The caller typically prompts for a rebuild.
type IncompatibleSchemaError struct {
	Found    uint32
	Expected uint32
}

func (e *IncompatibleSchemaError) Error() string {
	return fmt.Sprintf("store: incompatible schema version %d (expected %d)", e.Found, e.Expected)
}

// Save writes db to path atomically: the bytes go to a temp file in the
// destination directory, which is fsynced and renamed into place.
func Save(db *index.Database, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".indexa-*")
	if err != nil {
		return fmt.Errorf("store: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := &writer{bw: bufio.NewWriterSize(tmp, 1<<20)}
	writeDatabase(w, db)
	if w.err != nil {
		return fmt.Errorf("store: write: %w", w.err)
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("store: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("store: rename: %w", err)
	}
	ok = true
	return nil
}

func writeDatabase(w *writer, db *index.Database) {
	w.u32(Magic)
	w.u32(SchemaVersion)
	w.u32(uint32(db.Flags()))

	roots := db.Roots()
	w.u32(uint32(len(roots)))
	for _, r := range roots {
		w.u32(uint32(len(r.Path)))
		w.bytes([]byte(r.Path))
		w.u32(uint32(r.Entry))
	}

	writeInterner(w, db.Names().Fragments())
	if db.Flags().Has(index.FlagFolded) {
		writeInterner(w, db.FoldedNames().Fragments())
	}

	entries := db.Entries()
	w.u32(uint32(len(entries)))
	for i := range entries {
		e := &entries[i]
		w.u32(uint32(e.Name))
		w.u32(uint32(e.Fold))
		w.u32(uint32(e.Parent))
		w.u32(e.Attr)
		w.u32(uint32(e.ChildStart))
		w.u32(e.ChildCount)
		if e.IsDir {
			w.u8(1)
		} else {
			w.u8(0)
		}
	}

	attrs := db.Attrs()
	flags := db.Flags()
	w.u32(uint32(len(attrs)))
	for i := range attrs {
		a := &attrs[i]
		if flags.Has(index.FlagSize) {
			w.u64(a.Size)
		}
		if flags.Has(index.FlagMtime) {
			w.u64(uint64(a.Mtime))
		}
		if flags.Has(index.FlagCtime) {
			w.u64(uint64(a.Ctime))
		}
		if flags.Has(index.FlagAtime) {
			w.u64(uint64(a.Atime))
		}
		if flags.Has(index.FlagMode) {
			w.u32(a.Mode)
		}
	}
}

// writeInterner emits the fragment count, the packed lengths, then the
// concatenated fragment bytes.
func writeInterner(w *writer, fragments []string) {
	w.u32(uint32(len(fragments)))
	for _, f := range fragments {
		w.u32(uint32(len(f)))
	}
	for _, f := range fragments {
		w.bytes([]byte(f))
	}
}

// Load reads a database file written by Save. The file is memory-mapped
// for the parse and fully copied into the heap before the mapping is
// released, so the returned Database has no file dependency.
func Load(path string) (*index.Database, error) {
	data, done, err := mapFile(path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	defer done()
	return decode(data)
}

func decode(data []byte) (*index.Database, error) {
	if len(data) < 12 {
		return nil, ErrMalformedHeader
	}
	r := &reader{data: data}
	if r.u32() != Magic {
		return nil, ErrMalformedHeader
	}
	if v := r.u32(); v != SchemaVersion {
		return nil, &IncompatibleSchemaError{Found: v, Expected: SchemaVersion}
	}
	flags := index.Flags(r.u32())

	rootCount := int(r.u32())
	var roots []index.Root
	for range rootCount {
		n := int(r.u32())
		path := string(r.bytes(n))
		id := index.EntryID(r.u32())
		roots = append(roots, index.Root{Path: path, Entry: id})
		if r.err != nil {
			return nil, r.err
		}
	}

	names, err := readInterner(r)
	if err != nil {
		return nil, err
	}
	var folded []string
	if flags.Has(index.FlagFolded) {
		folded, err = readInterner(r)
		if err != nil {
			return nil, err
		}
	}

	const entryRecordSize = 25
	entryCount := int(r.u32())
	if r.err != nil {
		return nil, r.err
	}
	if entryCount*entryRecordSize > r.remaining() {
		return nil, ErrTruncated
	}
	entries := make([]index.Entry, entryCount)
	for i := range entries {
		e := &entries[i]
		e.Name = index.NameID(r.u32())
		e.Fold = index.NameID(r.u32())
		e.Parent = index.EntryID(r.u32())
		e.Attr = r.u32()
		e.ChildStart = index.EntryID(r.u32())
		e.ChildCount = r.u32()
		e.IsDir = r.u8() != 0
	}
	if r.err != nil {
		return nil, r.err
	}

	rowSize := 0
	for _, f := range []index.Flags{index.FlagSize, index.FlagMtime, index.FlagCtime, index.FlagAtime} {
		if flags.Has(f) {
			rowSize += 8
		}
	}
	if flags.Has(index.FlagMode) {
		rowSize += 4
	}
	attrCount := int(r.u32())
	if r.err != nil {
		return nil, r.err
	}
	if attrCount*rowSize > r.remaining() {
		return nil, ErrTruncated
	}
	var attrs []index.Attributes
	if attrCount > 0 {
		attrs = make([]index.Attributes, attrCount)
	}
	for i := range attrs {
		a := &attrs[i]
		if flags.Has(index.FlagSize) {
			a.Size = r.u64()
		}
		if flags.Has(index.FlagMtime) {
			a.Mtime = int64(r.u64())
		}
		if flags.Has(index.FlagCtime) {
			a.Ctime = int64(r.u64())
		}
		if flags.Has(index.FlagAtime) {
			a.Atime = int64(r.u64())
		}
		if flags.Has(index.FlagMode) {
			a.Mode = r.u32()
		}
	}
	if r.err != nil {
		return nil, r.err
	}

	if err := validate(entries, attrs, roots, names, folded, flags); err != nil {
		return nil, err
	}
	return index.FromParts(names, folded, entries, attrs, roots, flags), nil
}

func readInterner(r *reader) ([]string, error) {
	count := int(r.u32())
	if r.err != nil {
		return nil, r.err
	}
	if count*4 > r.remaining() {
		return nil, ErrTruncated
	}
	lengths := make([]uint32, count)
	for i := range lengths {
		lengths[i] = r.u32()
	}
	if r.err != nil {
		return nil, r.err
	}
	fragments := make([]string, count)
	for i := range fragments {
		fragments[i] = string(r.bytes(int(lengths[i])))
	}
	return fragments, r.err
}

// validate cross-checks every index reference so a corrupt file fails at
// load time instead of at query time.
func validate(entries []index.Entry, attrs []index.Attributes, roots []index.Root, names, folded []string, flags index.Flags) error {
	n := len(entries)
	for i := range entries {
		e := &entries[i]
		if int(e.Name) >= len(names) {
			return fmt.Errorf("%w: entry %d name out of range", ErrTruncated, i)
		}
		if flags.Has(index.FlagFolded) && int(e.Fold) >= len(folded) {
			return fmt.Errorf("%w: entry %d folded name out of range", ErrTruncated, i)
		}
		if e.Parent != index.NoEntry {
			if int(e.Parent) >= n {
				return fmt.Errorf("%w: entry %d parent out of range", ErrTruncated, i)
			}
			if !entries[e.Parent].IsDir {
				return fmt.Errorf("%w: entry %d parent is not a directory", ErrTruncated, i)
			}
		}
		if e.Attr != index.NoAttr && int(e.Attr) >= len(attrs) {
			return fmt.Errorf("%w: entry %d attribute row out of range", ErrTruncated, i)
		}
		if e.IsDir && int(e.ChildStart)+int(e.ChildCount) > n {
			return fmt.Errorf("%w: entry %d child range out of range", ErrTruncated, i)
		}
	}
	for _, root := range roots {
		if int(root.Entry) >= n || entries[root.Entry].Parent != index.NoEntry {
			return fmt.Errorf("%w: root %s entry mismatch", ErrTruncated, root.Path)
		}
	}
	return nil
}

// writer wraps a bufio.Writer with little-endian helpers and a sticky
// error.
type writer struct {
	bw  *bufio.Writer
	err error
	tmp [8]byte
}

func (w *writer) bytes(b []byte) {
	if w.err != nil {
		return
	}
	_, w.err = w.bw.Write(b)
}

func (w *writer) u8(v uint8) {
	if w.err != nil {
		return
	}
	w.err = w.bw.WriteByte(v)
}

func (w *writer) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.tmp[:4], v)
	w.bytes(w.tmp[:4])
}

func (w *writer) u64(v uint64) {
	binary.LittleEndian.PutUint64(w.tmp[:8], v)
	w.bytes(w.tmp[:8])
}

// reader walks a byte buffer with bounds checks; the first overrun sets a
// sticky ErrTruncated and zero values flow from then on.
type reader struct {
	data []byte
	off  int
	err  error
}

func (r *reader) remaining() int {
	return len(r.data) - r.off
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = ErrTruncated
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u32() uint32 {
	b := r.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *reader) u64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
