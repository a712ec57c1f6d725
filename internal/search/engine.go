// Package search evaluates a compiled matcher over the database entry
// vector in parallel. The scan is partitioned into fixed-size chunks of
// entry ids; workers claim chunks with an atomic counter and hits are
// merged back into strictly increasing entry-id order, which corresponds
// to a stable pre-order walk thanks to the contiguous child ranges.
package search

import (
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/dl/indexa/internal/cancel"
	"github.com/dl/indexa/internal/index"
	"github.com/dl/indexa/internal/matcher"
)

// chunkSize bounds both the ordering buffers and the cancellation check
// cadence: the token is observed once per chunk.
const chunkSize = 1024

// NoLimit disables the hit cap.
const NoLimit = -1

// Sink receives matching entry ids in increasing order. Returning false
// stops the search.
type Sink func(id index.EntryID) bool

// Options tunes a single search.
type Options struct {
	// MaxHits caps the number of delivered hits; once reached the
	// remaining partitions are cancelled. Zero means zero hits (the
	// search returns immediately); use NoLimit for an unbounded search.
	MaxHits int
}

// Engine runs searches with a fixed worker count.
type Engine struct {
	threads int
}

// New creates an Engine. threads <= 0 selects the host logical CPU count.
func New(threads int) *Engine {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	return &Engine{threads: threads}
}

// Search scans db with m and delivers every matching entry id to sink.
// It returns when the entry space is exhausted, the token fires, the cap
// is reached, or the sink signals stop. The only error condition is a
// structurally corrupt database surfacing during path reconstruction.
func (e *Engine) Search(db *index.Database, m *matcher.Matcher, tok *cancel.Token, opts Options, sink Sink) error {
	n := db.NumEntries()
	if n == 0 || opts.MaxHits == 0 || tok.Cancelled() {
		return nil
	}

	numChunks := (n + chunkSize - 1) / chunkSize
	var nextChunk atomic.Int64
	var stop atomic.Bool

	ord := &orderedMerge{
		bufs: make(map[int][]index.EntryID),
		max:  opts.MaxHits,
		sink: sink,
		stop: &stop,
	}

	// Matching against pre-folded names only works when the database
	// carries the folded table; otherwise fold per entry on the fly.
	useFold := m.PreFolded() && db.Folded()

	workers := e.threads
	if workers > numChunks {
		workers = numChunks
	}

	var (
		errMu    sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		errMu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		errMu.Unlock()
		stop.Store(true)
	}

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var pathBuf []byte // per-worker scratch for path reconstruction
			for !stop.Load() && !tok.Cancelled() {
				c := int(nextChunk.Add(1)) - 1
				if c >= numChunks {
					return
				}
				lo := c * chunkSize
				hi := lo + chunkSize
				if hi > n {
					hi = n
				}

				var hits []index.EntryID
				for id := index.EntryID(lo); id < index.EntryID(hi); id++ {
					var matched bool
					if m.Empty() {
						matched = true
					} else if m.MatchPath() {
						var err error
						if useFold {
							pathBuf, err = db.AppendFoldedPath(pathBuf[:0], id)
						} else {
							pathBuf, err = db.AppendPath(pathBuf[:0], id)
						}
						if err != nil {
							fail(err)
							return
						}
						text := unsafeString(pathBuf)
						if useFold {
							matched = m.MatchFolded(text)
						} else {
							matched = m.Match(text)
						}
					} else if useFold {
						matched = m.MatchFolded(db.FoldedName(id))
					} else {
						matched = m.Match(db.Name(id))
					}
					if matched {
						hits = append(hits, id)
					}
				}
				ord.deliver(c, hits)
			}
		}()
	}
	wg.Wait()
	return firstErr
}

// orderedMerge buffers per-chunk hit lists and emits them in chunk order,
// which is entry-id order because chunks are id-ordered ranges.
type orderedMerge struct {
	mu      sync.Mutex
	bufs    map[int][]index.EntryID
	next    int
	emitted int
	max     int // NoLimit = unbounded
	sink    Sink
	stop    *atomic.Bool
}

func (o *orderedMerge) deliver(chunk int, hits []index.EntryID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bufs[chunk] = hits
	for {
		h, ok := o.bufs[o.next]
		if !ok {
			return
		}
		delete(o.bufs, o.next)
		for _, id := range h {
			if o.max != NoLimit && o.emitted >= o.max {
				o.stop.Store(true)
				return
			}
			if !o.sink(id) {
				o.stop.Store(true)
				return
			}
			o.emitted++
		}
		o.next++
	}
}

// unsafeString views a byte slice as a string without copying. The scan
// loop reuses the buffer, so the string must not escape the matcher call.
func unsafeString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
