package buffer

import (
	"sort"
	"sync"
	"time"

	"codeberg.org/mutker/thermowatch/internal/telemetry"
)

// DefaultRetention applies when a buffer is created with a non-positive window.
const DefaultRetention = 3 * time.Hour

// RetentionBuffer keeps the samples ingested during the trailing retention
// window, ordered by ingestion time. It is safe for concurrent use: mutations
// take the write lock, reads take the read lock and return copies.
type RetentionBuffer struct {
	mu        sync.RWMutex
	retention time.Duration

	// samples[head:] are live, oldest first. The expired prefix is released
	// by advancing head and compacted once it dominates the backing array.
	samples []telemetry.Sample
	head    int

	inserted   int64
	evicted    int64
	outOfOrder int64
}

// Stats describes the buffer contents at one point in time.
type Stats struct {
	Retention  time.Duration
	Count      int
	Oldest     time.Time
	Newest     time.Time
	Inserted   int64
	Evicted    int64
	OutOfOrder int64
}

// Span is the time covered by the retained samples.
func (s Stats) Span() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Newest.Sub(s.Oldest)
}

// New creates an empty buffer holding samples for at most retention.
func New(retention time.Duration) *RetentionBuffer {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &RetentionBuffer{retention: retention}
}

func (b *RetentionBuffer) Retention() time.Duration {
	return b.retention
}

// Insert adds a sample without evicting. A sample older than the current
// tail is placed at its sorted position, after any equal timestamps.
func (b *RetentionBuffer) Insert(s telemetry.Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insert(s)
}

// Evict removes every sample older than the retention window at now and
// returns how many were removed.
func (b *RetentionBuffer) Evict(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evict(now)
}

// Append inserts s and evicts at now as one atomic step, so readers never
// see the buffer between the two.
func (b *RetentionBuffer) Append(s telemetry.Sample, now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.insert(s)
	return b.evict(now)
}

// SliceByWindow returns, oldest first, every retained sample no older than
// window at now. window is clamped to [0, retention].
func (b *RetentionBuffer) SliceByWindow(now time.Time, window time.Duration) []telemetry.Sample {
	if window < 0 {
		window = 0
	}
	if window > b.retention {
		window = b.retention
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	live := b.samples[b.head:]
	i := firstAtOrAfter(live, now.UnixMilli()-window.Milliseconds())

	out := make([]telemetry.Sample, len(live)-i)
	copy(out, live[i:])
	return out
}

// Latest returns the most recently ingested sample.
func (b *RetentionBuffer) Latest() (telemetry.Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	live := b.samples[b.head:]
	if len(live) == 0 {
		return telemetry.Sample{}, false
	}
	return live[len(live)-1], true
}

// LatestWithin returns the most recent sample only if an eviction pass at now
// would keep it.
func (b *RetentionBuffer) LatestWithin(now time.Time) (telemetry.Sample, bool) {
	s, ok := b.Latest()
	if !ok || now.UnixMilli()-s.IngestedAtMs() > b.retention.Milliseconds() {
		return telemetry.Sample{}, false
	}
	return s, true
}

func (b *RetentionBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.samples) - b.head
}

func (b *RetentionBuffer) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Retention:  b.retention,
		Count:      len(b.samples) - b.head,
		Inserted:   b.inserted,
		Evicted:    b.evicted,
		OutOfOrder: b.outOfOrder,
	}
	if st.Count > 0 {
		st.Oldest = b.samples[b.head].IngestedAt()
		st.Newest = b.samples[len(b.samples)-1].IngestedAt()
	}
	return st
}

func (b *RetentionBuffer) insert(s telemetry.Sample) {
	b.inserted++

	live := b.samples[b.head:]
	n := len(live)
	if n == 0 || live[n-1].IngestedAtMs() <= s.IngestedAtMs() {
		b.samples = append(b.samples, s)
		return
	}

	b.outOfOrder++
	ts := s.IngestedAtMs()
	idx := b.head + sort.Search(n, func(i int) bool {
		return live[i].IngestedAtMs() > ts
	})

	b.samples = append(b.samples, telemetry.Sample{})
	copy(b.samples[idx+1:], b.samples[idx:])
	b.samples[idx] = s
}

func (b *RetentionBuffer) evict(now time.Time) int {
	live := b.samples[b.head:]
	n := firstAtOrAfter(live, now.UnixMilli()-b.retention.Milliseconds())
	if n == 0 {
		return 0
	}

	for i := b.head; i < b.head+n; i++ {
		b.samples[i] = telemetry.Sample{}
	}
	b.head += n
	b.evicted += int64(n)
	b.compact()

	return n
}

func (b *RetentionBuffer) compact() {
	if b.head == len(b.samples) {
		b.samples = b.samples[:0]
		b.head = 0
		return
	}
	if b.head < len(b.samples)/2 {
		return
	}

	n := copy(b.samples, b.samples[b.head:])
	for i := n; i < len(b.samples); i++ {
		b.samples[i] = telemetry.Sample{}
	}
	b.samples = b.samples[:n]
	b.head = 0
}

// firstAtOrAfter returns the index of the first sample ingested at or after
// cutoffMs.
func firstAtOrAfter(samples []telemetry.Sample, cutoffMs int64) int {
	return sort.Search(len(samples), func(i int) bool {
		return samples[i].IngestedAtMs() >= cutoffMs
	})
}
