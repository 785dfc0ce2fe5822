// Package sequencer restores total order over finalized envelopes that
// arrive in whatever order the network provides. It buffers early
// arrivals, reports the holes blocking them, and releases events
// strictly by snapshot sequence id, exactly once each.
package sequencer

import (
	"dealwatch/internal/protocol"
)

// Detector tracks the next expected sequence id for one session.
// Not safe for concurrent use; the observer's run loop owns it.
type Detector struct {
	expected int64
	pending  map[int64]protocol.FinalizedEnvelope
}

// Result of observing one live arrival.
type Result struct {
	HasGap  bool
	Missing []int64
	Ready   []protocol.FinalizedEnvelope
}

func New() *Detector {
	return &Detector{pending: map[int64]protocol.FinalizedEnvelope{}}
}

// Observe inserts a live arrival and reports either the holes in front
// of it or the events that just became releasable.
//
// Arrivals ahead of the expected id do not advance the watermark; the
// detector waits for the gap to be filled. Duplicate ids overwrite
// their pending slot and never cause a second release, because release
// is driven purely by draining from the expected id.
func (d *Detector) Observe(ev protocol.FinalizedEnvelope) Result {
	seq := ev.SnapshotSequenceID
	if seq < d.expected {
		// Already released in an earlier batch; a second copy must not
		// re-enter the buffer.
		return Result{}
	}
	d.pending[seq] = ev

	if seq > d.expected {
		var missing []int64
		for id := d.expected; id < seq; id++ {
			if _, ok := d.pending[id]; !ok {
				missing = append(missing, id)
			}
		}
		return Result{HasGap: true, Missing: missing}
	}
	return Result{Ready: d.drain()}
}

// Integrate inserts recovery-fetched events and returns whatever became
// releasable. Fetches may overlap live arrivals; overlaps are harmless.
func (d *Detector) Integrate(evs []protocol.FinalizedEnvelope) []protocol.FinalizedEnvelope {
	for _, ev := range evs {
		if ev.SnapshotSequenceID < d.expected {
			continue
		}
		d.pending[ev.SnapshotSequenceID] = ev
	}
	return d.drain()
}

func (d *Detector) drain() []protocol.FinalizedEnvelope {
	var ready []protocol.FinalizedEnvelope
	for {
		ev, ok := d.pending[d.expected]
		if !ok {
			return ready
		}
		delete(d.pending, d.expected)
		ready = append(ready, ev)
		d.expected++
	}
}

// Reset discards all buffered state and restarts expectations at
// start. Must accompany every reconnect and new hand; reusing a buffer
// across connections corrupts ordering for the new one.
func (d *Detector) Reset(start int64) {
	d.expected = start
	d.pending = map[int64]protocol.FinalizedEnvelope{}
}

// Expected returns the next sequence id the detector will release.
func (d *Detector) Expected() int64 { return d.expected }

// PendingCount reports how many out-of-order events are buffered.
func (d *Detector) PendingCount() int { return len(d.pending) }
