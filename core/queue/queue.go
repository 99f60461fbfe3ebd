// Package queue decides track ordering and answers "what plays next".
// It never touches the pipeline; it only returns track references for
// the session loop to act on.
package queue

import (
	"fmt"
	"math/rand"
	"time"

	"playd/model"
)

// Mode selects the ordering policy.
type Mode string

const (
	ModeLinear  Mode = "linear"
	ModeShuffle Mode = "shuffle"
)

// Repeat selects the end-of-queue policy.
type Repeat string

const (
	RepeatOff Repeat = "off"
	RepeatOne Repeat = "one"
	RepeatAll Repeat = "all"
)

// Queue is an ordered track list with a cursor, shuffle/repeat policy and
// playback history. It is owned by the session loop: methods are not safe
// for concurrent use.
type Queue struct {
	tracks []model.Track
	cursor int // index into tracks, -1 when empty or not started

	mode   Mode
	repeat Repeat

	// Shuffle order: a permutation of insertion-order indices, held
	// separately so switching back to linear restores insertion order.
	perm    []int
	permPos int

	// history holds previously played indices for PREV navigation,
	// oldest first, bounded by historyLimit.
	history []int
	// forward holds indices to return to when NEXT follows PREV.
	forward []int

	historyLimit int
	rng          *rand.Rand
}

// New creates an empty queue with the given history bound.
func New(historyLimit int) *Queue {
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &Queue{
		cursor:       -1,
		mode:         ModeLinear,
		repeat:       RepeatOff,
		historyLimit: historyLimit,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int { return len(q.tracks) }

// Cursor returns the index of the active entry, or -1.
func (q *Queue) Cursor() int { return q.cursor }

// Mode returns the current ordering mode.
func (q *Queue) Mode() Mode { return q.mode }

// Repeat returns the current repeat policy.
func (q *Queue) Repeat() Repeat { return q.repeat }

// Current returns the active track, if any.
func (q *Queue) Current() (model.Track, bool) {
	if q.cursor < 0 || q.cursor >= len(q.tracks) {
		return model.Track{}, false
	}
	return q.tracks[q.cursor], true
}

// Tracks returns a copy of the queue in insertion order.
func (q *Queue) Tracks() []model.Track {
	out := make([]model.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Enqueue inserts tracks at pos (insertion order); pos < 0 or past the
// end appends. Inserting at or before the cursor shifts the cursor so the
// currently playing entry keeps its identity.
func (q *Queue) Enqueue(tracks []model.Track, pos int) {
	if len(tracks) == 0 {
		return
	}
	if pos < 0 || pos > len(q.tracks) {
		pos = len(q.tracks)
	}

	n := len(tracks)
	q.tracks = append(q.tracks[:pos], append(append([]model.Track{}, tracks...), q.tracks[pos:]...)...)

	shift := func(idx int) int {
		if idx >= pos {
			return idx + n
		}
		return idx
	}
	if q.cursor >= pos {
		q.cursor += n
	}
	for i := range q.history {
		q.history[i] = shift(q.history[i])
	}
	for i := range q.forward {
		q.forward[i] = shift(q.forward[i])
	}
	for i := range q.perm {
		q.perm[i] = shift(q.perm[i])
	}

	// New entries join the unplayed tail of the shuffle order.
	if q.mode == ModeShuffle {
		fresh := make([]int, n)
		for i := range fresh {
			fresh[i] = pos + i
		}
		q.rng.Shuffle(n, func(i, j int) { fresh[i], fresh[j] = fresh[j], fresh[i] })
		q.perm = append(q.perm, fresh...)
	}
}

// Remove deletes the entry at index. Removing the cursor entry moves the
// cursor to the next valid index without starting playback; removing an
// earlier entry decrements it.
func (q *Queue) Remove(index int) error {
	if index < 0 || index >= len(q.tracks) {
		return fmt.Errorf("%w: index %d out of range", model.ErrProtocol, index)
	}

	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)

	if q.cursor > index {
		q.cursor--
	} else if q.cursor == index && q.cursor >= len(q.tracks) {
		// Removed the active last entry; fall back to the new last one.
		q.cursor = len(q.tracks) - 1
	}

	q.history = dropIndex(q.history, index)
	q.forward = dropIndex(q.forward, index)

	// Keep permPos pointing at the same shuffle entry when an earlier
	// element of the permutation disappears.
	for p, v := range q.perm {
		if v == index && p <= q.permPos && q.permPos > 0 {
			q.permPos--
			break
		}
	}
	q.perm = dropIndex(q.perm, index)
	if q.permPos >= len(q.perm) {
		q.permPos = len(q.perm) - 1
	}
	if q.permPos < 0 {
		q.permPos = 0
	}
	return nil
}

// dropIndex removes entries equal to idx and shifts greater ones down.
func dropIndex(s []int, idx int) []int {
	out := s[:0]
	for _, v := range s {
		if v == idx {
			continue
		}
		if v > idx {
			v--
		}
		out = append(out, v)
	}
	return out
}

// SetMode switches between linear and shuffle ordering. Entering shuffle
// starts a fresh pass with the current entry first so playback does not
// jump; leaving it exposes insertion order with the cursor unchanged.
func (q *Queue) SetMode(mode Mode) {
	if mode == q.mode {
		return
	}
	q.mode = mode

	if mode == ModeLinear {
		q.perm = nil
		q.permPos = 0
		return
	}
	q.reshuffle(q.cursor)
}

// reshuffle builds a new permutation. If first is a valid index it is
// placed at the head and the cursor pass restarts there.
func (q *Queue) reshuffle(first int) {
	q.perm = q.perm[:0]
	for i := range q.tracks {
		if i != first {
			q.perm = append(q.perm, i)
		}
	}
	q.rng.Shuffle(len(q.perm), func(i, j int) { q.perm[i], q.perm[j] = q.perm[j], q.perm[i] })
	if first >= 0 && first < len(q.tracks) {
		q.perm = append([]int{first}, q.perm...)
	}
	q.permPos = 0
}

// SetRepeat sets the repeat policy. Pure flag; only Advance consults it.
func (q *Queue) SetRepeat(r Repeat) {
	q.repeat = r
}

// Advance moves the cursor to the next track per the current policy and
// returns it. Returns false when the queue is exhausted (repeat off and
// nothing left); the cursor is left in place in that case.
func (q *Queue) Advance() (model.Track, bool) {
	if len(q.tracks) == 0 {
		return model.Track{}, false
	}

	// Not started yet: begin at the head of the active order.
	if q.cursor < 0 {
		if q.mode == ModeShuffle {
			if len(q.perm) == 0 {
				q.reshuffle(-1)
			}
			q.cursor = q.perm[0]
			q.permPos = 0
		} else {
			q.cursor = 0
		}
		return q.tracks[q.cursor], true
	}

	// Repeat-one reissues the same track, cursor untouched.
	if q.repeat == RepeatOne {
		return q.tracks[q.cursor], true
	}

	// NEXT after PREV walks forward history before resuming policy.
	if len(q.forward) > 0 {
		next := q.forward[len(q.forward)-1]
		q.forward = q.forward[:len(q.forward)-1]
		q.pushHistory(q.cursor)
		q.cursor = next
		return q.tracks[q.cursor], true
	}

	var next int
	switch q.mode {
	case ModeShuffle:
		if q.permPos+1 < len(q.perm) {
			q.permPos++
			next = q.perm[q.permPos]
		} else {
			if q.repeat != RepeatAll {
				return model.Track{}, false
			}
			// New pass. Keep the just-played track out of the first slot
			// so it cannot repeat back to back (unless it is alone).
			just := q.cursor
			q.reshuffle(-1)
			if len(q.perm) > 1 && q.perm[0] == just {
				j := 1 + q.rng.Intn(len(q.perm)-1)
				q.perm[0], q.perm[j] = q.perm[j], q.perm[0]
			}
			next = q.perm[0]
		}
	default:
		next = q.cursor + 1
		if next >= len(q.tracks) {
			if q.repeat != RepeatAll {
				return model.Track{}, false
			}
			next = 0
		}
	}

	q.pushHistory(q.cursor)
	q.cursor = next
	return q.tracks[q.cursor], true
}

// Previous pops the most recent history entry and moves the cursor there,
// recording the abandoned position for a later NEXT. Returns false when
// there is no history; there is no wraparound.
func (q *Queue) Previous() (model.Track, bool) {
	if len(q.history) == 0 {
		return model.Track{}, false
	}

	prev := q.history[len(q.history)-1]
	q.history = q.history[:len(q.history)-1]
	if prev < 0 || prev >= len(q.tracks) {
		return model.Track{}, false
	}

	if q.cursor >= 0 {
		q.forward = append(q.forward, q.cursor)
	}
	q.cursor = prev
	return q.tracks[q.cursor], true
}

// Goto jumps to an explicit index. Manual selection clears forward
// history and, under shuffle, restarts the pass at the chosen entry.
func (q *Queue) Goto(index int) (model.Track, error) {
	if index < 0 || index >= len(q.tracks) {
		return model.Track{}, fmt.Errorf("%w: index %d out of range", model.ErrProtocol, index)
	}

	if q.cursor >= 0 && q.cursor != index {
		q.pushHistory(q.cursor)
	}
	q.cursor = index
	q.forward = q.forward[:0]
	if q.mode == ModeShuffle {
		q.reshuffle(index)
	}
	return q.tracks[q.cursor], nil
}

// Clear empties the queue and resets all state.
func (q *Queue) Clear() {
	q.tracks = nil
	q.cursor = -1
	q.perm = nil
	q.permPos = 0
	q.history = nil
	q.forward = nil
}

// HistoryLen returns the number of entries available to Previous.
func (q *Queue) HistoryLen() int { return len(q.history) }

func (q *Queue) pushHistory(idx int) {
	q.history = append(q.history, idx)
	if len(q.history) > q.historyLimit {
		q.history = q.history[len(q.history)-q.historyLimit:]
	}
}
