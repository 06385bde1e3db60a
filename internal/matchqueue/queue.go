// Package matchqueue holds one FIFO of waiting connections per supported time control.
package matchqueue

import (
	"sort"

	"github.com/park285/cheese-relay/internal/presence"
)

var ErrUnsupportedTimeControl = errf("unsupported time control")

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// Queue is owned by the coordinator goroutine and is not safe for concurrent use.
type Queue struct {
	buckets map[int][]presence.ConnID
	order   []int
}

func New(timeControls []int) *Queue {
	q := &Queue{buckets: make(map[int][]presence.ConnID, len(timeControls))}
	for _, tc := range timeControls {
		if tc <= 0 {
			continue
		}
		if _, dup := q.buckets[tc]; dup {
			continue
		}
		q.buckets[tc] = nil
		q.order = append(q.order, tc)
	}
	sort.Ints(q.order)
	return q
}

func (q *Queue) Supports(tc int) bool {
	_, ok := q.buckets[tc]
	return ok
}

// TimeControls returns the supported values in ascending order.
func (q *Queue) TimeControls() []int {
	out := make([]int, len(q.order))
	copy(out, q.order)
	return out
}

// EnqueueOrPair pairs id with the oldest live waiter of tc, or queues id when nobody is waiting.
// Waiters for which live reports false are discarded. The returned opponent is the
// earlier arrival. A connection already waiting in tc is left in place.
func (q *Queue) EnqueueOrPair(id presence.ConnID, tc int, live func(presence.ConnID) bool) (presence.ConnID, bool, error) {
	bucket, ok := q.buckets[tc]
	if !ok {
		return "", false, ErrUnsupportedTimeControl
	}
	for _, w := range bucket {
		if w == id {
			return "", false, nil
		}
	}
	q.removeExcept(id, tc)
	bucket = q.buckets[tc]

	for len(bucket) > 0 {
		head := bucket[0]
		bucket = bucket[1:]
		if live != nil && !live(head) {
			continue
		}
		q.buckets[tc] = bucket
		return head, true, nil
	}
	q.buckets[tc] = append(bucket, id)
	return "", false, nil
}

// Remove drops id from every bucket. It reports whether anything was removed.
func (q *Queue) Remove(id presence.ConnID) bool {
	return q.removeExcept(id, 0)
}

func (q *Queue) removeExcept(id presence.ConnID, keep int) bool {
	removed := false
	for tc, bucket := range q.buckets {
		if tc == keep {
			continue
		}
		for i, w := range bucket {
			if w == id {
				q.buckets[tc] = append(bucket[:i:i], bucket[i+1:]...)
				removed = true
				break
			}
		}
	}
	return removed
}

// Waiting returns a copy of the bucket for tc in arrival order.
func (q *Queue) Waiting(tc int) []presence.ConnID {
	bucket := q.buckets[tc]
	out := make([]presence.ConnID, len(bucket))
	copy(out, bucket)
	return out
}

// Len is the total number of waiting connections.
func (q *Queue) Len() int {
	n := 0
	for _, b := range q.buckets {
		n += len(b)
	}
	return n
}
