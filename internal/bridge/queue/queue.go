// Package queue holds the ordered FIFO of client->server frames pending
// transmission while the bridge is not ready to send them directly.
package queue

import (
	"sync"

	"github.com/viant/jsonrpc/internal/bridge/frame"
)

// Queue is the pending-frame FIFO of §4.4. It is safe for concurrent use;
// the supervisor and the frame router are the only callers and never hold
// it across a blocking call.
type Queue struct {
	mux    sync.Mutex
	frames []*frame.Frame
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Push appends f to the back of the queue. Per invariant I2, notifications
// (no id) must never be queued; callers are responsible for that check
// since the queue itself has no opinion on readiness policy.
func (q *Queue) Push(f *frame.Frame) {
	q.mux.Lock()
	defer q.mux.Unlock()
	q.frames = append(q.frames, f)
}

// PushFront inserts f at the head of the queue, used to give the
// handshake priority over whatever else is pending.
func (q *Queue) PushFront(f *frame.Frame) {
	q.mux.Lock()
	defer q.mux.Unlock()
	q.frames = append([]*frame.Frame{f}, q.frames...)
}

// DrainWhile removes frames from the front of the queue in order, calling
// action for each. It stops at the first frame for which action returns
// false (action ran for that frame too; used to pause a drain once the
// caller stops being ready). That frame is treated as NOT sent and is
// left at the front of the queue.
func (q *Queue) DrainWhile(action func(f *frame.Frame) bool) {
	for {
		q.mux.Lock()
		if len(q.frames) == 0 {
			q.mux.Unlock()
			return
		}
		next := q.frames[0]
		q.mux.Unlock()

		ok := action(next)

		q.mux.Lock()
		if len(q.frames) == 0 || q.frames[0] != next {
			// queue mutated concurrently (e.g. removeById); bail rather
			// than risk dropping or duplicating a frame.
			q.mux.Unlock()
			return
		}
		if !ok {
			q.mux.Unlock()
			return
		}
		q.frames = q.frames[1:]
		q.mux.Unlock()
	}
}

// RemoveById removes the first queued frame whose id equals id, returning
// true if one was removed.
func (q *Queue) RemoveById(id interface{}) bool {
	q.mux.Lock()
	defer q.mux.Unlock()
	for i, f := range q.frames {
		if f.HasId && frame.IdsEqual(f.Id, id) {
			q.frames = append(q.frames[:i], q.frames[i+1:]...)
			return true
		}
	}
	return false
}

// PromoteInitialize locates any queued initialize/id-0 frame and moves it
// to index 0; if none is queued it inserts the canonical handshake there.
// Per invariant I1, at most one initialize frame is ever present.
func (q *Queue) PromoteInitialize() {
	q.mux.Lock()
	defer q.mux.Unlock()
	for i, f := range q.frames {
		if f.IsInitialize() {
			if i == 0 {
				return
			}
			q.frames = append(q.frames[:i], q.frames[i+1:]...)
			q.frames = append([]*frame.Frame{f}, q.frames...)
			return
		}
	}
	q.frames = append([]*frame.Frame{frame.NewHandshake()}, q.frames...)
}

// Len returns the number of frames currently queued.
func (q *Queue) Len() int {
	q.mux.Lock()
	defer q.mux.Unlock()
	return len(q.frames)
}

// Snapshot returns a copy of the queue contents, front first. Intended for
// tests and debug logging only.
func (q *Queue) Snapshot() []*frame.Frame {
	q.mux.Lock()
	defer q.mux.Unlock()
	out := make([]*frame.Frame, len(q.frames))
	copy(out, q.frames)
	return out
}
