package render

import (
	"sync"

	"pagepress/internal/ports"
)

// imageResourceType is the CDP resource type for images.
const imageResourceType = "Image"

// PendingImageSet tracks image requests that have been issued but have
// not yet received a response or failed. An ID is present exactly while
// its request is in flight. Event callbacks arrive on the browser
// connection's goroutine while the job polls Len, hence the mutex.
type PendingImageSet struct {
	mu      sync.Mutex
	pending map[string]struct{}
}

func NewPendingImageSet() *PendingImageSet {
	return &PendingImageSet{pending: make(map[string]struct{})}
}

// OnResourceRequested records an in-flight request. Redirects reuse the
// request ID, so repeated calls are idempotent.
func (s *PendingImageSet) OnResourceRequested(id string) {
	s.mu.Lock()
	s.pending[id] = struct{}{}
	s.mu.Unlock()
}

// OnResourceSettled removes a request that responded or failed.
// Unknown IDs are ignored.
func (s *PendingImageSet) OnResourceSettled(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// Observe feeds a page network event into the set. Non-image events
// are ignored.
func (s *PendingImageSet) Observe(ev ports.ResourceEvent) {
	if ev.Type != imageResourceType {
		return
	}
	switch ev.Phase {
	case ports.ResourceRequested:
		s.OnResourceRequested(ev.ID)
	case ports.ResourceResponded, ports.ResourceFailed:
		s.OnResourceSettled(ev.ID)
	}
}

func (s *PendingImageSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
