package orchestrator

import "sync"

// pendingCall is the shared handle for one in-flight deduplicated request.
// The leader executes the work and publishes value/err before closing done;
// every other caller with the same key waits on done and shares the outcome.
type pendingCall struct {
	done  chan struct{}
	value any
	err   error
}

// inflightRegistry maps deduplication keys to their pending calls.
type inflightRegistry struct {
	mu    sync.Mutex
	calls map[string]*pendingCall
}

func newInflightRegistry() *inflightRegistry {
	return &inflightRegistry{calls: make(map[string]*pendingCall)}
}

// join returns the pending call for key and whether the caller is the leader
// (the one responsible for executing the work).
func (r *inflightRegistry) join(key string) (*pendingCall, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if call, ok := r.calls[key]; ok {
		return call, false
	}
	call := &pendingCall{done: make(chan struct{})}
	r.calls[key] = call
	return call, true
}

// complete publishes the outcome, releases the slot and wakes all waiters.
func (r *inflightRegistry) complete(key string, call *pendingCall, value any, err error) {
	r.mu.Lock()
	delete(r.calls, key)
	r.mu.Unlock()

	call.value = value
	call.err = err
	close(call.done)
}

// size returns the number of in-flight calls.
func (r *inflightRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}
