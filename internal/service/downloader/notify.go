package downloader

import "sync"

// notifier delivers queued callbacks in enqueue order from whichever
// goroutine finds the queue idle. A callback that re-enters the session only
// enqueues; its work is delivered once the current callback returns.
type notifier struct {
	mu       sync.Mutex
	queue    []func()
	draining bool
}

func (n *notifier) enqueue(fns []func()) {
	if len(fns) == 0 {
		return
	}
	n.mu.Lock()
	n.queue = append(n.queue, fns...)
	n.mu.Unlock()
}

func (n *notifier) drain() {
	n.mu.Lock()
	if n.draining {
		n.mu.Unlock()
		return
	}
	n.draining = true

	for len(n.queue) > 0 {
		fn := n.queue[0]
		n.queue[0] = nil
		n.queue = n.queue[1:]
		n.mu.Unlock()
		fn()
		n.mu.Lock()
	}

	n.draining = false
	n.mu.Unlock()
}
