package timers

import "sync"

// FeedWatcher is a Watcher that a backend pushes events into. It buffers only
// the latest undelivered event: a slow reader skips intermediate snapshots but
// always ends up on the newest one.
type FeedWatcher struct {
	mu      sync.Mutex
	ch      chan WatchEvent
	done    chan struct{}
	stopped bool
	onStop  func()
}

// NewFeedWatcher creates a watcher; onStop runs once when it is stopped.
func NewFeedWatcher(onStop func()) *FeedWatcher {
	return &FeedWatcher{
		ch:     make(chan WatchEvent, 1),
		done:   make(chan struct{}),
		onStop: onStop,
	}
}

// Push offers ev to the reader, replacing an older undelivered event.
// It reports false once the watcher has been stopped.
func (w *FeedWatcher) Push(ev WatchEvent) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	select {
	case w.ch <- ev:
		return true
	default:
	}
	select {
	case <-w.ch:
	default:
	}
	select {
	case w.ch <- ev:
	default:
	}
	return true
}

func (w *FeedWatcher) Events() <-chan WatchEvent {
	return w.ch
}

// Done is closed when the watcher stops.
func (w *FeedWatcher) Done() <-chan struct{} {
	return w.done
}

func (w *FeedWatcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.ch)
	close(w.done)
	w.mu.Unlock()

	if w.onStop != nil {
		w.onStop()
	}
}
