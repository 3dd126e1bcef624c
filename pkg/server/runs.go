package server

import (
	"sync"

	"storyboard/pkg/story"
)

// watchers tracks, per run key, the request that started the run and the
// streams currently waiting on it. Progress from a run goes to every stream
// watching its key at the moment the event is published.
type watchers struct {
	mu   sync.Mutex
	next int
	runs map[string]*watchedRun
}

type watchedRun struct {
	req       storyboardReq
	listeners map[int]func(story.Event)
}

func newWatchers() *watchers {
	return &watchers{runs: make(map[string]*watchedRun)}
}

// watch registers fn for progress on key. The returned func removes it and is
// safe to call more than once; once it returns fn receives no further events.
func (w *watchers) watch(key string, req storyboardReq, fn func(story.Event)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	run, ok := w.runs[key]
	if !ok {
		run = &watchedRun{req: req, listeners: make(map[int]func(story.Event))}
		w.runs[key] = run
	}
	id := w.next
	w.next++
	run.listeners[id] = fn

	return sync.OnceFunc(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(run.listeners, id)
		if len(run.listeners) == 0 && w.runs[key] == run {
			delete(w.runs, key)
		}
	})
}

// request returns the submission watched under key.
func (w *watchers) request(key string) (storyboardReq, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	run, ok := w.runs[key]
	if !ok {
		return storyboardReq{}, false
	}
	return run.req, true
}

func (w *watchers) count(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if run, ok := w.runs[key]; ok {
		return len(run.listeners)
	}
	return 0
}

// publish delivers ev to every stream watching key. Delivery happens under the
// lock so a stream that has stopped watching never sees a late event.
func (w *watchers) publish(key string, ev story.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	run, ok := w.runs[key]
	if !ok {
		return
	}
	for _, fn := range run.listeners {
		fn(ev)
	}
}
