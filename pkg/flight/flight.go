package flight

import (
	"sync"
	"time"
)

// Cache coalesces concurrent calls for the same key and keeps successful results
// for a limited time. Failed results are never cached.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	finished map[K]entry[V]
	pending  map[K]*job[V]

	work func(K) (V, error)
	ttl  time.Duration
	now  func() time.Time
}

type entry[V any] struct {
	val      V
	deadline time.Time // zero => never expires
}

type job[V any] struct {
	val  V
	err  error
	done chan struct{}
}

func NewCache[K comparable, V any](work func(K) (V, error)) *Cache[K, V] {
	return &Cache[K, V]{
		finished: make(map[K]entry[V]),
		pending:  make(map[K]*job[V]),
		work:     work,
		ttl:      time.Hour,
		now:      time.Now,
	}
}

// Expiry sets how long future results are kept. d <= 0 keeps them forever.
func (c *Cache[K, V]) Expiry(d time.Duration) {
	c.mu.Lock()
	c.ttl = d
	c.mu.Unlock()
}

// Get returns a cached result, joins an in-flight call for k, or runs the work.
func (c *Cache[K, V]) Get(k K) (V, error) {
	c.mu.Lock()
	if e, ok := c.finished[k]; ok {
		if e.deadline.IsZero() || c.now().Before(e.deadline) {
			c.mu.Unlock()
			return e.val, nil
		}
		delete(c.finished, k)
	}
	if j, ok := c.pending[k]; ok {
		c.mu.Unlock()
		<-j.done
		return j.val, j.err
	}
	j := &job[V]{done: make(chan struct{})}
	c.pending[k] = j
	c.mu.Unlock()

	return c.run(k, j)
}

// Force runs the work for k even when a result is cached, after any in-flight call finishes.
func (c *Cache[K, V]) Force(k K) (V, error) {
	for {
		c.mu.Lock()
		existing, ok := c.pending[k]
		if !ok {
			j := &job[V]{done: make(chan struct{})}
			c.pending[k] = j
			c.mu.Unlock()
			return c.run(k, j)
		}
		c.mu.Unlock()
		<-existing.done
	}
}

// Peek returns a cached, unexpired result without running any work.
func (c *Cache[K, V]) Peek(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.finished[k]
	if !ok || (!e.deadline.IsZero() && !c.now().Before(e.deadline)) {
		var zero V
		return zero, false
	}
	return e.val, true
}

func (c *Cache[K, V]) Forget(k K) {
	c.mu.Lock()
	delete(c.finished, k)
	c.mu.Unlock()
}

func (c *Cache[K, V]) run(k K, j *job[V]) (V, error) {
	defer func() {
		c.mu.Lock()
		delete(c.pending, k)
		c.mu.Unlock()
		close(j.done)
	}()

	j.val, j.err = c.work(k)
	if j.err == nil {
		c.mu.Lock()
		e := entry[V]{val: j.val}
		if c.ttl > 0 {
			e.deadline = c.now().Add(c.ttl)
		}
		c.finished[k] = e
		c.mu.Unlock()
	}
	return j.val, j.err
}
