package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	ErrFull    = errors.New("queue is full")
	ErrStopped = errors.New("queue is stopped")
)

// Queue runs submitted requests on a fixed number of workers. Each Add returns its
// own result channels, so callers decide the order in which results are consumed.
type Queue[Req, Resp any] struct {
	work    func(context.Context, Req) (Resp, error)
	workers int

	items chan *Item[Req, Resp]
	stop  chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

type Item[Req, Resp any] struct {
	Ctx      context.Context
	Request  Req
	Response chan Resp
	Error    chan error
}

// New creates a queue with the given worker count and capacity for pending items.
func New[Req, Resp any](workers, capacity int, work func(context.Context, Req) (Resp, error)) *Queue[Req, Resp] {
	return &Queue[Req, Resp]{
		work:    work,
		workers: max(workers, 1),
		items:   make(chan *Item[Req, Resp], max(capacity, 1)),
		stop:    make(chan struct{}),
	}
}

func (q *Queue[Req, Resp]) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	for i := range q.workers {
		q.wg.Go(func() { q.processLoop(i) })
	}
}

// Stop signals the workers and waits for in-progress items to finish.
// Items still pending are answered with ErrStopped.
func (q *Queue[Req, Resp]) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	close(q.stop)
	q.mu.Unlock()

	q.wg.Wait()
	for {
		select {
		case item := <-q.items:
			item.Error <- ErrStopped
			close(item.Response)
		default:
			return
		}
	}
}

func (q *Queue[Req, Resp]) Add(ctx context.Context, req Req) (chan Resp, chan error, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return nil, nil, ErrStopped
	}

	respCh := make(chan Resp, 1)
	errCh := make(chan error, 1)

	select {
	case q.items <- &Item[Req, Resp]{
		Ctx:      ctx,
		Request:  req,
		Response: respCh,
		Error:    errCh,
	}:
		return respCh, errCh, nil
	default:
		return nil, nil, ErrFull
	}
}

func (q *Queue[Req, Resp]) processLoop(worker int) {
	log.Debug("queue worker started", "worker", worker)
	for {
		select {
		case <-q.stop:
			log.Debug("queue worker stopped", "worker", worker)
			return
		case item := <-q.items:
			q.processItem(item)
		}
	}
}

func (q *Queue[Req, Resp]) processItem(item *Item[Req, Resp]) {
	if err := item.Ctx.Err(); err != nil {
		item.Error <- err
		close(item.Response)
		return
	}

	resp, err := q.work(item.Ctx, item.Request)
	if err != nil {
		item.Error <- err
		close(item.Response)
		return
	}

	item.Response <- resp
	close(item.Error)
}

// Wait blocks until the item behind respCh/errCh completes or ctx is done.
func Wait[Resp any](ctx context.Context, respCh <-chan Resp, errCh <-chan error) (Resp, error) {
	var zero Resp
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case resp, ok := <-respCh:
		if ok {
			return resp, nil
		}
		return zero, <-errCh
	case err, ok := <-errCh:
		if ok {
			return zero, err
		}
		return <-respCh, nil
	}
}
