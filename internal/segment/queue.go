package segment

import (
	"context"
	"sync"

	"utter/internal/audio"
)

// Queue decouples capture from slow downstream work such as transcription.
// Accept enqueues and returns; a single worker delivers utterances to the
// next sink in the order they were accepted. A full queue blocks Accept
// rather than dropping an utterance.
type Queue struct {
	next  Sink
	ch    chan audio.Utterance
	onErr func(u audio.Utterance, err error)

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue returns a queue of the given capacity in front of next. onErr may
// be nil.
func NewQueue(next Sink, size int, onErr func(u audio.Utterance, err error)) *Queue {
	return &Queue{
		next:  next,
		ch:    make(chan audio.Utterance, max(1, size)),
		onErr: onErr,
	}
}

// Start launches the delivery worker. ctx is passed to the downstream sink.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for u := range q.ch {
			if err := q.next.Accept(ctx, u); err != nil && q.onErr != nil {
				q.onErr(u, err)
			}
		}
	}()
}

// Accept enqueues u, blocking while the queue is full.
func (q *Queue) Accept(ctx context.Context, u audio.Utterance) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- u:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len is the number of utterances waiting for the worker.
func (q *Queue) Len() int { return len(q.ch) }

// Close stops accepting and waits for the worker to deliver what is queued.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()
	q.wg.Wait()
}
