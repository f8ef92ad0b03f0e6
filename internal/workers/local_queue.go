package workers

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// LocalQueue runs jobs on a fixed set of goroutines in this process.
type LocalQueue struct {
	Handler    Handler
	NumWorkers int
	Capacity   int
	Logger     *logrus.Logger

	jobs chan Job
	wg   sync.WaitGroup
}

func (q *LocalQueue) Start(ctx context.Context) error {
	if q.Handler == nil {
		return errors.New("LocalQueue missing dependency: Handler must be set")
	}
	if q.NumWorkers <= 0 {
		q.NumWorkers = 2
	}
	if q.Capacity <= 0 {
		q.Capacity = 64
	}
	if q.Logger == nil {
		q.Logger = logrus.New()
	}
	q.jobs = make(chan Job, q.Capacity)

	for i := 0; i < q.NumWorkers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-q.jobs:
					if err := q.Handler(ctx, j); err != nil {
						q.Logger.WithError(err).WithField("session_id", j.SessionID).Warn("job failed")
					}
				}
			}
		}()
	}
	return nil
}

// Wait blocks until every worker has exited after the Start context ends.
func (q *LocalQueue) Wait() { q.wg.Wait() }

func (q *LocalQueue) Enqueue(ctx context.Context, j Job) error {
	if q.jobs == nil {
		return errors.New("LocalQueue not started")
	}
	select {
	case q.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}
