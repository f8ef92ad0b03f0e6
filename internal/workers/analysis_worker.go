package workers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	DefaultStream = "analysis:jobs"
	DefaultGroup  = "analysis-workers"
)

// RedisQueue appends jobs to a Redis stream.
type RedisQueue struct {
	Redis  *redis.Client
	Stream string
	MaxLen int64
}

func (q *RedisQueue) Enqueue(ctx context.Context, j Job) error {
	stream := q.Stream
	if stream == "" {
		stream = DefaultStream
	}
	return q.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: q.MaxLen,
		Approx: q.MaxLen > 0,
		Values: j.fields(),
	}).Err()
}

// AnalysisWorkerPool consumes the job stream as a consumer group. A message
// is acked once its handler returns, whatever the outcome: failures are
// recorded on the session, not retried.
type AnalysisWorkerPool struct {
	Redis      *redis.Client
	Handler    Handler
	NumWorkers int

	Logger *logrus.Logger

	Stream         string
	Group          string
	ConsumerPrefix string
}

func (p *AnalysisWorkerPool) Start(ctx context.Context) error {
	if p.Redis == nil || p.Handler == nil {
		return errors.New("AnalysisWorkerPool missing dependency: Redis/Handler must be set")
	}
	if p.Stream == "" {
		p.Stream = DefaultStream
	}
	if p.Group == "" {
		p.Group = DefaultGroup
	}
	if p.ConsumerPrefix == "" {
		p.ConsumerPrefix = "c"
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}

	_ = p.Redis.XGroupCreateMkStream(ctx, p.Stream, p.Group, "0").Err() // ignore BUSYGROUP

	for i := 0; i < p.NumWorkers; i++ {
		consumer := p.ConsumerPrefix + "-" + strconv.Itoa(i+1)
		go p.runConsumer(ctx, consumer)
	}
	return nil
}

func (p *AnalysisWorkerPool) runConsumer(ctx context.Context, consumer string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// one job at a time: a job is minutes of work
		res, err := p.Redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    p.Group,
			Consumer: consumer,
			Streams:  []string{p.Stream, ">"},
			Count:    1,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if err == redis.Nil || ctx.Err() != nil {
				continue
			}
			p.Logger.WithError(err).Warn("xreadgroup failed")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				p.handleMsg(ctx, msg)
				_ = p.Redis.XAck(context.WithoutCancel(ctx), p.Stream, p.Group, msg.ID).Err()
			}
		}
	}
}

func (p *AnalysisWorkerPool) handleMsg(ctx context.Context, msg redis.XMessage) {
	log := p.Logger.WithField("redis_id", msg.ID)

	job, err := jobFromFields(msg.Values)
	if err != nil {
		log.WithError(err).Warn("drop malformed job")
		return
	}
	log = log.WithField("session_id", job.SessionID)

	start := time.Now()
	if err := p.Handler(ctx, job); err != nil {
		log.WithError(err).Warn("job failed")
		return
	}
	log.WithField("processing_time_ms", time.Since(start).Milliseconds()).Info("job processed")
}
