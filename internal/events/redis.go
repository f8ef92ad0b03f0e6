package events

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBus publishes on "session:{id}:status" so any API instance can serve
// a progress stream.
type RedisBus struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

func NewRedisBus(rdb *redis.Client, l *logrus.Logger) *RedisBus {
	if l == nil {
		l = logrus.New()
	}
	return &RedisBus{rdb: rdb, logger: l}
}

func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel(e.SessionID), payload).Err()
}

type redisSub struct {
	ps     *redis.PubSub
	ch     chan Event
	cancel context.CancelFunc
}

func (s *redisSub) Events() <-chan Event { return s.ch }

func (s *redisSub) Close() error {
	s.cancel()
	return s.ps.Close()
}

func (b *RedisBus) Subscribe(ctx context.Context, sessionID string) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, channel(sessionID))
	// wait for the subscription confirmation so no event is missed
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &redisSub{ps: ps, ch: make(chan Event, subscriberBuffer), cancel: cancel}
	go func() {
		defer close(s.ch)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					b.logger.WithError(err).WithField("channel", m.Channel).Warn("drop malformed event")
					continue
				}
				select {
				case s.ch <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return s, nil
}
