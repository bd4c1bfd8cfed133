package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisSubscriber struct {
	queue
	client *redis.Client
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func dialRedis(ctx context.Context, address string) (Subscriber, error) {
	opts, err := redis.ParseURL(address)
	if err != nil {
		return nil, fmt.Errorf("invalid redis address %s: %w", address, err)
	}

	client := redis.NewClient(opts)
	pubsub := client.PSubscribe(ctx, "*")

	// wait for the subscription confirmation so a bad address fails here
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", address, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &redisSubscriber{
		queue:  newQueue(),
		client: client,
		pubsub: pubsub,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.pump(ctx)

	return s, nil
}

func (s *redisSubscriber) pump(ctx context.Context) {
	defer close(s.done)

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				s.fail(redis.ErrClosed)
				return
			}
			if !s.push(ctx, []byte(msg.Payload)) {
				return
			}
		}
	}
}

func (s *redisSubscriber) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return s.receive(ctx, timeout)
}

func (s *redisSubscriber) Close() error {
	s.cancel()
	err := s.pubsub.Close()
	<-s.done
	if cerr := s.client.Close(); err == nil {
		err = cerr
	}
	return err
}
