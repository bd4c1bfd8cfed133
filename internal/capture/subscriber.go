package capture

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoMessage is returned by Receive when nothing arrived within the timeout.
var ErrNoMessage = errors.New("no message available")

// Subscriber is the receiving end of a frame transport subscribed to every topic.
type Subscriber interface {
	Receive(ctx context.Context, timeout time.Duration) ([]byte, error)
	Close() error
}

type DialFunc func(ctx context.Context, address string) (Subscriber, error)

// Dial connects to address and subscribes to everything published on it.
// redis:// and rediss:// addresses use Redis pub/sub, anything else ZeroMQ.
func Dial(ctx context.Context, address string) (Subscriber, error) {
	if strings.HasPrefix(address, "redis://") || strings.HasPrefix(address, "rediss://") {
		return dialRedis(ctx, address)
	}
	return dialZMQ(ctx, address)
}

// queue hands messages from a transport pump goroutine to Receive.
type queue struct {
	msgs chan []byte
	errs chan error
}

func newQueue() queue {
	return queue{
		msgs: make(chan []byte, 4),
		errs: make(chan error, 1),
	}
}

func (q queue) receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case payload := <-q.msgs:
		return payload, nil
	case err := <-q.errs:
		return nil, err
	case <-timer.C:
		return nil, ErrNoMessage
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q queue) push(ctx context.Context, payload []byte) bool {
	select {
	case q.msgs <- payload:
		return true
	case <-ctx.Done():
		return false
	}
}

func (q queue) fail(err error) {
	select {
	case q.errs <- err:
	default:
	}
}
