package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
)

type zmqSubscriber struct {
	queue
	sock   zmq4.Socket
	cancel context.CancelFunc
	done   chan struct{}
}

func dialZMQ(ctx context.Context, address string) (Subscriber, error) {
	ctx, cancel := context.WithCancel(ctx)

	sock := zmq4.NewSub(ctx)
	if err := sock.Dial(address); err != nil {
		cancel()
		_ = sock.Close()
		return nil, fmt.Errorf("zmq dial %s: %w", address, err)
	}
	if err := sock.SetOption(zmq4.OptionSubscribe, ""); err != nil {
		cancel()
		_ = sock.Close()
		return nil, fmt.Errorf("zmq subscribe %s: %w", address, err)
	}

	s := &zmqSubscriber{
		queue:  newQueue(),
		sock:   sock,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.pump(ctx)

	return s, nil
}

func (s *zmqSubscriber) pump(ctx context.Context) {
	defer close(s.done)

	for {
		msg, err := s.sock.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		if len(msg.Frames) == 0 {
			continue
		}
		// topic frames, if any, precede the payload
		if !s.push(ctx, msg.Frames[len(msg.Frames)-1]) {
			return
		}
	}
}

func (s *zmqSubscriber) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	return s.receive(ctx, timeout)
}

func (s *zmqSubscriber) Close() error {
	s.cancel()
	err := s.sock.Close()
	<-s.done
	return err
}
