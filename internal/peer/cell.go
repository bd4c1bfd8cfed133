package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
)

// cell receives the result of one asynchronous engine call. Only the first
// set wins.
type cell struct {
	once sync.Once
	done chan struct{}
	desc *webrtc.SessionDescription
	err  error
}

func newCell() *cell {
	return &cell{done: make(chan struct{})}
}

func (c *cell) set(desc *webrtc.SessionDescription, err error) {
	c.once.Do(func() {
		c.desc, c.err = desc, err
		close(c.done)
	})
}

// wait blocks until the cell is set, the timeout passes, ctx ends or closed is
// closed. Everything but a set cell is reported as ErrNegotiationTimeout.
func (c *cell) wait(ctx context.Context, timeout time.Duration, closed <-chan struct{}) (*webrtc.SessionDescription, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return c.desc, c.err
	case <-timer.C:
		return nil, ErrNegotiationTimeout
	case <-closed:
		return nil, fmt.Errorf("%w: %w", ErrNegotiationTimeout, ErrClosed)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrNegotiationTimeout, ctx.Err())
	}
}
