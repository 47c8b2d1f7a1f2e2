// Package notify carries "job available" signals from the dispatcher to
// worker instances. The bus is purely a latency optimization: workers always
// fall back to polling the job store, so a lost or late signal costs at most
// one poll interval.
package notify

import "context"

// Bus publishes and receives job-available wakeups.
type Bus interface {
	Publish(ctx context.Context) error
	// Wake returns the channel a worker selects on alongside its poll
	// timer. Signals are coalesced; one receive may stand for many
	// publishes.
	Wake() <-chan struct{}
	Close() error
}

// ChannelBus is the in-process implementation used when dispatcher and
// worker share one process, and in tests.
type ChannelBus struct {
	ch chan struct{}
}

func NewChannelBus() *ChannelBus {
	return &ChannelBus{ch: make(chan struct{}, 1)}
}

func (b *ChannelBus) Publish(ctx context.Context) error {
	select {
	case b.ch <- struct{}{}:
	default:
		// A wakeup is already pending; coalesce.
	}
	return nil
}

func (b *ChannelBus) Wake() <-chan struct{} {
	return b.ch
}

func (b *ChannelBus) Close() error {
	return nil
}

var _ Bus = (*ChannelBus)(nil)
