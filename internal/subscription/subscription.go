package subscription

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/runixlabs/runes-indexer/common/errs"
)

// BufferSize is the buffer size of the subscription in channels. It keeps a
// slow consumer from immediately blocking the dispatcher.
var BufferSize = 8

// Subscription forwards a stream of values from a dispatcher to a consumer
// channel. It carries a separate error channel so the dispatcher can report
// failures without tearing down the stream itself.
type Subscription[T any] struct {
	// channel is the consumer-facing channel the subscription forwards to.
	channel chan<- T

	// in receives values from the dispatcher.
	in chan T

	// err receives errors from the dispatcher.
	err      chan error
	quitOnce sync.Once

	// Closing is requested by sending on quit. The forwarding loop closes
	// quitDone once it has stopped sending to channel.
	quit     chan struct{}
	quitDone chan struct{}
}

func New[T any](channel chan<- T) *Subscription[T] {
	s := &Subscription[T]{
		channel:  channel,
		in:       make(chan T, BufferSize),
		err:      make(chan error, BufferSize),
		quit:     make(chan struct{}),
		quitDone: make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Subscription[T]) Unsubscribe() {
	_ = s.UnsubscribeWithContext(context.Background())
}

func (s *Subscription[T]) UnsubscribeWithContext(ctx context.Context) (err error) {
	s.quitOnce.Do(func() {
		select {
		case s.quit <- struct{}{}:
			<-s.quitDone
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return errors.WithStack(err)
}

// Client returns the consumer-side handle for this subscription.
func (s *Subscription[T]) Client() *ClientSubscription[T] {
	return &ClientSubscription[T]{subscription: s}
}

// Err returns the error channel of the subscription.
func (s *Subscription[T]) Err() <-chan error {
	return s.err
}

// Done is closed once the forwarding loop has stopped.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.quitDone
}

func (s *Subscription[T]) IsClosed() bool {
	select {
	case <-s.quitDone:
		return true
	default:
		return false
	}
}

// Send forwards a value to the consumer. It fails if the subscription is
// already closed or the context expires first.
func (s *Subscription[T]) Send(ctx context.Context, value T) error {
	select {
	case s.in <- value:
	case <-s.quitDone:
		return errors.Wrap(errs.InternalError, "subscription is closed")
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
	return nil
}

// SendError forwards an error to the consumer error channel.
func (s *Subscription[T]) SendError(ctx context.Context, err error) error {
	select {
	case s.err <- err:
	case <-s.quitDone:
		return errors.Wrap(errs.InternalError, "subscription is closed")
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
	return nil
}

func (s *Subscription[T]) run() {
	defer close(s.quitDone)

	for {
		select {
		case <-s.quit:
			return
		case value := <-s.in:
			select {
			case s.channel <- value:
			case <-s.quit:
				return
			}
		}
	}
}
