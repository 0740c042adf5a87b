package subscription

import "context"

// ClientSubscription is the consumer-side handle of a Subscription. It can
// only observe and cancel the stream, never send into it.
type ClientSubscription[T any] struct {
	subscription *Subscription[T]
}

func (c *ClientSubscription[T]) Unsubscribe() {
	c.subscription.Unsubscribe()
}

func (c *ClientSubscription[T]) UnsubscribeWithContext(ctx context.Context) error {
	return c.subscription.UnsubscribeWithContext(ctx)
}

func (c *ClientSubscription[T]) Err() <-chan error {
	return c.subscription.Err()
}

func (c *ClientSubscription[T]) Done() <-chan struct{} {
	return c.subscription.Done()
}

func (c *ClientSubscription[T]) IsClosed() bool {
	return c.subscription.IsClosed()
}
