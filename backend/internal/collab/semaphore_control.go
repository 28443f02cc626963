package collab

import (
	"context"
	"errors"
)

// DefaultMaxSemaphore caps concurrent holders when no explicit limit is
// given.
const DefaultMaxSemaphore = 100

var ErrSemaphoreNotHeld = errors.New("release without acquire")

// SemaphoreControl is a channel-backed counting semaphore used to bound
// concurrent Kafka sends and concurrent transaction submissions.
type SemaphoreControl struct {
	ch chan struct{}
}

func NewSemaphoreControl(limit int) *SemaphoreControl {
	if limit <= 0 {
		limit = DefaultMaxSemaphore
	}
	return &SemaphoreControl{ch: make(chan struct{}, limit)}
}

// Acquire blocks until a slot is free or the context is done.
func (s *SemaphoreControl) Acquire(ctx context.Context) error {
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SemaphoreControl) Release() error {
	select {
	case <-s.ch:
		return nil
	default:
		return ErrSemaphoreNotHeld
	}
}
