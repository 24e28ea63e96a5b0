package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"pagado/internal/models"
	"pagado/pkg/logger"

	"go.uber.org/zap"
)

// EventHandler processes one inbound message.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev models.Event) error
}

// Dispatcher runs each inbound message on its own goroutine with a deadline.
// Messages from one user are serialized further down by the session lock.
type Dispatcher struct {
	handler EventHandler
	timeout time.Duration
	logger  *zap.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDispatcher(handler EventHandler, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	base, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		handler: handler,
		timeout: timeout,
		logger:  logger,
		base:    base,
		cancel:  cancel,
	}
}

// Dispatch schedules ev and returns immediately.
func (d *Dispatcher) Dispatch(ev models.Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.run(ev); err != nil {
			d.logger.Warn("Message handling failed",
				logger.User(ev.UserID),
				zap.String("message_id", ev.MessageID),
				zap.String("modality", string(ev.Modality)),
				zap.Error(err),
			)
		}
	}()
}

func (d *Dispatcher) run(ev models.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling message: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(d.base, d.timeout)
	defer cancel()

	err = d.handler.HandleEvent(ctx, ev)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("message timed out after %s: %w", d.timeout, err)
	}
	return err
}

// Wait blocks until in-flight messages finish or ctx ends, in which case the
// remaining handlers are cancelled.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}
