package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/freshora-backend/pkg/logger"
)

const defaultSendTimeout = 10 * time.Second

// Dispatcher sends confirmations in the background after the order commits.
// Failures are logged and never reach the caller.
type Dispatcher struct {
	sender  Sender
	logg    *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, logg *logger.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{sender: sender, logg: logg, timeout: timeout}
}

// Dispatch queues msg and returns immediately. The send outlives ctx's
// cancellation but keeps its values for logging.
func (d *Dispatcher) Dispatch(ctx context.Context, msg OrderConfirmation) {
	if d == nil || d.sender == nil || msg.Email == "" {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil && d.logg != nil {
				d.logg.Warn(d.logg.WithField(sendCtx, "panic", r), "order confirmation sender panicked")
			}
		}()
		if err := d.sender.SendOrderConfirmation(sendCtx, msg); err != nil && d.logg != nil {
			d.logg.Error(d.logg.WithField(sendCtx, "order_id", msg.OrderID), "order confirmation email failed", err)
		}
	}()
}

// Wait blocks until in-flight sends finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}
