package messaging

import (
	"context"
	"fmt"
	"sync/atomic"
)

// dispatcher delivers inbound messages to handlers. Each destination has its
// own lane, so delivery order within a destination follows arrival order and
// a slow handler only delays its own destination.
type dispatcher struct {
	ctx        context.Context
	lanes      *lanes
	snapshot   func(dest string) []*Subscription
	logger     func() Logger
	maxBacklog int

	delivered      atomic.Uint64
	consumerErrors atomic.Uint64
}

func newDispatcher(ctx context.Context, snapshot func(string) []*Subscription, logger func() Logger, maxBacklog int) *dispatcher {
	return &dispatcher{
		ctx:        ctx,
		lanes:      newLanes(),
		snapshot:   snapshot,
		logger:     logger,
		maxBacklog: maxBacklog,
	}
}

// dispatch queues msg on its destination's lane.
func (d *dispatcher) dispatch(msg Message) {
	backlog := d.lanes.push(msg.Destination, func() { d.deliver(msg) })
	if d.maxBacklog > 0 && backlog == d.maxBacklog+1 {
		d.logger().Warn("dispatch backlog above threshold",
			"destination", msg.Destination,
			"backlog", backlog,
		)
	}
}

// deliver invokes the handlers registered on the destination at the moment
// of delivery, skipping any unsubscribed after the snapshot was taken.
func (d *dispatcher) deliver(msg Message) {
	for _, sub := range d.snapshot(msg.Destination) {
		if !sub.Active() {
			continue
		}
		d.invoke(sub, msg)
	}
}

// invoke runs one handler with panic recovery.
func (d *dispatcher) invoke(sub *Subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.consumerErrors.Add(1)
			d.logger().Error("handler panic recovered",
				"destination", msg.Destination,
				"subscription", sub.id,
				"error", fmt.Errorf("%w: panic: %v", ErrConsumer, r),
			)
		}
	}()

	d.delivered.Add(1)
	if err := sub.handler(d.ctx, msg); err != nil {
		d.consumerErrors.Add(1)
		d.logger().Warn("handler returned error",
			"destination", msg.Destination,
			"subscription", sub.id,
			"error", fmt.Errorf("%w: %w", ErrConsumer, err),
		)
	}
}
