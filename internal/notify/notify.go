// Package notify delivers operational alerts to supervisors and collectors.
// Alerts are fire-and-forget: a failed sink is logged and never reaches the
// ledger operation that raised the alert.
package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"collecte-backend/internal/clock"
	"collecte-backend/internal/domain"
	"collecte-backend/internal/logger"
)

// Sink is one delivery channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, note *domain.Notification) error
}

// Dispatcher fans an alert out to its sinks, at most once per collector and
// kind within the cooldown window.
type Dispatcher struct {
	sinks    []Sink
	cooldown CooldownCache
	window   time.Duration
	clock    clock.Clock
	queue    chan *domain.Notification
	started  atomic.Bool
	wg       sync.WaitGroup
}

func NewDispatcher(cooldown CooldownCache, window time.Duration, queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	return &Dispatcher{
		sinks:    sinks,
		cooldown: cooldown,
		window:   window,
		clock:    clock.System(),
		queue:    make(chan *domain.Notification, queueSize),
	}
}

// Start drains the queue on the given number of workers until ctx ends.
// Before Start, Notify delivers inline.
func (d *Dispatcher) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	d.started.Store(true)
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	logger.Debug("Notification worker started", "worker", id)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Notification worker stopping", "worker", id)
			return
		case note := <-d.queue:
			d.deliver(context.WithoutCancel(ctx), note)
		}
	}
}

func (d *Dispatcher) Notify(ctx context.Context, note *domain.Notification) {
	if note == nil {
		return
	}
	if note.CreatedOn == "" {
		note.CreatedOn = d.clock.Now().Format(time.RFC3339)
	}
	if !d.started.Load() {
		d.deliver(ctx, note)
		return
	}
	select {
	case d.queue <- note:
	default:
		logger.Warn("Notification queue is full, alert dropped", "kind", note.Kind, "collector_id", note.CollectorID)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, note *domain.Notification) {
	if d.cooldown != nil && d.window > 0 {
		key := CooldownKey(note)
		ok, err := d.cooldown.Acquire(ctx, key, d.window)
		if err != nil {
			logger.Warn("Cooldown check failed, delivering anyway", "key", key, "error", err)
		} else if !ok {
			logger.Debug("Alert suppressed by cooldown", "key", key)
			return
		}
	}
	for _, sink := range d.sinks {
		if err := sink.Send(ctx, note); err != nil {
			logger.Error("Failed to deliver notification",
				"sink", sink.Name(), "kind", note.Kind, "collector_id", note.CollectorID, "error", err)
			continue
		}
		logger.Debug("Notification delivered", "sink", sink.Name(), "kind", note.Kind, "collector_id", note.CollectorID)
	}
}

// CooldownKey identifies the alert stream a notification belongs to.
func CooldownKey(note *domain.Notification) string {
	return fmt.Sprintf("notify:cooldown:%s:%d", note.Kind, note.CollectorID)
}
