package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"incident-desk/config"
	"incident-desk/core/apperr"
	"incident-desk/core/store"
	"incident-desk/core/utils"
)

var (
	ErrQueueFull         = errors.New("notification queue full")
	ErrDispatcherStopped = errors.New("notification dispatcher stopped")
)

// Dispatcher hands messages to a fixed pool of workers through a bounded
// queue. Enqueue never blocks; a message that does not fit is dropped and
// recorded as such.
type Dispatcher struct {
	sender      Sender
	deliveries  store.DeliveriesStore
	logger      *utils.Logger
	queue       chan Message
	workers     int
	sendTimeout time.Duration

	mu      sync.RWMutex
	started bool
	closed  bool
	wg      sync.WaitGroup
}

func NewDispatcher(sender Sender, deliveries store.DeliveriesStore, cfg config.NotifyConfig, logger *utils.Logger) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Dispatcher{
		sender:      sender,
		deliveries:  deliveries,
		logger:      logger,
		queue:       make(chan Message, size),
		workers:     workers,
		sendTimeout: sendTimeout(cfg.SendTimeout),
	}
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Stop closes the queue and waits for queued messages to drain or ctx to
// expire, whichever comes first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	started := d.started
	d.mu.Unlock()
	if !started {
		return nil
	}
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the workers and blocks until ctx is cancelled, then drains.
func (d *Dispatcher) Run(ctx context.Context, drain time.Duration) error {
	d.Start()
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		d.logger.Errorf("notify: drain interrupted: %v", err)
	}
	return nil
}

func (d *Dispatcher) Enqueue(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.record(msg, store.DeliveryStatusDropped, ErrDispatcherStopped)
		return apperr.Notification("notify.stopped", ErrDispatcherStopped)
	}
	select {
	case d.queue <- msg:
		return nil
	default:
		d.record(msg, store.DeliveryStatusDropped, ErrQueueFull)
		d.logger.Errorf("notify: queue full, dropped %s to %s", msg.Event, msg.To)
		return apperr.Notification("notify.queueFull", ErrQueueFull)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()
	err := d.safeSend(ctx, msg)
	if err != nil {
		d.logger.Errorf("notify: %s to %s failed: %v", msg.Event, msg.To, err)
		d.record(msg, store.DeliveryStatusFailed, err)
		return
	}
	d.record(msg, store.DeliveryStatusSent, nil)
}

func (d *Dispatcher) safeSend(ctx context.Context, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = errors.New("sender panicked")
		}
	}()
	return d.sender.Send(ctx, msg)
}

func (d *Dispatcher) record(msg Message, status string, cause error) {
	if d.deliveries == nil {
		return
	}
	item := store.NotificationDelivery{
		EventType: msg.Event,
		Recipient: strings.TrimSpace(msg.To),
		Subject:   msg.Subject,
		Status:    status,
	}
	if cause != nil {
		item.Error = cause.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := d.deliveries.AddNotificationDelivery(ctx, &item); err != nil {
		d.logger.Errorf("notify: delivery log: %v", err)
	}
}
