package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/medistock/internal/domain/models"
	"github.com/mamadbah2/medistock/pkg/retry"
)

var (
	// ErrQueueFull is returned by Notify when the worker is too far behind to accept another batch.
	ErrQueueFull = fmt.Errorf("%w: alert queue is full", models.ErrNotifier)

	// ErrStopped is returned by Notify after Stop.
	ErrStopped = fmt.Errorf("%w: alert dispatcher stopped", models.ErrNotifier)
)

const (
	defaultQueueSize   = 64
	defaultMaxAttempts = 5
	defaultBaseDelay   = 500 * time.Millisecond
	deliveryTimeout    = 30 * time.Second
)

// Sender delivers one composed alert message.
type Sender interface {
	Send(ctx context.Context, msg models.AlertMessage) error
}

// Options sizes the queue and the delivery retry policy. Zero values fall back to defaults.
type Options struct {
	QueueSize   int
	MaxAttempts int
	BaseDelay   time.Duration
}

// Dispatcher accepts alert batches without blocking and delivers them from a single worker.
type Dispatcher struct {
	sender Sender
	opts   Options
	logger *zap.Logger

	queue chan []models.Alert
	done  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewDispatcher builds a dispatcher; call Start before batches can be delivered.
func NewDispatcher(sender Sender, opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseDelay < 0 {
		opts.BaseDelay = defaultBaseDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sender: sender,
		opts:   opts,
		logger: logger,
		queue:  make(chan []models.Alert, opts.QueueSize),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Notify enqueues one batch. It never waits for delivery.
func (d *Dispatcher) Notify(_ context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	batch := append([]models.Alert(nil), alerts...)

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return ErrStopped
	}

	select {
	case d.queue <- batch:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start launches the worker. Calling it more than once has no effect.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.stopped {
		return
	}
	d.started = true
	go d.run()
}

// Stop refuses new batches and waits for queued ones to be delivered. When ctx ends first,
// in-flight retries are abandoned and ctx.Err() is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		d.cancel()
		return nil
	}

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	for batch := range d.queue {
		d.deliver(batch)
	}
}

func (d *Dispatcher) deliver(batch []models.Alert) {
	msg := Compose(batch)
	logger := d.logger.With(zap.String("batch_id", msg.BatchID), zap.Int("alerts", msg.Content.Size()))

	ctx, cancel := context.WithTimeout(d.ctx, deliveryTimeout)
	defer cancel()

	err := retry.Do(ctx,
		func(ctx context.Context) error {
			return d.sender.Send(ctx, msg)
		},
		retry.WithMaxAttempts(d.opts.MaxAttempts),
		retry.WithBaseDelay(d.opts.BaseDelay),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			logger.Warn("alert delivery failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err))
		}),
	)
	if err != nil {
		logger.Error("alert delivery abandoned", zap.Error(fmt.Errorf("%w: %w", models.ErrNotifier, err)))
		return
	}

	logger.Info("alert batch delivered", zap.String("subject", msg.Subject))
}
