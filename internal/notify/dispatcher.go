package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Dispatcher accepts fire-and-forget notifications. Notify never fails:
// delivery problems are logged and must not affect booking state.
type Dispatcher interface {
	Notify(ctx context.Context, ev Event)
}

// Publisher delivers a single event to the messaging layer.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// AsyncDispatcher publishes each event on its own goroutine with a bounded timeout.
type AsyncDispatcher struct {
	pub     Publisher
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsyncDispatcher(pub Publisher, logger *zap.Logger, timeout time.Duration) *AsyncDispatcher {
	return &AsyncDispatcher{pub: pub, logger: logger, timeout: timeout}
}

func (d *AsyncDispatcher) Notify(ctx context.Context, ev Event) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification publisher panicked", zap.Any("panic", r), zap.String("event", string(ev.Type)))
			}
		}()

		// Detach from the request so a finished handler does not abort delivery.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.pub.Publish(pubCtx, ev); err != nil {
			d.logger.Warn("notification dropped",
				zap.String("event", string(ev.Type)),
				zap.String("role", string(ev.Recipient.Role)),
				zap.Int64("user_id", ev.Recipient.UserID),
				zap.Error(err),
			)
		}
	}()
}

// Wait blocks until in-flight notifications finish. Used during shutdown.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}

// LogPublisher writes events to the log. It stands in for the broker when
// RABBITMQ_URL is not configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.logger.Info("notification",
		zap.String("event", string(ev.Type)),
		zap.String("role", string(ev.Recipient.Role)),
		zap.Int64("user_id", ev.Recipient.UserID),
		zap.Any("context", ev.Context),
	)
	return nil
}

// Recorder is a synchronous Dispatcher that keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Notify(_ context.Context, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
