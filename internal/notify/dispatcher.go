package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gaming_queue/internal/metrics"
	"gaming_queue/internal/models"
	"gaming_queue/internal/queue"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Attempts     int
	InitialDelay time.Duration
	Workers      int
}

// Dispatcher рассылает уведомления по всем каналам с повторами. Результат доставки не влияет
// на состояние очереди: повторная отправка защищена статусом записи, а не каналом.
type Dispatcher struct {
	transports []Transport
	opts       Options
	log        *zap.Logger
}

func NewDispatcher(log *zap.Logger, opts Options, transports ...Transport) *Dispatcher {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Dispatcher{
		transports: transports,
		opts:       opts,
		log:        log.Named("dispatcher"),
	}
}

// Notify отправляет одно уведомление и ждёт результата.
func (d *Dispatcher) Notify(ctx context.Context, entry models.QueueEntry, reason Reason) error {
	return d.send(ctx, Notification{ID: uuid.NewString(), Reason: reason, Entry: entry})
}

// Dispatch отправляет пачку уведомлений параллельно, не более Workers одновременно.
// Ошибки возвращаются в порядке входных уведомлений.
func (d *Dispatcher) Dispatch(ctx context.Context, ns []Notification) []error {
	errs := make([]error, len(ns))
	var g errgroup.Group
	g.SetLimit(d.opts.Workers)
	for i, n := range ns {
		i, n := i, n
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		g.Go(func() error {
			errs[i] = d.send(ctx, n)
			return nil
		})
	}
	g.Wait()
	return errs
}

func (d *Dispatcher) send(ctx context.Context, n Notification) error {
	var errs []error
	for _, t := range d.transports {
		if err := d.sendWithRetry(ctx, t, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", queue.ErrDispatchFailure, errors.Join(errs...))
	}
	return nil
}

// retryAfterBackOff растягивает очередную паузу до срока, который назвал канал.
type retryAfterBackOff struct {
	backoff.BackOff
	next time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	d := b.BackOff.NextBackOff()
	if d != backoff.Stop && b.next > d {
		d = b.next
	}
	b.next = 0
	return d
}

func (d *Dispatcher) sendWithRetry(ctx context.Context, t Transport, n Notification) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.opts.InitialDelay
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0
	exp.Reset()
	b := &retryAfterBackOff{BackOff: exp}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.opts.Attempts-1)), ctx)

	log := d.log.With(
		zap.String("notification_id", n.ID),
		zap.String("transport", t.Name()),
		zap.String("reason", string(n.Reason)),
		zap.Uint("entry_id", n.Entry.ID),
		zap.Uint("user_id", n.Entry.UserID),
	)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := t.Send(ctx, n)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrSkipped) || errors.Is(err, ErrPermanent) {
			return backoff.Permanent(err)
		}
		var limited *RateLimitedError
		if errors.As(err, &limited) {
			b.next = limited.RetryAfter
		}
		log.Warn("ошибка отправки уведомления, повтор", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, policy)

	switch {
	case err == nil:
		metrics.Notifications.WithLabelValues(t.Name(), string(n.Reason), "sent").Inc()
		log.Info("уведомление отправлено", zap.Int("attempts", attempt))
		return nil
	case errors.Is(err, ErrSkipped):
		metrics.Notifications.WithLabelValues(t.Name(), string(n.Reason), "skipped").Inc()
		log.Debug("уведомление пропущено", zap.Error(err))
		return nil
	default:
		metrics.Notifications.WithLabelValues(t.Name(), string(n.Reason), "failed").Inc()
		log.Error("уведомление не доставлено", zap.Int("attempts", attempt), zap.Error(err))
		return err
	}
}
