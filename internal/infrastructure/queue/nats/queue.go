package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/fkoehler/taxagent/internal/core/domain"
	"github.com/fkoehler/taxagent/internal/infrastructure/resilience"
)

// Queue carries two kinds of traffic: stored-batch dispatch jobs (competing
// worker consumers) and change events fanned out to every api instance for
// the SSE stream.
type Queue struct {
	conn           *nats.Conn
	batchSubject   string
	changesSubject string
	executor       *resilience.Executor
}

func New(url, batchSubject, changesSubject string) (*Queue, error) {
	return NewWithOptions(url, batchSubject, changesSubject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
}

func NewWithOptions(url, batchSubject, changesSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("taxagent"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Printf("nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("nats reconnected: %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:           conn,
		batchSubject:   batchSubject,
		changesSubject: changesSubject,
		executor:       options.ResilienceExecutor,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishBatchStored(ctx context.Context, batchID string) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.batchSubject, []byte(batchID)); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeBatchStored consumes dispatch jobs in the "workers" queue group so
// exactly one worker instance picks up each stored batch. Blocks until ctx is
// cancelled, then drains.
func (q *Queue) SubscribeBatchStored(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.batchSubject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, string(msg.Data)); err != nil {
			log.Printf("dispatch handler error for batch=%s: %v", string(msg.Data), err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

// PublishChange is best-effort: the SSE stream is a hint for dashboards, not
// a system of record, so callers log publish failures and move on.
func (q *Queue) PublishChange(ctx context.Context, change domain.ChangeEvent) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.changesSubject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// SubscribeChanges fans change events out to every api instance. Malformed
// payloads are logged and dropped. The returned func unsubscribes.
func (q *Queue) SubscribeChanges(ctx context.Context, handler func(context.Context, domain.ChangeEvent)) (func(), error) {
	sub, err := q.conn.Subscribe(q.changesSubject, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}
		var change domain.ChangeEvent
		if err := json.Unmarshal(msg.Data, &change); err != nil {
			log.Printf("drop malformed change event: %v", err)
			return
		}
		handler(ctx, change)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe changes: %w", err)
	}
	return func() {
		_ = sub.Unsubscribe()
	}, nil
}
