// Package notify delivers session events to external systems.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-steadyscan/internal/httpc"
	"github.com/teslashibe/go-steadyscan/internal/log"
	"github.com/teslashibe/go-steadyscan/pkg/ingest"
)

const (
	queueSize   = 64
	maxAttempts = 3
	baseBackoff = 200 * time.Millisecond
)

// Webhook POSTs events as JSON to a URL. Notify never blocks; events that
// arrive while the queue is full are dropped and counted.
type Webhook struct {
	url    string
	client *http.Client
	types  map[ingest.EventType]bool
	queue  chan ingest.Event
	logger *slog.Logger

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewWebhook creates a webhook for the given event types.
// With no types only barcode events are sent.
func NewWebhook(url string, types ...ingest.EventType) *Webhook {
	if len(types) == 0 {
		types = []ingest.EventType{ingest.EventBarcode}
	}
	w := &Webhook{
		url:    url,
		client: httpc.Client,
		types:  make(map[ingest.EventType]bool, len(types)),
		queue:  make(chan ingest.Event, queueSize),
		logger: log.For("webhook").With("url", url),
	}
	for _, t := range types {
		w.types[t] = true
	}
	return w
}

// Notify queues an event for delivery. It is safe to pass to ingest.Hub.OnEvent.
func (w *Webhook) Notify(e ingest.Event) {
	if !w.types[e.Type] {
		return
	}
	select {
	case w.queue <- e:
	default:
		w.dropped.Add(1)
	}
}

// Run delivers queued events until ctx is done
func (w *Webhook) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.queue:
			if err := w.deliver(ctx, e); err != nil {
				w.failed.Add(1)
				w.logger.Warn("webhook delivery failed", "camera", e.Camera, "type", e.Type, "error", err)
				continue
			}
			w.sent.Add(1)
		}
	}
}

func (w *Webhook) deliver(ctx context.Context, e ingest.Event) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(baseBackoff << (attempt - 1)):
			}
		}

		err = httpc.PostJSON(ctx, w.client, w.url, e)
		if err == nil {
			return nil
		}

		var se *httpc.StatusError
		if errors.As(err, &se) && !se.Retryable() {
			return err
		}
	}
	return err
}

// Stats holds delivery counters
type Stats struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Stats returns delivery counters
func (w *Webhook) Stats() Stats {
	return Stats{
		Sent:    w.sent.Load(),
		Failed:  w.failed.Load(),
		Dropped: w.dropped.Load(),
	}
}
