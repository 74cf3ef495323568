// Package pub relays lifecycle events observed by the watcher to external consumers.
package pub

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tarshitsr24/Temp-ayur-trace/pkg/event"
)

// Pub defines the interface for publishing events to external systems.
type Pub interface {
	// Send publishes an event to the configured destination.
	Send(context.Context, event.Event) error

	// Close closes the publisher and releases any resources.
	Close()
}

// Subject returns the subject an event is published under.
func Subject(e event.Event) string {
	return fmt.Sprintf("%s.%s", streamName, e.TxType)
}

// MsgID returns the deduplication id of an event. A log is identified by its
// transaction and its position in the block.
func MsgID(e event.Event) string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.Index)
}

type logPub struct {
	logg *slog.Logger
}

// NewLogPub creates a publisher that only logs events. It is used when no
// JetStream endpoint is configured.
func NewLogPub(logg *slog.Logger) Pub {
	return &logPub{logg: logg}
}

func (p *logPub) Send(_ context.Context, e event.Event) error {
	p.logg.Info("lifecycle event",
		"subject", Subject(e),
		"msg_id", MsgID(e),
		"block", e.Block,
		"kind", e.Kind,
	)
	return nil
}

func (p *logPub) Close() {}
