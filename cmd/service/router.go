package main

import (
	"context"

	"github.com/tarshitsr24/Temp-ayur-trace/internal/schema"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/event"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/router"
)

// bootstrapEventRouter routes the lifecycle events of both contract
// generations to callbackFn.
func bootstrapEventRouter(callbackFn router.Callback) *router.Router {
	r := router.New(callbackFn)

	for _, op := range schema.Events {
		for _, name := range []string{op.V2, op.Legacy} {
			if name != "" {
				r.RegisterLogRoute(name, relayLifecycleEvent)
			}
		}
	}

	return r
}

func relayLifecycleEvent(ctx context.Context, p router.LogPayload, c router.Callback) error {
	return c(ctx, event.Event{
		Block:           p.Event.BlockNumber,
		ContractAddress: p.ContractAddress,
		Timestamp:       p.Timestamp,
		TxHash:          p.Event.TxHash,
		TxType:          p.Event.Name,
		Kind:            p.Event.Kind,
		Payload:         p.Event.Payload,
		Index:           p.LogIndex,
	})
}
