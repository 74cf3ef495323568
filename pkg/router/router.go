// Package router dispatches decoded contract logs to handlers registered by
// event name.
package router

import (
	"context"

	"github.com/tarshitsr24/Temp-ayur-trace/pkg/event"
	"github.com/tarshitsr24/Temp-ayur-trace/pkg/provenance"
)

type (
	// Callback is the function type called after an event is processed by a handler.
	Callback func(context.Context, event.Event) error

	// LogPayload contains a decoded contract log and its block context.
	LogPayload struct {
		Event           provenance.Event // Decoded lifecycle event
		ContractAddress string           // Emitting contract
		LogIndex        uint             // Index of the log within the block
		Timestamp       uint64           // Block timestamp, 0 when unknown
	}

	// LogHandlerFunc handles one routed log.
	LogHandlerFunc func(context.Context, LogPayload, Callback) error

	// Router routes contract logs to their respective handlers.
	Router struct {
		callbackFn  Callback
		logHandlers map[string]LogHandlerFunc
	}
)

// New creates a new Router instance with the provided callback function.
// The callback is invoked by handlers once an event is ready to be relayed.
func New(callbackFn Callback) *Router {
	return &Router{
		callbackFn:  callbackFn,
		logHandlers: make(map[string]LogHandlerFunc),
	}
}

// RegisterLogRoute registers a handler for a contract event name.
func (r *Router) RegisterLogRoute(eventName string, handlerFunc LogHandlerFunc) {
	r.logHandlers[eventName] = handlerFunc
}

// Routes returns the number of registered event names.
func (r *Router) Routes() int {
	return len(r.logHandlers)
}

// ProcessLog routes a log to the handler registered for its event name.
// Logs without a handler are ignored.
func (r *Router) ProcessLog(ctx context.Context, payload LogPayload) error {
	handler, ok := r.logHandlers[payload.Event.Name]
	if !ok {
		return nil
	}

	return handler(ctx, payload, r.callbackFn)
}
