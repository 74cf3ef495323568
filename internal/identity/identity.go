// Package identity carries the acting supply chain party on the request context.
package identity

import "context"

type (
	// Identity is the party performing an operation.
	Identity struct {
		ActorID string `json:"actorId"`
		Name    string `json:"name"`
		Role    string `json:"role"`
	}

	// Provider reports who is acting on behalf of a request.
	Provider interface {
		CurrentActorID(context.Context) string
		CurrentIdentity(context.Context) Identity
	}

	// ContextProvider reads the identity stored on the context and falls back
	// to a fixed identity.
	ContextProvider struct {
		fallback Identity
	}

	ctxKey struct{}
)

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored on ctx, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && id.ActorID != ""
}

// NewContextProvider creates a Provider with the given fallback identity.
func NewContextProvider(fallback Identity) *ContextProvider {
	return &ContextProvider{fallback: fallback}
}

// CurrentIdentity returns the context identity, or the fallback when none is set.
func (p *ContextProvider) CurrentIdentity(ctx context.Context) Identity {
	if id, ok := FromContext(ctx); ok {
		return id
	}
	return p.fallback
}

// CurrentActorID returns the actor id of CurrentIdentity.
func (p *ContextProvider) CurrentActorID(ctx context.Context) string {
	return p.CurrentIdentity(ctx).ActorID
}

// DisplayName returns the name of the identity, or its actor id when unnamed.
func (id Identity) DisplayName() string {
	if id.Name != "" {
		return id.Name
	}
	return id.ActorID
}
