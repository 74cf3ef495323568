package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// HeaderActorID carries the actor id when no token secret is configured.
	HeaderActorID = "X-Actor-Id"
	// HeaderActorName carries the display name of the actor.
	HeaderActorName = "X-Actor-Name"
	// HeaderActorRole carries the supply chain role, e.g. farmer.
	HeaderActorRole = "X-Actor-Role"

	defaultTokenTTL = 24 * time.Hour
)

// ErrInvalidToken is returned for malformed, expired or wrongly signed bearer tokens.
var ErrInvalidToken = errors.New("invalid identity token")

type (
	// Claims are the JWT claims identifying an actor.
	Claims struct {
		ActorID string `json:"actor_id"`
		Name    string `json:"name,omitempty"`
		Role    string `json:"role,omitempty"`
		jwt.RegisteredClaims
	}

	// AuthenticatorOpts contains configuration options for creating a new Authenticator.
	AuthenticatorOpts struct {
		Secret   string        // HS256 signing secret, empty to trust actor headers
		Issuer   string        // Expected and issued "iss" claim, optional
		TokenTTL time.Duration // Lifetime of issued tokens
		Logg     *slog.Logger  // Structured logger
	}

	// Authenticator extracts identities from HTTP requests.
	Authenticator struct {
		secret   []byte
		issuer   string
		tokenTTL time.Duration
		logg     *slog.Logger
	}
)

// NewAuthenticator creates a new Authenticator instance.
func NewAuthenticator(o AuthenticatorOpts) *Authenticator {
	ttl := o.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &Authenticator{
		secret:   []byte(o.Secret),
		issuer:   o.Issuer,
		tokenTTL: ttl,
		logg:     o.Logg,
	}
}

// Authenticate returns the identity presented by the request. With a secret
// configured only a valid bearer token counts; otherwise the actor headers are
// trusted as is. ok is false when the request carries no identity.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, bool, error) {
	if len(a.secret) == 0 {
		id := Identity{
			ActorID: strings.TrimSpace(r.Header.Get(HeaderActorID)),
			Name:    strings.TrimSpace(r.Header.Get(HeaderActorName)),
			Role:    strings.TrimSpace(r.Header.Get(HeaderActorRole)),
		}
		return id, id.ActorID != "", nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return Identity{}, false, nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return Identity{}, false, fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}

	id, err := a.Verify(parts[1])
	if err != nil {
		return Identity{}, false, err
	}
	return id, true, nil
}

// Verify parses and validates a signed identity token.
func (a *Authenticator) Verify(token string) (Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ActorID == "" {
		return Identity{}, fmt.Errorf("%w: missing actor id", ErrInvalidToken)
	}

	return Identity{ActorID: claims.ActorID, Name: claims.Name, Role: claims.Role}, nil
}

// Issue signs a token for id.
func (a *Authenticator) Issue(id Identity) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("no signing secret configured")
	}

	now := time.Now()
	claims := Claims{
		ActorID: id.ActorID,
		Name:    id.Name,
		Role:    id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ActorID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}
	return signed, nil
}
