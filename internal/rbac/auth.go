package rbac

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"

	"github.com/featgraph/featgraph/pkg/model"
)

// Principal is the identity extracted from a request's credentials.
type Principal struct {
	ID       string
	Name     string
	Username string
}

// ErrNoCredentials means the request carried no Authorization header.
var ErrNoCredentials = fmt.Errorf("no authorization token was found: %w", model.ErrDenied)

// Resolver extracts principals from Authorization headers. Resolved tokens
// are cached with a TTL so repeated requests skip the parse.
type Resolver struct {
	cache *gocache.Cache
}

const (
	principalCacheTTL   = 5 * time.Minute
	principalCacheSweep = 10 * time.Minute
)

// NewResolver creates a resolver with an empty cache.
func NewResolver() *Resolver {
	return &Resolver{cache: gocache.New(principalCacheTTL, principalCacheSweep)}
}

// FromRequest resolves the request's principal. Bearer JWTs are parsed in
// unverified-claims mode (the deployment fronting this service terminates
// authentication); a non-JWT token is taken as a plain username.
func (r *Resolver) FromRequest(req *http.Request) (*Principal, error) {
	header := req.Header.Get("Authorization")
	if header == "" {
		return nil, ErrNoCredentials
	}
	token := header
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		token = header[7:]
	}

	if cached, ok := r.cache.Get(token); ok {
		p := cached.(Principal)
		return &p, nil
	}

	p, err := principalFromToken(token)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(token, *p)
	return p, nil
}

func principalFromToken(token string) (*Principal, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		// Not a JWT at all: treat the raw token as a username.
		return &Principal{ID: token, Username: strings.ToLower(token)}, nil
	}

	p := &Principal{}
	if sub, ok := claims["sub"].(string); ok {
		p.ID = sub
	}
	if name, ok := claims["name"].(string); ok {
		p.Name = name
	}
	// Claim precedence mirrors the common AAD token shapes: browser id
	// tokens, user-impersonation tokens, app tokens, then generic OIDC.
	for _, key := range []string{"preferred_username", "upn", "email", "appid", "sub"} {
		if v, ok := claims[key].(string); ok && v != "" {
			p.Username = strings.ToLower(v)
			break
		}
	}
	if p.Username == "" {
		return nil, fmt.Errorf("token carries no usable identity claim: %w", model.ErrDenied)
	}
	return p, nil
}
