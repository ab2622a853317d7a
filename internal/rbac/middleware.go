package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/featgraph/featgraph/pkg/model"
)

type contextKey struct{}

// PrincipalFromContext returns the principal the gate attached to the
// request, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok
}

// WithPrincipal attaches a principal to a context (used by handlers and
// tests).
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// ProjectLookup maps an entity id or qualified name to the project that owns
// it. Used when a route addresses an entity directly rather than through a
// project path.
type ProjectLookup func(ctx context.Context, idOrName string) (string, error)

// Gate is the authorization middleware: it resolves the principal, derives
// the required access from route and method, and consults the role bindings.
// No matching binding means deny.
type Gate struct {
	manager  *Manager
	resolver *Resolver
	lookup   ProjectLookup
	logger   *slog.Logger
}

// NewGate builds the middleware. lookup may be nil; entity routes then fall
// back to requiring global access.
func NewGate(m *Manager, r *Resolver, lookup ProjectLookup, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{manager: m, resolver: r, lookup: lookup, logger: logger}
}

// Middleware authorizes every request passing through it.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		principal, err := g.resolver.FromRequest(req)
		if err != nil {
			http.Error(w, `{"detail":"no authorization token was found"}`, http.StatusUnauthorized)
			return
		}

		// Listing role bindings needs authentication only; the handler
		// scopes the result to what the caller administers.
		if req.Method == http.MethodGet && strings.HasSuffix(req.URL.Path, "/userroles") {
			next.ServeHTTP(w, req.WithContext(WithPrincipal(req.Context(), principal)))
			return
		}

		access := requiredAccess(req)
		project := g.requestProject(req)

		allowed, err := g.manager.Validate(req.Context(), project, principal.Username, access)
		if err != nil {
			g.logger.Error("role lookup failed", "user", principal.Username, "error", err)
			http.Error(w, `{"detail":"authorization check failed"}`, http.StatusInternalServerError)
			return
		}
		if !allowed {
			g.logger.Warn("access denied",
				"user", principal.Username, "project", project, "access", access)
			http.Error(w, `{"detail":"access denied"}`, http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, req.WithContext(WithPrincipal(req.Context(), principal)))
	})
}

// requiredAccess maps route and method onto an access level. Role
// administration always needs manage.
func requiredAccess(req *http.Request) Access {
	if strings.Contains(req.URL.Path, "/userroles") {
		return AccessManage
	}
	switch req.Method {
	case http.MethodGet, http.MethodHead:
		return AccessRead
	default:
		return AccessWrite
	}
}

// requestProject derives the project scope a request targets. The middleware
// runs before the router fills in URL parameters, so the scope is read off
// the raw path: the segment after projects names the project, the segment
// after features, entity or dependent addresses an entity whose owning
// project is resolved. Project creation and listings fall under the global
// scope.
func (g *Gate) requestProject(req *http.Request) string {
	segments := strings.Split(strings.Trim(req.URL.Path, "/"), "/")
	for i, segment := range segments {
		if i+1 >= len(segments) || segments[i+1] == "" {
			continue
		}
		switch segment {
		case "projects", "features", "entity", "dependent":
			return g.scopeOf(req.Context(), segments[i+1])
		}
	}
	// Role administration scopes by the project named in the query string.
	if project := req.URL.Query().Get("project"); project != "" {
		return project
	}
	return SuperAdminScope
}

// scopeOf maps an entity reference onto the project name bindings are keyed
// by. A qualified name leads with its project segment; an id goes through the
// lookup. Unresolvable references fall back to the global scope.
func (g *Gate) scopeOf(ctx context.Context, ref string) string {
	if _, err := uuid.Parse(ref); err != nil {
		return model.ProjectOfQualifiedName(ref)
	}
	if g.lookup != nil {
		if project, err := g.lookup(ctx, ref); err == nil {
			return project
		}
	}
	return SuperAdminScope
}
