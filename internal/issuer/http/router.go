package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/redletterlabs/vouchsafe/internal/issuer/service"
	"github.com/redletterlabs/vouchsafe/internal/issuer/store"
	"github.com/redletterlabs/vouchsafe/pkg/httpx"
	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keyManager   *jwtx.KeyManager
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store              store.Store
	TokenService       *service.TokenService
	BootstrapService   *service.BootstrapService
	KeyRotationService *service.KeyRotationService
}

func NewRouter(
	keyManager *jwtx.KeyManager,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keyManager:   keyManager,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerKeyRotation()
	r.registerSystem()
	r.registerBootstrap()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	// POST /token - strict rate limit by IP + client_id to slow credential
	// stuffing without letting one noisy client starve the rest of a NAT
	tokenHandler := &TokenHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "client_id"),
		),
	)

	// POST /revoke - moderate rate limit
	revokeHandler := &RevokeHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /v1/oauth2/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// GET /jwks.json - public endpoint with high limit, polled by every
	// verifier in the fleet
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keyManager),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}

func (r *Router) registerKeyRotation() {
	h := &KeyRotationHandler{KeyRotationService: r.KeyRotationService}

	// POST /v1/keys/rotate - requires admin.keys - moderate rate limit
	securedRotate := httpx.Chain(http.HandlerFunc(h.HandleRotate),
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireScope("admin.keys"),
		httpx.RateLimitByClient(httpx.ModerateLimit),
	)

	r.Mux.Handle("POST /v1/keys/rotate", securedRotate)
}

func (r *Router) registerBootstrap() {
	// POST /bootstrap - very strict rate limit by IP (one-time setup endpoint)
	bootstrapHandler := &BootstrapHandler{BootstrapService: r.BootstrapService}
	r.Mux.Handle("POST /v1/bootstrap",
		httpx.Chain(bootstrapHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoints - public rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keyManager),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
