package gateway

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/redletterlabs/vouchsafe/pkg/authsdk"
	"github.com/redletterlabs/vouchsafe/pkg/httpx"
	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
	"github.com/redletterlabs/vouchsafe/pkg/keycache"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

// Route maps a path prefix to an upstream service and the scopes a caller
// needs: GET and HEAD require the read scope, every other method the write
// scope.
type Route struct {
	Prefix     string
	Upstream   *url.URL
	ReadScope  string
	WriteScope string
}

// Router fronts the resource services. Every proxied route verifies the
// bearer token against the cached issuer keys, enforces the route's scopes
// and throttles per client before forwarding.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier  jwtx.Verifier
	cache     *keycache.Cache
	startTime time.Time
	logger    *slog.Logger
}

func NewRouter(verifier jwtx.Verifier, cache *keycache.Cache, logger *slog.Logger) *Router {
	r := &Router{
		Mux:       http.NewServeMux(),
		verifier:  verifier,
		cache:     cache,
		startTime: time.Now(),
		logger:    logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// ApplyRoutes registers the proxied routes and the health endpoints.
func (r *Router) ApplyRoutes(routes []Route) {
	for _, route := range routes {
		proxy := r.newProxy(route.Upstream)

		secured := httpx.Chain(proxy,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireScopeByMethod(route.ReadScope, route.WriteScope),
			httpx.RateLimitByClientPolicy(),
		)

		r.Mux.Handle(route.Prefix, secured)
		r.Mux.Handle(route.Prefix+"/", secured)
	}

	r.Mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mux.HandleFunc("GET /ready", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]bool{"ready": true})
	})
}

// newProxy builds the reverse proxy for one upstream. The slogx middleware
// already stamped the correlation id onto the request headers, so it rides
// through to the upstream unchanged.
func (r *Router) newProxy(upstream *url.URL) http.Handler {
	proxy := httputil.NewSingleHostReverseProxy(upstream)

	proxy.ErrorHandler = func(w http.ResponseWriter, req *http.Request, err error) {
		slogx.FromContext(req.Context()).Error("upstream request failed",
			"upstream", upstream.String(),
			"err", err,
		)
		authsdk.ErrTemporarilyUnavailable.WriteError(w)
	}

	return proxy
}
