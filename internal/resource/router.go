package resource

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/redletterlabs/vouchsafe/pkg/httpx"
	"github.com/redletterlabs/vouchsafe/pkg/jwtx"
	"github.com/redletterlabs/vouchsafe/pkg/keycache"
	"github.com/redletterlabs/vouchsafe/pkg/slogx"
)

// Definition describes one resource service: its protected endpoints and
// the scopes that unlock them.
type Definition struct {
	Name       string // service name, used for logging
	BasePath   string // e.g. "/orders"
	ReadScope  string // scope for GET
	WriteScope string // scope for POST

	List   http.HandlerFunc // GET BasePath
	Create http.HandlerFunc // POST BasePath
}

// Router serves one resource service behind token verification. Each
// service runs its own verifier and key cache; they scale and fail
// independently of the gateway and of each other.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	def       Definition
	verifier  jwtx.Verifier
	cache     *keycache.Cache
	startTime time.Time
	logger    *slog.Logger
}

func NewRouter(def Definition, verifier jwtx.Verifier, cache *keycache.Cache, logger *slog.Logger) *Router {
	r := &Router{
		Mux:       http.NewServeMux(),
		def:       def,
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

func (r *Router) ApplyRoutes() {
	r.Mux.Handle("GET "+r.def.BasePath,
		httpx.Chain(r.def.List,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireScope(r.def.ReadScope),
		),
	)
	r.Mux.Handle("POST "+r.def.BasePath,
		httpx.Chain(r.def.Create,
			httpx.AuthnMiddleware(r.verifier),
			httpx.RequireScope(r.def.WriteScope),
		),
	)

	r.Mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}
