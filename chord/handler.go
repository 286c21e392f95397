package chord

import (
	"expvar"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"kon.nect.sh/httprate"
)

// every POST /fingers issues m lookups
const fixFingersLimit = 5

// DebugHandler serves human readable diagnostics of node
func DebugHandler(node *LocalNode) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.URLFormat)
	router.Get("/stats", node.StatsHandler)
	router.Get("/graph", RingGraphHandler(node))
	router.Get("/routes", node.RoutesHandler)
	router.Get("/bindings", node.BindingsHandler)
	router.Get("/vars", expvar.Handler().ServeHTTP)
	router.With(httprate.LimitAll(fixFingersLimit, time.Second)).Post("/fingers", node.FixFingersHandler)

	return router
}
