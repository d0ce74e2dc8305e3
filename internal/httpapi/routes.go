package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/", Root)
	r.Get("/healthz", Healthz)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/api/games", CreateGame(deps))
	r.Get("/api/contests/{contestID}/problems", ContestProblems(deps))
	r.Get("/ws/{gameID}", deps.WS)
	return r
}
