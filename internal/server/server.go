package server

import (
	"net/http"

	"github.com/akshitpareta/OpenSalesAI-sub000/internal/db"
	"github.com/akshitpareta/OpenSalesAI-sub000/internal/visits"
)

// Server bundles the handlers and routing for the field API.
type Server struct {
	repo   *db.Repository
	visits *VisitsHandler
	stores *StoresHandler
}

// New creates a Server over the given repository and visit service.
func New(repo *db.Repository, svc *visits.Service) *Server {
	return &Server{
		repo:   repo,
		visits: NewVisitsHandler(svc),
		stores: NewStoresHandler(repo),
	}
}

// Handler returns the routed HTTP handler. Mutating routes are wrapped
// with the idempotency guard so queued replays are applied at most once.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /visits", s.visits.CheckIn)
	mux.HandleFunc("GET /visits", s.visits.List)
	mux.HandleFunc("GET /visits/{id}", s.visits.Get)
	mux.HandleFunc("PUT /visits/{id}/checkout", s.visits.CheckOut)

	mux.HandleFunc("POST /stores", s.stores.CreateStore)
	mux.HandleFunc("GET /stores", s.stores.ListStores)
	mux.HandleFunc("GET /stores/{id}", s.stores.GetStore)
	mux.HandleFunc("POST /reps", s.stores.CreateRep)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if r.Method != http.MethodHead {
			w.Write([]byte(`{"status":"ok","service":"opensales"}`))
		}
	})

	return withIdempotency(s.repo, mux)
}
