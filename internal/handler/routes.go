package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes builds the server's router. events may be nil, in which case the
// change feed is not served.
func Routes(tasks *TaskHandler, events *EventsHandler, mw ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw...)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", tasks.List)
			r.Post("/", tasks.Create)
			r.Get("/{id}", tasks.Get)
			r.Put("/{id}", tasks.Update)
			r.Patch("/{id}", tasks.Update)
			r.Delete("/{id}", tasks.Delete)
		})
		r.Post("/sync", tasks.Sync)
		r.Get("/stats", tasks.Stats)
		r.Post("/notifications", tasks.SendNotification)
		if events != nil {
			r.Get("/events", events.Serve)
		}
	})

	return r
}
