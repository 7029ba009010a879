package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"podcast-pipeline/internal/middleware"
)

// Router wires every route. Admin routes sit behind the bearer token; the
// synchronous regeneration route is also rate limited per client.
func (h *Handlers) Router(adminToken string, limiter *middleware.RateLimiterMiddleware) *mux.Router {
	r := mux.NewRouter()
	admin := middleware.AdminAuth(adminToken)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/episodes/{id}/regenerate",
		admin(limiter.Middleware(http.HandlerFunc(h.Regenerate)))).Methods(http.MethodPost)
	api.Handle("/episodes/{id}/regenerate/async",
		admin(http.HandlerFunc(h.RegenerateAsync))).Methods(http.MethodPost)
	api.Handle("/episodes/{id}/status", admin(http.HandlerFunc(h.EpisodeStatus))).Methods(http.MethodGet)
	api.Handle("/podcasts/{id}/episodes/status", admin(http.HandlerFunc(h.PodcastStatuses))).Methods(http.MethodGet)

	// The completion callback authenticates with its own shared secret.
	api.HandleFunc("/episodes/{id}/audio-complete", h.AudioComplete).Methods(http.MethodPost)
	api.HandleFunc("/episodes/{id}/audio-complete", h.AudioCompleteHealth).Methods(http.MethodGet)

	r.HandleFunc("/feeds/{podcastID}.xml", h.GetRSSFeed).Methods(http.MethodGet)
	r.HandleFunc("/audio/{id}", h.ServeAudio).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}).Methods(http.MethodGet)

	return r
}
