package handlers

import (
	"errors"
	"io"
	"net/http"
	"path"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"podcast-pipeline/internal/db"
	"podcast-pipeline/internal/feed"
	"podcast-pipeline/internal/models"
	"podcast-pipeline/internal/storage"
)

func (h *Handlers) GetRSSFeed(w http.ResponseWriter, r *http.Request) {
	podcastID := mux.Vars(r)["podcastID"]

	podcast, err := h.episodes.GetPodcast(r.Context(), podcastID)
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "Podcast not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting podcast: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	episodes, err := h.episodes.ListPublishedEpisodes(r.Context(), podcastID)
	if err != nil {
		log.Printf("Error getting episodes: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rss, err := feed.GenerateRSS(podcast, episodes, h.baseURL)
	if err != nil {
		log.Printf("Error generating RSS: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	w.Write([]byte(rss))
}

// ServeAudio streams a published episode's audio out of the artifact store.
func (h *Handlers) ServeAudio(w http.ResponseWriter, r *http.Request) {
	ep, err := h.episodes.GetEpisode(r.Context(), mux.Vars(r)["id"])
	if err != nil || ep.Status != models.StatusPublished || !ep.HasAudio() {
		http.Error(w, "Audio not found", http.StatusNotFound)
		return
	}

	key, ok := storage.KeyFromRef(*ep.AudioURL, h.audio.Bucket())
	if !ok {
		http.Redirect(w, r, *ep.AudioURL, http.StatusFound)
		return
	}

	body, err := h.audio.Fetch(r.Context(), key)
	if err != nil {
		log.Printf("Error fetching audio %s: %v", key, err)
		http.Error(w, "Audio not found", http.StatusNotFound)
		return
	}
	defer body.Close()

	contentType := "audio/mpeg"
	if path.Ext(key) == ".m4a" {
		contentType = "audio/mp4"
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("Error streaming audio %s: %v", key, err)
	}
}
