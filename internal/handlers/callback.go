package handlers

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"podcast-pipeline/internal/callback"
	"podcast-pipeline/internal/pipeline"
)

// CallbackSecretHeader carries the shared secret on completion callbacks.
const CallbackSecretHeader = "X-Callback-Secret"

const maxCallbackBody = 1 << 20

// AudioComplete receives the audio worker's completion report.
func (h *Handlers) AudioComplete(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		writeError(w, pipeline.Wrap(pipeline.KindInvalidPayload, "audio-complete", err, "failed to read body"))
		return
	}

	res, err := h.callbacks.Handle(r.Context(), callback.Callback{
		EpisodeID: mux.Vars(r)["id"],
		Secret:    r.Header.Get(CallbackSecretHeader),
		Body:      body,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if res.Skipped {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// AudioCompleteHealth lets workers check the callback route resolves the
// episode before they report.
func (h *Handlers) AudioCompleteHealth(w http.ResponseWriter, r *http.Request) {
	ep, err := h.callbacks.Health(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "callback endpoint ready",
		"episode": map[string]any{"id": ep.ID, "status": ep.Status},
	})
}
