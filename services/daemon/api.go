package daemon

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sanmathigb/nrvna-ai/internal/domain"
	"github.com/sanmathigb/nrvna-ai/internal/workspace"
)

const defaultListLimit = 20

// apiRoutes mounts the daemon's read-only job status API onto the sidecar
// HTTP server. It is a thin veneer over the workspace Reader: everything
// it reports is derivable from the directory tree, so external readers
// and this API can never disagree for long.
func apiRoutes(reader *workspace.Reader) func(chi.Router) {
	return func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", listJobs(reader))
			r.Get("/{id}", getJob(reader))
		})
	}
}

func listJobs(reader *workspace.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		jobs, err := reader.List(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	}
}

func getJob(reader *workspace.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		job, err := reader.Get(id)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
