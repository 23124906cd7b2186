package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Asset serves composition images persisted by the local file store.
func (a *App) Asset(w http.ResponseWriter, r *http.Request) {
	if a.Files == nil {
		a.error(w, http.StatusNotFound, "not_found", "local asset serving disabled")
		return
	}
	key := chi.URLParam(r, "*")
	data, err := a.Files.Read(r.Context(), key)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "asset not found")
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(data)
}
