package httpadapter

import (
	"encoding/json"
	"net/http"
)

// createExport handles POST /v1/exports: move the queued entries of one
// mandant into a downloadable workbook.
func (rt *Router) createExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s, err := requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		MandantID string `json:"mandant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	batch, err := rt.exporter.CreateExport(r.Context(), s.UserID, req.MandantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, batch)
}

// exportDownload handles GET /v1/exports/{id}/download and answers with a
// presigned storage URL instead of streaming the workbook itself.
func (rt *Router) exportDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	exportID, action := pathTail(r.URL.Path, "/v1/exports/")
	if exportID == "" || action != "download" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	url, err := rt.exporter.DownloadURL(r.Context(), exportID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
