package httpadapter

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/fkoehler/taxagent/internal/core/domain"
	"github.com/fkoehler/taxagent/internal/core/usecase"
)

// maxIntakeBody bounds one multipart intake request: the per-file and
// per-batch caps plus form overhead.
const maxIntakeBody = int64(usecase.MaxBatchFiles)*usecase.MaxFileSize + 1<<20

// createBatch handles POST /v1/batches: a multipart form with a mandant_id
// field, an optional allow_duplicates flag, and up to ten file parts.
func (rt *Router) createBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s, err := requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxIntakeBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
		return
	}

	req := domain.IngestRequest{
		MandantID:       r.FormValue("mandant_id"),
		UploaderID:      s.UserID,
		AllowDuplicates: r.FormValue("allow_duplicates") == "true",
	}
	for _, header := range r.MultipartForm.File["files"] {
		file, err := header.Open()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable file part"})
			return
		}
		content, err := io.ReadAll(file)
		_ = file.Close()
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable file part"})
			return
		}
		req.Offers = append(req.Offers, domain.FileOffer{
			Filename: header.Filename,
			MimeType: header.Header.Get("Content-Type"),
			Size:     header.Size,
			Content:  content,
		})
	}

	result, err := rt.ingest.Ingest(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordIntake(len(result.Files), result.Rejections)
	}
	writeJSON(w, http.StatusAccepted, result)
}

// getBatch handles GET /v1/batches/{id}: the batch row plus its files.
func (rt *Router) getBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	batchID, rest := pathTail(r.URL.Path, "/v1/batches/")
	if batchID == "" || rest != "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	batch, err := rt.batches.GetByID(r.Context(), batchID)
	if err != nil {
		writeError(w, err)
		return
	}
	files, err := rt.documents.ListByBatch(r.Context(), batchID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"batch": batch,
		"files": files,
	})
}

// checkDuplicates handles POST /v1/documents/check, the advisory pre-check
// dashboards run before offering an upload.
func (rt *Router) checkDuplicates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		MandantID    string   `json:"mandant_id"`
		Fingerprints []string `json:"fingerprints"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.Fingerprints) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "fingerprints are required"})
		return
	}

	result, err := rt.dedup.CheckFingerprints(r.Context(), req.MandantID, req.Fingerprints)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
