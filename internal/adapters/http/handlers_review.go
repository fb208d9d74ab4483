package httpadapter

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fkoehler/taxagent/internal/core/domain"
)

const callbackSecretHeader = "X-Callback-Secret"

// listBookings handles GET /v1/bookings with filter and sort query params.
func (rt *Router) listBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	filter := domain.BookingFilter{
		MandantID:  q.Get("mandant_id"),
		Status:     domain.BookingStatus(q.Get("status")),
		Confidence: domain.ConfidenceBucket(q.Get("confidence")),
		SortColumn: q.Get("sort"),
		SortDesc:   q.Get("order") == "desc",
	}

	entries, err := rt.reviewer.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": entries})
}

// bookingByID dispatches /v1/bookings/{id} and /v1/bookings/{id}/{action}.
func (rt *Router) bookingByID(w http.ResponseWriter, r *http.Request) {
	s, err := requireSession(r)
	if err != nil {
		writeError(w, err)
		return
	}
	bookingID, action := pathTail(r.URL.Path, "/v1/bookings/")
	if bookingID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	switch {
	case action == "approve" && r.Method == http.MethodPost:
		err = rt.reviewer.Approve(r.Context(), s.UserID, bookingID)
	case action == "reject" && r.Method == http.MethodPost:
		err = rt.reviewer.Reject(r.Context(), s.UserID, bookingID)
	case action == "" && r.Method == http.MethodPut:
		var entry domain.BookingEntry
		if decodeErr := json.NewDecoder(r.Body).Decode(&entry); decodeErr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		entry.ID = bookingID
		err = rt.reviewer.Save(r.Context(), s.UserID, entry)
	case action == "" && r.Method == http.MethodDelete:
		if s.Role != domain.RoleAdmin {
			writeError(w, domain.WrapError(domain.ErrForbidden, "delete booking", errors.New("admin role required")))
			return
		}
		err = rt.reviewer.Delete(r.Context(), s.UserID, bookingID)
	default:
		methodNotAllowed(w)
		return
	}

	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// classificationCallback handles POST /v1/classifications/callback. The
// automation platform is not a logged-in user, so the route is outside the
// session middleware and authenticates with a shared secret header instead.
func (rt *Router) classificationCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	secret := strings.TrimSpace(r.Header.Get(callbackSecretHeader))
	if rt.callbackSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(rt.callbackSecret)) != 1 {
		writeError(w, domain.WrapError(domain.ErrUnauthorized, "classification callback", errors.New("bad shared secret")))
		return
	}

	var entry domain.BookingEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	created, err := rt.reviewer.RecordClassification(r.Context(), entry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
