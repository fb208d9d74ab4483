package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fkoehler/taxagent/internal/core/ports"
	"github.com/fkoehler/taxagent/internal/infrastructure/token"
	"github.com/fkoehler/taxagent/internal/observability/metrics"
)

// Router wires the intake, review, export, and account surfaces onto one
// mux. Auth is route-scoped: the classification callback authenticates with
// the shared secret, everything else under /v1 with a session token.
type Router struct {
	ingest    ports.BatchIngestor
	dedup     ports.DuplicateChecker
	reviewer  ports.BookingReviewer
	exporter  ports.Exporter
	accounts  ports.AccountService
	documents ports.DocumentRepository
	batches   ports.BatchRepository
	mandants  ports.MandantRepository
	queue     ports.MessageQueue
	tokens    *token.Manager

	callbackSecret string
	metrics        *metrics.HTTPServerMetrics

	rateLimitRPS    float64
	rateLimitBurst  int
	maxConcurrent   int
	acquireDeadline time.Duration
}

type RouterOptions struct {
	CallbackSecret  string
	Metrics         *metrics.HTTPServerMetrics
	RateLimitRPS    float64
	RateLimitBurst  int
	MaxConcurrent   int
	AcquireDeadline time.Duration
}

func NewRouter(
	ingest ports.BatchIngestor,
	dedup ports.DuplicateChecker,
	reviewer ports.BookingReviewer,
	exporter ports.Exporter,
	accounts ports.AccountService,
	documents ports.DocumentRepository,
	batches ports.BatchRepository,
	mandants ports.MandantRepository,
	queue ports.MessageQueue,
	tokens *token.Manager,
	opts RouterOptions,
) *Router {
	return &Router{
		ingest:          ingest,
		dedup:           dedup,
		reviewer:        reviewer,
		exporter:        exporter,
		accounts:        accounts,
		documents:       documents,
		batches:         batches,
		mandants:        mandants,
		queue:           queue,
		tokens:          tokens,
		callbackSecret:  opts.CallbackSecret,
		metrics:         opts.Metrics,
		rateLimitRPS:    opts.RateLimitRPS,
		rateLimitBurst:  opts.RateLimitBurst,
		maxConcurrent:   opts.MaxConcurrent,
		acquireDeadline: opts.AcquireDeadline,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	mux.HandleFunc("/v1/auth/register", rt.register)
	mux.HandleFunc("/v1/auth/login", rt.login)
	mux.HandleFunc("/v1/users/me", rt.authedAnyApproval(rt.currentUser))
	mux.HandleFunc("/v1/admin/users", rt.admin(rt.listUsers))
	mux.HandleFunc("/v1/admin/users/", rt.admin(rt.decideUser))

	mux.HandleFunc("/v1/mandanten", rt.authed(rt.listMandanten))
	mux.HandleFunc("/v1/batches", rt.authed(rt.createBatch))
	mux.HandleFunc("/v1/batches/", rt.authed(rt.getBatch))
	mux.HandleFunc("/v1/documents/check", rt.authed(rt.checkDuplicates))
	mux.HandleFunc("/v1/classifications/callback", rt.classificationCallback)

	mux.HandleFunc("/v1/bookings", rt.authed(rt.listBookings))
	mux.HandleFunc("/v1/bookings/", rt.authed(rt.bookingByID))
	mux.HandleFunc("/v1/exports", rt.admin(rt.createExport))
	mux.HandleFunc("/v1/exports/", rt.admin(rt.exportDownload))
	mux.HandleFunc("/v1/events", rt.authed(rt.streamEvents))

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	if rt.maxConcurrent > 0 {
		handler = backpressureMiddleware(handler, rt.maxConcurrent, rt.acquireDeadline)
	}
	if rt.rateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

// pathTail splits the remainder after prefix into at most two segments,
// e.g. /v1/bookings/{id}/approve -> ("{id}", "approve").
func pathTail(path, prefix string) (string, string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
