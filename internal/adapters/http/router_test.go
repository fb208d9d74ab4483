package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
	"github.com/fkoehler/taxagent/internal/infrastructure/token"
)

type ingestFake struct {
	lastReq domain.IngestRequest
	result  *domain.IngestResult
	err     error
}

func (f *ingestFake) Ingest(_ context.Context, req domain.IngestRequest) (*domain.IngestResult, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &domain.IngestResult{Batch: &domain.Batch{ID: "batch-1"}}, nil
}

type dedupFake struct {
	lastMandant string
	lastPrints  []string
	result      map[string]domain.DuplicateCheck
}

func (f *dedupFake) CheckFingerprints(_ context.Context, mandantID string, fingerprints []string) (map[string]domain.DuplicateCheck, error) {
	f.lastMandant = mandantID
	f.lastPrints = fingerprints
	if f.result != nil {
		return f.result, nil
	}
	return map[string]domain.DuplicateCheck{}, nil
}

type reviewerFake struct {
	approved   []string
	rejected   []string
	deleted    []string
	saved      []domain.BookingEntry
	lastFilter domain.BookingFilter
	lastActor  string
	recorded   *domain.BookingEntry
	err        error
}

func (f *reviewerFake) List(_ context.Context, filter domain.BookingFilter) ([]domain.BookingEntry, error) {
	f.lastFilter = filter
	return nil, f.err
}

func (f *reviewerFake) Approve(_ context.Context, actorID, bookingID string) error {
	f.lastActor = actorID
	f.approved = append(f.approved, bookingID)
	return f.err
}

func (f *reviewerFake) Reject(_ context.Context, actorID, bookingID string) error {
	f.lastActor = actorID
	f.rejected = append(f.rejected, bookingID)
	return f.err
}

func (f *reviewerFake) Save(_ context.Context, actorID string, entry domain.BookingEntry) error {
	f.lastActor = actorID
	f.saved = append(f.saved, entry)
	return f.err
}

func (f *reviewerFake) Delete(_ context.Context, actorID, bookingID string) error {
	f.lastActor = actorID
	f.deleted = append(f.deleted, bookingID)
	return f.err
}

func (f *reviewerFake) RecordClassification(_ context.Context, entry domain.BookingEntry) (*domain.BookingEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	entry.ID = "bk-new"
	f.recorded = &entry
	return &entry, nil
}

type exporterFake struct {
	lastMandant string
	lastExport  string
	err         error
}

func (f *exporterFake) CreateExport(_ context.Context, _, mandantID string) (*domain.ExportBatch, error) {
	f.lastMandant = mandantID
	if f.err != nil {
		return nil, f.err
	}
	return &domain.ExportBatch{ID: "exp-1", MandantID: mandantID}, nil
}

func (f *exporterFake) DownloadURL(_ context.Context, exportID string) (string, error) {
	f.lastExport = exportID
	if f.err != nil {
		return "", f.err
	}
	return "https://storage.example/exports/" + exportID + "?signed", nil
}

type accountsFake struct {
	decided map[string]domain.ApprovalStatus
	users   []domain.User
	err     error
}

func (f *accountsFake) Register(_ context.Context, email, displayName, _ string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.User{ID: "u-new", Email: email, DisplayName: displayName, Approval: domain.ApprovalPending}, nil
}

func (f *accountsFake) Login(_ context.Context, email, _ string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.User{ID: "u-1", Email: email, Role: domain.RoleUser, Approval: domain.ApprovalApproved}, nil
}

func (f *accountsFake) GetByID(_ context.Context, id string) (*domain.User, error) {
	return &domain.User{ID: id, Email: "user@example.com"}, nil
}

func (f *accountsFake) ListUsers(_ context.Context) ([]domain.User, error) {
	return f.users, f.err
}

func (f *accountsFake) Decide(_ context.Context, userID string, approval domain.ApprovalStatus) error {
	if f.decided == nil {
		f.decided = map[string]domain.ApprovalStatus{}
	}
	f.decided[userID] = approval
	return f.err
}

type docRepoStub struct {
	byBatch map[string][]domain.Document
}

func (s *docRepoStub) Create(context.Context, *domain.Document) error { return nil }
func (s *docRepoStub) GetByID(_ context.Context, id string) (*domain.Document, error) {
	return &domain.Document{ID: id}, nil
}
func (s *docRepoStub) FindByFingerprint(context.Context, string, string) (*domain.Document, error) {
	return nil, domain.WrapError(domain.ErrNotFound, "find", errors.New("no row"))
}
func (s *docRepoStub) ListByBatch(_ context.Context, batchID string) ([]domain.Document, error) {
	return s.byBatch[batchID], nil
}
func (s *docRepoStub) UpdateStatus(context.Context, string, domain.DocumentStatus, int, string) error {
	return nil
}

type batchRepoStub struct {
	batches map[string]*domain.Batch
}

func (s *batchRepoStub) Create(context.Context, *domain.Batch) error { return nil }
func (s *batchRepoStub) GetByID(_ context.Context, id string) (*domain.Batch, error) {
	b, ok := s.batches[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get batch", errors.New("no row"))
	}
	return b, nil
}
func (s *batchRepoStub) UpdateStatus(context.Context, string, domain.BatchStatus, string) error {
	return nil
}
func (s *batchRepoStub) MarkForwarded(context.Context, string, time.Time) error { return nil }

type mandantRepoStub struct{}

func (mandantRepoStub) Create(context.Context, *domain.Mandant) error { return nil }
func (mandantRepoStub) GetByID(_ context.Context, id string) (*domain.Mandant, error) {
	return &domain.Mandant{ID: id, Number: "1000"}, nil
}
func (mandantRepoStub) List(context.Context) ([]domain.Mandant, error) {
	return []domain.Mandant{{ID: "m-1", Number: "1000", Name: "Beispiel GmbH"}}, nil
}

type queueStub struct {
	changes chan domain.ChangeEvent
}

func (queueStub) PublishBatchStored(context.Context, string) error { return nil }
func (queueStub) SubscribeBatchStored(context.Context, func(context.Context, string) error) error {
	return nil
}
func (queueStub) PublishChange(context.Context, domain.ChangeEvent) error { return nil }
func (q queueStub) SubscribeChanges(_ context.Context, handler func(context.Context, domain.ChangeEvent)) (func(), error) {
	if q.changes != nil {
		go func() {
			for change := range q.changes {
				handler(context.Background(), change)
			}
		}()
	}
	return func() {}, nil
}

type routerFixture struct {
	router   *Router
	ingest   *ingestFake
	dedup    *dedupFake
	reviewer *reviewerFake
	exporter *exporterFake
	accounts *accountsFake
	batches  *batchRepoStub
	docs     *docRepoStub
	tokens   *token.Manager
}

func newRouterFixture(t *testing.T, opts RouterOptions) *routerFixture {
	t.Helper()

	tokens, err := token.NewManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}

	fx := &routerFixture{
		ingest:   &ingestFake{},
		dedup:    &dedupFake{},
		reviewer: &reviewerFake{},
		exporter: &exporterFake{},
		accounts: &accountsFake{},
		batches:  &batchRepoStub{batches: map[string]*domain.Batch{}},
		docs:     &docRepoStub{byBatch: map[string][]domain.Document{}},
		tokens:   tokens,
	}
	fx.router = NewRouter(
		fx.ingest,
		fx.dedup,
		fx.reviewer,
		fx.exporter,
		fx.accounts,
		fx.docs,
		fx.batches,
		mandantRepoStub{},
		queueStub{},
		tokens,
		opts,
	)
	return fx
}

func (fx *routerFixture) bearerFor(t *testing.T, role domain.Role, approval domain.ApprovalStatus) string {
	t.Helper()
	signed, err := fx.tokens.Issue(&domain.User{
		ID:       "u-1",
		Role:     role,
		Approval: approval,
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + signed
}

func TestHealthzIsPublic(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})
	handler := fx.router.Handler()

	for _, path := range []string{"/v1/mandanten", "/v1/bookings", "/v1/users/me"} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without token, got %d", path, rec.Code)
		}
	}
}

func TestPendingAccountIsForbidden(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/mandanten", nil)
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalPending))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for pending account, got %d", rec.Code)
	}
}

func TestPendingAccountCanSeeOwnProfile(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalPending))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for own profile while pending, got %d", rec.Code)
	}
}

func TestCreateBatchParsesMultipart(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("mandant_id", "m-1")
	_ = writer.WriteField("allow_duplicates", "true")
	part, err := writer.CreateFormFile("files", "Rechnung.pdf")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte("%PDF-1.4 test"))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/batches", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	got := fx.ingest.lastReq
	if got.MandantID != "m-1" {
		t.Fatalf("expected mandant m-1, got %q", got.MandantID)
	}
	if !got.AllowDuplicates {
		t.Fatal("expected allow_duplicates to parse")
	}
	if got.UploaderID != "u-1" {
		t.Fatalf("expected uploader from session, got %q", got.UploaderID)
	}
	if len(got.Offers) != 1 || got.Offers[0].Filename != "Rechnung.pdf" {
		t.Fatalf("unexpected offers: %+v", got.Offers)
	}
	if !bytes.Equal(got.Offers[0].Content, []byte("%PDF-1.4 test")) {
		t.Fatal("expected file content to pass through")
	}
}

func TestCreateBatchMapsMandantGateTo422(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})
	fx.ingest.err = domain.WrapError(domain.ErrMandantRequired, "ingest", errors.New("no mandant selected"))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("mandant_id", domain.MandantAll)
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/batches", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestGetBatchIncludesFiles(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})
	fx.batches.batches["batch-1"] = &domain.Batch{ID: "batch-1", MandantID: "m-1"}
	fx.docs.byBatch["batch-1"] = []domain.Document{{ID: "d-1", BatchID: "batch-1"}}

	req := httptest.NewRequest(http.MethodGet, "/v1/batches/batch-1", nil)
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Batch domain.Batch      `json:"batch"`
		Files []domain.Document `json:"files"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Batch.ID != "batch-1" || len(payload.Files) != 1 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCheckDuplicatesRequiresFingerprints(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/check", strings.NewReader(`{"mandant_id":"m-1","fingerprints":[]}`))
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty fingerprints, got %d", rec.Code)
	}
}

func TestCheckDuplicatesForwardsRequest(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})
	fx.dedup.result = map[string]domain.DuplicateCheck{
		"abc": {Duplicate: true, DocumentID: "d-1"},
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/check", strings.NewReader(`{"mandant_id":"m-1","fingerprints":["abc"]}`))
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if fx.dedup.lastMandant != "m-1" || len(fx.dedup.lastPrints) != 1 {
		t.Fatalf("unexpected dedup call: %q %v", fx.dedup.lastMandant, fx.dedup.lastPrints)
	}
	var payload map[string]domain.DuplicateCheck
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload["abc"].Duplicate {
		t.Fatal("expected duplicate flag in response")
	}
}

func TestClassificationCallbackRejectsBadSecret(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{CallbackSecret: "hook-secret"})

	req := httptest.NewRequest(http.MethodPost, "/v1/classifications/callback", strings.NewReader(`{}`))
	req.Header.Set(callbackSecretHeader, "wrong")
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad secret, got %d", rec.Code)
	}
	if fx.reviewer.recorded != nil {
		t.Fatal("expected no classification recorded")
	}
}

func TestClassificationCallbackRecordsEntry(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{CallbackSecret: "hook-secret"})

	body := `{"mandant_id":"m-1","document_id":"d-1","confidence":93.5}`
	req := httptest.NewRequest(http.MethodPost, "/v1/classifications/callback", strings.NewReader(body))
	req.Header.Set(callbackSecretHeader, "hook-secret")
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if fx.reviewer.recorded == nil || fx.reviewer.recorded.MandantID != "m-1" {
		t.Fatalf("expected recorded entry, got %+v", fx.reviewer.recorded)
	}
}

func TestListBookingsBuildsFilterFromQuery(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/bookings?mandant_id=m-1&status=pending&confidence=high&sort=amount&order=desc", nil)
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	filter := fx.reviewer.lastFilter
	if filter.MandantID != "m-1" || filter.Status != domain.BookingPending {
		t.Fatalf("unexpected filter: %+v", filter)
	}
	if filter.Confidence != domain.ConfidenceHigh || filter.SortColumn != "amount" || !filter.SortDesc {
		t.Fatalf("unexpected sort/confidence: %+v", filter)
	}
}

func TestBookingApproveRoute(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/bookings/bk-1/approve", nil)
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(fx.reviewer.approved) != 1 || fx.reviewer.approved[0] != "bk-1" {
		t.Fatalf("unexpected approvals: %v", fx.reviewer.approved)
	}
	if fx.reviewer.lastActor != "u-1" {
		t.Fatalf("expected actor from session, got %q", fx.reviewer.lastActor)
	}
}

func TestBookingDeleteRequiresAdmin(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodDelete, "/v1/bookings/bk-1", nil)
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin delete, got %d", rec.Code)
	}
	if len(fx.reviewer.deleted) != 0 {
		t.Fatal("expected no delete call")
	}

	req = httptest.NewRequest(http.MethodDelete, "/v1/bookings/bk-1", nil)
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleAdmin, domain.ApprovalApproved))
	rec = httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin delete, got %d", rec.Code)
	}
	if len(fx.reviewer.deleted) != 1 {
		t.Fatalf("expected one delete, got %v", fx.reviewer.deleted)
	}
}

func TestBookingSavePinsIDFromPath(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	body := `{"id":"spoofed","mandant_id":"m-1","account_code":"4930"}`
	req := httptest.NewRequest(http.MethodPut, "/v1/bookings/bk-1", strings.NewReader(body))
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(fx.reviewer.saved) != 1 || fx.reviewer.saved[0].ID != "bk-1" {
		t.Fatalf("expected path id to win, got %+v", fx.reviewer.saved)
	}
}

func TestCreateExportRoute(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/exports", strings.NewReader(`{"mandant_id":"m-1"}`))
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin export, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/exports", strings.NewReader(`{"mandant_id":"m-1"}`))
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleAdmin, domain.ApprovalApproved))
	rec = httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if fx.exporter.lastMandant != "m-1" {
		t.Fatalf("expected export for m-1, got %q", fx.exporter.lastMandant)
	}
}

func TestExportDownloadRoute(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/exports/exp-1/download", nil)
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleAdmin, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.Contains(payload["url"], "exp-1") {
		t.Fatalf("expected presigned url for exp-1, got %q", payload["url"])
	}
}

func TestAdminRoutesRejectRegularUsers(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/users/u-2/decision", strings.NewReader(`{"approval":"approved"}`))
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleUser, domain.ApprovalApproved))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for regular user, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/users/u-2/decision", strings.NewReader(`{"approval":"approved"}`))
	req.Header.Set("Authorization", fx.bearerFor(t, domain.RoleAdmin, domain.ApprovalApproved))
	rec = httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
	if fx.accounts.decided["u-2"] != domain.ApprovalApproved {
		t.Fatalf("expected decision recorded, got %v", fx.accounts.decided)
	}
}

func TestLoginReturnsVerifiableToken(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader(`{"email":"user@example.com","password":"pw"}`))
	rec := httptest.NewRecorder()
	fx.router.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	claims, err := fx.tokens.Verify(payload.Token)
	if err != nil {
		t.Fatalf("expected issued token to verify: %v", err)
	}
	if claims.Subject != "u-1" {
		t.Fatalf("expected subject u-1, got %q", claims.Subject)
	}
}

func TestRateLimitReturns429(t *testing.T) {
	fx := newRouterFixture(t, RouterOptions{RateLimitRPS: 1, RateLimitBurst: 1})
	handler := fx.router.Handler()

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once burst is spent, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestBackpressureSheds503WhenSaturated(t *testing.T) {
	release := make(chan struct{})
	inside := make(chan struct{})
	slow := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		inside <- struct{}{}
		<-release
		w.WriteHeader(http.StatusOK)
	})
	handler := backpressureMiddleware(slow, 1, 20*time.Millisecond)

	done := make(chan struct{})
	go func() {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/bookings", nil))
		close(done)
	}()
	<-inside

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/bookings", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while saturated, got %d", rec.Code)
	}

	close(release)
	<-done
}
