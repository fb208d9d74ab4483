package flowhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/fkoehler/taxagent/internal/core/domain"
	"github.com/fkoehler/taxagent/internal/infrastructure/resilience"
)

// Client forwards batch manifests to the external automation platform as one
// multipart request per batch: a JSON manifest part followed by the raw file
// parts. The platform classifies the documents and calls back into the api.
type Client struct {
	forwardURL string
	authToken  string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithResilienceExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.authToken = token
	}
}

func New(forwardURL string, opts ...Option) *Client {
	c := &Client{
		forwardURL: strings.TrimRight(forwardURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type manifestMeta struct {
	BatchID       string             `json:"batch_id"`
	MandantID     string             `json:"mandant_id"`
	MandantNumber string             `json:"mandant_number"`
	UploaderID    string             `json:"uploader_id,omitempty"`
	UploadedAt    time.Time          `json:"uploaded_at"`
	Files         []manifestFileMeta `json:"files"`
}

type manifestFileMeta struct {
	RegistryID string `json:"registry_id"`
	StorageKey string `json:"storage_key"`
	Filename   string `json:"filename"`
	MimeType   string `json:"mime_type"`
	SizeBytes  int64  `json:"size_bytes"`
}

func (c *Client) ForwardBatch(ctx context.Context, manifest domain.BatchManifest) error {
	body, contentType, err := encodeManifest(manifest)
	if err != nil {
		return err
	}

	call := func(callCtx context.Context) error {
		return c.post(callCtx, body, contentType)
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, "flowhook.forward", call, classifyWebhookError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded("forward batch", err)
}

func encodeManifest(manifest domain.BatchManifest) ([]byte, string, error) {
	meta := manifestMeta{
		BatchID:       manifest.BatchID,
		MandantID:     manifest.MandantID,
		MandantNumber: manifest.MandantNumber,
		UploaderID:    manifest.UploaderID,
		UploadedAt:    manifest.UploadedAt,
		Files:         make([]manifestFileMeta, 0, len(manifest.Files)),
	}
	for _, file := range manifest.Files {
		meta.Files = append(meta.Files, manifestFileMeta{
			RegistryID: file.RegistryID,
			StorageKey: file.StorageKey,
			Filename:   file.Filename,
			MimeType:   file.MimeType,
			SizeBytes:  file.SizeBytes,
		})
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", fmt.Errorf("marshal manifest: %w", err)
	}
	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Disposition", `form-data; name="manifest"`)
	metaHeader.Set("Content-Type", "application/json")
	metaPart, err := writer.CreatePart(metaHeader)
	if err != nil {
		return nil, "", fmt.Errorf("create manifest part: %w", err)
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return nil, "", fmt.Errorf("write manifest part: %w", err)
	}

	for _, file := range manifest.Files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, file.Filename))
		header.Set("Content-Type", file.MimeType)
		header.Set("X-Registry-Id", file.RegistryID)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("create file part %s: %w", file.RegistryID, err)
		}
		if _, err := part.Write(file.Content); err != nil {
			return nil, "", fmt.Errorf("write file part %s: %w", file.RegistryID, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("finish multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

func (c *Client) post(ctx context.Context, body []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.forwardURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create forward request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("forward request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  "forward",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}
	return nil
}
