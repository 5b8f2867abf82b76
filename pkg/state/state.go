// Package state holds a client-side replica of the drive metadata
// document. Commands apply an optimistic local change, send the
// matching server request, and then reconcile by fetching the full
// document; the server response is the single source of truth, so a
// failed command is healed by the fetch rather than by inverse
// bookkeeping.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"drivesync/pkg/log"
	"drivesync/pkg/models"
)

// Status describes the lifecycle of the last fetch.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

const (
	defaultRetryMax     = 3
	defaultRetryWaitMin = 100 * time.Millisecond
	defaultRetryWaitMax = 2 * time.Second

	// provisionalSize is shown on optimistic upload records until the
	// reconciling fetch replaces them with the server's size label.
	provisionalSize = "0 KB"
)

// ServerError is a non-2xx response from the sync server.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

// Snapshot is a point-in-time copy of the replica.
type Snapshot struct {
	Document models.Document
	Status   Status
	Err      error
}

// Store is the client-side state store. All methods are safe for
// concurrent use.
type Store struct {
	baseURL string
	client  *retryablehttp.Client

	mu        sync.RWMutex
	doc       models.Document
	status    Status
	lastErr   error
	listeners []func()
}

// NewStore creates a store talking to the sync server at baseURL.
func NewStore(baseURL string) *Store {
	return &Store{
		baseURL: baseURL,
		client:  newRetryableClient(defaultRetryMax, defaultRetryWaitMin, defaultRetryWaitMax),
		doc: models.Document{
			Folders: []models.Folder{},
			Files:   []models.File{},
		},
		status: StatusIdle,
	}
}

// newRetryableClient creates a retryable HTTP client for server requests.
func newRetryableClient(retryMax int, retryWaitMin, retryWaitMax time.Duration) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = retryMax
	client.RetryWaitMin = retryWaitMin
	client.RetryWaitMax = retryWaitMax
	client.Logger = nil // Disable retryablehttp logging
	// Only retry on connection/timeout errors so server error responses
	// surface to the caller instead of being retried away.
	client.CheckRetry = connectionErrorRetryPolicy
	return client
}

// connectionErrorRetryPolicy only retries when no response was received.
func connectionErrorRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil {
		return false, nil
	}
	if err != nil {
		return true, nil //nolint:nilerr // retryablehttp reports the final error itself
	}
	return false, nil
}

// Snapshot returns a copy of the replica, its status, and the last error.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc := models.Document{
		Folders: make([]models.Folder, len(s.doc.Folders)),
		Files:   make([]models.File, len(s.doc.Files)),
	}
	copy(doc.Folders, s.doc.Folders)
	copy(doc.Files, s.doc.Files)

	return Snapshot{Document: doc, Status: s.status, Err: s.lastErr}
}

// Subscribe registers a listener invoked after every state change.
func (s *Store) Subscribe(listener func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, listener)
}

// notify must not be called with the lock held.
func (s *Store) notify() {
	s.mu.RLock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener()
	}
}

// Reconcile fetches the full document and replaces the replica
// wholesale. On failure the previous data is kept and the error is
// recorded on the snapshot.
func (s *Store) Reconcile(ctx context.Context) error {
	s.mu.Lock()
	s.status = StatusLoading
	s.mu.Unlock()
	s.notify()

	doc, err := s.fetchDocument(ctx)

	s.mu.Lock()
	if err != nil {
		s.status = StatusFailed
		s.lastErr = err
	} else {
		s.doc = doc
		s.status = StatusSucceeded
		s.lastErr = nil
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		log.Warn().Err(err).Msg("Reconcile fetch failed, keeping previous replica")
	}
	return err
}

// fetchDocument performs the GET and decodes the document.
func (s *Store) fetchDocument(ctx context.Context) (models.Document, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/drive", nil)
	if err != nil {
		return models.Document{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return models.Document{}, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close fetch response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, decodeServerError(resp)
	}

	var doc models.Document
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return models.Document{}, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc.Folders == nil {
		doc.Folders = []models.Folder{}
	}
	if doc.Files == nil {
		doc.Files = []models.File{}
	}
	return doc, nil
}

// CreateFolder optimistically prepends a folder under a client-minted
// id, posts it to the server, and reconciles. The id is returned so
// callers can track the folder across the reconciling fetch.
func (s *Store) CreateFolder(ctx context.Context, name string) (string, error) {
	folderID := uuid.NewString()

	s.mu.Lock()
	s.doc.PrependFolder(models.Folder{ID: folderID, Name: name})
	s.mu.Unlock()
	s.notify()

	payload := map[string]string{"id": folderID, "name": name}
	err := s.postJSON(ctx, "/api/folders", payload, http.StatusCreated)

	// The fetch heals the replica whether the command landed or not.
	if recErr := s.Reconcile(ctx); err == nil {
		err = recErr
	}
	if err != nil {
		return "", err
	}
	return folderID, nil
}

// UploadFile optimistically prepends a provisional record, sends the
// multipart upload, and reconciles.
func (s *Store) UploadFile(ctx context.Context, name string, content []byte, parent string) error {
	provisional := models.File{
		ID:       uuid.NewString(),
		Parent:   parent,
		Name:     name,
		Size:     provisionalSize,
		Modified: time.Now().Format("2006-01-02"),
		Owner:    models.DefaultOwner,
	}

	s.mu.Lock()
	s.doc.PrependFile(provisional)
	s.mu.Unlock()
	s.notify()

	err := s.postUpload(ctx, name, content, parent)

	if recErr := s.Reconcile(ctx); err == nil {
		err = recErr
	}
	return err
}

// CopyFile asks the server to duplicate a file and reconciles. The copy
// is not applied optimistically: the server mints the disk name and
// record, so the fetch is the first place the copy can appear.
func (s *Store) CopyFile(ctx context.Context, fileID, newName string) error {
	payload := map[string]string{"fileId": fileID, "newName": newName}
	err := s.postJSON(ctx, "/api/files/copy", payload, http.StatusCreated)

	if recErr := s.Reconcile(ctx); err == nil {
		err = recErr
	}
	return err
}

// DeleteFile optimistically drops the record, issues the delete, and
// reconciles.
func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	s.mu.Lock()
	s.doc.RemoveFile(fileID)
	s.mu.Unlock()
	s.notify()

	err := s.sendDelete(ctx, "/api/files/"+fileID)

	if recErr := s.Reconcile(ctx); err == nil {
		err = recErr
	}
	return err
}

// DeleteFolder optimistically drops the folder and its files, issues
// the delete, and reconciles.
func (s *Store) DeleteFolder(ctx context.Context, folderID string) error {
	s.mu.Lock()
	s.doc.RemoveFolder(folderID)
	s.mu.Unlock()
	s.notify()

	err := s.sendDelete(ctx, "/api/folders/"+folderID)

	if recErr := s.Reconcile(ctx); err == nil {
		err = recErr
	}
	return err
}

// postJSON posts a JSON payload and checks for the expected status.
func (s *Store) postJSON(ctx context.Context, path string, payload interface{}, expected int) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	if resp.StatusCode != expected {
		return decodeServerError(resp)
	}
	return nil
}

// postUpload sends a multipart form with the file part and an optional
// parent part.
func (s *Store) postUpload(ctx context.Context, name string, content []byte, parent string) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if parent != "" {
		if err := writer.WriteField("parent", parent); err != nil {
			return err
		}
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/upload", body.Bytes())
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close upload response body")
		}
	}()

	if resp.StatusCode != http.StatusCreated {
		return decodeServerError(resp)
	}
	return nil
}

// sendDelete issues a DELETE and checks for 200.
func (s *Store) sendDelete(ctx context.Context, path string) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close delete response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return decodeServerError(resp)
	}
	return nil
}

// decodeServerError reads the {"error": ...} body of a failed response.
func decodeServerError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return &ServerError{StatusCode: resp.StatusCode, Message: body.Error}
}
