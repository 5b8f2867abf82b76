package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/suite"

	"drivesync/pkg/journal"
	"drivesync/pkg/metadata"
	"drivesync/pkg/mirror"
)

const testBoundary = "----WebKitFormBoundary7MA4YWxkTrZu0gW"

// newTestServer wires a sync server over real stores rooted in tempDir.
func newTestServer(tempDir string) *SyncServer {
	meta := metadata.NewStore(filepath.Join(tempDir, "data", "files.json"))
	fsMirror := mirror.New(filepath.Join(tempDir, "public"))
	opJournal := journal.New(filepath.Join(tempDir, "operations.jsonl"))

	srv := NewSyncServer(meta, fsMirror, opJournal, "test-v1.0.0")
	srv.setupRoutes()
	return srv
}

// newJSONContext builds an echo context carrying a JSON body.
func newJSONContext(srv *SyncServer, method, target string, payload interface{}) (echo.Context, *httptest.ResponseRecorder) {
	var body *bytes.Buffer
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewBuffer(data)
	} else {
		body = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, target, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return srv.echo.NewContext(req, rec), rec
}

// newUploadContext builds an echo context carrying a multipart upload.
func newUploadContext(srv *SyncServer, filename, content, parent string) (echo.Context, *httptest.ResponseRecorder) {
	body := &bytes.Buffer{}
	body.WriteString("--" + testBoundary + "\r\n")
	if parent != "" {
		body.WriteString("Content-Disposition: form-data; name=\"parent\"\r\n\r\n")
		body.WriteString(parent)
		body.WriteString("\r\n--" + testBoundary + "\r\n")
	}
	body.WriteString("Content-Disposition: form-data; name=\"file\"; filename=\"" + filename + "\"\r\n")
	body.WriteString("Content-Type: application/octet-stream\r\n\r\n")
	body.WriteString(content)
	body.WriteString("\r\n--" + testBoundary + "--\r\n")

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, "multipart/form-data; boundary="+testBoundary)
	rec := httptest.NewRecorder()
	return srv.echo.NewContext(req, rec), rec
}

func decodeBody(rec *httptest.ResponseRecorder) map[string]interface{} {
	var response map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &response)
	return response
}

// SyncServerTestSuite covers server wiring and the full operation sequence
type SyncServerTestSuite struct {
	suite.Suite
	tempDir string
	server  *SyncServer
}

// SetupTest runs before each test
func (s *SyncServerTestSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "syncserver-test-*")
	s.Require().NoError(err)
	s.server = newTestServer(s.tempDir)
}

// TearDownTest runs after each test
func (s *SyncServerTestSuite) TearDownTest() {
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}

// TestOperationSequence walks the create/conflict/upload/delete sequence end to end
func (s *SyncServerTestSuite) TestOperationSequence() {
	// Create folder Reports
	ctx, rec := newJSONContext(s.server, http.MethodPost, "/api/folders", map[string]string{"id": "x1", "name": "Reports"})
	s.Require().NoError(s.server.createFolder(ctx))
	s.Require().Equal(http.StatusCreated, rec.Code)

	// Case-insensitive duplicate is a conflict
	ctx, rec = newJSONContext(s.server, http.MethodPost, "/api/folders", map[string]string{"id": "x2", "name": "reports"})
	s.Require().NoError(s.server.createFolder(ctx))
	s.Require().Equal(http.StatusConflict, rec.Code)
	s.Equal("Folder exists", decodeBody(rec)["error"])

	// Upload into the folder
	ctx, rec = newUploadContext(s.server, "q1.txt", "quarterly numbers", "x1")
	s.Require().NoError(s.server.uploadFile(ctx))
	s.Require().Equal(http.StatusCreated, rec.Code)

	file, ok := decodeBody(rec)["file"].(map[string]interface{})
	s.Require().True(ok)
	diskName, _ := file["diskName"].(string)
	s.Require().NotEmpty(diskName)
	s.True(unicode.IsDigit(rune(diskName[0])), "diskName must begin with a numeric timestamp")
	s.True(strings.HasSuffix(diskName, "-q1.txt"))

	folderDir := s.server.mirror.DirFor("Reports")
	_, err := os.Stat(filepath.Join(folderDir, diskName))
	s.NoError(err)

	// Delete the folder, cascading to its one file
	ctx, rec = newJSONContext(s.server, http.MethodDelete, "/api/folders/x1", nil)
	ctx.SetParamNames("folderId")
	ctx.SetParamValues("x1")
	s.Require().NoError(s.server.deleteFolder(ctx))
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(float64(1), decodeBody(rec)["deletedCount"])

	_, err = os.Stat(folderDir)
	s.True(os.IsNotExist(err))

	doc, err := s.server.meta.Load()
	s.Require().NoError(err)
	s.Empty(doc.Folders)
	s.Empty(doc.Files)
}

// TestJournalRecordsOperations tests that mutations leave finished journal entries
func (s *SyncServerTestSuite) TestJournalRecordsOperations() {
	ctx, rec := newJSONContext(s.server, http.MethodPost, "/api/folders", map[string]string{"id": "x1", "name": "Reports"})
	s.Require().NoError(s.server.createFolder(ctx))
	s.Require().Equal(http.StatusCreated, rec.Code)

	ctx, rec = newUploadContext(s.server, "a.txt", "content", "")
	s.Require().NoError(s.server.uploadFile(ctx))
	s.Require().Equal(http.StatusCreated, rec.Code)

	unfinished, err := s.server.journal.Unfinished()
	s.NoError(err)
	s.Empty(unfinished)

	data, err := os.ReadFile(filepath.Join(s.tempDir, "operations.jsonl"))
	s.Require().NoError(err)
	s.Contains(string(data), "create-folder")
	s.Contains(string(data), "upload")
}

// TestSyncServerSuite runs the sync server test suite
func TestSyncServerSuite(t *testing.T) {
	suite.Run(t, new(SyncServerTestSuite))
}
