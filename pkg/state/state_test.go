package state

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"drivesync/pkg/journal"
	"drivesync/pkg/metadata"
	"drivesync/pkg/mirror"
	"drivesync/pkg/server"
)

// StateStoreTestSuite tests the client state store against a real sync server
type StateStoreTestSuite struct {
	suite.Suite
	tempDir    string
	httpServer *httptest.Server
	store      *Store
	ctx        context.Context
}

// SetupTest runs before each test
func (s *StateStoreTestSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "state-test-*")
	s.Require().NoError(err)

	meta := metadata.NewStore(filepath.Join(s.tempDir, "data", "files.json"))
	fsMirror := mirror.New(filepath.Join(s.tempDir, "public"))
	opJournal := journal.New(filepath.Join(s.tempDir, "operations.jsonl"))
	syncServer := server.NewSyncServer(meta, fsMirror, opJournal, "test-v1.0.0")

	s.httpServer = httptest.NewServer(syncServer.Handler())
	s.store = NewStore(s.httpServer.URL)
	s.ctx = context.Background()
}

// TearDownTest runs after each test
func (s *StateStoreTestSuite) TearDownTest() {
	if s.httpServer != nil {
		s.httpServer.Close()
	}
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
}

// TestInitialSnapshot tests the pre-fetch state
func (s *StateStoreTestSuite) TestInitialSnapshot() {
	snapshot := s.store.Snapshot()
	s.Equal(StatusIdle, snapshot.Status)
	s.NoError(snapshot.Err)
	s.Empty(snapshot.Document.Folders)
	s.Empty(snapshot.Document.Files)
}

// TestReconcileFetchesDocument tests the wholesale replace
func (s *StateStoreTestSuite) TestReconcileFetchesDocument() {
	_, err := s.store.CreateFolder(s.ctx, "Reports")
	s.Require().NoError(err)

	other := NewStore(s.httpServer.URL)
	s.Require().NoError(other.Reconcile(s.ctx))

	snapshot := other.Snapshot()
	s.Equal(StatusSucceeded, snapshot.Status)
	s.Require().Len(snapshot.Document.Folders, 1)
	s.Equal("Reports", snapshot.Document.Folders[0].Name)
}

// TestCreateFolder tests the optimistic create and its reconciliation
func (s *StateStoreTestSuite) TestCreateFolder() {
	folderID, err := s.store.CreateFolder(s.ctx, "Reports")
	s.Require().NoError(err)
	s.NotEmpty(folderID)

	// The client-minted id survives the reconciling fetch.
	snapshot := s.store.Snapshot()
	s.Equal(StatusSucceeded, snapshot.Status)
	s.Require().Len(snapshot.Document.Folders, 1)
	s.Equal(folderID, snapshot.Document.Folders[0].ID)
	s.Equal("Reports", snapshot.Document.Folders[0].Name)
}

// TestCreateFolderConflictHealed tests that a rejected optimistic create is washed out by the fetch
func (s *StateStoreTestSuite) TestCreateFolderConflictHealed() {
	_, err := s.store.CreateFolder(s.ctx, "Reports")
	s.Require().NoError(err)

	_, err = s.store.CreateFolder(s.ctx, "REPORTS")
	s.Require().Error(err)

	var serverErr *ServerError
	s.Require().True(errors.As(err, &serverErr))
	s.Equal(http.StatusConflict, serverErr.StatusCode)
	s.Equal("Folder exists", serverErr.Message)

	// No trace of the optimistic duplicate remains.
	snapshot := s.store.Snapshot()
	s.Len(snapshot.Document.Folders, 1)
}

// TestUploadFile tests that the provisional record is replaced by the server's
func (s *StateStoreTestSuite) TestUploadFile() {
	err := s.store.UploadFile(s.ctx, "notes.txt", []byte("hello"), "")
	s.Require().NoError(err)

	snapshot := s.store.Snapshot()
	s.Equal(StatusSucceeded, snapshot.Status)
	s.Require().Len(snapshot.Document.Files, 1)

	file := snapshot.Document.Files[0]
	s.Equal("notes.txt", file.Name)
	// The server record carries the disk name the provisional one lacked.
	s.NotEmpty(file.DiskName)
	s.Equal("0 KB", file.Size)
}

// TestUploadIntoFolder tests the parent round trip
func (s *StateStoreTestSuite) TestUploadIntoFolder() {
	folderID, err := s.store.CreateFolder(s.ctx, "Photos")
	s.Require().NoError(err)

	s.Require().NoError(s.store.UploadFile(s.ctx, "cat.jpg", []byte("img"), folderID))

	snapshot := s.store.Snapshot()
	s.Require().Len(snapshot.Document.Files, 1)
	s.Equal(folderID, snapshot.Document.Files[0].Parent)
}

// TestCopyFile tests the server-side copy appearing after the fetch
func (s *StateStoreTestSuite) TestCopyFile() {
	s.Require().NoError(s.store.UploadFile(s.ctx, "original.txt", []byte("payload"), ""))

	fileID := s.store.Snapshot().Document.Files[0].ID
	s.Require().NoError(s.store.CopyFile(s.ctx, fileID, "duplicate.txt"))

	snapshot := s.store.Snapshot()
	s.Require().Len(snapshot.Document.Files, 2)
	s.Equal("duplicate.txt", snapshot.Document.Files[0].Name)
	s.Equal("original.txt", snapshot.Document.Files[1].Name)
}

// TestCopyUnknownFile tests the surfaced server error
func (s *StateStoreTestSuite) TestCopyUnknownFile() {
	err := s.store.CopyFile(s.ctx, "no-such-id", "copy.txt")

	var serverErr *ServerError
	s.Require().True(errors.As(err, &serverErr))
	s.Equal(http.StatusNotFound, serverErr.StatusCode)
}

// TestDeleteFile tests the optimistic delete
func (s *StateStoreTestSuite) TestDeleteFile() {
	s.Require().NoError(s.store.UploadFile(s.ctx, "doomed.txt", []byte("x"), ""))

	fileID := s.store.Snapshot().Document.Files[0].ID
	s.Require().NoError(s.store.DeleteFile(s.ctx, fileID))

	snapshot := s.store.Snapshot()
	s.Equal(StatusSucceeded, snapshot.Status)
	s.Empty(snapshot.Document.Files)
}

// TestDeleteFolderCascades tests that child records disappear with the folder
func (s *StateStoreTestSuite) TestDeleteFolderCascades() {
	folderID, err := s.store.CreateFolder(s.ctx, "Reports")
	s.Require().NoError(err)
	s.Require().NoError(s.store.UploadFile(s.ctx, "q1.txt", []byte("1"), folderID))
	s.Require().NoError(s.store.UploadFile(s.ctx, "keep.txt", []byte("2"), ""))

	s.Require().NoError(s.store.DeleteFolder(s.ctx, folderID))

	snapshot := s.store.Snapshot()
	s.Empty(snapshot.Document.Folders)
	s.Require().Len(snapshot.Document.Files, 1)
	s.Equal("keep.txt", snapshot.Document.Files[0].Name)
}

// TestReconcileFailureKeepsReplica tests that a failed fetch keeps the previous data
func (s *StateStoreTestSuite) TestReconcileFailureKeepsReplica() {
	_, err := s.store.CreateFolder(s.ctx, "Reports")
	s.Require().NoError(err)

	s.httpServer.Close()
	s.httpServer = nil

	s.Require().Error(s.store.Reconcile(s.ctx))

	snapshot := s.store.Snapshot()
	s.Equal(StatusFailed, snapshot.Status)
	s.Error(snapshot.Err)
	s.Require().Len(snapshot.Document.Folders, 1)
	s.Equal("Reports", snapshot.Document.Folders[0].Name)
}

// TestSubscribeNotifies tests that listeners fire on state changes
func (s *StateStoreTestSuite) TestSubscribeNotifies() {
	var calls atomic.Int64
	s.store.Subscribe(func() {
		calls.Add(1)
	})

	_, err := s.store.CreateFolder(s.ctx, "Reports")
	s.Require().NoError(err)

	// Optimistic apply plus the loading and finished reconcile phases.
	s.GreaterOrEqual(calls.Load(), int64(3))
}

// TestStateStoreSuite runs the client state store test suite
func TestStateStoreSuite(t *testing.T) {
	suite.Run(t, new(StateStoreTestSuite))
}
