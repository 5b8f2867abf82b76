package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"drivesync/pkg/log"
	"drivesync/pkg/models"
)

type saveFileRequest struct {
	Folder   string `json:"folder,omitempty"`
	DiskName string `json:"diskName"`
	Content  string `json:"content"`
	Name     string `json:"name,omitempty"`
}

// saveFile handles POST /api/files/save requests. The disk file is
// overwritten (or created) at the computed path; a matching record's
// modified date is updated when one exists, but a missing record is
// not an error.
func (srv *SyncServer) saveFile(ctx echo.Context) error {
	var req saveFileRequest
	if err := ctx.Bind(&req); err != nil || req.DiskName == "" {
		return ctx.JSON(http.StatusBadRequest, echo.Map{
			"error": "Missing diskName",
		})
	}

	// Folder here is a display name, not an id; sanitize like any
	// other folder directory.
	dir := srv.mirror.UploadsDir()
	if req.Folder != "" {
		dir = srv.mirror.DirFor(req.Folder)
	}

	opID := srv.journal.Begin("save", dir+"/"+req.DiskName)

	path, err := srv.mirror.WriteFile(dir, req.DiskName, []byte(req.Content))
	if err != nil {
		srv.journal.Fail(opID, "save", err)
		log.Error().Err(err).Str("disk_name", req.DiskName).Msg("Failed to save file content")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to save file",
		})
	}

	if _, err := srv.meta.Update(func(doc *models.Document) error {
		for i := range doc.Files {
			file := &doc.Files[i]
			if file.DiskName == req.DiskName || file.Name == req.DiskName || (req.Name != "" && file.Name == req.Name) {
				file.Modified = time.Now().Format(modifiedLayout)
				break
			}
		}
		return nil
	}); err != nil {
		// Content is on disk; a stale modified date is acceptable.
		log.Warn().Err(err).Str("disk_name", req.DiskName).Msg("Saved content but could not update modified date")
	}

	srv.journal.Commit(opID, "save")

	log.Info().Str("disk_name", req.DiskName).Str("path", path).Msg("File content saved")

	return ctx.JSON(http.StatusOK, echo.Map{
		"success": true,
		"path":    path,
	})
}
