package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"drivesync/pkg/log"
	"drivesync/pkg/mirror"
	"drivesync/pkg/models"
)

type copyFileRequest struct {
	FileID  string `json:"fileId"`
	NewName string `json:"newName"`
}

// copyFile handles POST /api/files/copy requests. The source bytes are
// duplicated under a new timestamped disk name in the same directory,
// and a new record cloning size, owner, and parent is prepended. The
// original record is left untouched.
func (srv *SyncServer) copyFile(ctx echo.Context) error {
	var req copyFileRequest
	if err := ctx.Bind(&req); err != nil || req.FileID == "" || req.NewName == "" {
		return ctx.JSON(http.StatusBadRequest, echo.Map{
			"error": "Missing fileId or newName",
		})
	}

	doc, err := srv.meta.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load metadata document")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read metadata",
		})
	}

	source := doc.FindFile(req.FileID)
	if source == nil {
		log.Warn().Str("file_id", req.FileID).Msg("File not found for copy")
		return ctx.JSON(http.StatusNotFound, echo.Map{
			"error": "File not found",
		})
	}

	if source.DiskName == "" {
		log.Warn().Str("file_id", req.FileID).Msg("File record has no disk artifact")
		return ctx.JSON(http.StatusNotFound, echo.Map{
			"error": "Source file not found on disk",
		})
	}

	now := time.Now()
	dir := srv.dirForParent(&doc, source.Parent)
	destDiskName := mirror.DiskName(req.NewName, now)

	opID := srv.journal.Begin("copy", dir+"/"+source.DiskName, dir+"/"+destDiskName)

	if _, err := srv.mirror.CopyFile(dir, source.DiskName, dir, destDiskName); err != nil {
		srv.journal.Fail(opID, "copy", err)
		var notFound mirror.NotFoundError
		if errors.As(err, &notFound) {
			log.Warn().Str("disk_name", source.DiskName).Msg("Copy source missing on disk")
			return ctx.JSON(http.StatusNotFound, echo.Map{
				"error": "Source file not found on disk",
			})
		}
		log.Error().Err(err).Str("disk_name", source.DiskName).Msg("Failed to copy file on disk")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to copy file",
		})
	}

	record := models.File{
		ID:       uuid.NewString(),
		Parent:   source.Parent,
		Name:     req.NewName,
		DiskName: destDiskName,
		Size:     source.Size,
		Modified: now.Format(modifiedLayout),
		Owner:    source.Owner,
	}

	if _, err := srv.meta.Update(func(doc *models.Document) error {
		doc.PrependFile(record)
		return nil
	}); err != nil {
		srv.journal.Fail(opID, "copy", err)
		log.Error().Err(err).Str("disk_name", destDiskName).Msg("File copied but metadata update failed")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to update metadata",
		})
	}

	srv.journal.Commit(opID, "copy")

	log.Info().
		Str("source_id", req.FileID).
		Str("id", record.ID).
		Str("name", record.Name).
		Msg("File copied")

	return ctx.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"file":    record,
	})
}
