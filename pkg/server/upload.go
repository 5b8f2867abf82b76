package server

import (
	"io"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"drivesync/pkg/log"
	"drivesync/pkg/mirror"
	"drivesync/pkg/models"
)

const modifiedLayout = "2006-01-02"

// uploadFile handles POST /api/upload requests. The multipart body is
// read fully into memory, written to the parent folder's directory (or
// uploads), verified, and only then recorded in the metadata document.
func (srv *SyncServer) uploadFile(ctx echo.Context) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		log.Warn().Err(err).Msg("Upload without file part")
		return ctx.JSON(http.StatusBadRequest, echo.Map{
			"error": "No file uploaded",
		})
	}

	parent := ctx.FormValue("parent")

	src, err := fileHeader.Open()
	if err != nil {
		log.Error().Err(err).Msg("Failed to open uploaded file")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to open uploaded file",
		})
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close uploaded file")
		}
	}()

	content, err := io.ReadAll(src)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read uploaded file")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}

	doc, err := srv.meta.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load metadata document")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read metadata",
		})
	}

	now := time.Now()
	destDir := srv.dirForParent(&doc, parent)
	diskName := mirror.DiskName(fileHeader.Filename, now)

	opID := srv.journal.Begin("upload", destDir+"/"+diskName)

	path, err := srv.mirror.WriteFile(destDir, diskName, content)
	if err != nil {
		srv.journal.Fail(opID, "upload", err)
		log.Error().Err(err).Str("disk_name", diskName).Msg("Failed to write file to disk")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "Failed to write file to disk",
		})
	}

	record := models.File{
		ID:       uuid.NewString(),
		Parent:   parent,
		Name:     fileHeader.Filename,
		DiskName: diskName,
		Size:     mirror.FormatSize(int64(len(content))),
		Modified: now.Format(modifiedLayout),
		Owner:    models.DefaultOwner,
	}

	if _, err := srv.meta.Update(func(doc *models.Document) error {
		doc.PrependFile(record)
		return nil
	}); err != nil {
		srv.journal.Fail(opID, "upload", err)
		log.Error().Err(err).Str("path", path).Msg("File written but metadata update failed")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to update metadata",
		})
	}

	srv.journal.Commit(opID, "upload")

	log.Info().
		Str("id", record.ID).
		Str("name", record.Name).
		Str("disk_name", diskName).
		Str("parent", parent).
		Str("bytes", humanize.Bytes(uint64(len(content)))).
		Msg("File uploaded")

	return ctx.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"file":    record,
	})
}
