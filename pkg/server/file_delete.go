package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"drivesync/pkg/log"
	"drivesync/pkg/metadata"
	"drivesync/pkg/mirror"
	"drivesync/pkg/models"
)

// deleteFile handles DELETE /api/files/:fileId requests. The metadata
// record goes first; removal of the disk artifact is best-effort and a
// missing artifact is tolerated silently.
func (srv *SyncServer) deleteFile(ctx echo.Context) error {
	fileID := ctx.Param("fileId")

	opID := srv.journal.Begin("delete-file", fileID)

	var (
		removed *models.File
		destDir string
	)
	_, err := srv.meta.Update(func(doc *models.Document) error {
		// Resolve the directory while the parent folder is still visible.
		if file := doc.FindFile(fileID); file != nil {
			destDir = srv.dirForParent(doc, file.Parent)
		}
		removed = doc.RemoveFile(fileID)
		if removed == nil {
			return metadata.ErrFileNotFound
		}
		return nil
	})
	if err != nil {
		srv.journal.Fail(opID, "delete-file", err)
		if errors.Is(err, metadata.ErrFileNotFound) {
			log.Warn().Str("file_id", fileID).Msg("File not found for delete")
			return ctx.JSON(http.StatusNotFound, echo.Map{
				"error": "File not found",
			})
		}
		log.Error().Err(err).Str("file_id", fileID).Msg("Failed to remove file record")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to update metadata",
		})
	}

	if removed.DiskName != "" {
		if err := srv.mirror.RemoveFile(destDir, removed.DiskName); err != nil {
			var notFound mirror.NotFoundError
			if !errors.As(err, &notFound) {
				// Record is gone but the artifact remains; journaled as
				// a failed half so the orphan is detectable.
				srv.journal.Fail(opID, "delete-file", err)
				log.Error().Err(err).Str("disk_name", removed.DiskName).Msg("File record removed but disk removal failed")
				return ctx.JSON(http.StatusInternalServerError, echo.Map{
					"error": "failed to remove file from disk",
				})
			}
			log.Debug().Str("disk_name", removed.DiskName).Msg("No disk artifact for deleted file")
		}
	}

	srv.journal.Commit(opID, "delete-file")

	log.Info().Str("id", fileID).Str("name", removed.Name).Msg("File deleted")

	return ctx.JSON(http.StatusOK, echo.Map{
		"success": true,
		"id":      fileID,
	})
}
