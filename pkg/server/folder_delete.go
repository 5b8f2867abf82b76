package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"drivesync/pkg/log"
	"drivesync/pkg/metadata"
	"drivesync/pkg/models"
)

// deleteFolder handles DELETE /api/folders/:folderId requests. The
// folder record and all child file records go first, then the
// directory tree is removed recursively.
func (srv *SyncServer) deleteFolder(ctx echo.Context) error {
	folderID := ctx.Param("folderId")

	opID := srv.journal.Begin("delete-folder", folderID)

	var (
		removed  *models.Folder
		children []models.File
	)
	_, err := srv.meta.Update(func(doc *models.Document) error {
		removed, children = doc.RemoveFolder(folderID)
		if removed == nil {
			return metadata.ErrFolderNotFound
		}
		return nil
	})
	if err != nil {
		srv.journal.Fail(opID, "delete-folder", err)
		if errors.Is(err, metadata.ErrFolderNotFound) {
			log.Warn().Str("folder_id", folderID).Msg("Folder not found for delete")
			return ctx.JSON(http.StatusNotFound, echo.Map{
				"error": "Folder not found",
			})
		}
		log.Error().Err(err).Str("folder_id", folderID).Msg("Failed to remove folder records")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to update metadata",
		})
	}

	if err := srv.mirror.RemoveDir(srv.mirror.DirFor(removed.Name)); err != nil {
		// Records are gone; the orphaned directory is detectable via
		// the journal entry.
		srv.journal.Fail(opID, "delete-folder", err)
		log.Error().Err(err).Str("name", removed.Name).Msg("Folder records removed but directory removal failed")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to remove folder directory",
		})
	}

	srv.journal.Commit(opID, "delete-folder")

	log.Info().
		Str("id", folderID).
		Str("name", removed.Name).
		Int("deleted_files", len(children)).
		Msg("Folder deleted")

	return ctx.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"id":           folderID,
		"deletedCount": len(children),
	})
}
