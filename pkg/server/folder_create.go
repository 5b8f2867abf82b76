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

type createFolderRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// createFolder handles POST /api/folders requests. The folder id is
// assigned by the client; the record is written to the document first,
// then the sanitized directory is created.
func (srv *SyncServer) createFolder(ctx echo.Context) error {
	var req createFolderRequest
	if err := ctx.Bind(&req); err != nil || req.ID == "" || req.Name == "" {
		return ctx.JSON(http.StatusBadRequest, echo.Map{
			"error": "Missing id or name",
		})
	}

	sanitized := mirror.SanitizeName(req.Name)
	opID := srv.journal.Begin("create-folder", req.Name)

	_, err := srv.meta.Update(func(doc *models.Document) error {
		if doc.FindFolderByName(req.Name) != nil {
			return metadata.ErrFolderExists
		}
		// Two distinct names mapping to one directory would silently
		// merge their contents; reject at creation time.
		for _, folder := range doc.Folders {
			if mirror.SanitizeName(folder.Name) == sanitized {
				return metadata.ErrDirectoryCollision
			}
		}
		doc.PrependFolder(models.Folder{ID: req.ID, Name: req.Name})
		return nil
	})
	if err != nil {
		srv.journal.Fail(opID, "create-folder", err)
		switch {
		case errors.Is(err, metadata.ErrFolderExists):
			log.Warn().Str("name", req.Name).Msg("Folder name already taken")
			return ctx.JSON(http.StatusConflict, echo.Map{
				"error": "Folder exists",
			})
		case errors.Is(err, metadata.ErrDirectoryCollision):
			log.Warn().Str("name", req.Name).Str("sanitized", sanitized).Msg("Folder directory collision")
			return ctx.JSON(http.StatusConflict, echo.Map{
				"error": "Folder directory collision",
			})
		default:
			log.Error().Err(err).Str("name", req.Name).Msg("Failed to create folder record")
			return ctx.JSON(http.StatusInternalServerError, echo.Map{
				"error": "failed to update metadata",
			})
		}
	}

	if err := srv.mirror.EnsureDir(srv.mirror.DirFor(req.Name)); err != nil {
		// Metadata already records the folder; the directory half failed.
		// The journal entry makes the divergence detectable.
		srv.journal.Fail(opID, "create-folder", err)
		log.Error().Err(err).Str("name", req.Name).Msg("Folder recorded but directory creation failed")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to create folder directory",
		})
	}

	srv.journal.Commit(opID, "create-folder")

	log.Info().Str("id", req.ID).Str("name", req.Name).Msg("Folder created")

	return ctx.JSON(http.StatusCreated, echo.Map{
		"success": true,
		"id":      req.ID,
		"name":    req.Name,
	})
}
