package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"drivesync/pkg/log"
)

// getDocument handles GET /api/drive requests. It returns the full
// metadata document; the client state store consumes this for initial
// load and reconciliation.
func (srv *SyncServer) getDocument(ctx echo.Context) error {
	doc, err := srv.meta.Load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load metadata document")
		return ctx.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read metadata",
		})
	}

	return ctx.JSON(http.StatusOK, doc)
}
