// Package server exposes the drive's CRUD operations over HTTP. Each
// handler updates the metadata document and the filesystem mirror
// within the same request, journaling the operation so partial failures
// are detectable. There is no cross-step atomicity; each step is safe
// to retry on its own.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"drivesync/pkg/journal"
	"drivesync/pkg/log"
	"drivesync/pkg/metadata"
	"drivesync/pkg/mirror"
	"drivesync/pkg/models"
)

const (
	shutdownTimeout = 10 * time.Second

	// DefaultBodyLimit bounds request bodies; uploads are held fully in
	// memory before hitting disk.
	DefaultBodyLimit = "10M"
)

// SyncServer keeps the metadata store and the filesystem mirror paired.
type SyncServer struct {
	echo      *echo.Echo
	meta      *metadata.Store
	mirror    *mirror.Mirror
	journal   *journal.Journal
	version   string
	bodyLimit string

	routesOnce sync.Once
}

// NewSyncServer creates a sync server over the given stores.
func NewSyncServer(meta *metadata.Store, fsMirror *mirror.Mirror, opJournal *journal.Journal, version string) *SyncServer {
	return &SyncServer{
		echo:      echo.New(),
		meta:      meta,
		mirror:    fsMirror,
		journal:   opJournal,
		version:   version,
		bodyLimit: DefaultBodyLimit,
	}
}

// SetBodyLimit overrides the request-body ceiling (echo syntax, e.g. "10M").
func (srv *SyncServer) SetBodyLimit(limit string) {
	srv.bodyLimit = limit
}

// Handler returns the configured HTTP handler, for embedding the
// server in other mux setups or tests.
func (srv *SyncServer) Handler() http.Handler {
	srv.routesOnce.Do(srv.setupRoutes)
	return srv.echo
}

// Start runs the server until SIGINT/SIGTERM, then shuts down gracefully.
func (srv *SyncServer) Start(addr string) error {
	srv.routesOnce.Do(srv.setupRoutes)

	go func() {
		log.Info().
			Str("addr", addr).
			Str("public_root", srv.mirror.Root()).
			Str("document", srv.meta.Path()).
			Str("version", srv.version).
			Msg("Starting sync server")

		if err := srv.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server startup failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	return srv.Shutdown()
}

// Shutdown stops the server, waiting for in-flight requests.
func (srv *SyncServer) Shutdown() error {
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.echo.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
		return err
	}

	log.Info().Msg("Server gracefully stopped")
	return nil
}

func (srv *SyncServer) setupRoutes() {
	srv.echo.HideBanner = true
	srv.echo.HidePort = true

	srv.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} ${status} ${method} ${uri} (${latency_human})\n",
	}))
	srv.echo.Use(middleware.Recover())
	srv.echo.Use(middleware.CORS())
	srv.echo.Use(middleware.BodyLimit(srv.bodyLimit))

	srv.echo.GET("/api/drive", srv.getDocument)
	srv.echo.POST("/api/upload", srv.uploadFile)
	srv.echo.POST("/api/folders", srv.createFolder)
	srv.echo.DELETE("/api/folders/:folderId", srv.deleteFolder)
	srv.echo.DELETE("/api/files/:fileId", srv.deleteFile)
	srv.echo.POST("/api/files/copy", srv.copyFile)
	srv.echo.POST("/api/files/save", srv.saveFile)
}

// dirForParent resolves the directory for a file's parent folder id.
// An empty or unknown parent maps to the default uploads directory.
func (srv *SyncServer) dirForParent(doc *models.Document, parent string) string {
	if parent != "" {
		if folder := doc.FindFolder(parent); folder != nil {
			return srv.mirror.DirFor(folder.Name)
		}
	}
	return srv.mirror.UploadsDir()
}
