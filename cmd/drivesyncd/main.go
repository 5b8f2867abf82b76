package main

import (
	_ "embed"
	"flag"
	"os"
	"path/filepath"
	"strings"

	"drivesync/pkg/journal"
	"drivesync/pkg/log"
	"drivesync/pkg/metadata"
	"drivesync/pkg/mirror"
	"drivesync/pkg/server"
)

const (
	publicDirPerm = 0755
)

//go:embed VERSION
var Version string

func main() {
	// Initialize logger first
	_ = log.Logger

	publicDir := flag.String("public", "public", "Public directory mirroring the drive")
	dataDir := flag.String("data", "data", "Directory for the metadata document and journal")
	port := flag.String("port", "3000", "Server port")
	bodyLimit := flag.String("body-limit", server.DefaultBodyLimit, "Request body size limit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		log.SetDebugMode()
	}

	if err := os.MkdirAll(*publicDir, publicDirPerm); err != nil {
		log.Fatal().Err(err).Str("public_dir", *publicDir).Msg("Failed to create public directory")
	}
	if err := os.MkdirAll(*dataDir, publicDirPerm); err != nil {
		log.Fatal().Err(err).Str("data_dir", *dataDir).Msg("Failed to create data directory")
	}

	meta := metadata.NewStore(filepath.Join(*dataDir, "files.json"))
	fsMirror := mirror.New(*publicDir)
	opJournal := journal.New(filepath.Join(*dataDir, "operations.jsonl"))

	// Surface operations interrupted by a previous crash before serving.
	unfinished, err := opJournal.Unfinished()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to scan operation journal")
	}
	for _, entry := range unfinished {
		log.Warn().
			Str("op_id", entry.ID).
			Str("action", entry.Action).
			Strs("targets", entry.Targets).
			Msg("Unfinished operation from previous run, metadata and disk may disagree")
	}

	srv := server.NewSyncServer(meta, fsMirror, opJournal, strings.TrimSpace(Version))
	srv.SetBodyLimit(*bodyLimit)

	if err := srv.Start(":" + *port); err != nil {
		log.Fatal().Err(err).Msg("Server failed to start")
	}

	os.Exit(0)
}
