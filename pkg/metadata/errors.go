package metadata

import "errors"

var (
	// ErrFolderExists is returned when a folder with the same name
	// (case-insensitive) already exists.
	ErrFolderExists = errors.New("folder already exists")

	// ErrDirectoryCollision is returned when a new folder's sanitized
	// name maps to the same directory as an existing folder.
	ErrDirectoryCollision = errors.New("folder directory collision")

	// ErrFolderNotFound is returned when the requested folder does not exist.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrFileNotFound is returned when the requested file record does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrCorruptDocument is returned when the backing document cannot be parsed.
	ErrCorruptDocument = errors.New("corrupt metadata document")
)
