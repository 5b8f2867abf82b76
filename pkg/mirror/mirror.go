// Package mirror manages the real directory tree that reflects the
// metadata document. Each logical folder maps to a sanitized-name
// subdirectory under the public root; parentless files live in the
// default uploads directory. Disk names are timestamp-prefixed so
// colliding display names never collide on disk.
package mirror

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/dustin/go-humanize"
	cp "github.com/otiai10/copy"

	"drivesync/pkg/log"
)

// UploadsDirName is the default directory for parentless files.
const UploadsDirName = "uploads"

const (
	dirPerm  = 0755
	filePerm = 0644

	kilobyte = 1024
)

// unsafeChars matches every character that may not appear in a
// directory name derived from a folder name.
var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9-_ ]`)

// NotFoundError is returned when a disk artifact does not exist.
type NotFoundError struct {
	Path string
}

func (e NotFoundError) Error() string {
	return "file not found on disk"
}

// Mirror maps logical folders and files onto the public root.
type Mirror struct {
	root string
}

// New creates a mirror rooted at the given public directory.
func New(root string) *Mirror {
	return &Mirror{root: root}
}

// Root returns the public root directory.
func (m *Mirror) Root() string {
	return m.root
}

// SanitizeName replaces every character outside [A-Za-z0-9-_ ] with an
// underscore. The result is the folder's directory name.
func SanitizeName(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// DiskName derives the on-disk filename for an original name: the
// creation timestamp concatenated with the name. Nanosecond resolution
// keeps back-to-back uploads of the same name from colliding on disk.
func DiskName(name string, now time.Time) string {
	return fmt.Sprintf("%d-%s", now.UnixNano(), name)
}

// FormatSize renders a byte count as the human label stored on file
// records: whole kilobytes below a megabyte, otherwise megabytes with
// one decimal. Computed once at upload or copy time, never recomputed.
func FormatSize(bytes int64) string {
	kb := int64(math.Round(float64(bytes) / kilobyte))
	if kb < kilobyte {
		return fmt.Sprintf("%d KB", kb)
	}
	return fmt.Sprintf("%.1f MB", float64(kb)/kilobyte)
}

// DirFor returns the directory for a folder display name.
func (m *Mirror) DirFor(folderName string) string {
	return filepath.Join(m.root, SanitizeName(folderName))
}

// UploadsDir returns the default directory for parentless files.
func (m *Mirror) UploadsDir() string {
	return filepath.Join(m.root, UploadsDirName)
}

// EnsureDir creates the directory if needed. Creating a directory that
// already exists is a logged no-op, not an error.
func (m *Mirror) EnsureDir(dir string) error {
	if info, err := os.Stat(dir); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%s exists but is not a directory", dir)
		}
		log.Debug().Str("dir", dir).Msg("Directory already exists")
		return nil
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	log.Info().Str("dir", dir).Msg("Directory created")
	return nil
}

// WriteFile writes content under dir/diskName, creating dir if needed,
// and verifies the file landed on disk. It returns the full path.
func (m *Mirror) WriteFile(dir, diskName string, content []byte) (string, error) {
	if err := m.EnsureDir(dir); err != nil {
		return "", err
	}

	path := filepath.Join(dir, diskName)
	if err := os.WriteFile(path, content, filePerm); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	// Post-write verification, mirroring the upload contract: a write
	// that does not stat back is an internal error.
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("file did not verify after write: %w", err)
	}

	log.Info().
		Str("path", path).
		Str("size", humanize.Bytes(uint64(len(content)))).
		Msg("File written")

	return path, nil
}

// CopyFile duplicates the bytes of srcDiskName in srcDir to destDiskName
// in destDir and returns the destination path. A missing source yields
// NotFoundError.
func (m *Mirror) CopyFile(srcDir, srcDiskName, destDir, destDiskName string) (string, error) {
	srcPath := filepath.Join(srcDir, srcDiskName)
	if _, err := os.Stat(srcPath); os.IsNotExist(err) {
		log.Debug().Str("path", srcPath).Msg("Copy source not found on disk")
		return "", NotFoundError{Path: srcPath}
	} else if err != nil {
		return "", err
	}

	if err := m.EnsureDir(destDir); err != nil {
		return "", err
	}

	destPath := filepath.Join(destDir, destDiskName)
	if err := cp.Copy(srcPath, destPath); err != nil {
		return "", fmt.Errorf("failed to copy file: %w", err)
	}

	log.Info().Str("src", srcPath).Str("dest", destPath).Msg("File copied")
	return destPath, nil
}

// RemoveFile removes dir/diskName. A missing file yields NotFoundError
// so callers can decide whether absence matters.
func (m *Mirror) RemoveFile(dir, diskName string) error {
	path := filepath.Join(dir, diskName)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			log.Debug().Str("path", path).Msg("File not found for remove")
			return NotFoundError{Path: path}
		}
		log.Error().Err(err).Str("path", path).Msg("Failed to remove file")
		return err
	}

	log.Info().Str("path", path).Msg("File removed")
	return nil
}

// RemoveDir removes the directory and everything under it. Removing a
// directory that is already gone is not an error.
func (m *Mirror) RemoveDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		log.Error().Err(err).Str("dir", dir).Msg("Failed to remove directory")
		return err
	}

	log.Info().Str("dir", dir).Msg("Directory removed")
	return nil
}
