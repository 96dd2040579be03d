package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem matches every *NetworkFilesystemError.
var ErrNetworkFilesystem = errors.New("database is on a network filesystem")

// NetworkFilesystemError rejects a database path on a network mount, where
// SQLite file locking cannot be trusted and duplicate suppression breaks.
type NetworkFilesystemError struct {
	Path   string
	FSType string
}

func (e *NetworkFilesystemError) Error() string {
	return fmt.Sprintf("database path %q is on network filesystem %q; SQLite requires a local filesystem for reliable locking. Point DATABASE_URL (or database.url) at local disk",
		e.Path, e.FSType)
}

func (e *NetworkFilesystemError) Is(target error) bool { return target == ErrNetworkFilesystem }

var networkFilesystems = map[string]bool{
	"afpfs":  true,
	"afs":    true,
	"ceph":   true,
	"cifs":   true,
	"nfs":    true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

// FilesystemInfo describes where a database file lives. The database may not
// exist yet, so Inspected is the nearest existing ancestor of Path.
type FilesystemInfo struct {
	Path      string
	Inspected string
	Type      string
}

// Network reports whether the filesystem is a known network mount.
func (i FilesystemInfo) Network() bool {
	return networkFilesystems[strings.ToLower(strings.TrimSpace(i.Type))]
}

// InspectFilesystem reports the filesystem holding path.
func InspectFilesystem(path string) (FilesystemInfo, error) {
	return inspectFilesystem(path, detectFilesystemType)
}

// CheckFilesystem returns a *NetworkFilesystemError when path is on a network
// mount.
func CheckFilesystem(path string) error {
	return checkFilesystem(path, detectFilesystemType)
}

func checkFilesystem(path string, detect func(string) (string, error)) error {
	info, err := inspectFilesystem(path, detect)
	if err != nil {
		return err
	}
	if info.Network() {
		return &NetworkFilesystemError{Path: path, FSType: info.Type}
	}
	return nil
}

func inspectFilesystem(path string, detect func(string) (string, error)) (FilesystemInfo, error) {
	if path == "" {
		return FilesystemInfo{}, ErrEmptyPath
	}
	inspected, err := nearestExistingPath(path)
	if err != nil {
		return FilesystemInfo{}, fmt.Errorf("resolve database path %q: %w", path, err)
	}
	fsType, err := detect(inspected)
	if err != nil {
		return FilesystemInfo{}, fmt.Errorf("detect filesystem for %q: %w", inspected, err)
	}
	return FilesystemInfo{Path: path, Inspected: inspected, Type: fsType}, nil
}

func nearestExistingPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for candidate := abs; ; {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		candidate = parent
	}
}
