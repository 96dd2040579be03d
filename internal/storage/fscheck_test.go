package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedType(fsType string) func(string) (string, error) {
	return func(string) (string, error) { return fsType, nil }
}

func TestCheckFilesystemAllowsLocalDisk(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "app.db")
	for _, fsType := range []string{"apfs", "ext4", "0x6a656a63", "unknown"} {
		assert.NoError(t, checkFilesystem(dbPath, fixedType(fsType)), fsType)
	}
}

func TestCheckFilesystemRejectsNetworkMount(t *testing.T) {
	t.Parallel()
	dbPath := filepath.Join(t.TempDir(), "app.db")

	err := checkFilesystem(dbPath, fixedType("SMBFS"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetworkFilesystem)

	var nfsErr *NetworkFilesystemError
	require.True(t, errors.As(err, &nfsErr))
	assert.Equal(t, dbPath, nfsErr.Path)
	assert.Equal(t, "SMBFS", nfsErr.FSType)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestInspectFilesystemUsesNearestExistingParent(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	dbPath := filepath.Join(root, "nested", "dir", "app.db")

	var inspected string
	info, err := inspectFilesystem(dbPath, func(p string) (string, error) {
		inspected = p
		return "ext4", nil
	})
	require.NoError(t, err)
	assert.Equal(t, root, inspected)
	assert.Equal(t, FilesystemInfo{Path: dbPath, Inspected: root, Type: "ext4"}, info)
	assert.False(t, info.Network())
}

func TestInspectFilesystemErrors(t *testing.T) {
	t.Parallel()

	_, err := inspectFilesystem("", func(string) (string, error) {
		t.Fatal("detector must not run for an empty path")
		return "", nil
	})
	assert.ErrorIs(t, err, ErrEmptyPath)

	statfsErr := errors.New("statfs failed")
	_, err = inspectFilesystem(filepath.Join(t.TempDir(), "app.db"), func(string) (string, error) {
		return "", statfsErr
	})
	assert.ErrorIs(t, err, statfsErr)
}

func TestFilesystemInfoNetwork(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"nfs":     true,
		" CIFS ":  true,
		"ceph":    true,
		"apfs":    false,
		"overlay": false,
		"0x6969":  false,
		"":        false,
	}
	for fsType, want := range cases {
		assert.Equal(t, want, FilesystemInfo{Type: fsType}.Network(), "%q", fsType)
	}
}

func TestInspectFilesystemOnTempDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	info, err := InspectFilesystem(filepath.Join(dir, "app.db"))
	require.NoError(t, err)
	assert.Equal(t, dir, info.Inspected)
	assert.NotEmpty(t, info.Type)

	_, err = os.Stat(filepath.Join(dir, "app.db"))
	assert.True(t, errors.Is(err, os.ErrNotExist), "inspection must not create the database")
}
