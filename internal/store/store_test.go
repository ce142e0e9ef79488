package store

import (
	"bytes"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDownload creates a file outside the store, as a finished download would
func writeDownload(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// tickingClock returns a clock that advances one second per call
func tickingClock() func() time.Time {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestNewManager(t *testing.T) {
	tempDir := t.TempDir()

	manager := NewManager(tempDir, 0)
	assert.NotNil(t, manager)
	assert.Equal(t, tempDir, manager.GetRootPath())
	assert.Equal(t, int64(0), manager.maxSizeBytes)
}

func TestAddEntry(t *testing.T) {
	manager := NewManager(t.TempDir(), 0)

	testData := []byte("test video content")
	src := writeDownload(t, "Some Title.mp4", testData)

	entry, err := manager.AddEntry("job1", src)
	require.NoError(t, err)
	assert.Equal(t, "job1", entry.ID)
	assert.Equal(t, "Some Title.mp4", entry.FileName)
	assert.Equal(t, int64(len(testData)), entry.Size)

	// Source is moved, not copied
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	path, err := manager.GetFilePath("job1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(manager.GetRootPath(), "job1", "Some Title.mp4"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, testData, data)
}

func TestAddEntryInvalidID(t *testing.T) {
	manager := NewManager(t.TempDir(), 0)
	src := writeDownload(t, "video.mp4", []byte("x"))

	for _, id := range []string{"", "../escape", "a/b"} {
		_, err := manager.AddEntry(id, src)
		assert.ErrorIs(t, err, ErrInvalidEntry, id)
	}
}

func TestAddEntryMissingSource(t *testing.T) {
	manager := NewManager(t.TempDir(), 0)

	_, err := manager.AddEntry("job1", filepath.Join(t.TempDir(), "missing.mp4"))
	assert.Error(t, err)

	_, err = manager.GetEntry("job1")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = os.Stat(filepath.Join(manager.GetRootPath(), "job1"))
	assert.True(t, os.IsNotExist(err))
}

func TestGetEntry(t *testing.T) {
	manager := NewManager(t.TempDir(), 0)

	_, err := manager.AddEntry("video", writeDownload(t, "video.mp4", []byte("content")))
	require.NoError(t, err)

	entry, err := manager.GetEntry("video")
	require.NoError(t, err)
	assert.Equal(t, "video", entry.ID)

	_, err = manager.GetEntry("nonexistent")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestDeleteEntry(t *testing.T) {
	manager := NewManager(t.TempDir(), 0)

	_, err := manager.AddEntry("video", writeDownload(t, "video.mp4", []byte("content")))
	require.NoError(t, err)

	err = manager.DeleteEntry("video")
	require.NoError(t, err)

	_, err = manager.GetEntry("video")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = os.Stat(filepath.Join(manager.GetRootPath(), "video"))
	assert.True(t, os.IsNotExist(err))

	err = manager.DeleteEntry("video")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestListEntriesAndSize(t *testing.T) {
	manager := NewManager(t.TempDir(), 0)
	manager.now = tickingClock()

	_, err := manager.AddEntry("a", writeDownload(t, "a.mp4", make([]byte, 100)))
	require.NoError(t, err)
	_, err = manager.AddEntry("b", writeDownload(t, "b.mp3", make([]byte, 50)))
	require.NoError(t, err)

	entries := manager.ListEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].ID)
	assert.Equal(t, "a", entries[1].ID)
	assert.Equal(t, int64(150), manager.GetSize())

	require.NoError(t, manager.UpdateLastAccess("a"))
	entries = manager.ListEntries()
	assert.Equal(t, "a", entries[0].ID)

	assert.ErrorIs(t, manager.UpdateLastAccess("missing"), ErrEntryNotFound)
}

func TestClear(t *testing.T) {
	manager := NewManager(t.TempDir(), 0)

	_, err := manager.AddEntry("a", writeDownload(t, "a.mp4", []byte("a")))
	require.NoError(t, err)
	_, err = manager.AddEntry("b", writeDownload(t, "b.mp4", []byte("b")))
	require.NoError(t, err)

	require.NoError(t, manager.Clear())
	assert.Empty(t, manager.ListEntries())
	assert.Equal(t, int64(0), manager.GetSize())
}

func TestScan(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "job1"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "job1", "song.mp3"), []byte("abc"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0644))

	manager := NewManager(root, 0)

	entries := manager.ListEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "job1", entries[0].ID)
	assert.Equal(t, "song.mp3", entries[0].FileName)
	assert.Equal(t, int64(3), entries[0].Size)
}

func TestEvictionLRU(t *testing.T) {
	// 1 KiB limit expressed in GB
	manager := NewManager(t.TempDir(), 1.0/1024/1024)
	manager.now = tickingClock()

	_, err := manager.AddEntry("old", writeDownload(t, "old.mp4", make([]byte, 600)))
	require.NoError(t, err)
	_, err = manager.AddEntry("new", writeDownload(t, "new.mp4", make([]byte, 600)))
	require.NoError(t, err)

	_, err = manager.GetEntry("old")
	assert.ErrorIs(t, err, ErrEntryNotFound)

	_, err = manager.GetEntry("new")
	assert.NoError(t, err)
	assert.Equal(t, int64(600), manager.GetSize())
}

func TestExpire(t *testing.T) {
	manager := NewManager(t.TempDir(), 0)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }

	_, err := manager.AddEntry("stale", writeDownload(t, "stale.mp4", []byte("s")))
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	_, err = manager.AddEntry("fresh", writeDownload(t, "fresh.mp4", []byte("f")))
	require.NoError(t, err)

	assert.Empty(t, manager.Expire(0))

	expired := manager.Expire(20 * time.Minute)
	assert.Equal(t, []string{"stale"}, expired)

	_, err = manager.GetEntry("stale")
	assert.ErrorIs(t, err, ErrEntryNotFound)
	_, err = manager.GetEntry("fresh")
	assert.NoError(t, err)
}

func TestMoveFile(t *testing.T) {
	src := writeDownload(t, "video.mp4", []byte("video"))
	dst := filepath.Join(t.TempDir(), "video.mp4")

	require.NoError(t, MoveFile(src, dst))

	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))
}

func TestMoveFileAcrossDevices(t *testing.T) {
	orig := rename
	rename = func(string, string) error { return &os.LinkError{Op: "rename", Err: syscall.EXDEV} }
	t.Cleanup(func() { rename = orig })

	payload := bytes.Repeat([]byte("0123456789"), 100_000)
	src := writeDownload(t, "big.mp4", payload)
	dst := filepath.Join(t.TempDir(), "big.mp4")

	require.NoError(t, MoveFile(src, dst))

	assert.NoFileExists(t, src)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestMoveFileRemovesPartialDestination(t *testing.T) {
	orig := rename
	rename = func(string, string) error { return &os.LinkError{Op: "rename", Err: syscall.EXDEV} }
	t.Cleanup(func() { rename = orig })

	// a directory as source opens fine but fails on read
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out.mp4")

	require.Error(t, MoveFile(src, dst))
	assert.NoFileExists(t, dst)
	assert.DirExists(t, src)
}
