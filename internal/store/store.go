package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"

	"tubegrab/pkg/models"
)

var (
	ErrEntryNotFound = errors.New("store entry not found")
	ErrInvalidEntry  = errors.New("invalid store entry")
)

// Manager keeps finished downloads on disk until they are picked up.
// Every entry owns one directory named after its id.
type Manager struct {
	mu           sync.RWMutex
	rootPath     string
	entries      map[string]*models.StoreEntry
	maxSizeBytes int64
	now          func() time.Time
}

// NewManager creates a new store manager
func NewManager(rootPath string, maxSizeGB float64) *Manager {
	maxSizeBytes := int64(maxSizeGB * 1024 * 1024 * 1024)

	os.MkdirAll(rootPath, 0755)

	manager := &Manager{
		rootPath:     rootPath,
		entries:      make(map[string]*models.StoreEntry),
		maxSizeBytes: maxSizeBytes,
		now:          time.Now,
	}

	if err := manager.Scan(); err != nil {
		log.WithError(err).WithField("path", rootPath).Warn("Failed to scan store")
	}

	return manager
}

// AddEntry moves srcPath into the entry directory for id
func (m *Manager) AddEntry(id, srcPath string) (*models.StoreEntry, error) {
	if id == "" || filepath.Base(id) != id {
		return nil, ErrInvalidEntry
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	dir := filepath.Join(m.rootPath, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create entry directory: %w", err)
	}

	filename := filepath.Base(srcPath)
	dstPath := filepath.Join(dir, filename)
	if err := MoveFile(srcPath, dstPath); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to move file into store: %w", err)
	}

	info, err := os.Stat(dstPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	entry := &models.StoreEntry{
		ID:         id,
		FileName:   filename,
		Size:       info.Size(),
		LastAccess: m.now(),
		Created:    m.now(),
	}

	m.entries[id] = entry

	m.evictIfNeeded()

	entryCopy := *entry
	return &entryCopy, nil
}

// GetEntry retrieves an entry by ID
func (m *Manager) GetEntry(id string) (*models.StoreEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}

	entryCopy := *entry
	return &entryCopy, nil
}

// DeleteEntry removes an entry and its directory
func (m *Manager) DeleteEntry(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return ErrEntryNotFound
	}

	if err := os.RemoveAll(filepath.Join(m.rootPath, id)); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	delete(m.entries, id)

	return nil
}

// ListEntries returns all entries, most recently used first
func (m *Manager) ListEntries() []*models.StoreEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*models.StoreEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entryCopy := *entry
		entries = append(entries, &entryCopy)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.After(entries[j].LastAccess)
	})

	return entries
}

// GetSize returns the total size of all stored files
func (m *Manager) GetSize() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, entry := range m.entries {
		total += entry.Size
	}

	return total
}

// Clear removes all entries
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id := range m.entries {
		os.RemoveAll(filepath.Join(m.rootPath, id))
		delete(m.entries, id)
	}

	return nil
}

// Scan rebuilds the entry map from the entry directories on disk
func (m *Manager) Scan() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dirs, err := os.ReadDir(m.rootPath)
	if err != nil {
		return fmt.Errorf("failed to read store directory: %w", err)
	}

	for _, dir := range dirs {
		if !dir.IsDir() {
			continue
		}

		id := dir.Name()
		files, err := os.ReadDir(filepath.Join(m.rootPath, id))
		if err != nil {
			continue
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}

			info, err := file.Info()
			if err != nil {
				continue
			}

			m.entries[id] = &models.StoreEntry{
				ID:         id,
				FileName:   file.Name(),
				Size:       info.Size(),
				LastAccess: info.ModTime(),
				Created:    info.ModTime(),
			}
			break
		}
	}

	m.evictIfNeeded()

	return nil
}

// UpdateLastAccess marks an entry as recently used
func (m *Manager) UpdateLastAccess(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return ErrEntryNotFound
	}

	now := m.now()
	entry.LastAccess = now

	filePath := filepath.Join(m.rootPath, id, entry.FileName)
	_ = os.Chtimes(filePath, now, now)

	return nil
}

// GetFilePath returns the absolute file path for an entry
func (m *Manager) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[id]
	if !ok {
		return "", ErrEntryNotFound
	}

	return filepath.Join(m.rootPath, id, entry.FileName), nil
}

// GetRootPath returns the store directory path
func (m *Manager) GetRootPath() string {
	return m.rootPath
}

// Expire removes entries not accessed within maxAge and returns their ids
func (m *Manager) Expire(maxAge time.Duration) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if maxAge <= 0 {
		return nil
	}

	cutoff := m.now().Add(-maxAge)
	var expired []string
	for id, entry := range m.entries {
		if entry.LastAccess.Before(cutoff) {
			os.RemoveAll(filepath.Join(m.rootPath, id))
			delete(m.entries, id)
			expired = append(expired, id)
		}
	}

	return expired
}

// evictIfNeeded performs LRU eviction if the store exceeds its limit.
// Must be called with lock held
func (m *Manager) evictIfNeeded() {
	if m.maxSizeBytes <= 0 {
		return
	}

	currentSize := int64(0)
	for _, entry := range m.entries {
		currentSize += entry.Size
	}

	if currentSize <= m.maxSizeBytes {
		return
	}

	entries := make([]*models.StoreEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})

	for _, entry := range entries {
		if currentSize <= m.maxSizeBytes {
			break
		}

		os.RemoveAll(filepath.Join(m.rootPath, entry.ID))
		delete(m.entries, entry.ID)
		currentSize -= entry.Size

		log.WithField("id", entry.ID).WithField("size", entry.Size).Info("Evicted stored download")
	}
}

// rename is swapped in tests to force the copy path
var rename = os.Rename

// MoveFile renames src to dst, streaming a copy when they live on different filesystems
func MoveFile(src, dst string) error {
	if err := rename(src, dst); err == nil {
		return nil
	}

	if err := copyFile(src, dst); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", filepath.Base(src), err)
	}
	return out.Close()
}
