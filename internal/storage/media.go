package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// bookImageDir is where book cover images live, relative to the media root.
const bookImageDir = "uploads/book"

// ErrNotImage is returned when an uploaded payload is not a decodable image.
var ErrNotImage = fmt.Errorf("payload is not an image")

// MediaStore persists uploaded binary assets under a media root directory.
// Stored paths are relative to the root so they can be served and persisted
// independently of where the root lives on disk.
type MediaStore struct {
	root string
}

// NewMediaStore creates a MediaStore rooted at the given directory.
func NewMediaStore(root string) *MediaStore {
	return &MediaStore{root: root}
}

// Root returns the media root directory.
func (m *MediaStore) Root() string {
	return m.root
}

// Resolve maps a stored relative path to its absolute filesystem path.
func (m *MediaStore) Resolve(relPath string) string {
	return filepath.Join(m.root, filepath.FromSlash(relPath))
}

// SaveBookImage validates that data is an image and writes it under a fresh
// random storage key, preserving the extension of the client-supplied
// filename. The client's name itself is never used. Returns the stored
// path relative to the media root.
func (m *MediaStore) SaveBookImage(filename string, data []byte) (string, error) {
	mtype := mimetype.Detect(data)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return "", ErrNotImage
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = mtype.Extension()
	}

	relPath := bookImageDir + "/" + uuid.New().String() + ext

	dst := m.Resolve(relPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	return relPath, nil
}

// Remove deletes a previously stored asset. A missing file is not an error.
func (m *MediaStore) Remove(relPath string) error {
	if relPath == "" {
		return nil
	}
	err := os.Remove(m.Resolve(relPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
