// Package artifacts persists per-query search results on disk so completed
// queries can be replayed without another provider call.
//
// Layout: root/{chat_id}/{timestamp}/{hotel_id}_detail.txt and
// {hotel_id}_pics.txt (newline-joined photo URLs). Directories are created
// lazily and files are write-once.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store manages the artifact tree under a fixed root directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir. The directory itself is created on
// first write, not here.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// QueryDir returns the directory holding one completed query's artifacts.
func (s *Store) QueryDir(chatID, timestamp string) string {
	return filepath.Join(s.root, chatID, timestamp)
}

func (s *Store) detailPath(chatID, timestamp, hotelID string) string {
	return filepath.Join(s.QueryDir(chatID, timestamp), hotelID+"_detail.txt")
}

func (s *Store) picsPath(chatID, timestamp, hotelID string) string {
	return filepath.Join(s.QueryDir(chatID, timestamp), hotelID+"_pics.txt")
}

// writeOnce writes content to path unless the file already exists.
func writeOnce(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("artifacts: stat %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("artifacts: create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("artifacts: write %s: %w", path, err)
	}
	return nil
}

// WriteDetail persists a hotel's detail text. Idempotent: a second write for
// the same (chat, timestamp, hotel) is a no-op.
func (s *Store) WriteDetail(chatID, timestamp, hotelID, detail string) error {
	return writeOnce(s.detailPath(chatID, timestamp, hotelID), detail)
}

// WritePhotos persists a hotel's photo URL list, newline-joined. Idempotent.
func (s *Store) WritePhotos(chatID, timestamp, hotelID string, urls []string) error {
	return writeOnce(s.picsPath(chatID, timestamp, hotelID), strings.Join(urls, "\n"))
}

// ReadDetail returns the stored detail text. ok is false when the file was
// never written.
func (s *Store) ReadDetail(chatID, timestamp, hotelID string) (detail string, ok bool, err error) {
	data, err := os.ReadFile(s.detailPath(chatID, timestamp, hotelID))
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("artifacts: read detail: %w", err)
	}
	return string(data), true, nil
}

// ReadPhotos returns the stored photo URL list. ok is false when the file
// was never written.
func (s *Store) ReadPhotos(chatID, timestamp, hotelID string) (urls []string, ok bool, err error) {
	data, err := os.ReadFile(s.picsPath(chatID, timestamp, hotelID))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("artifacts: read photos: %w", err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, true, nil
	}
	return strings.Split(content, "\n"), true, nil
}

// RemoveQuery deletes one completed query's entire artifact subtree.
func (s *Store) RemoveQuery(chatID, timestamp string) error {
	if err := os.RemoveAll(s.QueryDir(chatID, timestamp)); err != nil {
		return fmt.Errorf("artifacts: remove %s/%s: %w", chatID, timestamp, err)
	}
	return nil
}

// ListQueries returns the timestamp directories present for a chat. Used by
// the sweeper to find orphaned subtrees.
func (s *Store) ListQueries(chatID string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, chatID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: list %s: %w", chatID, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// ListChats returns the chat directories present under the root.
func (s *Store) ListChats() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("artifacts: list root: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
