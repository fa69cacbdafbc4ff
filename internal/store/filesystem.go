package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"bk-go/internal/bk"
)

const recordExt = ".json"

// FileSystemStore keeps one file per record:
//
//	<root>/
//	  <kind>/
//	    <key>.json
//
// Kinds and keys are path-escaped so any string is a valid key. Writes go to
// a temp file in the same directory and are renamed into place, so readers
// never see a partial value.
type FileSystemStore struct {
	root string
}

var (
	_ bk.RecordStore = (*FileSystemStore)(nil)
	_ bk.KeyScanner  = (*FileSystemStore)(nil)
)

// NewFileSystemStore creates the root directory if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) Get(ctx context.Context, kind, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, bk.Unavailable("get "+kind, err)
	}
	data, err := os.ReadFile(s.path(kind, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, bk.Unavailable("get "+kind, err)
	}
	return data, true, nil
}

func (s *FileSystemStore) Put(ctx context.Context, kind, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return bk.Unavailable("put "+kind, err)
	}
	dir := s.kindDir(kind)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return bk.Unavailable("put "+kind, err)
	}
	if err := writeFileAtomic(dir, s.path(kind, key), value); err != nil {
		return bk.Unavailable("put "+kind, err)
	}
	return nil
}

func (s *FileSystemStore) Delete(ctx context.Context, kind, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, bk.Unavailable("delete "+kind, err)
	}
	err := os.Remove(s.path(kind, key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, bk.Unavailable("delete "+kind, err)
	}
	return true, nil
}

func (s *FileSystemStore) Exists(ctx context.Context, kind, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, bk.Unavailable("exists "+kind, err)
	}
	_, err := os.Stat(s.path(kind, key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, bk.Unavailable("exists "+kind, err)
	}
	return true, nil
}

func (s *FileSystemStore) Keys(ctx context.Context, kind string) ([]string, error) {
	entries, err := os.ReadDir(s.kindDir(kind))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, bk.Unavailable("scan "+kind, err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		key, err := unescape(strings.TrimSuffix(name, recordExt))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *FileSystemStore) Close() error { return nil }

func (s *FileSystemStore) kindDir(kind string) string {
	return filepath.Join(s.root, escape(kind))
}

func (s *FileSystemStore) path(kind, key string) string {
	return filepath.Join(s.kindDir(kind), escape(key)+recordExt)
}

// escape makes s safe as a single path element. A leading dot is escaped too
// so that keys never collide with temp files or "." and "..".
func escape(s string) string {
	e := url.PathEscape(s)
	if strings.HasPrefix(e, ".") {
		e = "%2E" + e[1:]
	}
	return e
}

func unescape(s string) (string, error) {
	return url.PathUnescape(s)
}

// writeFileAtomic writes data to a temp file in dir and renames it to dest.
func writeFileAtomic(dir, dest string, data []byte) error {
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
