package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FileStore saves uploaded document files under a root directory.
// Files are written to a temp name first, then renamed into place, so a
// concurrent reader never sees a partial file.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed and returns a FileStore.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

// Save writes r to "<root>/<id><ext>" and returns the final path and byte count.
func (f *FileStore) Save(id, ext string, r io.Reader) (string, int64, error) {
	finalPath := filepath.Join(f.root, id+ext)
	tmpPath := finalPath + ".tmp"

	out, err := os.Create(tmpPath)
	if err != nil {
		return "", 0, fmt.Errorf("create upload file: %w", err)
	}
	n, err := io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("write upload file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", 0, fmt.Errorf("publish upload file: %w", err)
	}
	return finalPath, n, nil
}

// Move renames an existing file into the store under "<id><ext>". Used by the
// inbox watcher, which already has the bytes on the same filesystem.
func (f *FileStore) Move(src, id, ext string) (string, error) {
	finalPath := filepath.Join(f.root, id+ext)
	if err := os.Rename(src, finalPath); err != nil {
		return "", fmt.Errorf("move into store: %w", err)
	}
	return finalPath, nil
}

// Remove deletes the stored file at path. Missing files are not an error.
func (f *FileStore) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// DiskUsageBytes returns the total size in bytes of the given paths.
// Each path may be a file or a directory (recursively summed).
// Missing or inaccessible paths are skipped (contribute 0); errors during walk are returned.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		if info.IsDir() {
			n, err := dirSize(p)
			if err != nil {
				return 0, err
			}
			total += n
		} else {
			total += info.Size()
		}
	}
	return total, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info != nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
