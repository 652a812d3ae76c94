package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// TreeEntry is one file of a directory tree, with a slash-separated path
// relative to the tree root.
type TreeEntry struct {
	Path string
	Data []byte
}

// WriteTree writes entries under dir, creating parent directories as
// needed. The destination must not already exist or must be an empty
// directory; anything else is refused so existing output is never
// silently clobbered.
func WriteTree(dir string, entries []TreeEntry) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil:
		if !info.IsDir() {
			return fmt.Errorf("output path %s exists and is not a directory", dir)
		}
		contents, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read output directory: %w", err)
		}
		if len(contents) > 0 {
			return fmt.Errorf("output directory %s is not empty", dir)
		}
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	default:
		return fmt.Errorf("failed to stat output directory: %w", err)
	}

	for _, entry := range entries {
		if !filepath.IsLocal(filepath.FromSlash(entry.Path)) {
			return fmt.Errorf("refusing to write non-local path %q", entry.Path)
		}

		dest := filepath.Join(dir, filepath.FromSlash(entry.Path))
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", entry.Path, err)
		}
		if err := os.WriteFile(dest, entry.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", entry.Path, err)
		}
	}

	return nil
}

// ReadTree reads every regular file under dir into memory. Paths are
// slash-separated and relative to dir, sorted for deterministic output.
func ReadTree(dir string) ([]TreeEntry, error) {
	var entries []TreeEntry

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		entries = append(entries, TreeEntry{Path: filepath.ToSlash(rel), Data: data})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}
