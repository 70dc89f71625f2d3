package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const slotExt = ".slot"

// DirStore is a durable KV keeping one file per slot under a single
// directory. Slot filenames are the percent-escaped key plus ".slot",
// so arbitrary keys (including "::" separators) map to safe names and
// back without a manifest.
type DirStore struct {
	dir string
}

// OpenDir creates the slot directory if needed and returns a store
// over it. Safe to call repeatedly on the same path.
func OpenDir(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating slot directory: %w", err)
	}
	return &DirStore{dir: dir}, nil
}

// Dir returns the directory slots live in. The Notifier watches this.
func (s *DirStore) Dir() string {
	return s.dir
}

func (s *DirStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(s.slotPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading slot %q: %w", key, err)
	}
	return string(data), true, nil
}

// Set writes the value to a temp file in the same directory and renames
// it over the slot. Rename is atomic on the filesystems we care about,
// so watchers and concurrent readers see either the old value or the
// new one.
func (s *DirStore) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("writing slot %q: %w", key, err)
	}
	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing slot %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing slot %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.slotPath(key)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing slot %q: %w", key, err)
	}
	return nil
}

func (s *DirStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.slotPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting slot %q: %w", key, err)
	}
	return nil
}

func (s *DirStore) slotPath(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+slotExt)
}

// slotKey recovers the slot key from a filename. Reports false for
// temp files and anything else that is not a slot.
func slotKey(filename string) (string, bool) {
	name, found := strings.CutSuffix(filepath.Base(filename), slotExt)
	if !found {
		return "", false
	}
	key, err := url.PathUnescape(name)
	if err != nil {
		return "", false
	}
	return key, true
}
