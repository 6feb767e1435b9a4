package datastore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

type (
	// DiskDataStore keeps zstd compressed blobs under a root directory.
	DiskDataStore struct {
		rootPath string
	}
)

func NewDiskDataStore(rootPath string) (*DiskDataStore, error) {
	if err := os.MkdirAll(rootPath, 0o755); err != nil {
		return nil, fmt.Errorf("error in os.MkdirAll: %w", err)
	}
	dds := &DiskDataStore{
		rootPath: rootPath,
	}

	return dds, nil
}

func (dds *DiskDataStore) path(key string) (string, error) {
	p := filepath.Join(dds.rootPath, filepath.FromSlash(key)+".zst")
	if !strings.HasPrefix(p, filepath.Clean(dds.rootPath)+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q escapes the data dir", key)
	}
	return p, nil
}

func (dds *DiskDataStore) Put(_ context.Context, key string, b []byte) error {
	p, err := dds.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("error in os.MkdirAll: %w", err)
	}
	// write then rename so readers never see a partial blob
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, compress(b), 0o644); err != nil {
		return fmt.Errorf("error in os.WriteFile: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("error in os.Rename: %w", err)
	}
	logger.Debug().Str("key", key).Int("bytes", len(b)).Msg("wrote blob to disk")
	return nil
}

func (dds *DiskDataStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := dds.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("error in os.ReadFile: %w", err)
	}
	return decompress(b)
}

func (dds *DiskDataStore) Shutdown(context.Context) error {
	return nil
}
