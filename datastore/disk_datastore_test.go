package datastore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskDataStore(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dds, err := NewDiskDataStore(root)
	if err != nil {
		t.Fatal(err)
	}

	blob := bytes.Repeat([]byte("n 0 INT 10\n"), 1000)
	if err := dds.Put(ctx, "events/cp_1/tree", blob); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(filepath.Join(root, "events", "cp_1", "tree.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() >= int64(len(blob)) {
		t.Fatal("blob was not compressed", info.Size())
	}

	got, err := dds.Get(ctx, "events/cp_1/tree")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatal("blob changed")
	}

	if _, err := dds.Get(ctx, "events/missing"); !errors.Is(err, ErrNotFound) {
		t.Fatal("expected not found, got", err)
	}
	if err := dds.Put(ctx, "../outside", blob); err == nil {
		t.Fatal("expected a key outside the root to fail")
	}
}
