package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"shakerisk/internal/types"
)

// ErrSnapshotNotFound is returned by Load when no snapshot exists for a key.
var ErrSnapshotNotFound = errors.New("cache: snapshot not found")

// SnapshotStore persists computed hazard curve sets keyed by their cache
// fingerprint. Implementations must be atomic per key: a concurrent reader
// either sees a complete snapshot or none, never a partial write.
type SnapshotStore interface {
	// Load returns the stored curve set for a key, ErrSnapshotNotFound if
	// none exists, or another error if the entry is unreadable (corrupted).
	Load(key string) (*types.HazardCurveSet, error)

	// Save stores a curve set under a key, replacing any prior entry.
	Save(key string, set *types.HazardCurveSet) error

	// Delete removes the entry for a key. Deleting a missing key is not an
	// error.
	Delete(key string) error
}

// DiskStore is the filesystem SnapshotStore: one zstd-compressed JSON file
// per key under a base directory. Writes go to a temp file in the same
// directory followed by an atomic rename, so a cancelled or crashed
// computation never leaves a partial entry visible to later lookups.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the base directory if needed and returns the store.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: creating snapshot dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (d *DiskStore) path(key string) string {
	return filepath.Join(d.dir, key+".json.zst")
}

// Load reads and decompresses the snapshot for a key.
func (d *DiskStore) Load(key string) (*types.HazardCurveSet, error) {
	f, err := os.Open(d.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("cache: opening snapshot %s: %w", key, err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("cache: creating zstd reader for %s: %w", key, err)
	}
	defer dec.Close()

	var set types.HazardCurveSet
	if err := json.NewDecoder(dec.IOReadCloser()).Decode(&set); err != nil {
		return nil, fmt.Errorf("cache: decoding snapshot %s: %w", key, err)
	}
	return &set, nil
}

// Save writes the snapshot atomically: temp file, flush, rename.
func (d *DiskStore) Save(key string, set *types.HazardCurveSet) error {
	tmp, err := os.CreateTemp(d.dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("cache: creating temp snapshot for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	// Best-effort cleanup on any failure path below.
	defer os.Remove(tmpName)

	enc, err := zstd.NewWriter(tmp)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("cache: creating zstd writer for %s: %w", key, err)
	}
	if err := json.NewEncoder(enc).Encode(set); err != nil {
		enc.Close()
		tmp.Close()
		return fmt.Errorf("cache: encoding snapshot %s: %w", key, err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("cache: flushing snapshot %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cache: closing temp snapshot for %s: %w", key, err)
	}

	if err := os.Rename(tmpName, d.path(key)); err != nil {
		return fmt.Errorf("cache: publishing snapshot %s: %w", key, err)
	}
	return nil
}

// Delete removes the snapshot for a key.
func (d *DiskStore) Delete(key string) error {
	if err := os.Remove(d.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("cache: deleting snapshot %s: %w", key, err)
	}
	return nil
}
