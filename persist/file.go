package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FilePersister stores one Snapshot per machine ID as a file under dir,
// grounded directly in the teacher's NewYAMLPersister/JSONPersister
// (internal/production/persister.go) — same directory-per-instance layout,
// generalized to any Codec (default YAMLCodec).
type FilePersister struct {
	dir   string
	codec Codec
	ext   string
}

// NewFilePersister creates dir if needed and returns a FilePersister using
// codec (YAMLCodec{} if nil) for encoding, with files named <id><ext>.
func NewFilePersister(dir string, codec Codec, ext string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: mkdir %s: %w", dir, err)
	}
	if codec == nil {
		codec = YAMLCodec{}
	}
	if ext == "" {
		ext = ".yaml"
	}
	return &FilePersister{dir: dir, codec: codec, ext: ext}, nil
}

func (p *FilePersister) path(machineID string) string {
	return filepath.Join(p.dir, machineID+p.ext)
}

// Save writes snapshot for machineID, overwriting any prior save.
func (p *FilePersister) Save(machineID string, snapshot Snapshot) error {
	b, err := p.codec.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p.path(machineID), b, 0o644); err != nil {
		return fmt.Errorf("persist: write %s: %w", p.path(machineID), err)
	}
	return nil
}

// Load reads back the last snapshot saved for machineID.
func (p *FilePersister) Load(machineID string) (Snapshot, error) {
	b, err := os.ReadFile(p.path(machineID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("persist: machine %q: %w", machineID, os.ErrNotExist)
		}
		return Snapshot{}, fmt.Errorf("persist: read %s: %w", p.path(machineID), err)
	}
	return p.codec.Unmarshal(b)
}
