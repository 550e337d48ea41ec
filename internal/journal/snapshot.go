package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/syncbridge/syncbridge/internal/recordstore"
)

// stateDoc is the persisted form of the record store.
type stateDoc struct {
	SavedAt time.Time         `json:"savedAt"`
	State   recordstore.State `json:"state"`
}

// ErrNoSnapshot is returned by LoadState when no snapshot file exists yet.
var ErrNoSnapshot = errors.New("journal: no state snapshot")

func (j *Journal) snapshotPath() string {
	return filepath.Join(filepath.Dir(j.path), "state.snap.zst")
}

// SaveState writes a zstd-compressed snapshot of the record store next to
// the journal database. The write goes through a temp file and rename so a
// crash mid-write never corrupts the previous snapshot.
func (j *Journal) SaveState(st recordstore.State) error {
	doc := stateDoc{SavedAt: time.Now().UTC(), State: st}

	tmp := j.snapshotPath() + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return fmt.Errorf("init zstd writer: %w", err)
	}
	if err := json.NewEncoder(zw).Encode(doc); err != nil {
		zw.Close()
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, j.snapshotPath())
}

// LoadState reads the most recent state snapshot, or ErrNoSnapshot when none
// was ever written.
func (j *Journal) LoadState() (recordstore.State, error) {
	f, err := os.Open(j.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return recordstore.State{}, ErrNoSnapshot
		}
		return recordstore.State{}, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return recordstore.State{}, fmt.Errorf("init zstd reader: %w", err)
	}
	defer zr.Close()

	var doc stateDoc
	if err := json.NewDecoder(zr).Decode(&doc); err != nil {
		return recordstore.State{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return doc.State, nil
}
