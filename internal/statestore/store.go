package statestore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"texstream/internal/common/fsutil"
)

// ErrNotFound is returned by Load when nothing was saved yet.
var ErrNotFound = errors.New("no saved streaming state")

// IsNotFound reports whether err means no snapshot exists.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Store saves and loads one snapshot.
type Store interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
	// Location describes where snapshots go, for logs.
	Location() string
}

// FileStore keeps the snapshot in a local file, replaced atomically.
type FileStore struct {
	path string
}

func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("empty state file path")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{path: p}, nil
}

func (s *FileStore) Location() string { return s.path }

func (s *FileStore) Save(_ context.Context, snap Snapshot) error {
	if err := fsutil.EnsureParentDir(s.path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}
	defer os.Remove(tmp.Name())
	if err := Encode(tmp, snap); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp state file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), s.path), "replace state file")
}

func (s *FileStore) Load(_ context.Context) (Snapshot, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "open state file")
	}
	defer f.Close()
	return Decode(f)
}

func encodeBytes(snap Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Autosave calls source every interval and saves the result until ctx is
// done, then saves one last time. Failures are logged and retried on the
// next tick.
func Autosave(ctx context.Context, store Store, interval time.Duration, source func() Snapshot, log zerolog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	save := func(ctx context.Context) {
		snap := source()
		if err := store.Save(ctx, snap); err != nil {
			log.Warn().Err(err).Str("location", store.Location()).Msg("save streaming state")
			return
		}
		log.Debug().
			Str("location", store.Location()).
			Int("textures", len(snap.State.WantedMips)).
			Msg("streaming state saved")
	}
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			save(final)
			cancel()
			return
		case <-t.C:
			save(ctx)
		}
	}
}
