// Package statestore persists the streaming state between runs: the
// high-water mark of the required pool and the last wanted mips of every
// texture. Snapshots are a JSON header line followed by a gob body, zstd
// compressed, stored in a local file or an S3 object.
package statestore

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"texstream/internal/streaming"
)

// Version is the snapshot format written by Encode.
const Version = 1

type Header struct {
	Version int       `json:"version"`
	RunID   string    `json:"run_id"`
	Scene   string    `json:"scene"`
	SavedAt time.Time `json:"saved_at"`
}

type Snapshot struct {
	Header Header
	State  streaming.PersistedState
}

// NewRunID identifies one daemon run in the snapshots it writes.
func NewRunID() string { return uuid.NewString() }

// NewSnapshot stamps state with a current header.
func NewSnapshot(runID, scene string, state streaming.PersistedState) Snapshot {
	return Snapshot{
		Header: Header{Version: Version, RunID: runID, Scene: scene, SavedAt: time.Now().UTC()},
		State:  state,
	}
}

// Encode writes snap to w.
func Encode(w io.Writer, snap Snapshot) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return errors.Wrap(err, "zstd writer")
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		enc.Close()
		return errors.Wrap(err, "encode header")
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return errors.Wrap(err, "write header")
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return errors.Wrap(err, "gob encode")
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return errors.Wrap(err, "flush")
	}
	return errors.Wrap(enc.Close(), "zstd close")
}

// Decode reads a snapshot written by Encode. Snapshots of another version
// are rejected.
func Decode(r io.Reader) (Snapshot, error) {
	var snap Snapshot
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, errors.Wrap(err, "zstd reader")
	}
	defer dec.Close()
	br := bufio.NewReaderSize(dec, 64*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, errors.Wrap(err, "read header")
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, errors.Wrap(err, "decode header")
	}
	if h.Version != Version {
		return snap, errors.Errorf("unsupported snapshot version %d", h.Version)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, errors.Wrap(err, "gob decode")
	}
	return snap, nil
}
