// Package store persists the acceptor triple as one small file per
// node, replaced atomically on every write.
package store

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/zettio/paxos/paxos"
)

// recordVersion identifies the on-disk format; bump it when the
// layout changes.
const recordVersion = 1

// record layout, all big-endian:
//
//	u8  version
//	16B min proposal     (ProposalID.Key)
//	16B accepted proposal
//	u8  value present (0/1)
//	u32 value length
//	... value bytes
const headerLen = 1 + 16 + 16 + 1 + 4

// A FileStore holds the state of one node under the data directory.
// Save does not return until the record is flushed to stable storage.
type FileStore struct {
	dir  string
	path string
}

// New creates the data directory if needed and returns the store for
// the given node index.
func New(dir string, node uint64) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "creating data directory")
	}
	return &FileStore{
		dir:  dir,
		path: filepath.Join(dir, fmt.Sprintf("%d", node)),
	}, nil
}

// Load returns the most recently saved state, or the all-"none" state
// if nothing has been written yet.
func (fs *FileStore) Load() (paxos.State, error) {
	buf, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return paxos.State{}, nil
	}
	if err != nil {
		return paxos.State{}, errors.Wrap(err, "reading state file")
	}
	return decode(buf)
}

// Save atomically replaces the persisted record: write to a temporary
// sibling, fsync, rename over the old file, fsync the directory.  A
// crash leaves either the old record or the new one, never a mix.
func (fs *FileStore) Save(state paxos.State) error {
	tmp, err := os.CreateTemp(fs.dir, filepath.Base(fs.path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "creating temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(encode(state)); err != nil {
		tmp.Close()
		return errors.Wrap(err, "writing state")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "flushing state")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp file")
	}
	if err := os.Rename(tmp.Name(), fs.path); err != nil {
		return errors.Wrap(err, "replacing state file")
	}
	return syncDir(fs.dir)
}

// syncDir flushes the directory entry so the rename itself is
// durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "opening data directory")
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return errors.Wrap(err, "flushing data directory")
	}
	return nil
}

func encode(state paxos.State) []byte {
	buf := make([]byte, headerLen, headerLen+len(state.AcceptedValue))
	buf[0] = recordVersion
	minKey := state.MinProposal.Key()
	copy(buf[1:17], minKey[:])
	accKey := state.AcceptedProposal.Key()
	copy(buf[17:33], accKey[:])
	if state.AcceptedValue != nil {
		buf[33] = 1
	}
	binary.BigEndian.PutUint32(buf[34:38], uint32(len(state.AcceptedValue)))
	return append(buf, state.AcceptedValue...)
}

func decode(buf []byte) (paxos.State, error) {
	if len(buf) < headerLen {
		return paxos.State{}, errors.Errorf("state record truncated: %d bytes", len(buf))
	}
	if buf[0] != recordVersion {
		return paxos.State{}, errors.Errorf("unknown state record version %d", buf[0])
	}

	var minKey, accKey [16]byte
	copy(minKey[:], buf[1:17])
	copy(accKey[:], buf[17:33])
	state := paxos.State{
		MinProposal:      paxos.ProposalIDFromKey(minKey),
		AcceptedProposal: paxos.ProposalIDFromKey(accKey),
	}

	length := binary.BigEndian.Uint32(buf[34:38])
	if uint32(len(buf)-headerLen) != length {
		return paxos.State{}, errors.Errorf("state record truncated: want %d value bytes, have %d", length, len(buf)-headerLen)
	}
	if buf[33] == 1 {
		state.AcceptedValue = paxos.Value(buf[headerLen:])
	}
	return state, nil
}
