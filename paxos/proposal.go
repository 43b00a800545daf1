package paxos

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"
)

// note all fields exported in structs so we can Gob them
type ProposalID struct {
	// round numbers begin at 1.  round 0 indicates an
	// uninitialized ProposalID, and precedes all other ProposalIDs
	Round uint64
	Node  uint64
}

func (a ProposalID) equals(b ProposalID) bool {
	return a.Round == b.Round && a.Node == b.Node
}

func (a ProposalID) precedes(b ProposalID) bool {
	return a.Round < b.Round || (a.Round == b.Round && a.Node < b.Node)
}

func (a ProposalID) valid() bool {
	return a.Round > 0
}

func (a ProposalID) String() string {
	if !a.valid() {
		return "none"
	}
	return fmt.Sprintf("%d.%d", a.Round, a.Node)
}

// Key encodes the proposal id so that lexicographic byte order matches
// the semantic order.  Used for the on-disk record.
func (a ProposalID) Key() [16]byte {
	var key [16]byte
	binary.BigEndian.PutUint64(key[0:8], a.Round)
	binary.BigEndian.PutUint64(key[8:16], a.Node)
	return key
}

// ProposalIDFromKey is the inverse of Key.
func ProposalIDFromKey(key [16]byte) ProposalID {
	return ProposalID{
		Round: binary.BigEndian.Uint64(key[0:8]),
		Node:  binary.BigEndian.Uint64(key[8:16]),
	}
}

// A Value is an opaque byte string; the protocol never inspects it.
type Value []byte

func (v Value) String() string {
	if utf8.Valid(v) {
		return string(v)
	}
	return fmt.Sprintf("%q", string(v))
}

// State is the acceptor's durable triple.  AcceptedValue is present
// iff AcceptedProposal is valid, and AcceptedProposal never exceeds
// MinProposal.
type State struct {
	MinProposal      ProposalID
	AcceptedProposal ProposalID
	AcceptedValue    Value
}
