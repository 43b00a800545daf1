package paxos

import (
	"sync"

	"github.com/pkg/errors"
)

// Store provides crash-atomic persistence for the acceptor triple.
// Save must not return until the state is durable.
type Store interface {
	Load() (State, error)
	Save(State) error
}

// PrepareResult is the acceptor's answer to a prepare request.  The
// acceptor never says "rejected" explicitly; a MinProposal larger than
// the request's proposal id is the rejection.
type PrepareResult struct {
	MinProposal      ProposalID
	AcceptedProposal ProposalID
	AcceptedValue    Value
}

// AcceptResult echoes MinProposal; acceptance succeeded iff it equals
// the request's proposal id.
type AcceptResult struct {
	MinProposal ProposalID
}

// An Acceptor services prepare and accept requests over one durable
// triple.  Requests are serialized; the durable write happens while
// the lock is held, and before the response is produced.
type Acceptor struct {
	mu    sync.Mutex
	store Store
	state State
}

// NewAcceptor loads the persisted state, or starts from the
// all-"none" state if nothing has been written yet.
func NewAcceptor(store Store) (*Acceptor, error) {
	state, err := store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "loading acceptor state")
	}
	return &Acceptor{store: store, state: state}, nil
}

// Prepare promises not to accept proposals below n, if n is the
// highest seen so far, and reports what has been accepted already.
func (acc *Acceptor) Prepare(n ProposalID) (PrepareResult, error) {
	acc.mu.Lock()
	defer acc.mu.Unlock()

	if acc.state.MinProposal.precedes(n) {
		next := acc.state
		next.MinProposal = n
		if err := acc.store.Save(next); err != nil {
			return PrepareResult{}, errors.Wrap(err, "persisting promise")
		}
		acc.state = next
	}

	return PrepareResult{
		MinProposal:      acc.state.MinProposal,
		AcceptedProposal: acc.state.AcceptedProposal,
		AcceptedValue:    acc.state.AcceptedValue,
	}, nil
}

// Accept records (n, v) unless a higher proposal has been promised.
// The caller learns the outcome by comparing the returned MinProposal
// against n.
func (acc *Acceptor) Accept(n ProposalID, v Value) (AcceptResult, error) {
	acc.mu.Lock()
	defer acc.mu.Unlock()

	if !n.precedes(acc.state.MinProposal) {
		next := State{
			MinProposal:      n,
			AcceptedProposal: n,
			AcceptedValue:    v,
		}
		if err := acc.store.Save(next); err != nil {
			return AcceptResult{}, errors.Wrap(err, "persisting acceptance")
		}
		acc.state = next
	}

	return AcceptResult{MinProposal: acc.state.MinProposal}, nil
}

// State returns a snapshot of the durable triple.
func (acc *Acceptor) State() State {
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.state
}
