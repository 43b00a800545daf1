package paxos

import (
	"sync"
)

type tally struct {
	value Value
	nodes map[uint64]struct{}
}

// A Learner counts which acceptors have accepted which proposal, and
// latches the first value known to be accepted by a quorum.  It only
// receives observations; it never calls back into the other roles.
type Learner struct {
	mu       sync.Mutex
	quorum   int
	tallies  map[ProposalID]*tally
	chosen   Value
	chosenID ProposalID
	latched  bool
	done     chan struct{}
}

func NewLearner(quorum int) *Learner {
	return &Learner{
		quorum:  quorum,
		tallies: map[ProposalID]*tally{},
		done:    make(chan struct{}),
	}
}

// Observe records that node has accepted (p, v).  Repeat observations
// are collapsed.  Once a value is chosen further observations are
// ignored: Paxos guarantees any later quorum carries the same value.
func (l *Learner) Observe(node uint64, p ProposalID, v Value) {
	if !p.valid() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.latched {
		return
	}

	t, ok := l.tallies[p]
	if !ok {
		t = &tally{value: v, nodes: map[uint64]struct{}{}}
		l.tallies[p] = t
	}
	t.nodes[node] = struct{}{}

	if len(t.nodes) >= l.quorum {
		l.chosen = t.value
		l.chosenID = p
		l.latched = true
		l.tallies = nil // quorum analysis is over
		valueChosen.Set(1)
		close(l.done)
	}
}

// Chosen returns the chosen value, once there is one.  The result is
// stable forever after the first true return.
func (l *Learner) Chosen() (Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chosen, l.latched
}

// choice additionally reports the proposal the quorum accepted.
func (l *Learner) choice() (ProposalID, Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chosenID, l.chosen, l.latched
}

// Done is closed when a value first becomes chosen.
func (l *Learner) Done() <-chan struct{} {
	return l.done
}
