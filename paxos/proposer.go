package paxos

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zettio/paxos/common"
)

// A Caller delivers prepare and accept requests to one node of the
// cluster.  Timeouts, refused connections and malformed replies all
// surface as errors; the proposer treats them as missing responses.
type Caller interface {
	Prepare(ctx context.Context, node uint64, n ProposalID) (PrepareResult, error)
	Accept(ctx context.Context, node uint64, n ProposalID, v Value) (AcceptResult, error)
}

// A Proposer drives rounds of the two-phase protocol until its
// learner knows the chosen value, then re-advertises that value until
// every peer has answered.  A node with no local value runs the loop
// too, purely to learn.
type Proposer struct {
	id      uint64
	nodes   []uint64
	quorum  int
	value   Value // the client's proposal; nil if we only learn
	caller  Caller
	learner *Learner
	log     *logrus.Entry

	// Interval separates loop iterations; CallTimeout bounds each
	// outbound RPC.  Both may be lowered in tests.
	Interval    time.Duration
	CallTimeout time.Duration

	round    uint64
	caughtUp map[uint64]bool
}

func NewProposer(id uint64, nodes []uint64, value Value, caller Caller, learner *Learner) *Proposer {
	return &Proposer{
		id:          id,
		nodes:       nodes,
		quorum:      len(nodes)/2 + 1,
		value:       value,
		caller:      caller,
		learner:     learner,
		log:         common.Log.WithField("node", id),
		Interval:    time.Second,
		CallTimeout: time.Second,
		caughtUp:    map[uint64]bool{},
	}
}

// Run iterates rounds until ctx is cancelled or the chosen value has
// been re-advertised to every peer.
func (p *Proposer) Run(ctx context.Context) {
	for {
		if p.step(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

// step executes one loop iteration: a prepare/accept round, or a
// dissemination pass once the value is known.  It returns true when
// there is nothing left to do.
func (p *Proposer) step(ctx context.Context) bool {
	if _, _, ok := p.learner.choice(); ok {
		return p.disseminate(ctx)
	}

	p.round++
	roundsStarted.Inc()
	n := ProposalID{Round: p.round, Node: p.id}
	log := p.log.WithField("proposal", n)

	// Phase 1
	promises := p.broadcastPrepare(ctx, n)
	if len(promises) < p.quorum {
		log.Debugf("prepare: %d/%d responses, no quorum", len(promises), p.quorum)
		return false
	}

	conflict := false
	var best ProposalID
	var bestValue Value
	for node, res := range promises {
		if n.precedes(res.MinProposal) {
			p.adoptRound(res.MinProposal)
			conflict = true
		}
		if res.AcceptedProposal.valid() {
			// a genuine accepted fact; feed the learner even
			// though it came from phase 1
			p.learner.Observe(node, res.AcceptedProposal, res.AcceptedValue)
			if best.precedes(res.AcceptedProposal) {
				best = res.AcceptedProposal
				bestValue = res.AcceptedValue
			}
		}
	}
	if conflict {
		log.Debugf("prepare: superseded, raising round to %d", p.round)
		return false
	}

	// A previously accepted value subsumes our own.
	value := p.value
	if best.valid() {
		value = bestValue
	}
	if value == nil {
		// nothing to propose and nothing accepted out there;
		// this iteration was purely to learn
		return false
	}

	// Phase 2
	acks := p.broadcastAccept(ctx, n, value)
	if len(acks) < p.quorum {
		log.Debugf("accept: %d/%d responses, no quorum", len(acks), p.quorum)
	}
	for node, res := range acks {
		if res.MinProposal.equals(n) {
			p.learner.Observe(node, n, value)
		} else {
			p.adoptRound(res.MinProposal)
		}
	}

	if _, v, ok := p.learner.choice(); ok {
		log.Infof("value chosen: %s", v)
	}
	return false
}

// disseminate re-sends the chosen (proposal, value) to peers which
// have not yet answered, so nodes that missed the accept phase catch
// up.  A peer answering with a higher MinProposal has promised a more
// recent proposer, which will converge it to the same value; we stop
// pestering it.
func (p *Proposer) disseminate(ctx context.Context) bool {
	chosenID, value, _ := p.learner.choice()

	pending := []uint64{}
	for _, node := range p.nodes {
		if !p.caughtUp[node] {
			pending = append(pending, node)
		}
	}
	if len(pending) == 0 {
		return true
	}

	for node, res := range broadcast(ctx, p, pending, func(ctx context.Context, node uint64) (AcceptResult, error) {
		return p.caller.Accept(ctx, node, chosenID, value)
	}, "accept") {
		p.caughtUp[node] = true
		if res.MinProposal.equals(chosenID) {
			p.learner.Observe(node, chosenID, value)
		}
	}

	for _, node := range p.nodes {
		if !p.caughtUp[node] {
			return false
		}
	}
	p.log.Debug("all peers caught up")
	return true
}

func (p *Proposer) broadcastPrepare(ctx context.Context, n ProposalID) map[uint64]PrepareResult {
	return broadcast(ctx, p, p.nodes, func(ctx context.Context, node uint64) (PrepareResult, error) {
		return p.caller.Prepare(ctx, node, n)
	}, "prepare")
}

func (p *Proposer) broadcastAccept(ctx context.Context, n ProposalID, v Value) map[uint64]AcceptResult {
	return broadcast(ctx, p, p.nodes, func(ctx context.Context, node uint64) (AcceptResult, error) {
		return p.caller.Accept(ctx, node, n, v)
	}, "accept")
}

// broadcast issues one call per node in parallel and collects
// whatever answers arrive before the deadline.
func broadcast[R any](ctx context.Context, p *Proposer, nodes []uint64, call func(context.Context, uint64) (R, error), method string) map[uint64]R {
	ctx, cancel := context.WithTimeout(ctx, p.CallTimeout)
	defer cancel()

	type reply struct {
		node uint64
		res  R
		err  error
	}
	replies := make(chan reply, len(nodes))
	for _, node := range nodes {
		go func(node uint64) {
			res, err := call(ctx, node)
			replies <- reply{node: node, res: res, err: err}
		}(node)
	}

	results := map[uint64]R{}
	for range nodes {
		r := <-replies
		if r.err != nil {
			rpcFailures.WithLabelValues(method).Inc()
			p.log.WithField("peer", r.node).Debugf("%s: %v", method, r.err)
			continue
		}
		results[r.node] = r.res
	}
	return results
}

// adoptRound lifts our round past a conflicting proposal, so the next
// proposal id strictly exceeds it.
func (p *Proposer) adoptRound(seen ProposalID) {
	if p.round < seen.Round {
		p.round = seen.Round
	}
}
