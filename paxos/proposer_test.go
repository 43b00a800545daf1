package paxos

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// localCaller delivers calls straight to in-process acceptors.  drop,
// when set, may lose the request or the response; a lost response
// still mutates the acceptor, as on a real network.
type localCaller struct {
	acceptors map[uint64]*Acceptor
	drop      func() bool
}

var errDropped = errors.New("message dropped")

func (c *localCaller) Prepare(ctx context.Context, node uint64, n ProposalID) (PrepareResult, error) {
	if c.drop != nil && c.drop() {
		return PrepareResult{}, errDropped
	}
	res, err := c.acceptors[node].Prepare(n)
	if err != nil {
		return PrepareResult{}, err
	}
	if c.drop != nil && c.drop() {
		return PrepareResult{}, errDropped
	}
	return res, nil
}

func (c *localCaller) Accept(ctx context.Context, node uint64, n ProposalID, v Value) (AcceptResult, error) {
	if c.drop != nil && c.drop() {
		return AcceptResult{}, errDropped
	}
	res, err := c.acceptors[node].Accept(n, v)
	if err != nil {
		return AcceptResult{}, err
	}
	if c.drop != nil && c.drop() {
		return AcceptResult{}, errDropped
	}
	return res, nil
}

func testCluster(t *testing.T, size int) (map[uint64]*Acceptor, []uint64) {
	acceptors := map[uint64]*Acceptor{}
	nodes := make([]uint64, size)
	for i := 0; i < size; i++ {
		acc, err := NewAcceptor(&memStore{})
		require.NoError(t, err)
		acceptors[uint64(i)] = acc
		nodes[i] = uint64(i)
	}
	return acceptors, nodes
}

func newTestProposer(id uint64, nodes []uint64, value Value, caller Caller) *Proposer {
	p := NewProposer(id, nodes, value, caller, NewLearner(len(nodes)/2+1))
	p.Interval = time.Millisecond
	p.CallTimeout = 100 * time.Millisecond
	return p
}

func TestProposerChoosesOwnValue(t *testing.T) {
	acceptors, nodes := testCluster(t, 3)
	p := newTestProposer(0, nodes, Value("foo"), &localCaller{acceptors: acceptors})

	p.step(context.Background())

	v, ok := p.learner.Chosen()
	require.True(t, ok, "one clean round must choose")
	assert.Equal(t, Value("foo"), v)

	for _, acc := range acceptors {
		assert.Equal(t, Value("foo"), acc.State().AcceptedValue)
	}
}

func TestProposerAdoptsAcceptedValue(t *testing.T) {
	acceptors, nodes := testCluster(t, 3)

	// one acceptor already accepted a value; our own must be subsumed
	prior := ProposalID{Round: 1, Node: 0}
	_, err := acceptors[0].Accept(prior, Value("foo"))
	require.NoError(t, err)

	p := newTestProposer(2, nodes, Value("bar"), &localCaller{acceptors: acceptors})
	p.step(context.Background())

	v, ok := p.learner.Chosen()
	require.True(t, ok)
	assert.Equal(t, Value("foo"), v, "a previously accepted value subsumes our proposal")
}

func TestProposerPrefersHighestAcceptedProposal(t *testing.T) {
	acceptors, nodes := testCluster(t, 5)

	_, err := acceptors[0].Accept(ProposalID{Round: 1, Node: 0}, Value("old"))
	require.NoError(t, err)
	_, err = acceptors[1].Accept(ProposalID{Round: 2, Node: 1}, Value("new"))
	require.NoError(t, err)

	p := newTestProposer(4, nodes, Value("mine"), &localCaller{acceptors: acceptors})

	// acceptor 1 has promised round 2, which supersedes our first
	// attempt at round 1; the retry runs at round 3
	p.step(context.Background())
	p.step(context.Background())

	v, ok := p.learner.Chosen()
	require.True(t, ok)
	assert.Equal(t, Value("new"), v)
}

func TestProposerRaisesRoundOnConflict(t *testing.T) {
	acceptors, nodes := testCluster(t, 3)

	// the cluster has promised round 5 already
	high := ProposalID{Round: 5, Node: 1}
	for _, acc := range acceptors {
		_, err := acc.Prepare(high)
		require.NoError(t, err)
	}

	p := newTestProposer(0, nodes, Value("foo"), &localCaller{acceptors: acceptors})

	p.step(context.Background())
	_, ok := p.learner.Chosen()
	assert.False(t, ok, "the conflicting round cannot choose")
	assert.Equal(t, uint64(5), p.round, "the observed round is adopted as a hint")

	// the next attempt runs at round 6 and wins
	p.step(context.Background())
	v, ok := p.learner.Chosen()
	require.True(t, ok)
	assert.Equal(t, Value("foo"), v)
}

func TestProposerWithoutValueOnlyLearns(t *testing.T) {
	acceptors, nodes := testCluster(t, 3)
	p := newTestProposer(0, nodes, nil, &localCaller{acceptors: acceptors})

	for i := 0; i < 3; i++ {
		p.step(context.Background())
	}

	_, ok := p.learner.Chosen()
	assert.False(t, ok)
	for _, acc := range acceptors {
		assert.False(t, acc.State().AcceptedProposal.valid(),
			"a value-less proposer must not run the accept phase")
	}
}

func TestProposerWithoutValueLearnsFromPeers(t *testing.T) {
	acceptors, nodes := testCluster(t, 3)

	// a quorum already accepted "foo"
	n := ProposalID{Round: 1, Node: 1}
	for _, id := range []uint64{0, 1} {
		_, err := acceptors[id].Accept(n, Value("foo"))
		require.NoError(t, err)
	}

	p := newTestProposer(2, nodes, nil, &localCaller{acceptors: acceptors})
	p.step(context.Background())

	v, ok := p.learner.Chosen()
	require.True(t, ok)
	assert.Equal(t, Value("foo"), v)
}

func TestProposerToleratesMinorityDown(t *testing.T) {
	acceptors, nodes := testCluster(t, 3)

	// node 2 is dead
	caller := &failingCaller{
		inner: &localCaller{acceptors: acceptors},
		down:  map[uint64]bool{2: true},
	}
	p := newTestProposer(0, nodes, Value("foo"), caller)
	p.step(context.Background())

	v, ok := p.learner.Chosen()
	require.True(t, ok, "two of three nodes are a quorum")
	assert.Equal(t, Value("foo"), v)
}

// failingCaller simulates dead peers.
type failingCaller struct {
	inner Caller
	down  map[uint64]bool
}

func (c *failingCaller) Prepare(ctx context.Context, node uint64, n ProposalID) (PrepareResult, error) {
	if c.down[node] {
		return PrepareResult{}, errors.New("connection refused")
	}
	return c.inner.Prepare(ctx, node, n)
}

func (c *failingCaller) Accept(ctx context.Context, node uint64, n ProposalID, v Value) (AcceptResult, error) {
	if c.down[node] {
		return AcceptResult{}, errors.New("connection refused")
	}
	return c.inner.Accept(ctx, node, n, v)
}

func TestProposerDisseminatesAfterChoice(t *testing.T) {
	acceptors, nodes := testCluster(t, 3)
	down := map[uint64]bool{2: true}
	caller := &failingCaller{inner: &localCaller{acceptors: acceptors}, down: down}

	p := newTestProposer(0, nodes, Value("foo"), caller)
	p.step(context.Background())
	_, ok := p.learner.Chosen()
	require.True(t, ok)

	// node 2 missed the accept phase entirely
	assert.False(t, acceptors[2].State().AcceptedProposal.valid())

	done := p.step(context.Background())
	assert.False(t, done, "node 2 has not answered yet")

	// node 2 comes back; re-advertising brings it up to date
	down[2] = false
	done = p.step(context.Background())
	assert.True(t, done, "every peer has now answered")
	assert.Equal(t, Value("foo"), acceptors[2].State().AcceptedValue)
}

func TestProposerRunStopsOnCancel(t *testing.T) {
	acceptors, nodes := testCluster(t, 3)
	p := newTestProposer(0, nodes, nil, &localCaller{acceptors: acceptors})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
