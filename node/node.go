// Package node assembles a running process out of the durable store,
// the three protocol roles and the HTTP binding.
package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/zettio/paxos/common"
	"github.com/zettio/paxos/config"
	"github.com/zettio/paxos/paxos"
	"github.com/zettio/paxos/rpc"
	"github.com/zettio/paxos/store"
)

// Options carries everything the command line supplies.
type Options struct {
	ID      uint64
	Config  *config.Config
	DataDir string

	// Overrides for the local bind address; empty/zero means use the
	// address from the cluster view.
	BindHost string
	BindPort int

	// The value this node proposes, if any.
	Propose paxos.Value

	// Loop pacing; zero means the defaults (~1s).
	Interval    time.Duration
	CallTimeout time.Duration
}

// A Node hosts the RPC endpoints, runs the proposer loop and owns the
// node-global state.  It keeps serving peers after a value is chosen.
type Node struct {
	id       uint64
	bindAddr string
	acceptor *paxos.Acceptor
	learner  *paxos.Learner
	proposer *paxos.Proposer
	server   *http.Server
	log      *logrus.Entry
}

func New(opts Options) (*Node, error) {
	if !opts.Config.Contains(opts.ID) {
		return nil, errors.Errorf("node index %d out of range: config lists %d nodes", opts.ID, len(opts.Config.Nodes))
	}

	fileStore, err := store.New(opts.DataDir, opts.ID)
	if err != nil {
		return nil, err
	}
	acceptor, err := paxos.NewAcceptor(fileStore)
	if err != nil {
		return nil, err
	}

	learner := paxos.NewLearner(opts.Config.Quorum())
	proposer := paxos.NewProposer(opts.ID, opts.Config.NodeIDs(), opts.Propose, rpc.NewClient(opts.Config), learner)
	if opts.Interval > 0 {
		proposer.Interval = opts.Interval
	}
	if opts.CallTimeout > 0 {
		proposer.CallTimeout = opts.CallTimeout
	}

	addr := opts.Config.Addr(opts.ID)
	host, port := addr.Host, addr.Port
	if opts.BindHost != "" {
		host = opts.BindHost
	}
	if opts.BindPort != 0 {
		port = opts.BindPort
	}

	mux := http.NewServeMux()
	rpc.NewServer(acceptor, learner).HandleHTTP(mux)
	mux.Handle("/metrics", promhttp.Handler())

	return &Node{
		id:       opts.ID,
		bindAddr: fmt.Sprintf("%s:%d", host, port),
		acceptor: acceptor,
		learner:  learner,
		proposer: proposer,
		server:   &http.Server{Handler: mux},
		log:      common.Log.WithField("node", opts.ID),
	}, nil
}

// Run serves peers and drives the proposer until ctx is cancelled.
// The chosen value is printed to stdout exactly once; the process
// stays up afterwards to serve lagging peers.
func (n *Node) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", n.bindAddr)
	if err != nil {
		return errors.Wrapf(err, "binding %s", n.bindAddr)
	}
	n.log.Infof("listening on %s", n.bindAddr)

	serveErr := make(chan error, 1)
	go func() {
		if err := n.server.Serve(listener); err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	go n.emitChosen(ctx)
	go n.proposer.Run(ctx)

	select {
	case err := <-serveErr:
		return errors.Wrap(err, "rpc server")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return n.server.Shutdown(shutdownCtx)
}

func (n *Node) emitChosen(ctx context.Context) {
	select {
	case <-n.learner.Done():
		value, _ := n.learner.Chosen()
		fmt.Printf("Chosen value: %s\n", value)
	case <-ctx.Done():
	}
}

// Chosen exposes the learner's result.
func (n *Node) Chosen() (paxos.Value, bool) {
	return n.learner.Chosen()
}
