package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/zettio/paxos/common"
	"github.com/zettio/paxos/config"
	"github.com/zettio/paxos/node"
	"github.com/zettio/paxos/paxos"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	var (
		nodeIndex   = flag.Int("node", -1, "index of this node in the cluster config (required)")
		configFile  = flag.String("config-file", "config.yml", "path to the cluster config")
		dataDir     = flag.String("data-dir", "data", "directory for durable acceptor state")
		ip          = flag.String("ip", "", "override the bind address from the config")
		port        = flag.Int("port", 0, "override the bind port from the config")
		propose     = flag.String("propose", "", "value to propose")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	common.SetupLogging()

	if *nodeIndex < 0 {
		fatal("--node is required")
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fatal("%v", err)
	}

	opts := node.Options{
		ID:       uint64(*nodeIndex),
		Config:   cfg,
		DataDir:  *dataDir,
		BindHost: *ip,
		BindPort: *port,
	}
	if flag.CommandLine.Changed("propose") {
		opts.Propose = paxos.Value(*propose)
	}

	n, err := node.New(opts)
	if err != nil {
		fatal("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Run(ctx); err != nil {
		fatal("%v", err)
	}
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
