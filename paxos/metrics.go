package paxos

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roundsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paxos_rounds_started_total",
		Help: "Number of prepare rounds this proposer has initiated.",
	})
	rpcFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paxos_rpc_failures_total",
		Help: "Outbound prepare/accept calls that returned no usable response.",
	}, []string{"method"})
	valueChosen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paxos_value_chosen",
		Help: "1 once this node knows the chosen value.",
	})
)
