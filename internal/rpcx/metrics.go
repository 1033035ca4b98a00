package rpcx

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rpcRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestoneindexor_rpc_requests_total",
			Help: "Total number of execution-layer RPC requests",
		},
		[]string{"method", "outcome"},
	)

	rpcRotations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestoneindexor_rpc_rotations_total",
			Help: "Total number of endpoint rotations caused by failed calls",
		},
		[]string{"method"},
	)

	rpcRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestoneindexor_rpc_retry_rounds_total",
			Help: "Total number of full retry rounds over the endpoint pool",
		},
		[]string{"method"},
	)

	rpcExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestoneindexor_rpc_exhausted_total",
			Help: "Total number of calls that exhausted every endpoint and round",
		},
		[]string{"method"},
	)

	rpcReliableRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "milestoneindexor_rpc_reliable_rounds_total",
			Help: "Total number of extra rounds taken by reliable receipt fetches",
		},
	)
)

func requestsInc(method, outcome string) {
	rpcRequests.WithLabelValues(method, outcome).Inc()
}

func rotationsInc(method string) {
	rpcRotations.WithLabelValues(method).Inc()
}

func retriesInc(method string) {
	rpcRetries.WithLabelValues(method).Inc()
}

func exhaustedInc(method string) {
	rpcExhausted.WithLabelValues(method).Inc()
}

func reliableRoundsInc() {
	rpcReliableRounds.Inc()
}
