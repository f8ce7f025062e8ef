/******************************************************************************
 *
 *  Description :
 *
 *    Connection- and auth-level Prometheus metrics. Fabric-routing
 *    metrics (local presence, message routing, subscriber lag) live
 *    alongside the code that produces them in fabric.go; this file holds
 *    the ones that belong to the accept loop and the Connection Session
 *    auth handshake instead.
 *
 *****************************************************************************/

package main

import "github.com/prometheus/client_golang/prometheus"

var (
	metricConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "riverline_connections_accepted_total",
		Help: "TCP connections accepted by this replica.",
	})
	metricAuthOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "riverline_auth_outcomes_total",
		Help: "Login and signup attempts, labeled by operation and outcome.",
	}, []string{"op", "outcome"})
	metricPushReceipts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "riverline_push_receipts_total",
		Help: "Missed-message push receipts, labeled by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(metricConnectionsAccepted, metricAuthOutcomes, metricPushReceipts)
}
