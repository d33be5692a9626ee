package lib

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/* This file implements dev-ops telemetry for the node in the form of prometheus metrics */

const metricsPattern = "/metrics"

// Metrics represents a server that exposes Prometheus metrics
type Metrics struct {
	server *http.Server  // the http prometheus server
	config MetricsConfig // the configuration
	log    LoggerI       // the logger

	ConsensusMetrics // vote transport telemetry
	OrderingMetrics  // proposal round scheduling telemetry
	PeerMetrics      // peer telemetry
}

// ConsensusMetrics represents the telemetry of the vote transport
type ConsensusMetrics struct {
	VotesSent       prometheus.Counter     // vote bundles dispatched to peers
	VotesReceived   prometheus.Counter     // individual votes accepted from peers
	BundlesRejected *prometheus.CounterVec // inbound bundles rejected, by reason
	BlockRound      prometheus.Gauge       // the block round of the last processed event
	RejectRound     prometheus.Gauge       // the reject round of the last processed event
}

// OrderingMetrics represents the telemetry of the round peer selector
type OrderingMetrics struct {
	ProposalRequests prometheus.Counter // proposal requests dispatched to issuer peers
	TriplesFormed    prometheus.Counter // hash triples completed by the commit stream
	EventsSkipped    prometheus.Counter // sync events dropped for lack of a hash triple
}

// PeerMetrics represents the telemetry for the P2P module
type PeerMetrics struct {
	TotalPeers    prometheus.Gauge   // number of peers
	InboundPeers  prometheus.Gauge   // number of peers that dialed this node
	OutboundPeers prometheus.Gauge   // number of peers that this node dialed
	BytesSent     prometheus.Counter // total bytes written to peers
	BytesReceived prometheus.Counter // total bytes read from peers
}

// NewMetricsServer() creates a new telemetry server
func NewMetricsServer(config MetricsConfig, log LoggerI) *Metrics {
	mux := http.NewServeMux()
	mux.Handle(metricsPattern, promhttp.Handler())
	return &Metrics{
		server: &http.Server{Addr: config.PrometheusAddress, Handler: mux},
		config: config,
		log:    log,
		ConsensusMetrics: ConsensusMetrics{
			VotesSent: promauto.NewCounter(prometheus.CounterOpts{
				Name: "lattice_votes_sent",
				Help: "Vote bundles dispatched to peers",
			}),
			VotesReceived: promauto.NewCounter(prometheus.CounterOpts{
				Name: "lattice_votes_received",
				Help: "Votes accepted from peers",
			}),
			BundlesRejected: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "lattice_bundles_rejected",
				Help: "Inbound vote bundles rejected at the boundary",
			}, []string{"reason"}),
			BlockRound: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "lattice_block_round",
				Help: "Block round of the last synchronization event",
			}),
			RejectRound: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "lattice_reject_round",
				Help: "Reject round of the last synchronization event",
			}),
		},
		OrderingMetrics: OrderingMetrics{
			ProposalRequests: promauto.NewCounter(prometheus.CounterOpts{
				Name: "lattice_proposal_requests",
				Help: "Proposal requests dispatched to issuer peers",
			}),
			TriplesFormed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "lattice_hash_triples_formed",
				Help: "Hash triples completed by the commit stream",
			}),
			EventsSkipped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "lattice_events_skipped",
				Help: "Synchronization events skipped before the first hash triple",
			}),
		},
		PeerMetrics: PeerMetrics{
			TotalPeers: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "lattice_peer_total",
				Help: "Total number of peers",
			}),
			InboundPeers: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "lattice_peer_inbound",
				Help: "Number of inbound peers",
			}),
			OutboundPeers: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "lattice_peer_outbound",
				Help: "Number of outbound peers",
			}),
			BytesSent: promauto.NewCounter(prometheus.CounterOpts{
				Name: "lattice_peer_bytes_sent",
				Help: "Total bytes written to peers",
			}),
			BytesReceived: promauto.NewCounter(prometheus.CounterOpts{
				Name: "lattice_peer_bytes_received",
				Help: "Total bytes read from peers",
			}),
		},
	}
}

// Start() starts the telemetry server
func (m *Metrics) Start() {
	if m == nil {
		return
	}
	if m.config.Enabled {
		go func() {
			m.log.Infof("Starting metrics server on %s", m.config.PrometheusAddress)
			if err := m.server.ListenAndServe(); err != nil {
				if err != http.ErrServerClosed {
					m.log.Errorf("Metrics server failed with err: %s", err.Error())
				}
			}
		}()
	}
}

// Stop() gracefully stops the telemetry server
func (m *Metrics) Stop() {
	if m == nil {
		return
	}
	if m.config.Enabled {
		if err := m.server.Shutdown(context.Background()); err != nil {
			m.log.Error(err.Error())
		}
	}
}

// UpdateRoundMetrics() records the round of the latest synchronization event
func (m *Metrics) UpdateRoundMetrics(blockRound, rejectRound uint64) {
	if m == nil {
		return
	}
	m.BlockRound.Set(float64(blockRound))
	m.RejectRound.Set(float64(rejectRound))
}

// CountVoteSend() records one dispatched vote bundle
func (m *Metrics) CountVoteSend() {
	if m == nil {
		return
	}
	m.VotesSent.Inc()
}

// CountVotesDelivered() records votes forwarded to the subscriber
func (m *Metrics) CountVotesDelivered(n int) {
	if m == nil {
		return
	}
	m.VotesReceived.Add(float64(n))
}

// CountBundleRejected() records one rejected inbound bundle with its reason
func (m *Metrics) CountBundleRejected(reason string) {
	if m == nil {
		return
	}
	m.BundlesRejected.WithLabelValues(reason).Inc()
}

// CountProposalRequest() records one dispatched proposal request
func (m *Metrics) CountProposalRequest() {
	if m == nil {
		return
	}
	m.ProposalRequests.Inc()
}

// CountTripleFormed() records one completed hash triple
func (m *Metrics) CountTripleFormed() {
	if m == nil {
		return
	}
	m.TriplesFormed.Inc()
}

// CountEventSkipped() records a sync event dropped for lack of a hash triple
func (m *Metrics) CountEventSkipped() {
	if m == nil {
		return
	}
	m.EventsSkipped.Inc()
}

// UpdatePeerMetrics() is a setter for the peer counts
func (m *Metrics) UpdatePeerMetrics(total, inbound, outbound int) {
	if m == nil {
		return
	}
	m.TotalPeers.Set(float64(total))
	m.InboundPeers.Set(float64(inbound))
	m.OutboundPeers.Set(float64(outbound))
}

// AddPeerBytes() accumulates wire traffic totals
func (m *Metrics) AddPeerBytes(sent, received int64) {
	if m == nil {
		return
	}
	if sent > 0 {
		m.BytesSent.Add(float64(sent))
	}
	if received > 0 {
		m.BytesReceived.Add(float64(received))
	}
}
