package ordering

import (
	"sync"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lattice-network/lattice/consensus"
	"github.com/lattice-network/lattice/lib"
)

/* This file contains the ordering service client: proposal requests toward the
issuer and batch fan-out toward the consumer peers of the upcoming rounds */

// wire field numbers for the proposal request; fixed, a protoc-generated reader
// of the same schema decodes these bytes unchanged
const (
	requestFieldRoundBlock  = 1
	requestFieldRoundReject = 2
)

var _ lib.MessageI = &ProposalRequest{}

// ProposalRequest asks the issuer of a round for its ordering proposal
type ProposalRequest struct {
	Round consensus.Round // the round the proposal is requested for
}

// AppendWire() encodes the proposal request fields
func (p *ProposalRequest) AppendWire(buf []byte) []byte {
	buf = lib.AppendUint(buf, requestFieldRoundBlock, p.Round.BlockRound)
	return lib.AppendUint(buf, requestFieldRoundReject, p.Round.RejectRound)
}

// ParseWire() populates the proposal request from encoded bytes
func (p *ProposalRequest) ParseWire(data []byte) lib.ErrorI {
	return lib.RangeFields(data, func(num protowire.Number, _ protowire.Type, varint uint64, _ []byte) lib.ErrorI {
		switch num {
		case requestFieldRoundBlock:
			p.Round.BlockRound = varint
		case requestFieldRoundReject:
			p.Round.RejectRound = varint
		}
		return nil
	})
}

// ProposalClient holds the active role assignment and fires ordering traffic at
// it. Delivery is best effort: a peer that cannot be resolved or written to is
// logged and skipped, the round moves on without it
type ProposalClient struct {
	mu      sync.Mutex        // protects current and set
	current CurrentPeers      // the active role assignment
	set     bool              // false until the first UpdatePeers
	factory lib.ClientFactory // resolves connection handles per peer and topic
	metrics *lib.Metrics      // telemetry, may be nil
	log     lib.LoggerI
}

// NewProposalClient() creates a client with no role assignment yet
func NewProposalClient(factory lib.ClientFactory, metrics *lib.Metrics, log lib.LoggerI) *ProposalClient {
	return &ProposalClient{factory: factory, metrics: metrics, log: log}
}

// UpdatePeers() replaces the active role assignment
func (c *ProposalClient) UpdatePeers(peers CurrentPeers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current, c.set = peers, true
}

// snapshot() copies the assignment out of the lock's scope
func (c *ProposalClient) snapshot() (CurrentPeers, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current, c.set
}

// RequestProposal() sends a proposal request for the given round to the assigned
// issuer and returns without waiting; the proposal itself arrives later on the
// proposal topic
func (c *ProposalClient) RequestProposal(round consensus.Round) {
	peers, ok := c.snapshot()
	if !ok || peers[Issuer] == nil {
		c.log.Error(ErrNoIssuer().Error())
		return
	}
	issuer := peers[Issuer]
	bz, err := lib.Marshal(&ProposalRequest{Round: round})
	if err != nil {
		c.log.Error(err.Error())
		return
	}
	conn, err := c.factory.Resolve(issuer, lib.TopicProposal)
	if err != nil {
		c.log.Errorf("Resolving issuer %s failed: %s", issuer.ID(), err.Error())
		return
	}
	if err = conn.Submit(bz); err != nil {
		c.log.Errorf("Proposal request to %s failed: %s", issuer.ID(), err.Error())
		return
	}
	c.metrics.CountProposalRequest()
	c.log.Debugf("Requested proposal for round %s from %s", round.String(), issuer.ID())
}

// ForwardBatch() fans an opaque batch payload out to the assigned consumer
// peers. A peer holding several consumer roles receives the batch once
func (c *ProposalClient) ForwardBatch(batch []byte) {
	peers, ok := c.snapshot()
	if !ok {
		c.log.Debug("Dropping batch, no role assignment yet")
		return
	}
	sent := make(map[string]struct{}, roleCount)
	for _, peer := range peers.Consumers() {
		if peer == nil {
			continue
		}
		if _, dup := sent[string(peer.PublicKey)]; dup {
			continue
		}
		sent[string(peer.PublicKey)] = struct{}{}
		conn, err := c.factory.Resolve(peer, lib.TopicBatch)
		if err != nil {
			c.log.Errorf("Resolving consumer %s failed: %s", peer.ID(), err.Error())
			continue
		}
		if err = conn.Submit(batch); err != nil {
			c.log.Errorf("Batch to %s failed: %s", peer.ID(), err.Error())
		}
	}
}
