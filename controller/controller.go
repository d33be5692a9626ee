package controller

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/lattice-network/lattice/consensus"
	"github.com/lattice-network/lattice/lib"
	"github.com/lattice-network/lattice/lib/crypto"
	"github.com/lattice-network/lattice/ordering"
	"github.com/lattice-network/lattice/p2p"
)

/* This file contains the node controller: one goroutine owns the commit hash window
and turns synchronizer decisions into role assignments and proposal requests */

// eventQueueSize bounds both notification channels; producers block once the
// controller falls this far behind
const eventQueueSize = 64

// the tags that derive the window seeds when the config provides no digests; a
// fresh ledger has no blocks before the first one, so every validator derives
// the identical stand-ins
const (
	firstSeedTag  = "lattice/pre-genesis/0"
	secondSeedTag = "lattice/pre-genesis/1"
)

// Callbacks are the application sinks for inbound ordering traffic; nil entries
// drop the traffic after the debug log
type Callbacks struct {
	OnBatch           func(sender *lib.PeerAddress, batch []byte)          // a batch arrived for a consumer role this node holds
	OnProposalRequest func(sender *lib.PeerAddress, round consensus.Round) // a peer asked this node, as issuer, for its proposal
}

// Controller acts as the 'manager' of the modules of the validator: it feeds
// commit hashes through the sliding window, paces and executes synchronizer
// decisions, and bridges the wire topics to the consensus layer above
type Controller struct {
	P2P        *p2p.P2P
	Transport  *consensus.VoteTransport
	Client     *ordering.ProposalClient
	PublicKey  []byte
	PrivateKey crypto.PrivateKeyI
	Config     lib.Config

	selector *ordering.RoundPeerSelector // role assignment per decision
	window   *ordering.TripleZip         // sliding triple over the commit hashes
	latest   *ordering.LatestTriple      // newest completed window
	delay    *consensus.OutcomeDelay     // reject-round pacing

	commitCh  chan ordering.BlockHash   // finalized hashes, in commit order
	eventCh   chan *consensus.SyncEvent // synchronizer decisions, in emission order
	quit      chan struct{}
	stopOnce  sync.Once
	callbacks Callbacks

	metrics *lib.Metrics
	log     lib.LoggerI
}

// New() creates a new instance of a Controller, this is the entry point when
// initializing a validator node
func New(c lib.Config, key crypto.PrivateKeyI, metrics *lib.Metrics, log lib.LoggerI) (*Controller, lib.ErrorI) {
	seeds, err := initialWindow(c.OrderingConfig)
	if err != nil {
		return nil, err
	}
	node := p2p.New(key, c.P2PConfig, metrics, log)
	return &Controller{
		P2P:        node,
		Transport:  consensus.NewVoteTransport(node, metrics, log),
		Client:     ordering.NewProposalClient(node, metrics, log),
		PublicKey:  key.PublicKey().Bytes(),
		PrivateKey: key,
		Config:     c,
		selector:   ordering.NewRoundPeerSelector(log),
		window:     ordering.NewTripleZip(seeds),
		latest:     new(ordering.LatestTriple),
		delay:      consensus.NewOutcomeDelay(time.Duration(c.MaxRoundsDelayMS) * time.Millisecond),
		commitCh:   make(chan ordering.BlockHash, eventQueueSize),
		eventCh:    make(chan *consensus.SyncEvent, eventQueueSize),
		quit:       make(chan struct{}),
		metrics:    metrics,
		log:        log,
	}, nil
}

// WithCallbacks() sets the application sinks; must be called before Start()
func (c *Controller) WithCallbacks(callbacks Callbacks) { c.callbacks = callbacks }

// Start() begins the Controller service
func (c *Controller) Start() lib.ErrorI {
	// wire the inbound topics before any peer can connect
	c.P2P.RegisterHandler(lib.TopicVote, c.onVoteMessage)
	c.P2P.RegisterHandler(lib.TopicProposal, c.onProposalRequest)
	c.P2P.RegisterHandler(lib.TopicBatch, c.onBatch)
	if err := c.P2P.Start(); err != nil {
		return err
	}
	go c.run()
	return nil
}

// Stop() terminates the Controller service
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
		c.Transport.Stop()
		c.P2P.Close()
		c.metrics.Stop()
	})
}

// NotifyCommit() feeds one finalized block hash into the controller; callers
// must deliver hashes in commit order
func (c *Controller) NotifyCommit(hash ordering.BlockHash) {
	select {
	case c.commitCh <- hash:
	case <-c.quit:
	}
}

// NotifyDecision() feeds one synchronizer decision into the controller
func (c *Controller) NotifyDecision(event *consensus.SyncEvent) {
	select {
	case c.eventCh <- event:
	case <-c.quit:
	}
}

// SubmitBatch() fans a locally originated batch out to the consumer peers of
// the upcoming rounds
func (c *Controller) SubmitBatch(batch []byte) {
	c.Client.ForwardBatch(batch)
}

// run() drains both notification streams on a single goroutine; every piece of
// round state lives here, so a commit and a decision can never observe each
// other half-applied
func (c *Controller) run() {
	for {
		// commits drain first so a decision never observes a window that the
		// commit delivered just before it should have refreshed
		select {
		case hash := <-c.commitCh:
			c.handleCommit(hash)
			continue
		default:
		}
		select {
		case hash := <-c.commitCh:
			c.handleCommit(hash)
		case event := <-c.eventCh:
			c.handleDecision(event)
		case <-c.quit:
			return
		}
	}
}

// handleCommit() slides the hash window forward and caches the completed triple
func (c *Controller) handleCommit(hash ordering.BlockHash) {
	c.latest.Store(c.window.Push(hash))
	c.metrics.CountTripleFormed()
	c.log.Debug("Commit hash received; window advanced")
}

// handleDecision() paces the round, snapshots the window, derives the role
// table and fires the proposal request for the round being entered
func (c *Controller) handleDecision(event *consensus.SyncEvent) {
	// failed rounds back off before the next attempt; a commit proceeds at once
	if wait := c.delay.Next(event.Outcome); wait > 0 {
		select {
		case <-time.After(wait):
		case <-c.quit:
			return
		}
	}
	triple, ok := c.latest.Load()
	if !ok {
		c.metrics.CountEventSkipped()
		c.log.Debugf("Skipping %s decision for round %s: no commit hashes yet",
			event.Outcome.String(), event.Round.String())
		return
	}
	peers, next, err := c.selector.SelectPeers(event, triple)
	if err != nil {
		// a decision without a validator set cannot be recovered from
		c.log.Fatalf("Peer selection for round %s failed: %s", next.String(), err.Error())
		return
	}
	c.Client.UpdatePeers(peers)
	c.Client.RequestProposal(next)
	c.metrics.UpdateRoundMetrics(next.BlockRound, next.RejectRound)
}

// onVoteMessage() handles one vote-topic payload: a vote state submission is
// answered with an ack, an inbound ack just closes its loop at a debug line
func (c *Controller) onVoteMessage(sender *lib.PeerAddress, payload []byte) {
	if consensus.IsAckShaped(payload) {
		ack := new(consensus.Ack)
		if err := lib.Unmarshal(payload, ack); err != nil {
			c.log.Debugf("Undecodable ack from %s", sender.ID())
			return
		}
		c.log.Debugf("Vote ack %d from %s", ack.Code, sender.ID())
		return
	}
	_, err := c.Transport.Receive(payload)
	c.sendAck(sender, consensus.AckCodeFor(err))
}

// sendAck() reports the submission outcome back to the sender on the vote topic
func (c *Controller) sendAck(to *lib.PeerAddress, code uint32) {
	bz, err := lib.Marshal(&consensus.Ack{Code: code})
	if err != nil {
		c.log.Error(err.Error())
		return
	}
	conn, err := c.P2P.Resolve(to, lib.TopicVote)
	if err != nil {
		c.log.Warnf("Unable to ack %s: %s", to.ID(), err.Error())
		return
	}
	if err = conn.Submit(bz); err != nil {
		c.log.Warnf("Ack to %s failed: %s", to.ID(), err.Error())
	}
}

// onProposalRequest() decodes an issuer request and hands it to the application
func (c *Controller) onProposalRequest(sender *lib.PeerAddress, payload []byte) {
	request := new(ordering.ProposalRequest)
	if err := lib.Unmarshal(payload, request); err != nil {
		c.log.Warnf("Undecodable proposal request from %s", sender.ID())
		return
	}
	c.log.Debugf("Proposal request for round %s from %s", request.Round.String(), sender.ID())
	if c.callbacks.OnProposalRequest != nil {
		c.callbacks.OnProposalRequest(sender, request.Round)
	}
}

// onBatch() hands an inbound batch to the application
func (c *Controller) onBatch(sender *lib.PeerAddress, payload []byte) {
	c.log.Debugf("Batch of %d byte(s) from %s", len(payload), sender.ID())
	if c.callbacks.OnBatch != nil {
		c.callbacks.OnBatch(sender, payload)
	}
}

// initialWindow() decodes the configured seed digests, deriving the tagged
// defaults when the config leaves them out
func initialWindow(c lib.OrderingConfig) (seeds [2]ordering.BlockHash, err lib.ErrorI) {
	if len(c.InitialHashes) == 0 {
		seeds[0] = crypto.Hash([]byte(firstSeedTag))
		seeds[1] = crypto.Hash([]byte(secondSeedTag))
		return
	}
	if len(c.InitialHashes) != 2 {
		return seeds, lib.ErrWrongInitialHashCount(len(c.InitialHashes))
	}
	for i, digest := range c.InitialHashes {
		raw, e := hex.DecodeString(digest)
		if e != nil || len(raw) != crypto.HashSize {
			return seeds, lib.ErrBadInitialHash(digest)
		}
		seeds[i] = raw
	}
	return seeds, nil
}
