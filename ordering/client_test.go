package ordering

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lattice-network/lattice/consensus"
	"github.com/lattice-network/lattice/lib"
)

// routeConn records payloads submitted toward one resolved route
type routeConn struct {
	payloads [][]byte
}

func (c *routeConn) Submit(payload []byte) lib.ErrorI {
	c.payloads = append(c.payloads, payload)
	return nil
}

// routeFactory hands out one recording connection per peer and topic pair
type routeFactory struct {
	routes map[string]*routeConn
	err    lib.ErrorI
}

func newRouteFactory() *routeFactory {
	return &routeFactory{routes: make(map[string]*routeConn)}
}

func (f *routeFactory) Resolve(peer *lib.PeerAddress, topic lib.Topic) (lib.ClientConn, lib.ErrorI) {
	if f.err != nil {
		return nil, f.err
	}
	key := topic.String() + "/" + string(peer.PublicKey)
	conn, ok := f.routes[key]
	if !ok {
		conn = &routeConn{}
		f.routes[key] = conn
	}
	return conn, nil
}

func (f *routeFactory) route(peer *lib.PeerAddress, topic lib.Topic) *routeConn {
	return f.routes[topic.String()+"/"+string(peer.PublicKey)]
}

func newTestClient(factory lib.ClientFactory) *ProposalClient {
	return NewProposalClient(factory, nil, lib.NewNullLogger())
}

func TestRequestProposalWireForm(t *testing.T) {
	peers := makeTestPeers(5)
	factory := newRouteFactory()
	client := newTestClient(factory)
	var assignment CurrentPeers
	assignment[Issuer] = peers[3]
	client.UpdatePeers(assignment)
	round := consensus.Round{BlockRound: 4, RejectRound: 2}
	// execute the function call
	client.RequestProposal(round)
	// the issuer received exactly one request on the proposal topic
	conn := factory.route(peers[3], lib.TopicProposal)
	require.NotNil(t, conn)
	require.Len(t, conn.payloads, 1)
	// the payload decodes back to the requested round
	got := new(ProposalRequest)
	require.NoError(t, lib.Unmarshal(conn.payloads[0], got))
	require.Equal(t, round, got.Round)
}

func TestRequestProposalWithoutAssignment(t *testing.T) {
	tests := []struct {
		name   string
		detail string
		setup  func(c *ProposalClient)
	}{
		{
			name:   "no assignment yet",
			detail: "a request before the first role table is dropped",
			setup:  func(c *ProposalClient) {},
		},
		{
			name:   "assignment without an issuer",
			detail: "a table whose issuer slot is empty cannot be requested from",
			setup:  func(c *ProposalClient) { c.UpdatePeers(CurrentPeers{}) },
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			factory := newRouteFactory()
			client := newTestClient(factory)
			test.setup(client)
			// execute the function call
			client.RequestProposal(consensus.Round{BlockRound: 1, RejectRound: 0})
			// nothing was resolved or sent
			require.Empty(t, factory.routes, test.detail)
		})
	}
}

func TestUpdatePeersReplacesAssignment(t *testing.T) {
	peers := makeTestPeers(2)
	factory := newRouteFactory()
	client := newTestClient(factory)
	var first, second CurrentPeers
	first[Issuer] = peers[0]
	second[Issuer] = peers[1]
	client.UpdatePeers(first)
	client.UpdatePeers(second)
	client.RequestProposal(consensus.Round{BlockRound: 8, RejectRound: 0})
	// only the newest issuer is addressed
	require.Nil(t, factory.route(peers[0], lib.TopicProposal))
	require.NotNil(t, factory.route(peers[1], lib.TopicProposal))
}

func TestForwardBatchDeduplicates(t *testing.T) {
	peers := makeTestPeers(3)
	factory := newRouteFactory()
	client := newTestClient(factory)
	// one peer holds two consumer roles, the issuer is a consumer too
	var assignment CurrentPeers
	assignment[RejectRejectConsumer] = peers[0]
	assignment[RejectCommitConsumer] = peers[1]
	assignment[CommitRejectConsumer] = peers[2]
	assignment[CommitCommitConsumer] = peers[0]
	assignment[Issuer] = peers[1]
	client.UpdatePeers(assignment)
	batch := []byte("opaque batch payload")
	// execute the function call
	client.ForwardBatch(batch)
	// every distinct consumer got the batch exactly once
	for _, peer := range peers {
		conn := factory.route(peer, lib.TopicBatch)
		require.NotNil(t, conn)
		require.Len(t, conn.payloads, 1, "peer %s", peer.ID())
		require.Equal(t, batch, conn.payloads[0])
	}
	// forwarding touched only the batch topic, the issuer route stayed idle
	require.Nil(t, factory.route(peers[1], lib.TopicProposal))
}

func TestForwardBatchWithoutAssignment(t *testing.T) {
	factory := newRouteFactory()
	client := newTestClient(factory)
	client.ForwardBatch([]byte("early batch"))
	require.Empty(t, factory.routes)
}

func TestForwardBatchSurvivesResolutionFailure(t *testing.T) {
	peers := makeTestPeers(2)
	factory := newRouteFactory()
	factory.err = lib.ErrNilPeer()
	client := newTestClient(factory)
	var assignment CurrentPeers
	assignment[RejectRejectConsumer] = peers[0]
	assignment[RejectCommitConsumer] = peers[1]
	client.UpdatePeers(assignment)
	// all resolutions fail; the call logs and returns without sending
	client.ForwardBatch([]byte("batch"))
	require.Empty(t, factory.routes)
}
