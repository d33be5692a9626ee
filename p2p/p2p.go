package p2p

import (
	"bytes"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/net/netutil"

	"github.com/lattice-network/lattice/lib"
	"github.com/lattice-network/lattice/lib/crypto"
)

const (
	transport   = "tcp"
	dialTimeout = time.Second
)

// InboundHandler consumes the payloads of one topic; handlers run on the
// receive goroutine of the delivering connection and must not block for long
type InboundHandler func(sender *lib.PeerAddress, payload []byte)

var _ lib.ClientFactory = &P2P{}

// P2P owns the listener and the active peer connections and routes inbound
// envelopes to the handler registered for their topic
type P2P struct {
	key      crypto.PrivateKeyI // identity key, signs the handshake challenge
	config   lib.P2PConfig
	peers    *PeerSet
	handlers struct {
		sync.RWMutex
		m map[lib.Topic]InboundHandler
	}
	listener net.Listener
	metrics  *lib.Metrics
	log      lib.LoggerI
}

// New() creates the p2p module; no sockets are opened until Start()
func New(key crypto.PrivateKeyI, config lib.P2PConfig, metrics *lib.Metrics, log lib.LoggerI) *P2P {
	p := &P2P{
		key:     key,
		config:  config,
		peers:   newPeerSet(),
		metrics: metrics,
		log:     log,
	}
	p.handlers.m = make(map[lib.Topic]InboundHandler)
	return p
}

// RegisterHandler() sets the consumer for a topic, replacing any previous one
func (p *P2P) RegisterHandler(topic lib.Topic, handler InboundHandler) {
	p.handlers.Lock()
	defer p.handlers.Unlock()
	p.handlers.m[topic] = handler
}

// Start() opens the listener and begins dialing the configured peers
func (p *P2P) Start() lib.ErrorI {
	ln, er := net.Listen(transport, p.config.ListenAddress)
	if er != nil {
		return ErrFailedListen(er)
	}
	p.listener = netutil.LimitListener(ln, p.config.MaxInbound+p.config.MaxOutbound)
	go p.listen()
	for _, s := range p.config.DialPeers {
		address, err := lib.NewPeerAddressFromString(s)
		if err != nil {
			p.log.Errorf("skipping dial peer %s: %s", s, err.Error())
			continue
		}
		go p.DialWithBackoff(address)
	}
	p.log.Infof("p2p listening on %s", p.config.ListenAddress)
	return nil
}

// listen() accepts inbound connections until the listener closes
func (p *P2P) listen() {
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			return
		}
		go func(conn net.Conn) {
			defer p.catchPanic()
			if err := p.AddPeer(conn, nil, false); err != nil {
				p.log.Warnf("inbound peer from %s rejected: %s", conn.RemoteAddr().String(), err.Error())
				_ = conn.Close()
			}
		}(conn)
	}
}

// Dial() connects to a peer by its address; already connected peers are a no-op
func (p *P2P) Dial(address *lib.PeerAddress) lib.ErrorI {
	if p.peers.Has(address.PublicKey) {
		return nil
	}
	conn, er := net.DialTimeout(transport, address.NetAddress, dialTimeout)
	if er != nil {
		return ErrFailedDial(er)
	}
	if err := p.AddPeer(conn, address, true); err != nil {
		_ = conn.Close()
		return err
	}
	return nil
}

// DialWithBackoff() retries Dial with exponential backoff until it succeeds
// or the configured elapsed time runs out
func (p *P2P) DialWithBackoff(address *lib.PeerAddress) {
	retry := backoff.NewExponentialBackOff()
	retry.MaxElapsedTime = time.Duration(p.config.DialBackoffMaxS) * time.Second
	if err := backoff.Retry(func() error { return p.Dial(address) }, retry); err != nil {
		p.log.Warnf("giving up dialing peer %s: %s", address.ID(), err.Error())
	}
}

// Resolve() returns a submission handle for the peer and topic, dialing the
// peer first if no live connection exists
func (p *P2P) Resolve(peer *lib.PeerAddress, topic lib.Topic) (lib.ClientConn, lib.ErrorI) {
	if peer == nil || len(peer.PublicKey) == 0 {
		return nil, lib.ErrNilPeer()
	}
	if topic >= lib.TopicInvalid {
		return nil, ErrUnknownTopic(topic)
	}
	if existing, err := p.peers.Get(peer.PublicKey); err == nil {
		return topicConn{conn: existing.conn, topic: topic}, nil
	}
	if err := p.Dial(peer); err != nil {
		return nil, ErrConnectionResolve(peer.ID(), err)
	}
	added, err := p.peers.Get(peer.PublicKey)
	if err != nil {
		return nil, ErrConnectionResolve(peer.ID(), err)
	}
	return topicConn{conn: added.conn, topic: topic}, nil
}

// AddPeer() upgrades a raw connection through the handshake and registers it;
// for outbound dials the authenticated identity must match the dialed one
func (p *P2P) AddPeer(conn net.Conn, expected *lib.PeerAddress, isOutbound bool) lib.ErrorI {
	connection, err := NewConnection(conn, p.key, p.config, p.route, p.metrics, p.log)
	if err != nil {
		return err
	}
	if expected != nil && !bytes.Equal(expected.PublicKey, connection.Address().PublicKey) {
		connection.Stop()
		return ErrMismatchIdentity(expected.ID(), connection.Address().ID())
	}
	address := connection.Address().Copy()
	if expected != nil && expected.NetAddress != "" {
		address.NetAddress = expected.NetAddress // keep the dialable address, not the ephemeral port
	}
	connection.onError = func(publicKey []byte, err error) {
		p.log.Warn(PeerError(publicKey, conn.RemoteAddr().String(), err))
		p.removePeer(publicKey, connection)
	}
	p.peers.Add(&Peer{conn: connection, address: address, isOutbound: isOutbound})
	connection.Start()
	p.updatePeerMetrics()
	direction := "inbound"
	if isOutbound {
		direction = "outbound"
	}
	p.log.Infof("added %s peer %s at %s", direction, address.ID(), conn.RemoteAddr().String())
	return nil
}

// removePeer() evicts the peer while it still owns the failed connection
func (p *P2P) removePeer(publicKey []byte, match *MultiConn) {
	p.peers.Remove(publicKey, match)
	p.updatePeerMetrics()
}

// route() hands an inbound envelope to the handler registered for its topic
func (p *P2P) route(sender *lib.PeerAddress, envelope *Envelope) {
	p.handlers.RLock()
	handler, ok := p.handlers.m[envelope.Topic]
	p.handlers.RUnlock()
	if !ok {
		p.log.Debugf("dropping %s message from %s: no handler", envelope.Topic.String(), sender.ID())
		return
	}
	handler(sender, envelope.Payload)
}

func (p *P2P) updatePeerMetrics() {
	total, inbound, outbound := p.peers.Counts()
	p.metrics.UpdatePeerMetrics(total, inbound, outbound)
}

// PublicKey() returns the identity key this node authenticates with
func (p *P2P) PublicKey() []byte { return p.key.PublicKey().Bytes() }

// Addr() returns the bound listen address; only valid after Start()
func (p *P2P) Addr() net.Addr { return p.listener.Addr() }

// Close() shuts down the listener and every live connection
func (p *P2P) Close() {
	if p.listener != nil {
		_ = p.listener.Close()
	}
	p.peers.Stop()
}

func (p *P2P) catchPanic() {
	if r := recover(); r != nil {
		p.log.Errorf("recovered inbound connection panic: %v", r)
	}
}
