package p2p

import (
	"sync"

	"github.com/lattice-network/lattice/lib"
)

// Peer is one live authenticated connection together with its direction
type Peer struct {
	conn       *MultiConn       // the connection carrying all topics
	address    *lib.PeerAddress // authenticated identity and remote address
	isOutbound bool             // true when this node dialed the peer
}

// PeerSet maintains the live connections keyed by peer public key
type PeerSet struct {
	sync.RWMutex
	m map[string]*Peer // public key -> peer
}

func newPeerSet() *PeerSet {
	return &PeerSet{m: make(map[string]*Peer)}
}

// Add() introduces a peer to the set; a second connection for the same
// identity replaces the first and the replaced connection is stopped
func (ps *PeerSet) Add(p *Peer) {
	ps.Lock()
	defer ps.Unlock()
	pubKey := string(p.address.PublicKey)
	if old, found := ps.m[pubKey]; found {
		old.conn.Stop()
	}
	ps.m[pubKey] = p
}

// Get() returns the peer holding a live connection for the public key
func (ps *PeerSet) Get(publicKey []byte) (*Peer, lib.ErrorI) {
	ps.RLock()
	defer ps.RUnlock()
	peer, ok := ps.m[string(publicKey)]
	if !ok {
		return nil, ErrPeerNotFound((&lib.PeerAddress{PublicKey: publicKey}).ID())
	}
	return peer, nil
}

// Remove() evicts the peer, but only while it still owns the given connection;
// a replacement connection added in the meantime stays untouched
func (ps *PeerSet) Remove(publicKey []byte, match *MultiConn) {
	ps.Lock()
	defer ps.Unlock()
	pubKey := string(publicKey)
	peer, ok := ps.m[pubKey]
	if !ok {
		return
	}
	if match != nil && peer.conn != match {
		return
	}
	peer.conn.Stop()
	delete(ps.m, pubKey)
}

// Has() returns whether the set holds a connection for the public key
func (ps *PeerSet) Has(publicKey []byte) bool {
	ps.RLock()
	defer ps.RUnlock()
	_, found := ps.m[string(publicKey)]
	return found
}

// Counts() returns the total, inbound, and outbound connection counts
func (ps *PeerSet) Counts() (total, inbound, outbound int) {
	ps.RLock()
	defer ps.RUnlock()
	for _, p := range ps.m {
		if p.isOutbound {
			outbound++
		} else {
			inbound++
		}
	}
	total = len(ps.m)
	return
}

// Stop() stops every connection and empties the set
func (ps *PeerSet) Stop() {
	ps.Lock()
	defer ps.Unlock()
	for _, p := range ps.m {
		p.conn.Stop()
	}
	ps.m = make(map[string]*Peer)
}
