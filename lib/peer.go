package lib

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"
)

/* This file contains the peer identity shared by every module and the connection-handle contract */

// PeerAddress is the identity of a validator peer; equality is by public key only,
// the net address is dialing information that may change between rounds
type PeerAddress struct {
	PublicKey  []byte `json:"publicKey"`  // the peer's identity key
	NetAddress string `json:"netAddress"` // tcp host:port to dial
}

// NewPeerAddressFromString() parses the 'pubkey@host:port' dial format
func NewPeerAddressFromString(s string) (*PeerAddress, ErrorI) {
	parts := strings.Split(s, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, ErrInvalidNetAddress(s)
	}
	pub, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidNetAddress(s)
	}
	return &PeerAddress{PublicKey: pub, NetAddress: parts[1]}, nil
}

// Equals() compares two peer identities by public key
func (p *PeerAddress) Equals(other *PeerAddress) bool {
	if p == nil || other == nil {
		return false
	}
	return bytes.Equal(p.PublicKey, other.PublicKey)
}

// ID() returns the short hex identity used in logs
func (p *PeerAddress) ID() string {
	if p == nil || len(p.PublicKey) == 0 {
		return "<nil-peer>"
	}
	n := len(p.PublicKey)
	if n > 8 {
		n = 8
	}
	return hex.EncodeToString(p.PublicKey[:n])
}

// Copy() returns a deep copy of the peer address
func (p *PeerAddress) Copy() *PeerAddress {
	if p == nil {
		return nil
	}
	pub := make([]byte, len(p.PublicKey))
	copy(pub, p.PublicKey)
	return &PeerAddress{PublicKey: pub, NetAddress: p.NetAddress}
}

// AppendWire() encodes the peer address: 1 public_key, 2 net_address
func (p *PeerAddress) AppendWire(buf []byte) []byte {
	buf = AppendBytes(buf, 1, p.PublicKey)
	return AppendString(buf, 2, p.NetAddress)
}

// ParseWire() populates the peer address from encoded bytes
func (p *PeerAddress) ParseWire(data []byte) ErrorI {
	return RangeFields(data, func(num protowire.Number, _ protowire.Type, _ uint64, bz []byte) ErrorI {
		switch num {
		case 1:
			p.PublicKey = bz
		case 2:
			p.NetAddress = string(bz)
		}
		return nil
	})
}

// Topic separates the wire traffic of the node into independent logical streams
type Topic uint32

const (
	TopicVote     Topic = iota // consensus vote bundles and their acks
	TopicProposal              // proposal requests toward the issuer peer
	TopicBatch                 // opaque batch payloads toward consumer peers
	TopicInvalid
)

// String() returns the log name of the topic
func (t Topic) String() string {
	switch t {
	case TopicVote:
		return "vote"
	case TopicProposal:
		return "proposal"
	case TopicBatch:
		return "batch"
	default:
		return fmt.Sprintf("invalid(%d)", uint32(t))
	}
}

// ClientConn is a live submission handle to one peer for one topic; Submit queues
// the payload for delivery and never blocks the caller on network i/o
type ClientConn interface {
	Submit(payload []byte) ErrorI
}

// ClientFactory resolves connection handles to peers: 'resolve(peer, topic) ->
// handle or error'; the concrete transport behind it is a runtime collaborator
// of the consensus and ordering layers, not a compile-time dependency
type ClientFactory interface {
	Resolve(peer *PeerAddress, topic Topic) (ClientConn, ErrorI)
}
