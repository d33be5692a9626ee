package consensus

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lattice-network/lattice/lib"
)

// wire field numbers for the consensus messages; fixed, a protoc-generated
// reader of the same schema decodes these bytes unchanged
const (
	voteFieldBlockHash    = 1
	voteFieldProposalHash = 2
	voteFieldSignature    = 3
	voteFieldSigner       = 4
	voteFieldRoundBlock   = 5
	voteFieldRoundReject  = 6

	stateFieldVotes = 1
	ackFieldCode    = 1
)

var (
	_ lib.MessageI = &Vote{}
	_ lib.MessageI = &State{}
	_ lib.MessageI = &Ack{}
)

// AppendWire() encodes the vote fields
func (v *Vote) AppendWire(buf []byte) []byte {
	buf = lib.AppendBytes(buf, voteFieldBlockHash, v.BlockHash)
	buf = lib.AppendBytes(buf, voteFieldProposalHash, v.ProposalHash)
	buf = lib.AppendBytes(buf, voteFieldSignature, v.Signature)
	buf = lib.AppendBytes(buf, voteFieldSigner, v.SignerPublicKey)
	buf = lib.AppendUint(buf, voteFieldRoundBlock, v.Round.BlockRound)
	return lib.AppendUint(buf, voteFieldRoundReject, v.Round.RejectRound)
}

// ParseWire() populates the vote from encoded bytes
func (v *Vote) ParseWire(data []byte) lib.ErrorI {
	return lib.RangeFields(data, func(num protowire.Number, _ protowire.Type, varint uint64, bz []byte) lib.ErrorI {
		switch num {
		case voteFieldBlockHash:
			v.BlockHash = bz
		case voteFieldProposalHash:
			v.ProposalHash = bz
		case voteFieldSignature:
			v.Signature = bz
		case voteFieldSigner:
			v.SignerPublicKey = bz
		case voteFieldRoundBlock:
			v.Round.BlockRound = varint
		case voteFieldRoundReject:
			v.Round.RejectRound = varint
		}
		return nil
	})
}

// AppendWire() encodes the bundle as repeated embedded votes
func (s *State) AppendWire(buf []byte) []byte {
	for _, vote := range s.Votes {
		buf = lib.AppendEmbedded(buf, stateFieldVotes, vote)
	}
	return buf
}

// ParseWire() populates the bundle from encoded bytes; an embedded vote that
// fails to decode is dropped so one corrupt element cannot poison the batch
func (s *State) ParseWire(data []byte) lib.ErrorI {
	return lib.RangeFields(data, func(num protowire.Number, _ protowire.Type, _ uint64, bz []byte) lib.ErrorI {
		if num != stateFieldVotes {
			return nil
		}
		vote := new(Vote)
		if err := vote.ParseWire(bz); err != nil {
			return nil
		}
		s.Votes = append(s.Votes, vote)
		return nil
	})
}

// AppendWire() encodes the ack code
func (a *Ack) AppendWire(buf []byte) []byte {
	return lib.AppendUint(buf, ackFieldCode, uint64(a.Code))
}

// ParseWire() populates the ack from encoded bytes
func (a *Ack) ParseWire(data []byte) lib.ErrorI {
	return lib.RangeFields(data, func(num protowire.Number, _ protowire.Type, varint uint64, _ []byte) lib.ErrorI {
		if num == ackFieldCode {
			a.Code = uint32(varint)
		}
		return nil
	})
}

// IsAckShaped() tells a vote-topic payload's kind apart without decoding it: a
// non-empty State always opens with the length-delimited votes field, an ack is
// empty or opens with the code varint. Both ends answering only State-shaped
// payloads is what keeps the ack exchange from echoing forever
func IsAckShaped(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	num, typ, n := protowire.ConsumeTag(data)
	return n >= 0 && num == ackFieldCode && typ == protowire.VarintType
}
