package consensus

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lattice-network/lattice/lib"
)

func newTestVote(signer string, round Round) *Vote {
	return &Vote{
		BlockHash:       []byte("block-hash-" + signer),
		ProposalHash:    []byte("proposal-hash"),
		Signature:       []byte("signature-" + signer),
		SignerPublicKey: []byte("signer-" + signer),
		Round:           round,
	}
}

func TestStateRoundTrip(t *testing.T) {
	round := Round{BlockRound: 12, RejectRound: 3}
	tests := []struct {
		name   string
		detail string
		votes  VoteBundle
	}{
		{
			name:   "single vote",
			detail: "one vote survives the round trip intact",
			votes:  VoteBundle{newTestVote("a", round)},
		},
		{
			name:   "ordered bundle",
			detail: "multiple votes keep their order",
			votes:  VoteBundle{newTestVote("a", round), newTestVote("b", round), newTestVote("c", round)},
		},
		{
			name:   "optional proposal hash",
			detail: "an empty proposal hash is preserved as empty",
			votes: VoteBundle{{
				BlockHash:       []byte("block-hash"),
				Signature:       []byte("signature"),
				SignerPublicKey: []byte("signer"),
				Round:           Round{BlockRound: 1},
			}},
		},
		{
			name:   "zero round",
			detail: "the zero round encodes to nothing and decodes back to zero",
			votes: VoteBundle{{
				BlockHash:       []byte("block-hash"),
				Signature:       []byte("signature"),
				SignerPublicKey: []byte("signer"),
			}},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// serialize the bundle
			bz, err := lib.Marshal(&State{Votes: test.votes})
			require.NoError(t, err)
			// deserialize into a fresh state
			got := new(State)
			require.NoError(t, lib.Unmarshal(bz, got))
			// compare got vs expected, order included
			require.Len(t, got.Votes, len(test.votes))
			for i, vote := range test.votes {
				require.Equal(t, vote.BlockHash, got.Votes[i].BlockHash)
				require.Equal(t, vote.ProposalHash, got.Votes[i].ProposalHash)
				require.Equal(t, vote.Signature, got.Votes[i].Signature)
				require.Equal(t, vote.SignerPublicKey, got.Votes[i].SignerPublicKey)
				require.Equal(t, vote.Round, got.Votes[i].Round)
			}
		})
	}
}

func TestStateParseSkipsCorruptVote(t *testing.T) {
	round := Round{BlockRound: 2, RejectRound: 1}
	// a good vote followed by an embedded element that is not a decodable vote
	good := newTestVote("a", round)
	bz := good.AppendWire(nil)
	buf := protowire.AppendTag(nil, stateFieldVotes, protowire.BytesType)
	buf = protowire.AppendBytes(buf, bz)
	buf = protowire.AppendTag(buf, stateFieldVotes, protowire.BytesType)
	buf = protowire.AppendBytes(buf, []byte{0xff}) // truncated tag, unparseable
	// parse the state
	got := new(State)
	require.NoError(t, got.ParseWire(buf))
	// only the decodable vote survives
	require.Len(t, got.Votes, 1)
	require.Equal(t, good.SignerPublicKey, got.Votes[0].SignerPublicKey)
}

func TestAckRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		detail string
		code   uint32
	}{
		{
			name:   "ok",
			detail: "the zero code encodes to an empty buffer and still decodes",
			code:   AckOK,
		},
		{
			name:   "empty bundle",
			detail: "content rejection code survives the round trip",
			code:   AckEmptyBundle,
		},
		{
			name:   "mixed rounds",
			detail: "content rejection code survives the round trip",
			code:   AckMixedRounds,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// serialize the ack
			bz, err := lib.Marshal(&Ack{Code: test.code})
			require.NoError(t, err)
			// deserialize into a fresh ack
			got := new(Ack)
			require.NoError(t, lib.Unmarshal(bz, got))
			// compare got vs expected
			require.Equal(t, test.code, got.Code)
		})
	}
}

func TestAckCodeFor(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		err      lib.ErrorI
		expected uint32
	}{
		{
			name:     "nil error",
			detail:   "acceptance reports ok",
			err:      nil,
			expected: AckOK,
		},
		{
			name:     "empty bundle",
			detail:   "the empty bundle rejection maps to its own code",
			err:      ErrEmptyVoteBundle(),
			expected: AckEmptyBundle,
		},
		{
			name:     "mixed rounds",
			detail:   "the mixed round rejection maps to its own code",
			err:      ErrMixedRoundBundle(),
			expected: AckMixedRounds,
		},
		{
			name:     "structural failure",
			detail:   "an undecodable submission left no usable votes",
			err:      lib.ErrUnmarshal(protowire.ParseError(-1)),
			expected: AckEmptyBundle,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// execute the function call
			require.Equal(t, test.expected, AckCodeFor(test.err))
		})
	}
}
