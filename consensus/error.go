package consensus

import (
	"fmt"

	"github.com/lattice-network/lattice/lib"
)

func ErrEmptyVoteBundle() lib.ErrorI {
	return lib.NewError(lib.CodeEmptyVoteBundle, lib.ConsensusModule, "vote bundle has no valid votes")
}

func ErrMixedRoundBundle() lib.ErrorI {
	return lib.NewError(lib.CodeMixedRounds, lib.ConsensusModule, "vote bundle spans more than one round")
}

func ErrNoSubscriber() lib.ErrorI {
	return lib.NewError(lib.CodeNoSubscriber, lib.ConsensusModule, "no live subscriber to deliver votes to")
}

func ErrMalformedVote(reason string) lib.ErrorI {
	return lib.NewError(lib.CodeMalformedVote, lib.ConsensusModule, fmt.Sprintf("malformed vote: %s", reason))
}
