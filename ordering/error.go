package ordering

import "github.com/lattice-network/lattice/lib"

func ErrEmptyPeerList() lib.ErrorI {
	return lib.NewError(lib.CodeEmptyPeerList, lib.OrderingModule, "ledger peer list is empty")
}

func ErrNoIssuer() lib.ErrorI {
	return lib.NewError(lib.CodeNoIssuer, lib.OrderingModule, "no issuer assigned for the current round")
}
