package consensus

/*
	ROUND CYCLE
		- A round is (BlockRound, RejectRound): how many blocks the ledger has finalized
		  and how many attempts the current slot has burned
		- Commit  -> (BlockRound+1, 0) a fresh slot, reject counter cleared
		- Reject  -> (BlockRound, RejectRound+1)
		- Nothing -> (BlockRound, RejectRound+1) an empty decision burns an attempt too

	VOTE DISSEMINATION
		- Votes travel in bundles (State); every vote in a bundle must share one round
		  identity: the round numbers plus the block/proposal hash pair
		- The receive boundary is forgiving per vote and strict per bundle: malformed
		  votes are skipped one by one, a bundle that ends up empty or that mixes
		  round identities is rejected whole
		- Delivery targets at most one local subscriber; with none registered the
		  bundle is dropped and that is an error only locally - toward the remote
		  peer the submission still succeeded

	ACKS
		- AckOK(0)          accepted, or structurally valid with no live subscriber
		- AckEmptyBundle(1) no decodable votes survived
		- AckMixedRounds(2) votes spanned more than one round identity
		- Senders never wait on acks; the round timeout above this layer is the
		  retransmission backstop

	PACING
		- Repeated failed outcomes grow a pre-round delay by min(max, 1s) on every
		  second consecutive failure, up to the configured cap
		- Any commit resets the delay to zero

	NOTES:
		- Signature verification of votes belongs to the voting core above this
		  layer; the transport checks shape, not cryptography
		- Vote traffic doubles as the liveness heartbeat, there is no separate ping
*/
