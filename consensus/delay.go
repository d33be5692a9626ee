package consensus

import "time"

const delayIncrementCap = time.Second

// OutcomeDelay paces reject rounds: repeated failed outcomes grow a pre-round
// sleep so a stalled validator set backs off instead of spinning, and any
// commit clears it. Owned by the controller goroutine, no internal locking
type OutcomeDelay struct {
	max       time.Duration // longest allowed pre-round delay
	increment time.Duration // growth step, applied every second failed outcome
	current   time.Duration // delay returned for the next failed outcome
	failures  int           // consecutive reject/nothing outcomes seen
}

// NewOutcomeDelay() builds the pacer; the growth step is the configured maximum
// capped at one second
func NewOutcomeDelay(maxRoundsDelay time.Duration) *OutcomeDelay {
	increment := maxRoundsDelay
	if increment > delayIncrementCap {
		increment = delayIncrementCap
	}
	return &OutcomeDelay{max: maxRoundsDelay, increment: increment}
}

// Next() advances the pacer with the latest outcome and returns how long the
// caller should wait before acting on it
func (d *OutcomeDelay) Next(outcome SyncOutcome) time.Duration {
	if outcome == Commit {
		d.failures, d.current = 0, 0
		return 0
	}
	d.failures++
	if d.current < d.max && d.failures%2 == 0 {
		d.current += d.increment
		if d.current > d.max {
			d.current = d.max
		}
	}
	return d.current
}
