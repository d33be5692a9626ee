package consensus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOutcomeDelay(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		max      time.Duration
		sequence []SyncOutcome
		expected []time.Duration
	}{
		{
			name:     "growth every second failure",
			detail:   "the delay grows by the increment on every second consecutive failed outcome",
			max:      3 * time.Second,
			sequence: []SyncOutcome{Reject, Reject, Nothing, Reject},
			expected: []time.Duration{0, time.Second, time.Second, 2 * time.Second},
		},
		{
			name:     "capped at the maximum",
			detail:   "once the cap is reached further failures keep returning it",
			max:      2 * time.Second,
			sequence: []SyncOutcome{Reject, Reject, Reject, Reject, Reject, Reject},
			expected: []time.Duration{0, time.Second, time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second},
		},
		{
			name:     "commit resets",
			detail:   "any commit clears the delay and the failure streak",
			max:      3 * time.Second,
			sequence: []SyncOutcome{Reject, Reject, Commit, Reject, Reject},
			expected: []time.Duration{0, time.Second, 0, 0, time.Second},
		},
		{
			name:     "increment capped by small maximum",
			detail:   "a maximum under one second becomes the increment itself",
			max:      500 * time.Millisecond,
			sequence: []SyncOutcome{Nothing, Nothing, Nothing, Nothing},
			expected: []time.Duration{0, 500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond},
		},
		{
			name:     "commit streak stays zero",
			detail:   "commits alone never build a delay",
			max:      3 * time.Second,
			sequence: []SyncOutcome{Commit, Commit, Commit},
			expected: []time.Duration{0, 0, 0},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			delay := NewOutcomeDelay(test.max)
			// feed the outcome sequence and compare each returned delay
			for i, outcome := range test.sequence {
				require.Equal(t, test.expected[i], delay.Next(outcome), "step %d", i)
			}
		})
	}
}
