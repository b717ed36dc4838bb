package raft

import (
	"math/rand"
	"time"
)

// ElectionTimeoutFunc returns the next randomized election interval. The
// source is external and injectable (spec §5, §9): a real server uses a
// PRNG, while the simulator supplies a deterministic or seeded sequence so
// runs are reproducible.
type ElectionTimeoutFunc func() time.Duration

// RandomElectionTimeout returns an ElectionTimeoutFunc drawing uniformly
// from [minInterval, maxInterval). maxInterval must be strictly greater
// than the heartbeat interval (spec §5).
func RandomElectionTimeout(minInterval, maxInterval time.Duration) ElectionTimeoutFunc {
	span := int64(maxInterval - minInterval)
	if span <= 0 {
		return func() time.Duration { return minInterval }
	}
	return func() time.Duration {
		return minInterval + time.Duration(rand.Int63n(span))
	}
}
