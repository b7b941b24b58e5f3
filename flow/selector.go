// Package flow decides who speaks in a dynamic round and whether the
// conversation asks for another round.
package flow

import (
	"math/rand/v2"
	"sync"

	"github.com/lalomorales22/roundtable/roster"
)

// DefaultContinueThreshold is the percentage chance that a dynamic round is
// followed by another one.
const DefaultContinueThreshold = 70

// Options configures a Selector.
type Options struct {
	// Rand is the random source. Defaults to a PCG seeded from the runtime
	// source.
	Rand *rand.Rand
}

// Selector picks the speakers of a round and decides whether a cascade of
// dynamic rounds continues. It is safe for concurrent use.
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSelector creates a Selector.
func NewSelector(optFns ...func(o *Options)) *Selector {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Selector{rng: opts.Rand}
}

// FixedOrder returns every speaking agent of the roster in registration
// order. The summarizer is never part of it.
func (s *Selector) FixedOrder(r *roster.Roster) []string {
	return r.Names()
}

// Random selects the speakers of one dynamic round.
//
// A known last speaker is excluded unless it is the human. The remaining
// candidates are shuffled and the first k are returned, where k is 2 or 3
// for the first round and 1 or 2 afterwards.
func (s *Selector) Random(names []string, lastSpeaker, human string, round int) []string {
	candidates := make([]string, 0, len(names))
	for _, n := range names {
		if lastSpeaker != "" && lastSpeaker != human && n == lastSpeaker {
			continue
		}
		candidates = append(candidates, n)
	}

	if len(candidates) == 0 {
		return []string{}
	}

	s.mu.Lock()
	s.rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	k := 1 + s.rng.IntN(2)
	if round <= 1 {
		k = 2 + s.rng.IntN(2)
	}
	s.mu.Unlock()

	return candidates[:min(k, len(candidates))]
}

// Continue reports whether another dynamic round should follow round.
// It is always false once round reaches maxRounds; otherwise it succeeds
// with probability threshold/100.
func (s *Selector) Continue(round, maxRounds, threshold int) bool {
	if round >= maxRounds || threshold <= 0 {
		return false
	}

	s.mu.Lock()
	roll := 1 + s.rng.IntN(100)
	s.mu.Unlock()

	return roll <= threshold
}
