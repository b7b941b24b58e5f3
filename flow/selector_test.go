package flow

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/lalomorales22/roundtable/client"
	"github.com/lalomorales22/roundtable/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func seeded(seed uint64) *Selector {
	return NewSelector(func(o *Options) { o.Rand = rand.New(rand.NewPCG(seed, seed)) })
}

func TestSelector_FixedOrder(t *testing.T) {
	r := testutil.NewRosterBuilder(client.NewMock()).
		Agents("A", "B", "C").
		Summarizer("S").
		Build(t)

	assert.Equal(t, []string{"A", "B", "C"}, NewSelector().FixedOrder(r))
}

func TestSelector_Random(t *testing.T) {
	names := []string{"A", "B", "C", "D"}

	t.Run("first round picks two or three", func(t *testing.T) {
		s := seeded(1)
		for i := 0; i < 50; i++ {
			got := s.Random(names, "", "User", 1)
			assert.GreaterOrEqual(t, len(got), 2)
			assert.LessOrEqual(t, len(got), 3)
		}
	})

	t.Run("later rounds pick one or two", func(t *testing.T) {
		s := seeded(2)
		for i := 0; i < 50; i++ {
			got := s.Random(names, "", "User", 3)
			assert.GreaterOrEqual(t, len(got), 1)
			assert.LessOrEqual(t, len(got), 2)
		}
	})

	t.Run("human last speaker is not excluded", func(t *testing.T) {
		s := seeded(3)
		got := s.Random([]string{"A"}, "User", "User", 1)
		assert.Equal(t, []string{"A"}, got)
	})

	t.Run("only candidate was last speaker", func(t *testing.T) {
		got := seeded(4).Random([]string{"A"}, "A", "User", 2)
		require.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := []string{"A", "B", "C"}
		seeded(5).Random(in, "B", "User", 1)
		assert.Equal(t, []string{"A", "B", "C"}, in)
	})
}

func TestSelector_RandomProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		names := rapid.SliceOfNDistinct(rapid.StringMatching(`[A-Z][a-z]{1,6}`), 0, 8, rapid.ID[string]).Draw(t, "names")
		last := rapid.SampledFrom(append([]string{"", "User"}, names...)).Draw(t, "last")
		round := rapid.IntRange(1, 10).Draw(t, "round")
		seed := rapid.Uint64().Draw(t, "seed")

		got := seeded(seed).Random(names, last, "User", round)

		if last != "" && last != "User" && slices.Contains(got, last) {
			t.Fatalf("last speaker %q selected: %v", last, got)
		}
		seen := map[string]bool{}
		for _, n := range got {
			if seen[n] {
				t.Fatalf("duplicate speaker %q", n)
			}
			seen[n] = true
			if !slices.Contains(names, n) {
				t.Fatalf("unknown speaker %q", n)
			}
		}

		hi := 2
		if round == 1 {
			hi = 3
		}
		if len(got) > hi {
			t.Fatalf("selected %d speakers in round %d", len(got), round)
		}
	})
}

func TestSelector_Continue(t *testing.T) {
	s := seeded(7)

	for i := 0; i < 20; i++ {
		assert.False(t, s.Continue(5, 5, 100))
		assert.False(t, s.Continue(6, 5, 100))
		assert.False(t, s.Continue(1, 5, 0))
		assert.True(t, s.Continue(1, 5, 100))
	}

	rapid.Check(t, func(t *rapid.T) {
		max := rapid.IntRange(1, 20).Draw(t, "max")
		threshold := rapid.IntRange(0, 100).Draw(t, "threshold")
		if seeded(rapid.Uint64().Draw(t, "seed")).Continue(max, max, threshold) {
			t.Fatalf("continued at max round %d", max)
		}
	})
}
